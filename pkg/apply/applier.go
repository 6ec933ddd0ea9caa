// SPDX-License-Identifier: Apache-2.0

package apply

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pgshift/pgshift/pkg/check"
	"github.com/pgshift/pgshift/pkg/db"
	"github.com/pgshift/pgshift/pkg/diff"
)

// Applier renders migrations into SQL and applies them step by step against
// a database.
type Applier struct {
	conn   db.DB
	logger Logger
}

// NewApplier returns an applier running its statements over conn.
func NewApplier(conn db.DB, logger Logger) *Applier {
	if logger == nil {
		logger = NewNoopLogger()
	}
	return &Applier{conn: conn, logger: logger}
}

// ApplyStep applies the single step at the given index and reports whether
// there may be a next step. A step's statements run inside one transaction.
// Callers drive a migration to completion with:
//
//	for step := 0; ; step++ {
//		more, err := applier.ApplyStep(ctx, migration, step)
//		...
//	}
func (a *Applier) ApplyStep(ctx context.Context, migration *diff.DatabaseMigration, step int) (bool, error) {
	if migration == nil || step >= len(migration.Steps) {
		return false, nil
	}

	s := migration.Steps[step]
	a.logger.Debug("applying step", "index", step, "step", s.Description())

	err := a.conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range Statements(s) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("applying step %d (%s): %w", step, s.Description(), err)
	}

	return true, nil
}

// RenderMigrationScript renders the whole migration as a single script. The
// first return value is the script's file extension. Warnings from the
// diagnostics are rendered as leading comments. Rendering never fails and is
// deterministic.
func (a *Applier) RenderMigrationScript(migration *diff.DatabaseMigration, diagnostics check.Diagnostics) (string, string) {
	var b strings.Builder

	for _, warning := range diagnostics.Warnings {
		fmt.Fprintf(&b, "-- WARNING: %s\n", warning.Description)
	}
	for _, unexecutable := range diagnostics.UnexecutableMigrations {
		fmt.Fprintf(&b, "-- UNEXECUTABLE: %s\n", unexecutable.Description)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}

	for _, step := range migration.Steps {
		fmt.Fprintf(&b, "-- %s\n", step.Description())
		for _, stmt := range Statements(step) {
			b.WriteString(stmt)
			b.WriteString(";\n")
		}
		b.WriteString("\n")
	}

	return "sql", strings.TrimSuffix(b.String(), "\n")
}

// ApplyMigrationScript executes a rendered script wholesale. The checksum is
// only forwarded for provenance logging.
func (a *Applier) ApplyMigrationScript(ctx context.Context, script string, checksum []byte) error {
	a.logger.Info("applying migration script", "checksum", hex.EncodeToString(checksum))

	if _, err := a.conn.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("applying migration script: %w", err)
	}
	return nil
}

// MigrationIsEmpty reports whether the migration has no steps.
func (a *Applier) MigrationIsEmpty(migration *diff.DatabaseMigration) bool {
	return migration.IsEmpty()
}
