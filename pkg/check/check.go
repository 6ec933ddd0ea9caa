// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/pgshift/pgshift/pkg/db"
	"github.com/pgshift/pgshift/pkg/diff"
	"github.com/pgshift/pgshift/pkg/schema"
)

// Warning flags a step that may destroy data but can be executed.
type Warning struct {
	Description string
}

// Unexecutable flags a step that cannot be executed against the current data.
type Unexecutable struct {
	Description string
}

// Diagnostics is the result of classifying a migration's steps.
type Diagnostics struct {
	Warnings               []Warning
	UnexecutableMigrations []Unexecutable
}

// HasWarnings reports whether any step was flagged.
func (d Diagnostics) HasWarnings() bool {
	return len(d.Warnings) > 0
}

// WarningDescriptions returns the warning texts in order.
func (d Diagnostics) WarningDescriptions() []string {
	out := make([]string, len(d.Warnings))
	for i, w := range d.Warnings {
		out[i] = w.Description
	}
	return out
}

// UnexecutableDescriptions returns the unexecutable step texts in order.
func (d Diagnostics) UnexecutableDescriptions() []string {
	out := make([]string, len(d.UnexecutableMigrations))
	for i, u := range d.UnexecutableMigrations {
		out[i] = u.Description
	}
	return out
}

// Checker classifies migration steps as safe, destructive (warning) or
// unexecutable, probing the database for row counts where the classification
// depends on data.
type Checker struct {
	conn db.DB
}

// NewChecker returns a checker probing conn.
func NewChecker(conn db.DB) *Checker {
	return &Checker{conn: conn}
}

// Check classifies every step of the migration. The emptiness oracle is
// conservative: when a probe fails, the data is assumed to exist.
func (c *Checker) Check(ctx context.Context, migration *diff.DatabaseMigration) (Diagnostics, error) {
	return c.check(ctx, migration, false)
}

// PureCheck classifies the migration using only its metadata, without any
// database round-trip. Every data probe is assumed to find data, so the
// result is at least as strict as Check's. Intended for render-time use.
func PureCheck(migration *diff.DatabaseMigration) Diagnostics {
	c := &Checker{}
	d, _ := c.check(context.Background(), migration, true)
	return d
}

func (c *Checker) check(ctx context.Context, migration *diff.DatabaseMigration, pure bool) (Diagnostics, error) {
	var d Diagnostics

	for _, step := range migration.Steps {
		switch s := step.(type) {
		case *diff.DropTable:
			if c.tableHasData(ctx, s.Name, pure) {
				d.Warnings = append(d.Warnings, Warning{Description: fmt.Sprintf(
					"You are about to drop the table %q, which is not empty.", s.Name)})
			}

		case *diff.DropColumn:
			if c.columnHasData(ctx, s.Table, s.Column, pure) {
				d.Warnings = append(d.Warnings, Warning{Description: fmt.Sprintf(
					"You are about to drop the column %q on table %q, which still contains data.", s.Column, s.Table)})
			}

		case *diff.AddColumn:
			if s.Column.Type.Arity == schema.Required && s.Column.Default == nil &&
				!s.Column.AutoIncrement && c.tableHasData(ctx, s.Table, pure) {
				d.UnexecutableMigrations = append(d.UnexecutableMigrations, Unexecutable{Description: fmt.Sprintf(
					"Added the required column %q to the table %q without a default value, but the table is not empty.",
					s.Column.Name, s.Table)})
			}

		case *diff.AlterColumn:
			c.checkAlterColumn(ctx, s, pure, &d)

		case *diff.RedefineTables:
			c.checkRedefinitions(ctx, s, pure, &d)
		}
	}

	return d, nil
}

func (c *Checker) checkAlterColumn(ctx context.Context, s *diff.AlterColumn, pure bool, d *Diagnostics) {
	switch s.TypeChange {
	case diff.RiskyCast:
		d.Warnings = append(d.Warnings, Warning{Description: fmt.Sprintf(
			"Changing the type of column %q on table %q may lose data (%s to %s).",
			s.Next.Name, s.Table, describeType(s.Previous.Type), describeType(s.Next.Type))})
	case diff.NotCastable:
		if c.columnHasData(ctx, s.Table, s.Next.Name, pure) {
			d.UnexecutableMigrations = append(d.UnexecutableMigrations, Unexecutable{Description: fmt.Sprintf(
				"Changed the type of column %q on table %q from %s to %s, which cannot be cast, and the column contains data.",
				s.Next.Name, s.Table, describeType(s.Previous.Type), describeType(s.Next.Type))})
		}
	}

	if s.Changes.ArityChanged &&
		s.Previous.Type.Arity == schema.Nullable && s.Next.Type.Arity == schema.Required &&
		c.columnHasNulls(ctx, s.Table, s.Next.Name, pure) {
		d.Warnings = append(d.Warnings, Warning{Description: fmt.Sprintf(
			"Making the column %q on table %q required, but it contains NULL values.", s.Next.Name, s.Table)})
	}
}

func (c *Checker) checkRedefinitions(ctx context.Context, s *diff.RedefineTables, pure bool, d *Diagnostics) {
	for _, t := range s.Tables {
		for _, prev := range t.Previous.Columns {
			kept := false
			for _, next := range t.Next.Columns {
				if next.Name == prev.Name {
					kept = true
					break
				}
			}
			if !kept && c.columnHasData(ctx, t.Previous.Name, prev.Name, pure) {
				d.Warnings = append(d.Warnings, Warning{Description: fmt.Sprintf(
					"You are about to drop the column %q on table %q, which still contains data.",
					prev.Name, t.Previous.Name)})
			}
		}

		if c.tableHasData(ctx, t.Previous.Name, pure) {
			d.Warnings = append(d.Warnings, Warning{Description: fmt.Sprintf(
				"The table %q will be rebuilt to apply this change; its rows will be copied over.", t.Previous.Name)})
		}
	}
}

// tableHasData reports whether the table holds at least one row. Unknown
// counts as data.
func (c *Checker) tableHasData(ctx context.Context, table string, pure bool) bool {
	if pure {
		return true
	}
	count, err := c.countRows(ctx, fmt.Sprintf("SELECT count(*) FROM %s", pq.QuoteIdentifier(table)))
	if err != nil {
		return true
	}
	return count > 0
}

// columnHasData reports whether the column holds at least one non-NULL value.
func (c *Checker) columnHasData(ctx context.Context, table, column string, pure bool) bool {
	if pure {
		return true
	}
	count, err := c.countRows(ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NOT NULL",
		pq.QuoteIdentifier(table), pq.QuoteIdentifier(column)))
	if err != nil {
		return true
	}
	return count > 0
}

// columnHasNulls reports whether the column holds at least one NULL.
func (c *Checker) columnHasNulls(ctx context.Context, table, column string, pure bool) bool {
	if pure {
		return true
	}
	count, err := c.countRows(ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NULL",
		pq.QuoteIdentifier(table), pq.QuoteIdentifier(column)))
	if err != nil {
		return true
	}
	return count > 0
}

func (c *Checker) countRows(ctx context.Context, query string) (int64, error) {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.ScanFirstValue(rows, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func describeType(t schema.ColumnType) string {
	if t.Family == schema.FamilyEnum {
		return fmt.Sprintf("enum %q", t.EnumName)
	}
	return string(t.Family)
}
