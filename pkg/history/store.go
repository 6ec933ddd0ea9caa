// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/pgshift/pgshift/pkg/db"
)

// MigrationsTable is the name of the applied-migrations table kept in the
// target database.
const MigrationsTable = "_pgshift_migrations"

const sqlEnsureTable = `
CREATE TABLE IF NOT EXISTS %[1]s (
	name			TEXT NOT NULL,
	script			TEXT NOT NULL,
	checksum		BYTEA NOT NULL,
	started_at		TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	finished_at		TIMESTAMPTZ,
	rolled_back_at	TIMESTAMPTZ
)`

// ImperativeMigration is a row of the applied-migrations table, recording
// the execution of one migration script.
type ImperativeMigration struct {
	Name         string
	Script       string
	Checksum     []byte
	StartedAt    time.Time
	FinishedAt   *time.Time
	RolledBackAt *time.Time
}

// IsApplied reports whether the row counts as applied: it was not rolled
// back and the script ran to completion.
func (m ImperativeMigration) IsApplied() bool {
	return m.RolledBackAt == nil && m.FinishedAt != nil
}

// Store owns the applied-migrations table in the target database.
type Store struct {
	conn db.DB
}

// NewStore returns a store working through conn.
func NewStore(conn db.DB) *Store {
	return &Store{conn: conn}
}

// EnsureTable creates the applied-migrations table if it is absent. The
// advisory lock serializes concurrent initializations.
func (s *Store) EnsureTable(ctx context.Context) error {
	return s.conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		const key int64 = 0x70677368696674
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, fmt.Sprintf(sqlEnsureTable, pq.QuoteIdentifier(MigrationsTable)))
		return err
	})
}

// Persist inserts a new row for a migration that is about to run. The row's
// finished_at stays NULL until MarkFinished is called, so a crash between
// the two leaves a retryable partial run behind.
func (s *Store) Persist(ctx context.Context, name string, checksum []byte, script string) error {
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (name, script, checksum, started_at) VALUES ($1, $2, $3, CURRENT_TIMESTAMP)",
		pq.QuoteIdentifier(MigrationsTable)), name, script, checksum)
	if err != nil {
		return fmt.Errorf("persisting migration %q: %w", name, err)
	}
	return nil
}

// MarkFinished records the successful completion of a migration's script.
func (s *Store) MarkFinished(ctx context.Context, checksum []byte) error {
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET finished_at = CURRENT_TIMESTAMP WHERE checksum = $1 AND finished_at IS NULL",
		pq.QuoteIdentifier(MigrationsTable)), checksum)
	if err != nil {
		return fmt.Errorf("marking migration as finished: %w", err)
	}
	return nil
}

// ReadAll returns every row of the applied-migrations table, ordered by
// started_at and then name. For rows written by Persist this is insertion
// order; rows re-inserted by InsertRolledBack keep their original started_at
// and sort by it, not by when they were re-inserted.
func (s *Store) ReadAll(ctx context.Context) ([]ImperativeMigration, error) {
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf(
		"SELECT name, script, checksum, started_at, finished_at, rolled_back_at FROM %s ORDER BY started_at ASC, name ASC",
		pq.QuoteIdentifier(MigrationsTable)))
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	var migrations []ImperativeMigration
	for rows.Next() {
		var m ImperativeMigration
		var finishedAt, rolledBackAt sql.NullTime
		if err := rows.Scan(&m.Name, &m.Script, &m.Checksum, &m.StartedAt, &finishedAt, &rolledBackAt); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			m.FinishedAt = &finishedAt.Time
		}
		if rolledBackAt.Valid {
			m.RolledBackAt = &rolledBackAt.Time
		}
		migrations = append(migrations, m)
	}

	return migrations, rows.Err()
}

// MarkRolledBack sets rolled_back_at on every row matching one of the given
// checksums.
func (s *Store) MarkRolledBack(ctx context.Context, checksums [][]byte) error {
	if len(checksums) == 0 {
		return nil
	}

	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET rolled_back_at = CURRENT_TIMESTAMP WHERE checksum = ANY($1)",
		pq.QuoteIdentifier(MigrationsTable)), pq.ByteaArray(checksums))
	if err != nil {
		return fmt.Errorf("marking migrations as rolled back: %w", err)
	}
	return nil
}

// InsertRolledBack re-inserts rows that were rolled back, preserving their
// original timestamps and setting rolled_back_at. Used after a revert has
// recreated the table from scratch, so the audit trail survives.
func (s *Store) InsertRolledBack(ctx context.Context, migrations []ImperativeMigration) error {
	for _, m := range migrations {
		_, err := s.conn.ExecContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (name, script, checksum, started_at, finished_at, rolled_back_at) VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)",
			pq.QuoteIdentifier(MigrationsTable)), m.Name, m.Script, m.Checksum, m.StartedAt, m.FinishedAt)
		if err != nil {
			return fmt.Errorf("recording rolled back migration %q: %w", m.Name, err)
		}
	}
	return nil
}
