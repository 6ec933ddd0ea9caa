// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/pgshift/pgshift/pkg/history"
)

// RevertTo resets the target schema and replays the given migration folders
// from scratch, recording each replayed script in the applied-migrations
// table. The rows in toRollBack are re-inserted with rolled_back_at set once
// the replay has succeeded, so the audit trail survives the reset.
//
// This destroys all data in the target schema. Callers gate it behind an
// explicit force flag.
func (e *Engine) RevertTo(ctx context.Context, folders []history.MigrationFolder, toRollBack []history.ImperativeMigration) error {
	e.logger.Warn("resetting the database schema to revert migrations", "schema", e.schema)

	_, err := e.conn.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pq.QuoteIdentifier(e.schema)))
	if err != nil {
		return wrapError(KindSqlExecution, e.meta, err)
	}
	_, err = e.conn.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", pq.QuoteIdentifier(e.schema)))
	if err != nil {
		return wrapError(KindSqlExecution, e.meta, err)
	}

	if err := e.Init(ctx); err != nil {
		return err
	}

	for _, folder := range folders {
		if err := e.applyFolderMigration(ctx, folder); err != nil {
			return err
		}
	}

	// Only after the replay has succeeded are the reverted rows recorded.
	if err := e.store.InsertRolledBack(ctx, toRollBack); err != nil {
		return wrapError(KindSqlExecution, e.meta, err)
	}

	return nil
}

// applyFolderMigration runs one folder's script against the database,
// bracketing it with the applied-migrations bookkeeping: the row is
// persisted with a NULL finished_at before the script runs, and marked
// finished after. A crash in between leaves a retryable partial row.
func (e *Engine) applyFolderMigration(ctx context.Context, folder history.MigrationFolder) error {
	script, err := folder.ReadScript()
	if err != nil {
		return wrapError(KindInput, e.meta, err)
	}
	checksum := history.Checksum(script)

	if err := e.store.Persist(ctx, folder.MigrationID(), checksum, script); err != nil {
		return wrapError(KindSqlExecution, e.meta, err)
	}

	if err := e.applier.ApplyMigrationScript(ctx, script, checksum); err != nil {
		return wrapError(KindSqlExecution, e.meta,
			fmt.Errorf("applying migration %q: %w", folder.MigrationID(), err))
	}

	if err := e.store.MarkFinished(ctx, checksum); err != nil {
		return wrapError(KindSqlExecution, e.meta, err)
	}

	e.logger.Info("applied migration", "migration", folder.MigrationID())
	return nil
}
