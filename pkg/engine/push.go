// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/pgshift/pgshift/pkg/check"
	"github.com/pgshift/pgshift/pkg/diff"
	"github.com/pgshift/pgshift/pkg/history"
	"github.com/pgshift/pgshift/pkg/schema"
)

// SchemaPushInput is the input of a schema push.
type SchemaPushInput struct {
	// Datamodel is the declarative schema to push
	Datamodel *schema.Schema

	// Force applies the migration even when it triggers destructive-change
	// warnings, and authorizes radical measures during folder
	// reconciliation
	Force bool

	// AcceptDataLoss applies the migration despite warnings, without
	// authorizing radical measures
	AcceptDataLoss bool

	// Draft renders the migration into the folder without applying it
	Draft bool

	// MigrationsDir is the optional migrations folder to reconcile with
	// and record into
	MigrationsDir string
}

// SchemaPushResult is the outcome of a schema push.
type SchemaPushResult struct {
	ExecutedSteps  uint32
	Warnings       []string
	Unexecutable   []string
	RadicalMeasure *string
}

// HadNoChanges reports whether the push found nothing to do.
func (r *SchemaPushResult) HadNoChanges() bool {
	return r.ExecutedSteps == 0 && len(r.Warnings) == 0 && len(r.Unexecutable) == 0 &&
		r.RadicalMeasure == nil
}

// SchemaPush brings the live database in agreement with the declarative data
// model. When a migrations folder is configured, the folder and the database
// history are reconciled first, and the computed migration is recorded in
// both the folder and the applied-migrations table.
func (e *Engine) SchemaPush(ctx context.Context, input SchemaPushInput) (*SchemaPushResult, error) {
	result := &SchemaPushResult{}

	if input.MigrationsDir != "" {
		catchUp, err := e.CatchUp(ctx, input.MigrationsDir, input.Force)
		if err != nil {
			return nil, err
		}
		if !catchUp.Proceed {
			result.RadicalMeasure = catchUp.RadicalMeasure
			return result, nil
		}
	} else if err := e.Init(ctx); err != nil {
		return nil, err
	}

	liveSchema, err := e.Describe(ctx)
	if err != nil {
		return nil, err
	}

	migration := diff.Diff(liveSchema, input.Datamodel, e.flavour)

	diagnostics, err := e.checker.Check(ctx, migration)
	if err != nil {
		return nil, wrapError(KindSqlExecution, e.meta, err)
	}
	result.Warnings = diagnostics.WarningDescriptions()
	result.Unexecutable = diagnostics.UnexecutableDescriptions()

	if e.applier.MigrationIsEmpty(migration) {
		e.logger.Info("the generated migration is empty")
		return result, nil
	}

	for _, warning := range diagnostics.Warnings {
		e.logger.Warn("destructive change", "description", warning.Description)
	}

	if input.Draft {
		if input.MigrationsDir != "" {
			if err := e.writeMigrationFolder(ctx, input.MigrationsDir, migration, diagnostics, false); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	if !e.shouldApply(diagnostics, input) {
		e.logger.Info("the migration was not applied: it has unexecutable steps, or warnings without force or accept-data-loss")
		return result, nil
	}

	if input.MigrationsDir != "" {
		if err := e.writeMigrationFolder(ctx, input.MigrationsDir, migration, diagnostics, true); err != nil {
			return nil, err
		}
	}

	executed, err := e.applySteps(ctx, migration)
	if err != nil {
		return nil, err
	}
	result.ExecutedSteps = executed

	if input.MigrationsDir != "" {
		_, script := e.applier.RenderMigrationScript(migration, diagnostics)
		if err := e.store.MarkFinished(ctx, history.Checksum(script)); err != nil {
			return nil, wrapError(KindSqlExecution, e.meta, err)
		}
	}

	return result, nil
}

// shouldApply decides whether the migration may run. Unexecutable steps veto
// it unconditionally; warnings require force or an explicit data loss
// acknowledgement.
func (e *Engine) shouldApply(diagnostics check.Diagnostics, input SchemaPushInput) bool {
	if len(diagnostics.UnexecutableMigrations) > 0 {
		return false
	}
	if diagnostics.HasWarnings() {
		return input.Force || input.AcceptDataLoss
	}
	return true
}

func (e *Engine) applySteps(ctx context.Context, migration *diff.DatabaseMigration) (uint32, error) {
	var executed uint32
	for step := 0; ; step++ {
		more, err := e.applier.ApplyStep(ctx, migration, step)
		if err != nil {
			return executed, wrapError(KindSqlExecution, e.meta, err)
		}
		if !more {
			return executed, nil
		}
		executed++
	}
}

// writeMigrationFolder renders the migration into a fresh folder and, when
// recording, persists the pending row in the applied-migrations table. The
// row is marked finished only after the steps have run.
func (e *Engine) writeMigrationFolder(ctx context.Context, migrationsDir string, migration *diff.DatabaseMigration, diagnostics check.Diagnostics, record bool) error {
	extension, script := e.applier.RenderMigrationScript(migration, diagnostics)

	folder, err := history.CreateMigrationFolder(migrationsDir, "draft")
	if err != nil {
		return wrapError(KindInput, e.meta, err)
	}
	if err := folder.WriteScript(script, extension); err != nil {
		return wrapError(KindInput, e.meta, err)
	}

	if !record {
		return nil
	}

	checksum := history.Checksum(script)
	if err := e.store.Persist(ctx, folder.MigrationID(), checksum, script); err != nil {
		return wrapError(KindSqlExecution, e.meta, err)
	}

	return nil
}

// CreateMigration scaffolds a new, empty migration folder.
func (e *Engine) CreateMigration(migrationsDir, name string) (history.MigrationFolder, error) {
	folder, err := history.CreateMigrationFolder(migrationsDir, name)
	if err != nil {
		return history.MigrationFolder{}, wrapError(KindInput, e.meta, err)
	}
	if err := folder.WriteScript("", "sql"); err != nil {
		return history.MigrationFolder{}, wrapError(KindInput, e.meta, err)
	}
	return folder, nil
}

// Status reports the history diagnostic for the migrations folder without
// changing anything.
func (e *Engine) Status(ctx context.Context, migrationsDir string) (history.Diagnostic, error) {
	if err := e.Init(ctx); err != nil {
		return history.Diagnostic{}, err
	}

	folders, err := history.ListMigrations(migrationsDir)
	if err != nil {
		return history.Diagnostic{}, wrapError(KindInput, e.meta, err)
	}

	applied, err := e.store.ReadAll(ctx)
	if err != nil {
		return history.Diagnostic{}, wrapError(KindSqlExecution, e.meta, err)
	}

	diagnostic, err := history.Diagnose(folders, applied)
	if err != nil {
		return history.Diagnostic{}, wrapError(KindHistoryCorruption, e.meta, err)
	}
	return diagnostic, nil
}
