// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/pgshift/pgshift/pkg/history"
)

// CatchUpResult is the outcome of reconciling the migrations folder with the
// database. When Proceed is false, RadicalMeasure describes the
// user-confirmation-gated operation that would be required; the caller is
// expected to confirm and re-invoke with force.
type CatchUpResult struct {
	RadicalMeasure *string
	Proceed        bool
}

func proceed() CatchUpResult {
	return CatchUpResult{Proceed: true}
}

func radicalMeasure(msg string) CatchUpResult {
	return CatchUpResult{RadicalMeasure: &msg}
}

// CatchUp brings a development database on track with the migrations folder.
// It diagnoses the relationship between the folder and the applied
// migrations, then applies, reverts or asks for confirmation depending on
// the diagnostic and the force flag.
//
// Without force, no branch drops anything from the live database.
func (e *Engine) CatchUp(ctx context.Context, migrationsDir string, force bool) (CatchUpResult, error) {
	if err := e.Init(ctx); err != nil {
		return CatchUpResult{}, err
	}

	folders, err := history.ListMigrations(migrationsDir)
	if err != nil {
		return CatchUpResult{}, wrapError(KindInput, e.meta, err)
	}

	allApplied, err := e.store.ReadAll(ctx)
	if err != nil {
		return CatchUpResult{}, wrapError(KindSqlExecution, e.meta, err)
	}

	diagnostic, err := history.Diagnose(folders, allApplied)
	if err != nil {
		return CatchUpResult{}, wrapError(KindHistoryCorruption, e.meta, err)
	}

	e.logger.Debug("history diagnostic", "kind", diagnostic.Kind.String())

	switch diagnostic.Kind {
	case history.UpToDate:
		return e.catchUpDrift(ctx, folders, force)

	case history.DatabaseIsBehind:
		for _, folder := range diagnostic.Unapplied {
			if err := e.applyFolderMigration(ctx, folder); err != nil {
				return CatchUpResult{}, err
			}
		}
		return proceed(), nil

	case history.FilesystemIsBehind:
		if !force {
			return radicalMeasure(fmt.Sprintf(
				"The migrations folder is behind the database: %d applied migration(s) are missing from the folder. Reverting them drops data; re-run with force to revert.",
				len(diagnostic.Unpersisted))), nil
		}
		if err := e.RevertTo(ctx, folders, diagnostic.Unpersisted); err != nil {
			return CatchUpResult{}, err
		}
		return proceed(), nil

	case history.HistoriesDiverge:
		return e.catchUpDiverged(ctx, folders, allApplied, diagnostic, force)
	}

	return CatchUpResult{}, wrapError(KindHistoryCorruption, e.meta,
		fmt.Errorf("unreachable history diagnostic %v", diagnostic.Kind))
}

// catchUpDrift handles the up-to-date branch: the histories agree, but the
// live schema may have drifted away from the folder's end state.
func (e *Engine) catchUpDrift(ctx context.Context, folders []history.MigrationFolder, force bool) (CatchUpResult, error) {
	drift, err := e.DetectDrift(ctx, folders)
	if err != nil {
		return CatchUpResult{}, err
	}
	if drift == nil {
		return proceed(), nil
	}

	if !force {
		return radicalMeasure(
			"The database schema has drifted from the state implied by the migrations folder. Re-run with force to bring the database back in line."), nil
	}

	e.logger.Warn("reverting schema drift", "steps", len(drift.Steps))
	for step := 0; ; step++ {
		more, err := e.applier.ApplyStep(ctx, drift, step)
		if err != nil {
			return CatchUpResult{}, wrapError(KindSqlExecution, e.meta, err)
		}
		if !more {
			break
		}
	}

	return proceed(), nil
}

// catchUpDiverged handles the diverging-histories branch.
func (e *Engine) catchUpDiverged(
	ctx context.Context,
	folders []history.MigrationFolder,
	allApplied []history.ImperativeMigration,
	diagnostic history.Diagnostic,
	force bool,
) (CatchUpResult, error) {
	applied := history.AppliedOnly(allApplied)
	divergedAt := diagnostic.LastMatchedFolderIndex + 1

	if !force {
		// Special case: only the tail entry was edited. The folder and
		// the applied history have the same length, diverge at their
		// last position, and the names there agree.
		if divergedAt == len(folders)-1 && divergedAt == len(applied)-1 &&
			folders[divergedAt].MigrationID() == applied[divergedAt].Name {
			return radicalMeasure(fmt.Sprintf(
				"The migration %q was edited after it was applied to the database. Re-run with force to revert and re-apply it.",
				folders[divergedAt].MigrationID())), nil
		}
		return radicalMeasure(fmt.Sprintf(
			"The migrations folder and the database history diverge after %d matching migration(s). Re-run with force to revert the database to the last common migration.",
			divergedAt)), nil
	}

	// Revert to the last common migration, then replay the folder tail.
	if err := e.RevertTo(ctx, folders[:divergedAt], applied[divergedAt:]); err != nil {
		return CatchUpResult{}, err
	}
	for _, folder := range folders[divergedAt:] {
		if err := e.applyFolderMigration(ctx, folder); err != nil {
			return CatchUpResult{}, err
		}
	}

	return proceed(), nil
}
