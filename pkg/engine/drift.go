// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/pgshift/pgshift/pkg/diff"
	"github.com/pgshift/pgshift/pkg/history"
)

// DetectDrift materializes the migration folder's end state in a shadow
// database and diffs the live database against it. It returns the migration
// that would remove the drift, or nil when the live database agrees with the
// folder.
func (e *Engine) DetectDrift(ctx context.Context, folders []history.MigrationFolder) (*diff.DatabaseMigration, error) {
	shadow, err := e.CreateShadowDatabase(ctx)
	if err != nil {
		return nil, err
	}
	defer e.DropShadowDatabase(ctx, shadow)

	e.logger.Debug("replaying migration folder into shadow database", "database", shadow.Name)

	for _, folder := range folders {
		script, err := folder.ReadScript()
		if err != nil {
			return nil, wrapError(KindInput, e.meta, err)
		}
		if _, err := shadow.Conn().ExecContext(ctx, script); err != nil {
			return nil, wrapError(KindSqlExecution, e.meta,
				fmt.Errorf("replaying migration %q: %w", folder.MigrationID(), err))
		}
	}

	liveSchema, err := e.Describe(ctx)
	if err != nil {
		return nil, err
	}

	shadowSchema, err := shadow.Describe(ctx)
	if err != nil {
		return nil, &ConnectorError{Kind: KindDescribeFailure, Meta: e.meta, Err: err}
	}

	migration := diff.Diff(liveSchema, shadowSchema, e.flavour)
	if migration.IsEmpty() {
		return nil, nil
	}
	return migration, nil
}
