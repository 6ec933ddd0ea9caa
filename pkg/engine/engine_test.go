// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/internal/testutils"
	"github.com/pgshift/pgshift/pkg/engine"
	"github.com/pgshift/pgshift/pkg/history"
	"github.com/pgshift/pgshift/pkg/schema"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

// writeFolder creates a migration folder with the given id and script.
func writeFolder(t *testing.T, dir, id, script string) {
	t.Helper()

	path := filepath.Join(dir, id)
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "migration.sql"), []byte(script), 0o644))
}

func tableExists(t *testing.T, conn *sql.DB, name string) bool {
	t.Helper()

	var exists bool
	err := conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = 'public' AND tablename = $1)", name).
		Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestCatchUpUpToDateWithoutDrift(t *testing.T) {
	t.Parallel()

	testutils.WithEngineAndConnectionToContainer(t, func(m *engine.Engine, conn *sql.DB) {
		ctx := context.Background()
		dir := t.TempDir()
		writeFolder(t, dir, "20240101000000_a", "CREATE TABLE a(id int);")

		// First catch-up applies the pending migration.
		result, err := m.CatchUp(ctx, dir, false)
		require.NoError(t, err)
		assert.True(t, result.Proceed)
		assert.True(t, tableExists(t, conn, "a"))

		// Second catch-up finds the histories in agreement and no drift.
		result, err = m.CatchUp(ctx, dir, false)
		require.NoError(t, err)
		assert.True(t, result.Proceed)
		assert.Nil(t, result.RadicalMeasure)
	})
}

func TestCatchUpDatabaseIsBehind(t *testing.T) {
	t.Parallel()

	testutils.WithEngineAndConnectionToContainer(t, func(m *engine.Engine, conn *sql.DB) {
		ctx := context.Background()
		dir := t.TempDir()
		writeFolder(t, dir, "20240101000000_a", "CREATE TABLE a(id int);")
		writeFolder(t, dir, "20240102000000_b", "CREATE TABLE b(id int);")

		result, err := m.CatchUp(ctx, dir, false)
		require.NoError(t, err)
		assert.True(t, result.Proceed)

		assert.True(t, tableExists(t, conn, "a"))
		assert.True(t, tableExists(t, conn, "b"))

		rows, err := m.Store().ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.True(t, rows[0].IsApplied())
		assert.True(t, rows[1].IsApplied())
	})
}

func TestCatchUpFilesystemIsBehindWithoutForce(t *testing.T) {
	t.Parallel()

	testutils.WithEngineAndConnectionToContainer(t, func(m *engine.Engine, conn *sql.DB) {
		ctx := context.Background()
		dir := t.TempDir()
		writeFolder(t, dir, "20240101000000_a", "CREATE TABLE a(id int);")

		result, err := m.CatchUp(ctx, dir, false)
		require.NoError(t, err)
		require.True(t, result.Proceed)

		// A second migration was applied but its folder is gone.
		script := "CREATE TABLE b(id int);"
		checksum := history.Checksum(script)
		require.NoError(t, m.Store().Persist(ctx, "20240102000000_b", checksum, script))
		_, err = conn.ExecContext(ctx, script)
		require.NoError(t, err)
		require.NoError(t, m.Store().MarkFinished(ctx, checksum))

		result, err = m.CatchUp(ctx, dir, false)
		require.NoError(t, err)

		assert.False(t, result.Proceed)
		require.NotNil(t, result.RadicalMeasure)
		assert.Contains(t, *result.RadicalMeasure, "behind")

		// Nothing was touched.
		assert.True(t, tableExists(t, conn, "a"))
		assert.True(t, tableExists(t, conn, "b"))
	})
}

func TestCatchUpFilesystemIsBehindWithForceReverts(t *testing.T) {
	t.Parallel()

	testutils.WithEngineAndConnectionToContainer(t, func(m *engine.Engine, conn *sql.DB) {
		ctx := context.Background()
		dir := t.TempDir()
		writeFolder(t, dir, "20240101000000_a", "CREATE TABLE a(id int);")

		result, err := m.CatchUp(ctx, dir, false)
		require.NoError(t, err)
		require.True(t, result.Proceed)

		script := "CREATE TABLE b(id int);"
		checksum := history.Checksum(script)
		require.NoError(t, m.Store().Persist(ctx, "20240102000000_b", checksum, script))
		_, err = conn.ExecContext(ctx, script)
		require.NoError(t, err)
		require.NoError(t, m.Store().MarkFinished(ctx, checksum))

		result, err = m.CatchUp(ctx, dir, true)
		require.NoError(t, err)
		assert.True(t, result.Proceed)

		// The extra table is gone, the folder state is restored.
		assert.True(t, tableExists(t, conn, "a"))
		assert.False(t, tableExists(t, conn, "b"))

		// The reverted migration is still visible in the audit trail.
		rows, err := m.Store().ReadAll(ctx)
		require.NoError(t, err)

		var reverted *history.ImperativeMigration
		for i := range rows {
			if rows[i].Name == "20240102000000_b" {
				reverted = &rows[i]
			}
		}
		require.NotNil(t, reverted)
		assert.NotNil(t, reverted.RolledBackAt)
		assert.False(t, reverted.IsApplied())
	})
}

func TestCatchUpHistoriesDivergeAtTail(t *testing.T) {
	t.Parallel()

	testutils.WithEngineAndConnectionToContainer(t, func(m *engine.Engine, conn *sql.DB) {
		ctx := context.Background()
		dir := t.TempDir()
		writeFolder(t, dir, "20240101000000_a", "CREATE TABLE a(id int);")
		writeFolder(t, dir, "20240102000000_b", "CREATE TABLE b(id int);")

		result, err := m.CatchUp(ctx, dir, false)
		require.NoError(t, err)
		require.True(t, result.Proceed)

		// Edit the last migration after it was applied.
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, "20240102000000_b", "migration.sql"),
			[]byte("CREATE TABLE b(id bigint);"), 0o644))

		result, err = m.CatchUp(ctx, dir, false)
		require.NoError(t, err)

		assert.False(t, result.Proceed)
		require.NotNil(t, result.RadicalMeasure)
		assert.Contains(t, *result.RadicalMeasure, "edited")

		// With force, the edited migration is reverted and re-applied.
		result, err = m.CatchUp(ctx, dir, true)
		require.NoError(t, err)
		assert.True(t, result.Proceed)

		var dataType string
		err = conn.QueryRowContext(ctx,
			"SELECT data_type FROM information_schema.columns WHERE table_name = 'b' AND column_name = 'id'").
			Scan(&dataType)
		require.NoError(t, err)
		assert.Equal(t, "bigint", dataType)
	})
}

func TestCatchUpDetectsAndRevertsDrift(t *testing.T) {
	t.Parallel()

	testutils.WithEngineAndConnectionToContainer(t, func(m *engine.Engine, conn *sql.DB) {
		ctx := context.Background()
		dir := t.TempDir()
		writeFolder(t, dir, "20240101000000_a", "CREATE TABLE t(x int);")

		result, err := m.CatchUp(ctx, dir, false)
		require.NoError(t, err)
		require.True(t, result.Proceed)

		// Drift: a column added behind the tool's back.
		_, err = conn.ExecContext(ctx, "ALTER TABLE t ADD COLUMN y text")
		require.NoError(t, err)

		result, err = m.CatchUp(ctx, dir, false)
		require.NoError(t, err)
		assert.False(t, result.Proceed)
		require.NotNil(t, result.RadicalMeasure)
		assert.Contains(t, *result.RadicalMeasure, "drifted")

		// With force the drift is reverted.
		result, err = m.CatchUp(ctx, dir, true)
		require.NoError(t, err)
		assert.True(t, result.Proceed)

		var count int
		err = conn.QueryRowContext(ctx,
			"SELECT count(*) FROM information_schema.columns WHERE table_name = 't' AND column_name = 'y'").
			Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestSchemaPushCreatesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	testutils.WithEngineAndConnectionToContainer(t, func(m *engine.Engine, conn *sql.DB) {
		ctx := context.Background()

		datamodel := &schema.Schema{
			Name: "public",
			Tables: []schema.Table{
				{
					Name: "users",
					Columns: []schema.Column{
						{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required}, AutoIncrement: true},
						{Name: "email", Type: schema.ColumnType{Family: schema.FamilyString, Arity: schema.Required}},
					},
					PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
				},
			},
		}

		result, err := m.SchemaPush(ctx, engine.SchemaPushInput{Datamodel: datamodel})
		require.NoError(t, err)

		assert.NotZero(t, result.ExecutedSteps)
		assert.Empty(t, result.Warnings)
		assert.Empty(t, result.Unexecutable)
		assert.True(t, tableExists(t, conn, "users"))

		// Pushing the same data model again finds nothing to do.
		result, err = m.SchemaPush(ctx, engine.SchemaPushInput{Datamodel: datamodel})
		require.NoError(t, err)
		assert.Zero(t, result.ExecutedSteps)
	})
}

func TestSchemaPushUnexecutableBlocksRegardlessOfAcceptDataLoss(t *testing.T) {
	t.Parallel()

	testutils.WithEngineAndConnectionToContainer(t, func(m *engine.Engine, conn *sql.DB) {
		ctx := context.Background()

		_, err := conn.ExecContext(ctx, "CREATE TABLE notes(id int NOT NULL, c text NOT NULL)")
		require.NoError(t, err)
		_, err = conn.ExecContext(ctx, "INSERT INTO notes VALUES (1, 'not a number')")
		require.NoError(t, err)

		datamodel := &schema.Schema{
			Name: "public",
			Tables: []schema.Table{
				{
					Name: "notes",
					Columns: []schema.Column{
						{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required}},
						{Name: "c", Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required}},
					},
				},
			},
		}

		for _, acceptDataLoss := range []bool{false, true} {
			result, err := m.SchemaPush(ctx, engine.SchemaPushInput{
				Datamodel:      datamodel,
				AcceptDataLoss: acceptDataLoss,
			})
			require.NoError(t, err)

			assert.NotEmpty(t, result.Unexecutable)
			assert.Zero(t, result.ExecutedSteps)
		}

		// The column is untouched.
		var dataType string
		err = conn.QueryRowContext(ctx,
			"SELECT data_type FROM information_schema.columns WHERE table_name = 'notes' AND column_name = 'c'").
			Scan(&dataType)
		require.NoError(t, err)
		assert.Equal(t, "text", dataType)
	})
}

func TestSchemaPushWithMigrationsDirRecordsTheMigration(t *testing.T) {
	t.Parallel()

	testutils.WithEngineAndConnectionToContainer(t, func(m *engine.Engine, conn *sql.DB) {
		ctx := context.Background()
		dir := t.TempDir()

		datamodel := &schema.Schema{
			Name: "public",
			Tables: []schema.Table{
				{
					Name: "users",
					Columns: []schema.Column{
						{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Required}},
					},
				},
			},
		}

		result, err := m.SchemaPush(ctx, engine.SchemaPushInput{
			Datamodel:     datamodel,
			MigrationsDir: dir,
		})
		require.NoError(t, err)
		assert.NotZero(t, result.ExecutedSteps)

		folders, err := history.ListMigrations(dir)
		require.NoError(t, err)
		require.Len(t, folders, 1)

		script, err := folders[0].ReadScript()
		require.NoError(t, err)
		assert.Contains(t, script, "CREATE TABLE")

		rows, err := m.Store().ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].IsApplied())
		assert.Equal(t, history.Checksum(script), rows[0].Checksum)

		// The folder and the database are now in agreement.
		diagnostic, err := m.Status(ctx, dir)
		require.NoError(t, err)
		assert.Equal(t, history.UpToDate, diagnostic.Kind)
	})
}
