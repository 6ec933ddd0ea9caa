// SPDX-License-Identifier: Apache-2.0

package history_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/internal/testutils"
	"github.com/pgshift/pgshift/pkg/db"
	"github.com/pgshift/pgshift/pkg/history"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		store := history.NewStore(&db.RDB{DB: conn})

		require.NoError(t, store.EnsureTable(ctx))
		// EnsureTable is idempotent.
		require.NoError(t, store.EnsureTable(ctx))

		script := "CREATE TABLE a(id int);"
		checksum := history.Checksum(script)

		require.NoError(t, store.Persist(ctx, "20240101000000_a", checksum, script))

		rows, err := store.ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)

		// A persisted but unfinished row does not count as applied.
		assert.Equal(t, "20240101000000_a", rows[0].Name)
		assert.Equal(t, checksum, rows[0].Checksum)
		assert.Nil(t, rows[0].FinishedAt)
		assert.False(t, rows[0].IsApplied())

		require.NoError(t, store.MarkFinished(ctx, checksum))

		rows, err = store.ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.NotNil(t, rows[0].FinishedAt)
		assert.True(t, rows[0].IsApplied())
	})
}

func TestStoreMarkRolledBack(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		store := history.NewStore(&db.RDB{DB: conn})

		require.NoError(t, store.EnsureTable(ctx))

		first := history.Checksum("one;")
		second := history.Checksum("two;")
		require.NoError(t, store.Persist(ctx, "20240101000000_a", first, "one;"))
		require.NoError(t, store.MarkFinished(ctx, first))
		require.NoError(t, store.Persist(ctx, "20240102000000_b", second, "two;"))
		require.NoError(t, store.MarkFinished(ctx, second))

		require.NoError(t, store.MarkRolledBack(ctx, [][]byte{second}))

		rows, err := store.ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.True(t, rows[0].IsApplied())
		assert.False(t, rows[1].IsApplied())
		assert.NotNil(t, rows[1].RolledBackAt)
	})
}

func TestStoreReadAllReturnsInsertionOrder(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		store := history.NewStore(&db.RDB{DB: conn})

		require.NoError(t, store.EnsureTable(ctx))

		names := []string{"20240101000000_a", "20240102000000_b", "20240103000000_c"}
		for _, name := range names {
			require.NoError(t, store.Persist(ctx, name, history.Checksum(name), name))
		}

		rows, err := store.ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		for i, name := range names {
			assert.Equal(t, name, rows[i].Name)
		}
	})
}
