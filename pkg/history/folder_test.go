// SPDX-License-Identifier: Apache-2.0

package history_test

import (
	"crypto/sha512"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/pkg/history"
)

// writeFolder creates a migration folder with the given id and script under
// dir and returns it.
func writeFolder(t *testing.T, dir, id, script string) history.MigrationFolder {
	t.Helper()

	path := filepath.Join(dir, id)
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "migration.sql"), []byte(script), 0o644))

	return history.MigrationFolder{Path: path}
}

func TestChecksumDependsOnlyOnScriptBytes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeFolder(t, dir, "20240101000000_a", "CREATE TABLE a(id int);")
	b := writeFolder(t, dir, "20240102000000_b", "CREATE TABLE a(id int);")
	c := writeFolder(t, dir, "20240103000000_c", "CREATE TABLE c(id int);")

	sumA, err := a.Checksum()
	require.NoError(t, err)
	sumB, err := b.Checksum()
	require.NoError(t, err)
	sumC, err := c.Checksum()
	require.NoError(t, err)

	assert.Equal(t, sumA, sumB)
	assert.NotEqual(t, sumA, sumC)

	expected := sha512.Sum512([]byte("CREATE TABLE a(id int);"))
	assert.Equal(t, expected[:], sumA)
	assert.Len(t, sumA, 64)
}

func TestListMigrationsOrdersLexicographically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFolder(t, dir, "20240102130000_add_users", "b")
	writeFolder(t, dir, "20240101120000_init", "a")

	// Non-migration entries are ignored.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "not_a_migration"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644))

	folders, err := history.ListMigrations(dir)
	require.NoError(t, err)

	require.Len(t, folders, 2)
	assert.Equal(t, "20240101120000_init", folders[0].MigrationID())
	assert.Equal(t, "20240102130000_add_users", folders[1].MigrationID())
}

func TestCreateMigrationFolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	folder, err := history.CreateMigrationFolder(dir, "add_users")
	require.NoError(t, err)

	assert.Regexp(t, `^\d{14}_add_users$`, folder.MigrationID())

	require.NoError(t, folder.WriteScript("CREATE TABLE users(id int);", "sql"))

	script, err := folder.ReadScript()
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE users(id int);", script)

	// Folders are immutable once written.
	err = folder.WriteScript("something else", "sql")
	assert.ErrorContains(t, err, "already exists")
}

func TestMatchesApplied(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	folder := writeFolder(t, dir, "20240101120000_init", "CREATE TABLE a(id int);")

	matches, err := folder.MatchesApplied(history.ImperativeMigration{
		Name:     "20240101120000_init",
		Checksum: history.Checksum("CREATE TABLE a(id int);"),
	})
	require.NoError(t, err)
	assert.True(t, matches)

	matches, err = folder.MatchesApplied(history.ImperativeMigration{
		Name:     "20240101120000_init",
		Checksum: history.Checksum("CREATE TABLE a(id bigint);"),
	})
	require.NoError(t, err)
	assert.False(t, matches)
}
