// SPDX-License-Identifier: Apache-2.0

package history

import (
	"crypto/sha512"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// ScriptFilename is the file name of migration scripts inside a migration
// folder, without the extension.
const ScriptFilename = "migration"

// Migration folders are named <timestamp>_<label>; lexicographic order on
// the folder name sorts by the timestamp prefix.
var folderNamePattern = regexp.MustCompile(`^\d{14}_[^/]+$`)

const folderTimestampFormat = "20060102150405"

// MigrationFolder is a directory containing exactly one migration script.
// Folders are created once and never mutated; the folder name is the
// migration id.
type MigrationFolder struct {
	// Path is the absolute path of the folder
	Path string
}

// MigrationID returns the migration id, i.e. the folder name.
func (f MigrationFolder) MigrationID() string {
	return filepath.Base(f.Path)
}

// scriptPath locates the `migration.<ext>` file inside the folder.
func (f MigrationFolder) scriptPath() (string, error) {
	matches, err := filepath.Glob(filepath.Join(f.Path, ScriptFilename+".*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("migration folder %q contains no migration script", f.MigrationID())
	}
	sort.Strings(matches)
	return matches[0], nil
}

// ReadScript returns the migration script's contents.
func (f MigrationFolder) ReadScript() (string, error) {
	path, err := f.scriptPath()
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading migration script for %q: %w", f.MigrationID(), err)
	}
	return string(raw), nil
}

// Checksum returns the SHA-512 checksum of the migration script's bytes.
func (f MigrationFolder) Checksum() ([]byte, error) {
	script, err := f.ReadScript()
	if err != nil {
		return nil, err
	}
	return Checksum(script), nil
}

// WriteScript writes the migration script with the given file extension.
// Writing over an existing script is an error: folders are immutable once
// written.
func (f MigrationFolder) WriteScript(script, extension string) error {
	path := filepath.Join(f.Path, ScriptFilename+"."+extension)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("migration script already exists at %q", path)
	}
	return os.WriteFile(path, []byte(script), 0o644)
}

// MatchesApplied reports whether the folder's script matches the applied
// migration by checksum.
func (f MigrationFolder) MatchesApplied(applied ImperativeMigration) (bool, error) {
	checksum, err := f.Checksum()
	if err != nil {
		return false, err
	}
	return checksumsEqual(checksum, applied.Checksum), nil
}

// Checksum computes the SHA-512 checksum of a migration script.
func Checksum(script string) []byte {
	sum := sha512.Sum512([]byte(script))
	return sum[:]
}

// ListMigrations lists the migration folders under the given path, in
// lexicographic (i.e. chronological) order. Entries that are not directories
// or do not look like migration folders are ignored.
func ListMigrations(migrationsDir string) ([]MigrationFolder, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var folders []MigrationFolder
	for _, entry := range entries {
		if !entry.IsDir() || !folderNamePattern.MatchString(entry.Name()) {
			continue
		}
		folders = append(folders, MigrationFolder{Path: filepath.Join(migrationsDir, entry.Name())})
	}

	sort.Slice(folders, func(i, j int) bool {
		return folders[i].MigrationID() < folders[j].MigrationID()
	})

	return folders, nil
}

// CreateMigrationFolder creates a new, empty migration folder named after
// the current time and the given label.
func CreateMigrationFolder(migrationsDir, name string) (MigrationFolder, error) {
	folderName := fmt.Sprintf("%s_%s", time.Now().UTC().Format(folderTimestampFormat), name)
	path := filepath.Join(migrationsDir, folderName)

	if _, err := os.Stat(path); err == nil {
		return MigrationFolder{}, fmt.Errorf("migration folder already exists at %q", path)
	}

	if err := os.Mkdir(path, 0o755); err != nil {
		return MigrationFolder{}, fmt.Errorf("creating migration folder: %w", err)
	}

	return MigrationFolder{Path: path}, nil
}

func checksumsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
