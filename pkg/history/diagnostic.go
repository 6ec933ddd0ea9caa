// SPDX-License-Identifier: Apache-2.0

package history

// DiagnosticKind classifies the relationship between the migrations folder
// and the applied-migrations table.
type DiagnosticKind int

const (
	// UpToDate means every folder entry matched an applied row, in order,
	// and no applied row remains.
	UpToDate DiagnosticKind = iota
	// DatabaseIsBehind means the applied rows are a strict prefix of the
	// folder.
	DatabaseIsBehind
	// FilesystemIsBehind means every folder entry matched but applied rows
	// remain.
	FilesystemIsBehind
	// HistoriesDiverge means a folder entry and its applied counterpart
	// disagree by checksum.
	HistoriesDiverge
)

func (k DiagnosticKind) String() string {
	switch k {
	case UpToDate:
		return "up to date"
	case DatabaseIsBehind:
		return "database is behind"
	case FilesystemIsBehind:
		return "filesystem is behind"
	case HistoriesDiverge:
		return "histories diverge"
	default:
		return "unknown"
	}
}

// Diagnostic is the result of matching the migrations folder against the
// applied migrations.
type Diagnostic struct {
	Kind DiagnosticKind

	// Unapplied holds the folder tail with no applied counterpart when the
	// database is behind.
	Unapplied []MigrationFolder

	// Unpersisted holds the applied rows with no folder counterpart when
	// the filesystem is behind.
	Unpersisted []ImperativeMigration

	// LastMatchedFolderIndex is the index of the last folder entry that
	// matched before the divergence point; -1 when nothing matched. Only
	// meaningful when histories diverge.
	LastMatchedFolderIndex int
}

// Diagnose matches the ordered folder entries against the ordered applied
// rows, pairwise by position, comparing content checksums. Rows that are
// rolled back or never finished are skipped (see AppliedOnly). Exactly one
// diagnostic is returned for every input pair.
func Diagnose(folder []MigrationFolder, applied []ImperativeMigration) (Diagnostic, error) {
	active := AppliedOnly(applied)

	for i := 0; ; i++ {
		folderLeft := i < len(folder)
		appliedLeft := i < len(active)

		switch {
		case !folderLeft && !appliedLeft:
			return Diagnostic{Kind: UpToDate}, nil

		case folderLeft && !appliedLeft:
			return Diagnostic{Kind: DatabaseIsBehind, Unapplied: folder[i:]}, nil

		case !folderLeft && appliedLeft:
			return Diagnostic{Kind: FilesystemIsBehind, Unpersisted: active[i:]}, nil
		}

		matches, err := folder[i].MatchesApplied(active[i])
		if err != nil {
			return Diagnostic{}, err
		}
		if !matches {
			return Diagnostic{Kind: HistoriesDiverge, LastMatchedFolderIndex: i - 1}, nil
		}
	}
}

// AppliedOnly filters the rows down to the ones that count as applied: not
// rolled back and finished. Unfinished rows record crashed partial runs and
// are retried.
func AppliedOnly(migrations []ImperativeMigration) []ImperativeMigration {
	var active []ImperativeMigration
	for _, m := range migrations {
		if m.IsApplied() {
			active = append(active, m)
		}
	}
	return active
}
