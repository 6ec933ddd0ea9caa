// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/pkg/history"
)

func statusCmd() *cobra.Command {
	var migrationsDir string

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show how the migrations folder relates to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m, err := NewEngine(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			diagnostic, err := m.Status(ctx, migrationsDir)
			if err != nil {
				return err
			}

			switch diagnostic.Kind {
			case history.UpToDate:
				pterm.Success.Println("Database is up to date with the migrations folder")
			case history.DatabaseIsBehind:
				pterm.Info.Printf("Database is behind: %d migration(s) to apply\n", len(diagnostic.Unapplied))
				for _, folder := range diagnostic.Unapplied {
					pterm.Info.Println("  " + folder.MigrationID())
				}
			case history.FilesystemIsBehind:
				pterm.Warning.Printf("Migrations folder is behind: %d applied migration(s) missing from the folder\n", len(diagnostic.Unpersisted))
				for _, applied := range diagnostic.Unpersisted {
					pterm.Warning.Println("  " + applied.Name)
				}
			case history.HistoriesDiverge:
				pterm.Error.Printf("Histories diverge after %d matching migration(s)\n", diagnostic.LastMatchedFolderIndex+1)
			}

			return nil
		},
	}

	statusCmd.Flags().StringVar(&migrationsDir, "migrations-dir", "migrations", "Migrations folder to compare against")

	return statusCmd
}
