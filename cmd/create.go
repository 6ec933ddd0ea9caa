// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func createCmd() *cobra.Command {
	var name string
	var migrationsDir string

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new, empty migration in the migrations folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if name == "" {
				name, _ = pterm.DefaultInteractiveTextInput.
					WithDefaultText("Set the name of your migration").
					Show()
			}

			m, err := NewEngine(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			folder, err := m.CreateMigration(migrationsDir, name)
			if err != nil {
				return err
			}

			pterm.Success.Printf("Created migration %q\n", folder.MigrationID())
			return nil
		},
	}

	createCmd.Flags().StringVarP(&name, "name", "n", "", "Name of the migration")
	createCmd.Flags().StringVar(&migrationsDir, "migrations-dir", "migrations", "Migrations folder to create the migration in")

	return createCmd
}
