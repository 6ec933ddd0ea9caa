// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/pkg/engine"
	"github.com/pgshift/pgshift/pkg/schema"
)

func pushCmd() *cobra.Command {
	var force bool
	var acceptDataLoss bool
	var draft bool
	var migrationsDir string

	pushCmd := &cobra.Command{
		Use:     "push <datamodel>",
		Short:   "Push a declarative data model to the database",
		Example: "push schema.json --migrations-dir ./migrations",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			datamodel, err := schema.ReadDatamodelFile(args[0])
			if err != nil {
				return err
			}

			m, err := NewEngine(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			result, err := m.SchemaPush(ctx, engine.SchemaPushInput{
				Datamodel:      datamodel,
				Force:          force,
				AcceptDataLoss: acceptDataLoss,
				Draft:          draft,
				MigrationsDir:  migrationsDir,
			})
			if err != nil {
				return err
			}

			for _, warning := range result.Warnings {
				pterm.Warning.Println(warning)
			}
			for _, unexecutable := range result.Unexecutable {
				pterm.Error.Println(unexecutable)
			}

			if result.RadicalMeasure != nil {
				pterm.Warning.Println(*result.RadicalMeasure)
				pterm.Info.Println("Nothing was changed. Confirm by re-running with --force.")
				return nil
			}

			if len(result.Unexecutable) > 0 {
				return fmt.Errorf("the migration cannot be applied to the current database")
			}

			if result.HadNoChanges() {
				pterm.Success.Println("Database is up to date; no changes to push")
				return nil
			}

			pterm.Success.Printf("Push complete: %d step(s) executed\n", result.ExecutedSteps)
			return nil
		},
	}

	pushCmd.Flags().BoolVar(&force, "force", false, "Apply the changes even when they are destructive or require reverting migrations")
	pushCmd.Flags().BoolVar(&acceptDataLoss, "accept-data-loss", false, "Apply the changes even when they may lose data")
	pushCmd.Flags().BoolVar(&draft, "draft", false, "Render the migration into the migrations folder without applying it")
	pushCmd.Flags().StringVar(&migrationsDir, "migrations-dir", "", "Migrations folder to reconcile with and record into")

	return pushCmd
}
