// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the applied-migrations table in the target database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		m, err := NewEngine(ctx)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Init(ctx); err != nil {
			return err
		}

		pterm.Success.Println("Initialization complete")
		return nil
	},
}
