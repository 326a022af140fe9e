package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the attendance tables for the configured store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if a.db == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "memory store needs no migration")
			return nil
		}
		if err := a.db.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", a.cfg.StoreBackend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
