package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the earnings table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s, table %s)\n", cfg.Store.Driver, cfg.Store.Table)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
