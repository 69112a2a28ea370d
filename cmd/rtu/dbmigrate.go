package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watertreat/rtu/config"
	"github.com/watertreat/rtu/store"
)

func newDBMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "db-migrate",
		Short: "Create or upgrade the persistent store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := config.Resolve(cmd.Context(), flags.configPath, flags.configFlags(cmd))
			if err != nil {
				return failConfig(err)
			}
			st, err := store.Open(cmd.Context(), res.DBPath)
			if err != nil {
				return failStore(err)
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", res.DBPath)
			return nil
		},
	}
}
