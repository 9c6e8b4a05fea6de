package main

import (
	"fmt"

	"github.com/mizan/backend/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
