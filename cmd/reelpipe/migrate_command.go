package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelpipe/internal/config"
	"reelpipe/internal/queue"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or verify the pipeline table",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Open applies the schema and rejects version mismatches, so a
			// successful open is the whole migration.
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Table %s ready on %s backend\n",
					store.Table(), store.Driver())
				return nil
			})
		},
	}
}
