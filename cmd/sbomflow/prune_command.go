package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sbomflow/internal/config"
	"sbomflow/internal/workflow"
)

func newPruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune <chain-token>",
		Short: "Delete the workflow state of a finished chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflows(func(cfg *config.Config, store *workflow.Store) error {
				removed, err := store.Prune(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d workflow rows for token %s\n", removed, args[0])
				return nil
			})
		},
	}
}
