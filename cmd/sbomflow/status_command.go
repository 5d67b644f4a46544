package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sbomflow/internal/config"
	"sbomflow/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <chain-token>",
		Short: "Show the processing state of an ingestion chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorkflows(func(cfg *config.Config, store *workflow.Store) error {
				states, err := store.GetAll(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(states) == 0 {
					return fmt.Errorf("no workflow state found for token %s", args[0])
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				rows := make([][]string, 0, len(states))
				for _, state := range states {
					rows = append(rows, []string{
						string(state.Step),
						colorizeStatus(state.Status, colorize),
						formatTimestamp(state.StartedAt),
						state.UpdatedAt.Local().Format(time.RFC3339),
						state.FailureReason,
					})
				}
				renderTable(out, []string{"Step", "Status", "Started", "Updated", "Failure Reason"}, rows)
				return nil
			})
		},
	}
}

func formatTimestamp(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return ts.Local().Format(time.RFC3339)
}
