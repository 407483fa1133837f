package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"recflow/internal/history"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect or reset the in-flight recording",
	}
	pendingCmd.AddCommand(newPendingResetCommand(ctx))
	return pendingCmd
}

func newPendingResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop the pending recording so it is offered again from scratch",
		Long: "Drop the pending recording so it is offered again from scratch.\n\n" +
			"The recording has no completion record, so the next scan offers it again " +
			"with a fresh preview. Requires the workflow to be stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.lockState()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			item := store.Pending()
			if item == nil {
				fmt.Fprintln(out, "No pending recording")
				return nil
			}
			store.ClearPending()
			if err := store.Save(); err != nil {
				return err
			}

			journal, err := ctx.openHistory()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: history unavailable: %v\n", err)
			}
			if journal != nil {
				defer journal.Close()
				ev := history.Event{
					At:     time.Now(),
					Key:    item.Key,
					Kind:   history.KindReset,
					Stage:  string(item.Stage),
					Detail: "reset from cli",
				}
				if err := journal.Record(cmd.Context(), ev); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warn: history not updated: %v\n", err)
				}
			}
			fmt.Fprintf(out, "Cleared pending recording %s (was %s)\n", item.Key, item.Stage)
			return nil
		},
	}
}
