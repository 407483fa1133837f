package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recflow/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var item string
	var completions bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := ctx.openHistory()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			out := cmd.OutOrStdout()
			if journal == nil {
				fmt.Fprintln(out, "No history recorded yet")
				return nil
			}
			defer journal.Close()

			loc := ctx.configValue().Location()
			if completions {
				rows, err := journal.Completions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "No completed recordings")
					return nil
				}
				fmt.Fprintln(out, renderCompletions(rows, loc, isTerminal(out)))
				return nil
			}

			events, err := journal.Recent(cmd.Context(), limit, strings.TrimSpace(item))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No journal entries")
				return nil
			}
			fmt.Fprintln(out, renderEvents(events, loc, isTerminal(out)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().StringVar(&item, "item", "", "Only show entries for this recording key")
	cmd.Flags().BoolVar(&completions, "completions", false, "Show completion records instead of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderEvents(events []history.Event, loc *time.Location, fancy bool) string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			formatTime(ev.At, loc),
			ev.Key,
			string(ev.Kind),
			ev.Stage,
			ev.Detail,
		})
	}
	return renderTable(
		[]string{"Time", "Recording", "Event", "Stage", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
		fancy,
	)
}

func renderCompletions(items []history.Completion, loc *time.Location, fancy bool) string {
	rows := make([][]string, 0, len(items))
	for _, c := range items {
		rows = append(rows, []string{
			formatTime(c.ProcessedAt, loc),
			c.Key,
			c.Date,
			joinOrDash(c.Tags),
			joinOrDash(c.Participants),
			c.Transcription,
			fmt.Sprint(c.Parts),
		})
	}
	return renderTable(
		[]string{"Processed", "Recording", "Date", "Tags", "Participants", "AI", "Parts"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
		fancy,
	)
}
