package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recflow/internal/history"
	"recflow/internal/state"
)

type statusView struct {
	Running     bool                 `json:"running"`
	Destination string               `json:"destination"`
	Watermark   int64                `json:"watermark"`
	Completed   int                  `json:"completed"`
	Pending     *pendingView         `json:"pending"`
	Journal     map[history.Kind]int `json:"journal,omitempty"`
}

type pendingView struct {
	Key             string    `json:"key"`
	Stage           string    `json:"stage"`
	Date            string    `json:"date"`
	Tags            []string  `json:"tags"`
	Participants    []string  `json:"participants"`
	CreatedAt       time.Time `json:"created_at"`
	NextReminder    time.Time `json:"next_reminder,omitzero"`
	ReminderAttempt int       `json:"reminder_attempt"`
	Delivered       bool      `json:"delivered"`
	RetryAt         time.Time `json:"retry_at,omitzero"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the pending recording and workflow state",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := collectStatus(cmd, ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, view)
			}
			out := cmd.OutOrStdout()
			renderStatus(out, view, ctx.configValue().Location(), isTerminal(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func collectStatus(cmd *cobra.Command, ctx *commandContext) (statusView, error) {
	store, err := ctx.readState()
	if err != nil {
		return statusView{}, err
	}
	view := statusView{
		Running:     ctx.workflowRunning(),
		Destination: store.Destination(),
		Watermark:   store.Watermark(),
		Completed:   len(store.CompletedItems()),
		Pending:     newPendingView(store.Pending()),
	}
	if view.Destination == "" {
		view.Destination = ctx.configValue().Telegram.ChatID
	}

	journal, err := ctx.openHistory()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warn: history unavailable: %v\n", err)
	}
	if journal != nil {
		defer journal.Close()
		counts, err := journal.CountByKind(cmd.Context())
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warn: history unavailable: %v\n", err)
		}
		view.Journal = counts
	}
	return view, nil
}

func newPendingView(item *state.PendingItem) *pendingView {
	if item == nil {
		return nil
	}
	return &pendingView{
		Key:             item.Key,
		Stage:           string(item.Stage),
		Date:            item.Date,
		Tags:            item.Tags,
		Participants:    item.Participants,
		CreatedAt:       item.CreatedAt,
		NextReminder:    item.Reminder.NextAt,
		ReminderAttempt: item.Reminder.Attempt,
		Delivered:       item.Delivered,
		RetryAt:         item.RetryAt,
	}
}

func renderStatus(out io.Writer, view statusView, loc *time.Location, colorize bool) {
	workflow := attention("workflow", "stopped")
	if view.Running {
		workflow = good("workflow", "running")
	}
	destination := quiet("chat", view.Destination)
	if view.Destination == "" {
		destination = attention("chat", "not learned yet; message the bot")
	}
	lines := renderSection("recflow", []field{
		workflow,
		destination,
		quiet("last update", fmt.Sprint(view.Watermark)),
		quiet("completed", fmt.Sprintf("%d recordings", view.Completed)),
	}, colorize)

	lines = append(lines, "")
	if p := view.Pending; p == nil {
		lines = append(lines, renderSection("pending", []field{quiet("recording", "none")}, colorize)...)
	} else {
		fields := []field{
			quiet("recording", p.Key),
			quiet("stage", p.Stage),
			quiet("date", p.Date),
			quiet("tags", joinOrDash(p.Tags)),
			quiet("participants", joinOrDash(p.Participants)),
			quiet("offered", formatTime(p.CreatedAt, loc)),
		}
		if !p.NextReminder.IsZero() {
			fields = append(fields, quiet("next reminder",
				fmt.Sprintf("%s (attempt %d)", formatTime(p.NextReminder, loc), p.ReminderAttempt)))
		}
		if p.Delivered {
			fields = append(fields, good("delivered", "yes"))
		} else {
			fields = append(fields, quiet("delivered", "no"))
		}
		if !p.RetryAt.IsZero() {
			fields = append(fields, attention("delivery retry", formatTime(p.RetryAt, loc)))
		}
		lines = append(lines, renderSection("pending", fields, colorize)...)
	}

	if len(view.Journal) > 0 {
		var fields []field
		for _, kind := range slices.Sorted(maps.Keys(view.Journal)) {
			count := fmt.Sprint(view.Journal[kind])
			switch kind {
			case history.KindAbandoned, history.KindDeliveryFailed, history.KindAIFailed:
				fields = append(fields, attention(string(kind), count))
			default:
				fields = append(fields, quiet(string(kind), count))
			}
		}
		lines = append(lines, "")
		lines = append(lines, renderSection("journal", fields, colorize)...)
	}

	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04:05")
}
