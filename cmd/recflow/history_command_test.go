package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"recflow/internal/history"
	"recflow/internal/state"
)

func seedHistory(t *testing.T, path string) {
	t.Helper()
	journal, err := history.Open(path)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer journal.Close()
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	events := []history.Event{
		{At: at, Key: "a.mp4", Kind: history.KindDiscovered, Stage: "awaiting_tags"},
		{At: at.Add(time.Minute), Key: "b.mp4", Kind: history.KindDiscovered, Stage: "awaiting_tags"},
		{At: at.Add(2 * time.Minute), Key: "a.mp4", Kind: history.KindSplitDelivered, Detail: "parts=3"},
	}
	for _, ev := range events {
		if err := journal.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	err = journal.RecordCompletion(ctx, state.CompletedItem{
		Key:           "a.mp4",
		ProcessedAt:   at.Add(3 * time.Minute),
		Tags:          []string{"мок"},
		Participants:  []string{"@alice"},
		Date:          "2026-03-10",
		Transcription: state.TranscriptionOK,
		Parts:         3,
	})
	if err != nil {
		t.Fatalf("record completion: %v", err)
	}
}

func TestHistoryWithoutDatabase(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No history recorded yet")
}

func TestHistoryListsEvents(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env.cfg.Paths.HistoryDB)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "split_delivered")
	requireContains(t, out, "parts=3")
	requireContains(t, out, "b.mp4")

	out, _, err = runCLI(t, []string{"history", "--item", "b.mp4"}, env.configPath)
	if err != nil {
		t.Fatalf("history --item: %v", err)
	}
	requireContains(t, out, "b.mp4")
	requireNotContains(t, out, "a.mp4")
}

func TestHistoryLimitAndJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env.cfg.Paths.HistoryDB)

	out, _, err := runCLI(t, []string{"history", "--limit", "1", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var events []history.Event
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(events) != 1 || events[0].Kind != history.KindCompleted {
		t.Fatalf("expected newest completion event, got %+v", events)
	}
}

func TestHistoryCompletions(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env.cfg.Paths.HistoryDB)

	out, _, err := runCLI(t, []string{"history", "--completions"}, env.configPath)
	if err != nil {
		t.Fatalf("history --completions: %v", err)
	}
	requireContains(t, out, "a.mp4")
	requireContains(t, out, "мок")
	requireContains(t, out, "@alice")
	requireNotContains(t, out, "b.mp4")
}
