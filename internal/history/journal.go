package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"recflow/internal/state"
)

// Kind classifies a journal event.
type Kind string

const (
	KindDiscovered     Kind = "discovered"
	KindStage          Kind = "stage"
	KindDelivered      Kind = "delivered"
	KindSplitDelivered Kind = "split_delivered"
	KindDeliveryFailed Kind = "delivery_failed"
	KindAIFailed       Kind = "ai_failed"
	KindAbandoned      Kind = "abandoned"
	KindCompleted      Kind = "completed"
	KindReset          Kind = "reset"
)

// Event is one journal row.
type Event struct {
	ID     int64
	At     time.Time
	Key    string
	Kind   Kind
	Stage  string
	Detail string
}

// Completion is one completion row.
type Completion struct {
	Key              string
	ProcessedAt      time.Time
	Date             string
	Tags             []string
	Participants     []string
	SummaryRequested bool
	Transcription    string
	TranscriptChars  int
	Parts            int
	SourceSize       int64
}

const timeLayout = time.RFC3339Nano

// Record appends ev. A zero At is stamped with the current time.
func (s *Store) Record(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	err := s.exec(ctx,
		`INSERT INTO events (occurred_at, item_key, kind, stage, detail) VALUES (?, ?, ?, ?, ?)`,
		ev.At.UTC().Format(timeLayout), ev.Key, string(ev.Kind), ev.Stage, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("record %s event: %w", ev.Kind, err)
	}
	return nil
}

// RecordCompletion stores item and a matching completed event. An existing
// completion for the same key is kept and no event is added.
func (s *Store) RecordCompletion(ctx context.Context, item state.CompletedItem) error {
	tags, err := json.Marshal(nonNil(item.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	participants, err := json.Marshal(nonNil(item.Participants))
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	processed := item.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}
	res, err := s.execResult(ctx,
		`INSERT OR IGNORE INTO completions
			(item_key, processed_at, recording_date, tags, participants, summary_requested, transcription, transcript_chars, parts, source_size)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Key, processed.UTC().Format(timeLayout), item.Date, string(tags), string(participants),
		item.SummaryRequested, string(item.Transcription), item.TranscriptChars, max(item.Parts, 1), item.SourceSize,
	)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	return s.Record(ctx, Event{
		At:     processed,
		Key:    item.Key,
		Kind:   KindCompleted,
		Detail: "tags=" + strings.Join(item.Tags, ",") + " transcription=" + string(item.Transcription),
	})
}

// Recent returns up to limit events, newest first. A non-empty key filters
// to one item.
func (s *Store) Recent(ctx context.Context, limit int, key string) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, occurred_at, item_key, kind, stage, detail FROM events`
	args := []any{}
	if key != "" {
		query += ` WHERE item_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev   Event
			at   string
			kind string
		)
		if err := rows.Scan(&ev.ID, &at, &ev.Key, &kind, &ev.Stage, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		ev.At = parseTime(at)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Completions returns up to limit completion rows, newest first.
func (s *Store) Completions(ctx context.Context, limit int) ([]Completion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_key, processed_at, recording_date, tags, participants, summary_requested, transcription, transcript_chars, parts, source_size
		 FROM completions ORDER BY processed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	var out []Completion
	for rows.Next() {
		var (
			c            Completion
			processed    string
			tags         string
			participants string
		)
		if err := rows.Scan(&c.Key, &processed, &c.Date, &tags, &participants, &c.SummaryRequested,
			&c.Transcription, &c.TranscriptChars, &c.Parts, &c.SourceSize); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		c.ProcessedAt = parseTime(processed)
		_ = json.Unmarshal([]byte(tags), &c.Tags)
		_ = json.Unmarshal([]byte(participants), &c.Participants)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountByKind returns the number of events of each kind.
func (s *Store) CountByKind(ctx context.Context) (map[Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1) FROM events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()
	counts := make(map[Kind]int)
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Kind(kind)] = count
	}
	return counts, rows.Err()
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
