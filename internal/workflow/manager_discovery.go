package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"recflow/internal/conversation"
	"recflow/internal/discovery"
	"recflow/internal/history"
	"recflow/internal/logging"
	"recflow/internal/media"
	"recflow/internal/services"
	"recflow/internal/state"
)

// maybeStartNext offers the oldest stable, unseen recording when nothing is
// pending. Scans run every scan interval or sooner when the watcher saw a
// change. At most one candidate is attempted per call.
func (m *Manager) maybeStartNext(ctx context.Context, now time.Time) error {
	if m.store.Pending() != nil || m.store.Destination() == "" {
		return nil
	}
	if !m.scanDue(now) {
		return nil
	}
	m.lastScan = now

	candidates, err := m.scanner.Scan()
	if err != nil {
		return services.Wrap(services.ErrTransient, "discovery", "scan", m.scanner.Root(), err)
	}
	var next *discovery.Candidate
	for i := range candidates {
		c := candidates[i]
		if m.store.IsCompleted(c.Key) {
			continue
		}
		if m.scanner.Stable(c, now) && next == nil {
			next = &c
		}
	}
	if next == nil {
		return nil
	}
	return m.startItem(ctx, *next, now)
}

func (m *Manager) scanDue(now time.Time) bool {
	dirty := m.changes != nil && m.changes.TakeDirty()
	if dirty || m.lastScan.IsZero() {
		return true
	}
	return now.Sub(m.lastScan) >= m.scanInterval
}

// startItem sends the preview clip with the tag keyboard and creates the
// pending item once it was delivered. Failures leave the recording for the
// next scan.
func (m *Manager) startItem(ctx context.Context, c discovery.Candidate, now time.Time) error {
	ctx = services.WithItemKey(ctx, c.Key)
	logger := logging.WithContext(ctx, m.logger)

	duration, err := m.media.ProbeDuration(ctx, c.Path)
	if err != nil {
		logging.WarnWithContext(logger, "recording probe failed; will retry", "probe_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recording is offered on a later scan"),
			logging.String(logging.FieldErrorHint, "check that the file is a complete video"),
		)
		return nil
	}

	item := &state.PendingItem{
		Key:             c.Key,
		Destination:     m.store.Destination(),
		Stage:           state.StageTags,
		SourceSize:      c.Size,
		SourceModTime:   c.ModTime,
		DurationSeconds: duration,
		Date:            discovery.RecordingDate(c.Key, c.ModTime, m.cfg.Location()),
		CreatedAt:       now,
	}

	id, err := m.sendPreview(ctx, item, c.Path)
	if err != nil {
		logging.WarnWithContext(logger, "preview not delivered; will retry", "preview_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recording is offered on a later scan"),
			logging.String(logging.FieldErrorHint, "check ffmpeg and chat gateway connectivity"),
		)
		return nil
	}
	item.SetPrompt(state.StageTags, id)
	item.PreviewMessageID = id
	m.reminders.ScheduleFirst(item, now)
	if err := m.commit(item); err != nil {
		return err
	}

	logger.Info("recording offered",
		logging.String(logging.FieldEventType, "item_started"),
		logging.Int64("size_bytes", c.Size),
		logging.Float64("duration_seconds", duration),
		logging.String("date", item.Date),
	)
	m.record(ctx, history.Event{
		Key:    item.Key,
		Kind:   history.KindDiscovered,
		Stage:  string(item.Stage),
		Detail: fmt.Sprintf("size=%d duration=%.0fs", c.Size, duration),
	})
	return nil
}

func (m *Manager) sendPreview(ctx context.Context, item *state.PendingItem, source string) (int64, error) {
	dir, err := os.MkdirTemp(m.cfg.Paths.WorkDir, "preview-*")
	if err != nil {
		return 0, fmt.Errorf("create preview dir: %w", err)
	}
	defer os.RemoveAll(dir)

	clip := filepath.Join(dir, "preview.mp4")
	start, length := media.ClipWindow(item.DurationSeconds, float64(m.cfg.Preview.ClipSeconds), m.cfg.Preview.StartFraction)
	if err := m.media.ExtractClip(ctx, source, clip, start, length); err != nil {
		return 0, err
	}
	keyboard := conversation.TagKeyboard(m.engine.Vocabulary(), nil)
	return m.gateway.SendMedia(ctx, item.Destination, clip, conversation.PreviewCaption(item), keyboard)
}
