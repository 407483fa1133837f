package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"recflow/internal/delivery"
	"recflow/internal/history"
	"recflow/internal/logging"
	"recflow/internal/messaging"
	"recflow/internal/services"
	"recflow/internal/state"
	"recflow/internal/textutil"
)

// maybeFinalize delivers a ready item and writes its completion record. It
// reports whether the pending item was cleared.
func (m *Manager) maybeFinalize(ctx context.Context, item *state.PendingItem, now time.Time) (bool, error) {
	if item.Stage != state.StageReadyToFinalize {
		return false, nil
	}
	ctx = services.WithStage(ctx, string(item.Stage))
	logger := logging.WithContext(ctx, m.logger)

	if m.store.IsCompleted(item.Key) {
		logger.Info("pending item already completed; clearing",
			logging.String(logging.FieldEventType, "already_completed"),
		)
		m.store.ClearPending()
		return true, m.store.Save()
	}
	if fallback, ok := missingStage(item); ok {
		logging.WarnWithContext(logger, "ready item is incomplete; asking again", "finalize_incomplete",
			logging.String("fallback_stage", string(fallback)),
		)
		item.Stage = fallback
		item.ClearPrompt(fallback)
		m.reminders.Rearm(item, now)
		return false, m.commit(item)
	}
	if now.Before(item.RetryAt) {
		return false, nil
	}

	source := m.scanner.PathFor(item.Key)
	info, err := os.Stat(source)
	if errors.Is(err, fs.ErrNotExist) {
		return true, m.abandon(ctx, item, "source file disappeared")
	}
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "finalize", "stat source", source, err)
	}

	if !item.Delivered {
		parts, err := m.deliver(ctx, item, source, info.Size())
		if err != nil {
			return false, m.deliveryFailed(ctx, item, now, err)
		}
		item.Delivered = true
		item.DeliveredParts = parts
		item.RetryAt = time.Time{}
		item.RetryNoticeSent = false
		if err := m.commit(item); err != nil {
			return false, err
		}
		kind := history.KindDelivered
		if parts > 1 {
			kind = history.KindSplitDelivered
		}
		m.record(ctx, history.Event{Key: item.Key, Kind: kind, Stage: string(item.Stage), Detail: fmt.Sprintf("parts=%d", parts)})
		logger.Info("recording delivered",
			logging.String(logging.FieldEventType, "item_delivered"),
			logging.Int("parts", parts),
			logging.Int64("size_bytes", info.Size()),
		)
	}

	record := state.CompletedItem{
		Key:              item.Key,
		ProcessedAt:      now,
		SourceSize:       item.SourceSize,
		SourceModTime:    item.SourceModTime,
		Tags:             item.Tags,
		Participants:     item.Participants,
		Date:             item.Date,
		SummaryRequested: item.WantsSummary(),
		Transcription:    state.TranscriptionDisabled,
		Parts:            item.DeliveredParts,
	}
	if m.ai.Enabled() {
		record.Transcription = state.TranscriptionSkippedByUser
		if item.WantsSummary() {
			m.runAI(ctx, item, source, &record)
		}
	}
	return true, m.complete(ctx, item, record)
}

// missingStage finds the stage to fall back to when a ready item lacks an
// answer.
func missingStage(item *state.PendingItem) (state.Stage, bool) {
	switch {
	case len(item.Tags) == 0:
		return state.StageTags, true
	case !item.ParticipantsFinal:
		return state.StageParticipants, true
	}
	return "", false
}

// deliver sends the full recording, switching to split delivery when it is
// over budget or the transport rejects its size.
func (m *Manager) deliver(ctx context.Context, item *state.PendingItem, source string, size int64) (int, error) {
	caption := deliveryCaption(item)
	if !m.retrier.Oversized(size) {
		_, err := m.gateway.SendFile(ctx, item.Destination, source, caption, m.cfg.Delivery.SendAsDocumentMIME)
		if err == nil {
			return 1, nil
		}
		if !errors.Is(err, messaging.ErrTooLarge) {
			return 0, err
		}
		logging.WithContext(ctx, m.logger).Info("recording rejected as too large; splitting",
			logging.String(logging.FieldEventType, "delivery_too_large"),
			logging.Int64("size_bytes", size),
		)
	}

	duration := item.DurationSeconds
	if duration <= 0 {
		probed, err := m.media.ProbeDuration(ctx, source)
		if err != nil {
			return 0, err
		}
		duration = probed
	}
	result, err := m.retrier.Deliver(ctx, delivery.Request{
		Destination:     item.Destination,
		Path:            source,
		Caption:         caption,
		DurationSeconds: duration,
		SizeBytes:       size,
	})
	if err != nil {
		return 0, err
	}
	return result.Parts, nil
}

// deliveryFailed arms the fixed retry delay and tells the user once per
// failure episode.
func (m *Manager) deliveryFailed(ctx context.Context, item *state.PendingItem, now time.Time, cause error) error {
	notify := !item.RetryNoticeSent
	item.RetryAt = now.Add(m.retryDelay)
	item.RetryNoticeSent = true
	if err := m.commit(item); err != nil {
		return err
	}
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), "delivery failed; will retry", "delivery_failed",
		logging.Error(cause),
		logging.Time("retry_at", item.RetryAt),
		logging.String(logging.FieldImpact, "recording stays pending until delivery succeeds"),
		logging.String(logging.FieldErrorHint, "check chat gateway connectivity and upload limits"),
	)
	m.record(ctx, history.Event{Key: item.Key, Kind: history.KindDeliveryFailed, Stage: string(item.Stage), Detail: cause.Error()})
	if notify {
		m.tell(ctx, item.Destination, fmt.Sprintf(textDeliveryRetry, item.Key, m.retryDelay.Round(time.Second)))
		m.notifyOperator(ctx, "delivery failure", m.notifier.NotifyDeliveryFailed(ctx, item.Key, cause))
	}
	return nil
}

// abandon drops an item whose recording vanished. No completion record is
// written, so the loss is reported to the chat and the operator. A file that
// reappears under the same key must pass the stability window again.
func (m *Manager) abandon(ctx context.Context, item *state.PendingItem, reason string) error {
	m.scanner.Forget(item.Key)
	m.store.ClearPending()
	if err := m.store.Save(); err != nil {
		return err
	}
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), "recording abandoned", "item_abandoned",
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "recording was not delivered and has no completion record"),
		logging.String(logging.FieldErrorHint, "check whether the file was moved or deleted"),
	)
	m.record(ctx, history.Event{Key: item.Key, Kind: history.KindAbandoned, Stage: string(item.Stage), Detail: reason})
	m.tell(ctx, item.Destination, fmt.Sprintf(textAbandoned, item.Key))
	m.notifyOperator(ctx, "abandon", m.notifier.NotifyItemAbandoned(ctx, item.Key, reason))
	return nil
}

// runAI transcribes and summarizes the delivered recording and sends the
// results. Failures are recorded on the completion record, never retried.
func (m *Manager) runAI(ctx context.Context, item *state.PendingItem, source string, record *state.CompletedItem) {
	logger := logging.WithContext(services.WithStage(ctx, "ai"), m.logger)
	result, err := m.ai.TranscribeAndSummarize(ctx, source)
	transcript := strings.TrimSpace(result.Transcript)
	if transcript == "" {
		record.Transcription = state.TranscriptionFailed
		if err == nil {
			err = errors.New("empty transcript")
		}
		logging.WarnWithContext(logger, "transcription failed", "ai_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recording is completed without transcript or summary"),
			logging.String(logging.FieldErrorHint, "check whisperx and the LLM configuration"),
		)
		m.record(ctx, history.Event{Key: item.Key, Kind: history.KindAIFailed, Stage: "ai", Detail: err.Error()})
		m.tell(ctx, item.Destination, fmt.Sprintf(textAIFailed, item.Key))
		return
	}

	record.Transcription = state.TranscriptionOK
	record.TranscriptChars = utf8.RuneCountInString(transcript)
	record.TranscriptPreview = textutil.Truncate(transcript, m.cfg.AI.TranscriptPreviewChars)
	record.Summary = strings.TrimSpace(result.Summary)

	if record.Summary != "" {
		m.sendSummary(ctx, item, record.Summary)
	} else {
		logging.WarnWithContext(logger, "summary unavailable", "summary_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "only the transcript is delivered"),
		)
		m.record(ctx, history.Event{Key: item.Key, Kind: history.KindAIFailed, Stage: "summary", Detail: errText(err)})
		m.tell(ctx, item.Destination, fmt.Sprintf(textSummaryFailed, item.Key))
	}
	if m.cfg.AI.SendTranscript {
		body := result.Timestamped
		if strings.TrimSpace(body) == "" {
			body = transcript
		}
		m.sendTranscript(ctx, item, body)
	}
}

func (m *Manager) sendTranscript(ctx context.Context, item *state.PendingItem, body string) {
	if err := m.sendTextFile(ctx, item, "", body, fmt.Sprintf(textTranscriptCaption, item.Key)); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "transcript not delivered", "transcript_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "transcript preview is kept in the completion record only"),
		)
	}
}

// sendSummary posts the summary as text, split to the message limit. When a
// part is rejected the whole summary goes out as a .txt document instead.
func (m *Manager) sendSummary(ctx context.Context, item *state.PendingItem, summary string) {
	logger := logging.WithContext(ctx, m.logger)
	chunks := messaging.SplitText(fmt.Sprintf(textSummaryHeader, item.Key)+"\n\n"+summary, messaging.MaxTextRunes)
	for i, chunk := range chunks {
		_, err := m.gateway.SendText(ctx, item.Destination, chunk, nil)
		if err == nil {
			continue
		}
		logging.WarnWithContext(logger, "summary text rejected; sending as file", "summary_text_failed",
			logging.Error(err),
			logging.Int("part", i+1),
			logging.Int("parts", len(chunks)),
		)
		if err := m.sendTextFile(ctx, item, "summary", summary, fmt.Sprintf(textSummaryCaption, item.Key)); err != nil {
			logging.WarnWithContext(logger, "summary not delivered", "summary_delivery_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "summary is kept in the completion record only"),
				logging.String(logging.FieldErrorHint, "run recflow history --completions to read it"),
			)
			m.record(ctx, history.Event{Key: item.Key, Kind: history.KindAIFailed, Stage: "summary_delivery", Detail: err.Error()})
		}
		return
	}
	if len(chunks) > 1 {
		logger.Info("summary sent in parts", logging.Int("parts", len(chunks)))
	}
}

// sendTextFile writes body to a temporary .txt named after the recording
// and sends it as a document.
func (m *Manager) sendTextFile(ctx context.Context, item *state.PendingItem, suffix, body, caption string) error {
	dir, err := os.MkdirTemp(m.cfg.Paths.WorkDir, "text-*")
	if err != nil {
		return fmt.Errorf("create text dir: %w", err)
	}
	defer os.RemoveAll(dir)

	stem := strings.TrimSuffix(filepath.Base(item.Key), filepath.Ext(item.Key))
	if suffix != "" {
		stem += " " + suffix
	}
	path := filepath.Join(dir, textutil.SanitizeFileName(stem)+".txt")
	if err := os.WriteFile(path, []byte(body+"\n"), 0o644); err != nil {
		return fmt.Errorf("write text file: %w", err)
	}
	_, err = m.gateway.SendFile(ctx, item.Destination, path, caption, "text/plain")
	return err
}

// complete writes the completion record and clears the pending item in one
// save, then announces it.
func (m *Manager) complete(ctx context.Context, item *state.PendingItem, record state.CompletedItem) error {
	m.scanner.Forget(item.Key)
	m.store.MarkCompleted(record)
	m.store.ClearPending()
	if err := m.store.Save(); err != nil {
		return err
	}
	logging.WithContext(ctx, m.logger).Info("recording completed",
		logging.String(logging.FieldEventType, "item_completed"),
		logging.Strings("tags", record.Tags),
		logging.Int("participants", len(record.Participants)),
		logging.String("transcription", string(record.Transcription)),
		logging.Int("parts", record.Parts),
	)
	if m.journal != nil {
		if err := m.journal.RecordCompletion(ctx, record); err != nil {
			logging.WithContext(ctx, m.logger).Debug("journal completion write failed", logging.Error(err))
		}
	}
	m.tell(ctx, item.Destination, completionText(record))
	m.notifyOperator(ctx, "completion", m.notifier.NotifyCompleted(ctx, record.Key, record.Tags, record.Parts))
	return nil
}

func errText(err error) string {
	if err == nil {
		return "empty summary"
	}
	return err.Error()
}
