package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"recflow/internal/logging"
	"recflow/internal/state"
)

const (
	textDeliveryRetry     = "Не удалось отправить запись %s. Повторю через %s."
	textAbandoned         = "Файл %s пропал до отправки. Запись пропущена."
	textAIFailed          = "Не удалось сделать расшифровку для %s. Запись сохранена без выжимки."
	textSummaryFailed     = "Расшифровка %s готова, но выжимку сделать не удалось."
	textSummaryHeader     = "Выжимка: %s"
	textTranscriptCaption = "Расшифровка: %s"
	textSummaryCaption    = "Выжимка: %s (не поместилась в сообщение)"
)

func deliveryCaption(item *state.PendingItem) string {
	var b strings.Builder
	b.WriteString(item.Key)
	if item.Date != "" {
		fmt.Fprintf(&b, "\nДата: %s", item.Date)
	}
	if len(item.Tags) > 0 {
		b.WriteString("\nТеги: ")
		for i, tag := range item.Tags {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString("#" + tag)
		}
	}
	if len(item.Participants) > 0 {
		b.WriteString("\nУчастники: " + strings.Join(item.Participants, " "))
	}
	return b.String()
}

func completionText(record state.CompletedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Готово: %s", record.Key)
	if record.Parts > 1 {
		fmt.Fprintf(&b, " (частей: %d)", record.Parts)
	}
	switch record.Transcription {
	case state.TranscriptionOK:
		fmt.Fprintf(&b, "\nРасшифровка: %d символов", record.TranscriptChars)
	case state.TranscriptionFailed:
		b.WriteString("\nРасшифровка не удалась")
	}
	return b.String()
}

// tell sends an informational message. These are never retried.
func (m *Manager) tell(ctx context.Context, dest, text string) {
	if dest == "" {
		return
	}
	if _, err := m.gateway.SendText(ctx, dest, text, nil); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "chat notice not delivered", "chat_notice_failed",
			logging.Error(err),
			logging.Int("chars", utf8.RuneCountInString(text)),
			logging.String(logging.FieldImpact, "the conversation misses this notice"),
		)
	}
}

func (m *Manager) notifyOperator(ctx context.Context, label string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		m.logger.Debug("shutting down, operator notification skipped", logging.String("notification", label))
		return
	}
	logging.WithContext(ctx, m.logger).Debug("operator notification failed",
		logging.String("notification", label),
		logging.Error(err),
	)
}
