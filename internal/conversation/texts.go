package conversation

import (
	"fmt"
	"strings"
	"time"

	"recflow/internal/state"
)

const (
	textTagsPrompt         = "Выберите теги кнопками и нажмите «Готово», или напишите их сообщением, например: #мок #резюме"
	textParticipantsPrompt = "Кто участвовал? Отметьте участников и нажмите «Готово», или напишите @ники сообщением. «-» если никого."
	textSummaryPrompt      = "Сделать расшифровку и краткую выжимку?"

	textTagsEmpty          = "Не нашёл ни одного тега. Выберите хотя бы один или нажмите «Пропустить»."
	textParticipantsEmpty  = "Не нашёл ни одного @ника. Напишите, например, @ivan @petr, или «-» если никого не было."
	textSummaryUnknown     = "Ответьте «да» или «нет»."
	textAlreadyAtFirstStep = "Это первый шаг, назад некуда."
)

// PreviewCaption is the caption of the preview clip that opens the
// conversation for an item.
func PreviewCaption(item *state.PendingItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Новая запись: %s\n", item.Key)
	if item.Date != "" {
		fmt.Fprintf(&b, "Дата: %s\n", item.Date)
	}
	if item.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Длительность: %s\n", FormatDuration(item.DurationSeconds))
	}
	b.WriteString("\n")
	b.WriteString(textTagsPrompt)
	return b.String()
}

// FormatDuration renders seconds as h:mm:ss or m:ss.
func FormatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func promptText(item *state.PendingItem) string {
	switch item.Stage {
	case state.StageTags:
		if len(item.Tags) > 0 {
			return textTagsPrompt + "\n\nСейчас: " + strings.Join(item.Tags, ", ")
		}
		return textTagsPrompt
	case state.StageParticipants:
		return fmt.Sprintf("%s\n\nЗапись: %s\nТеги: %s", textParticipantsPrompt, item.Key, strings.Join(item.Tags, ", "))
	case state.StageSummaryChoice:
		return textSummaryPrompt
	}
	return ""
}

func reminderText(item *state.PendingItem) string {
	switch item.Stage {
	case state.StageTags:
		return fmt.Sprintf("Напоминание: запись %s ждёт тегов.", item.Key)
	case state.StageParticipants:
		return fmt.Sprintf("Напоминание: для записи %s нужно указать участников.", item.Key)
	case state.StageSummaryChoice:
		return fmt.Sprintf("Напоминание: нужна ли выжимка для записи %s? Ответьте «да» или «нет».", item.Key)
	}
	return ""
}
