package conversation

import (
	"slices"

	"recflow/internal/messaging"
	"recflow/internal/state"
)

const (
	tagsPerRow         = 2
	participantsPerRow = 2
	checkMark          = "✅ "
)

var (
	backButton    = messaging.Button{Label: "◀️ Назад", Payload: Action{Kind: ActionBack}.Payload()}
	restartButton = messaging.Button{Label: "🔄 Заново", Payload: Action{Kind: ActionRestart}.Payload()}
)

// TagKeyboard renders the tag toggles for the selected set. Selected tags
// outside the fixed vocabulary (typed earlier as text) are shown too so they
// can be removed.
func TagKeyboard(v Vocabulary, selected []string) messaging.Keyboard {
	var buttons []messaging.Button
	for _, tag := range v.Tags {
		buttons = append(buttons, toggleButton(tag.Label, Action{Kind: ActionToggleTag, Value: tag.Name}, slices.Contains(selected, tag.Name)))
	}
	for _, tag := range selected {
		if v.HasTag(tag) {
			continue
		}
		buttons = append(buttons, toggleButton(tag, Action{Kind: ActionToggleTag, Value: tag}, true))
	}
	kb := grid(buttons, tagsPerRow)
	kb = append(kb, []messaging.Button{
		{Label: "Готово", Payload: Action{Kind: ActionTagsDone}.Payload()},
		{Label: "Пропустить", Payload: Action{Kind: ActionTagsSkip}.Payload()},
	})
	return kb
}

// ParticipantKeyboard renders the roster toggles for the selected set.
func ParticipantKeyboard(v Vocabulary, selected []string) messaging.Keyboard {
	var buttons []messaging.Button
	for _, handle := range v.Roster {
		buttons = append(buttons, toggleButton(handle, Action{Kind: ActionToggleParticipant, Value: handle}, slices.Contains(selected, handle)))
	}
	for _, handle := range selected {
		if slices.Contains(v.Roster, handle) {
			continue
		}
		buttons = append(buttons, toggleButton(handle, Action{Kind: ActionToggleParticipant, Value: handle}, true))
	}
	kb := grid(buttons, participantsPerRow)
	kb = append(kb,
		[]messaging.Button{
			{Label: "Готово", Payload: Action{Kind: ActionParticipantsDone}.Payload()},
			{Label: "Никого", Payload: Action{Kind: ActionParticipantsSkip}.Payload()},
		},
		[]messaging.Button{backButton, restartButton},
	)
	return kb
}

// SummaryKeyboard renders the yes/no summary choice.
func SummaryKeyboard() messaging.Keyboard {
	return messaging.Keyboard{
		{
			{Label: "Да, нужна выжимка", Payload: Action{Kind: ActionSummaryYes}.Payload()},
			{Label: "Нет", Payload: Action{Kind: ActionSummaryNo}.Payload()},
		},
		{backButton, restartButton},
	}
}

// KeyboardFor returns the keyboard of the item's active stage, or nil when
// the stage takes no input.
func KeyboardFor(v Vocabulary, item *state.PendingItem) messaging.Keyboard {
	switch item.Stage {
	case state.StageTags:
		return TagKeyboard(v, item.Tags)
	case state.StageParticipants:
		return ParticipantKeyboard(v, item.Participants)
	case state.StageSummaryChoice:
		return SummaryKeyboard()
	}
	return nil
}

func toggleButton(label string, action Action, selected bool) messaging.Button {
	if selected {
		label = checkMark + label
	}
	return messaging.Button{Label: label, Payload: action.Payload()}
}

func grid(buttons []messaging.Button, perRow int) messaging.Keyboard {
	var kb messaging.Keyboard
	for row := range slices.Chunk(buttons, perRow) {
		kb = append(kb, row)
	}
	return kb
}
