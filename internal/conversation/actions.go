package conversation

import "strings"

// ActionKind enumerates the button actions a prompt can carry.
type ActionKind int

const (
	ActionToggleTag ActionKind = iota + 1
	ActionTagsDone
	ActionTagsSkip
	ActionToggleParticipant
	ActionParticipantsDone
	ActionParticipantsSkip
	ActionSummaryYes
	ActionSummaryNo
	ActionBack
	ActionRestart
)

var actionNames = map[ActionKind]string{
	ActionToggleTag:         "toggle_tag",
	ActionTagsDone:          "tags_done",
	ActionTagsSkip:          "tags_skip",
	ActionToggleParticipant: "toggle_participant",
	ActionParticipantsDone:  "participants_done",
	ActionParticipantsSkip:  "participants_skip",
	ActionSummaryYes:        "summary_yes",
	ActionSummaryNo:         "summary_no",
	ActionBack:              "back",
	ActionRestart:           "restart",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return "unknown"
}

// Action is a parsed button payload. Value is set for the toggle kinds.
type Action struct {
	Kind  ActionKind
	Value string
}

const (
	prefixTag         = "t:"
	prefixParticipant = "p:"
)

var fixedPayloads = map[string]ActionKind{
	"td":      ActionTagsDone,
	"ts":      ActionTagsSkip,
	"pd":      ActionParticipantsDone,
	"ps":      ActionParticipantsSkip,
	"sy":      ActionSummaryYes,
	"sn":      ActionSummaryNo,
	"back":    ActionBack,
	"restart": ActionRestart,
}

// ParseAction decodes a button payload. Unknown payloads report false.
func ParseAction(payload string) (Action, bool) {
	if value, ok := strings.CutPrefix(payload, prefixTag); ok {
		if value == "" {
			return Action{}, false
		}
		return Action{Kind: ActionToggleTag, Value: value}, true
	}
	if value, ok := strings.CutPrefix(payload, prefixParticipant); ok {
		if value == "" {
			return Action{}, false
		}
		return Action{Kind: ActionToggleParticipant, Value: value}, true
	}
	if kind, ok := fixedPayloads[payload]; ok {
		return Action{Kind: kind}, true
	}
	return Action{}, false
}

// Payload encodes the action for a button.
func (a Action) Payload() string {
	switch a.Kind {
	case ActionToggleTag:
		return prefixTag + a.Value
	case ActionToggleParticipant:
		return prefixParticipant + a.Value
	}
	for payload, kind := range fixedPayloads {
		if kind == a.Kind {
			return payload
		}
	}
	return ""
}

// IsToggle reports whether the action flips one selection.
func (a Action) IsToggle() bool {
	return a.Kind == ActionToggleTag || a.Kind == ActionToggleParticipant
}
