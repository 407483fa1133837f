package state

import (
	"maps"
	"slices"
	"time"
)

// Stage is one state of the per-item conversation.
type Stage string

const (
	StageTags            Stage = "awaiting_tags"
	StageParticipants    Stage = "awaiting_participants"
	StageSummaryChoice   Stage = "awaiting_summary_choice"
	StageReadyToFinalize Stage = "ready_to_finalize"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageTags, StageParticipants, StageSummaryChoice, StageReadyToFinalize:
		return true
	}
	return false
}

// TranscriptionStatus records what happened to the AI step of a completed item.
type TranscriptionStatus string

const (
	TranscriptionDisabled      TranscriptionStatus = "disabled"
	TranscriptionOK            TranscriptionStatus = "ok"
	TranscriptionFailed        TranscriptionStatus = "failed"
	TranscriptionSkippedByUser TranscriptionStatus = "skipped_by_user"
)

// CompletedItem is the durable record written once per delivered recording.
type CompletedItem struct {
	Key               string              `json:"key"`
	ProcessedAt       time.Time           `json:"processed_at"`
	SourceSize        int64               `json:"source_size"`
	SourceModTime     time.Time           `json:"source_mod_time"`
	Tags              []string            `json:"tags"`
	Participants      []string            `json:"participants"`
	Date              string              `json:"date"`
	SummaryRequested  bool                `json:"summary_requested"`
	Transcription     TranscriptionStatus `json:"transcription"`
	TranscriptPreview string              `json:"transcript_preview,omitempty"`
	TranscriptChars   int                 `json:"transcript_chars"`
	Summary           string              `json:"summary,omitempty"`
	Parts             int                 `json:"parts,omitempty"`
}

// Reminder is the nudge schedule of the pending item.
type Reminder struct {
	NextAt  time.Time `json:"next_at,omitzero"`
	Attempt int       `json:"attempt"`
	LastAt  time.Time `json:"last_at,omitzero"`
}

// PendingItem is the single in-flight recording's conversation state.
type PendingItem struct {
	Key         string `json:"key"`
	Destination string `json:"destination"`
	Stage       Stage  `json:"stage"`

	Tags              []string `json:"tags"`
	TagsSkipped       bool     `json:"tags_skipped,omitempty"`
	Participants      []string `json:"participants"`
	ParticipantsFinal bool     `json:"participants_final"`
	// SummaryRequested is unset until the user answers (or the stage is skipped).
	SummaryRequested *bool `json:"summary_requested"`

	// Prompts maps a stage to the message id of its live prompt.
	Prompts          map[Stage]int64 `json:"prompts,omitempty"`
	PreviewMessageID int64           `json:"preview_message_id,omitempty"`

	Reminder     Reminder  `json:"reminder"`
	LastToggle   string    `json:"last_toggle,omitempty"`
	LastToggleAt time.Time `json:"last_toggle_at,omitzero"`

	RetryAt         time.Time `json:"retry_at,omitzero"`
	RetryNoticeSent bool      `json:"retry_notice_sent,omitempty"`
	MarkupRetryAt   time.Time `json:"markup_retry_at,omitzero"`
	MarkupDirty     bool      `json:"markup_dirty,omitempty"`

	// Delivered is set once the full recording reached the conversation.
	Delivered      bool `json:"delivered,omitempty"`
	DeliveredParts int  `json:"delivered_parts,omitempty"`

	SourceSize      int64     `json:"source_size"`
	SourceModTime   time.Time `json:"source_mod_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	Date            string    `json:"date"`
	CreatedAt       time.Time `json:"created_at"`
}

// Clone returns a deep copy.
func (p *PendingItem) Clone() *PendingItem {
	if p == nil {
		return nil
	}
	out := *p
	out.Tags = slices.Clone(p.Tags)
	out.Participants = slices.Clone(p.Participants)
	out.Prompts = maps.Clone(p.Prompts)
	if p.SummaryRequested != nil {
		v := *p.SummaryRequested
		out.SummaryRequested = &v
	}
	return &out
}

// PromptID returns the live prompt message id for stage, or 0.
func (p *PendingItem) PromptID(stage Stage) int64 {
	return p.Prompts[stage]
}

// SetPrompt records the live prompt message id for stage.
func (p *PendingItem) SetPrompt(stage Stage, id int64) {
	if p.Prompts == nil {
		p.Prompts = make(map[Stage]int64)
	}
	p.Prompts[stage] = id
}

// ClearPrompt forgets the prompt for stage so it is re-sent.
func (p *PendingItem) ClearPrompt(stage Stage) {
	delete(p.Prompts, stage)
}

// SetSummaryRequested stores the tri-state answer.
func (p *PendingItem) SetSummaryRequested(v bool) {
	p.SummaryRequested = &v
}

// WantsSummary reports an explicit yes.
func (p *PendingItem) WantsSummary() bool {
	return p.SummaryRequested != nil && *p.SummaryRequested
}
