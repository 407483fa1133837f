package conversation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"recflow/internal/logging"
	"recflow/internal/messaging"
	"recflow/internal/reminder"
	"recflow/internal/services"
	"recflow/internal/state"
)

// DefaultDebounce is the window inside which a repeated toggle is dropped.
const DefaultDebounce = 1200 * time.Millisecond

// markupRetryDelay spaces keyboard refresh attempts after a non rate-limit
// failure.
const markupRetryDelay = 30 * time.Second

// Outcome reports what HandleEvent did with an event.
type Outcome int

const (
	Ignored Outcome = iota
	Updated
	Rejected
	Advanced
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Rejected:
		return "rejected"
	case Advanced:
		return "advanced"
	default:
		return "ignored"
	}
}

// TransitionFunc observes committed stage changes.
type TransitionFunc func(ctx context.Context, item *state.PendingItem, from state.Stage)

// Options configures an Engine.
type Options struct {
	Gateway    messaging.Gateway
	Reminders  *reminder.Scheduler
	Vocabulary Vocabulary
	Debounce   time.Duration
	AIEnabled  bool
	// Commit persists the pending item. It runs before every outbound message
	// that depends on the change.
	Commit       reminder.CommitFunc
	OnTransition TransitionFunc
}

// Engine applies inbound events to the pending item.
type Engine struct {
	gateway      messaging.Gateway
	reminders    *reminder.Scheduler
	vocab        Vocabulary
	debounce     time.Duration
	aiEnabled    bool
	commit       reminder.CommitFunc
	onTransition TransitionFunc
	logger       *slog.Logger
}

// New validates opts and builds an Engine.
func New(opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.Gateway == nil {
		return nil, errors.New("conversation: gateway is required")
	}
	if opts.Reminders == nil {
		return nil, errors.New("conversation: reminder scheduler is required")
	}
	if opts.Commit == nil {
		return nil, errors.New("conversation: commit func is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Engine{
		gateway:      opts.Gateway,
		reminders:    opts.Reminders,
		vocab:        opts.Vocabulary,
		debounce:     opts.Debounce,
		aiEnabled:    opts.AIEnabled,
		commit:       opts.Commit,
		onTransition: opts.OnTransition,
		logger:       logging.NewComponentLogger(logger, "conversation"),
	}, nil
}

// Vocabulary returns the tag and participant vocabulary.
func (e *Engine) Vocabulary() Vocabulary {
	return e.vocab
}

// HandleEvent applies ev to item. Stale, duplicate, foreign and unknown
// events are dropped without touching item. The returned error is a commit
// failure; send failures are logged and retried on later ticks.
func (e *Engine) HandleEvent(ctx context.Context, item *state.PendingItem, ev messaging.Event, now time.Time) (Outcome, error) {
	if item == nil || item.Stage == state.StageReadyToFinalize {
		return Ignored, nil
	}
	if item.Destination != "" && ev.Destination != item.Destination {
		return Ignored, nil
	}
	switch ev.Kind {
	case messaging.EventButton:
		return e.handleButton(ctx, item, ev, now)
	case messaging.EventText:
		return e.handleText(ctx, item, ev, now)
	}
	return Ignored, nil
}

func (e *Engine) handleButton(ctx context.Context, item *state.PendingItem, ev messaging.Event, now time.Time) (Outcome, error) {
	logger := logging.WithContext(ctx, e.logger)
	action, ok := ParseAction(ev.Payload)
	if !ok {
		logger.Debug("unknown button payload dropped", logging.String("payload", ev.Payload))
		return Ignored, nil
	}
	if prompt := item.PromptID(item.Stage); prompt == 0 || ev.MessageID != prompt {
		logger.Debug("stale button dropped",
			logging.Int64("message_id", ev.MessageID),
			logging.Int64("prompt_id", prompt),
		)
		return Ignored, nil
	}
	if action.IsToggle() {
		fingerprint := string(item.Stage) + "|" + ev.Payload
		if item.LastToggle == fingerprint && now.Sub(item.LastToggleAt) < e.debounce {
			logger.Debug("repeated toggle dropped", logging.String("payload", ev.Payload))
			return Ignored, nil
		}
		item.LastToggle = fingerprint
		item.LastToggleAt = now
	}
	return e.apply(ctx, item, action, now)
}

func (e *Engine) handleText(ctx context.Context, item *state.PendingItem, ev messaging.Event, now time.Time) (Outcome, error) {
	if ev.MessageID <= item.PromptID(item.Stage) {
		return Ignored, nil
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return Ignored, nil
	}
	if cmd, ok := ParseCommand(text); ok {
		return e.apply(ctx, item, cmd, now)
	}

	switch item.Stage {
	case state.StageTags:
		tags, skip := e.vocab.ParseTags(text)
		if skip {
			return e.apply(ctx, item, Action{Kind: ActionTagsSkip}, now)
		}
		if len(tags) == 0 {
			return e.reject(ctx, item, textTagsEmpty, now)
		}
		item.Tags = tags
		item.TagsSkipped = false
		return e.advance(ctx, item, state.StageParticipants, now)

	case state.StageParticipants:
		handles, skip := ParseParticipants(text)
		if skip {
			return e.apply(ctx, item, Action{Kind: ActionParticipantsSkip}, now)
		}
		if len(handles) == 0 {
			return e.reject(ctx, item, textParticipantsEmpty, now)
		}
		item.Participants = handles
		item.ParticipantsFinal = true
		return e.advance(ctx, item, state.StageSummaryChoice, now)

	case state.StageSummaryChoice:
		yes, ok := ParseYesNo(text)
		if !ok {
			return e.reject(ctx, item, textSummaryUnknown, now)
		}
		return e.apply(ctx, item, Action{Kind: summaryAction(yes)}, now)
	}
	return Ignored, nil
}

func summaryAction(yes bool) ActionKind {
	if yes {
		return ActionSummaryYes
	}
	return ActionSummaryNo
}

func (e *Engine) apply(ctx context.Context, item *state.PendingItem, action Action, now time.Time) (Outcome, error) {
	switch action.Kind {
	case ActionBack:
		return e.back(ctx, item, now)
	case ActionRestart:
		item.Tags = nil
		item.TagsSkipped = false
		item.Participants = nil
		item.ParticipantsFinal = false
		item.SummaryRequested = nil
		return e.advance(ctx, item, state.StageTags, now)
	}

	switch item.Stage {
	case state.StageTags:
		switch action.Kind {
		case ActionToggleTag:
			tag := action.Value
			if !slices.Contains(item.Tags, tag) {
				tag = e.vocab.CanonicalTag(tag)
			}
			if !e.vocab.HasTag(tag) && !slices.Contains(item.Tags, tag) {
				return Ignored, nil
			}
			item.Tags = toggle(item.Tags, tag)
			item.TagsSkipped = false
			return e.toggled(ctx, item, now)
		case ActionTagsDone:
			if len(item.Tags) == 0 {
				return e.reject(ctx, item, textTagsEmpty, now)
			}
			return e.advance(ctx, item, state.StageParticipants, now)
		case ActionTagsSkip:
			item.Tags = []string{e.vocab.FallbackTag}
			item.TagsSkipped = true
			return e.advance(ctx, item, state.StageParticipants, now)
		}

	case state.StageParticipants:
		switch action.Kind {
		case ActionToggleParticipant:
			if !slices.Contains(e.vocab.Roster, action.Value) && !slices.Contains(item.Participants, action.Value) {
				return Ignored, nil
			}
			item.Participants = toggle(item.Participants, action.Value)
			return e.toggled(ctx, item, now)
		case ActionParticipantsDone:
			item.ParticipantsFinal = true
			return e.advance(ctx, item, state.StageSummaryChoice, now)
		case ActionParticipantsSkip:
			item.Participants = nil
			item.ParticipantsFinal = true
			return e.advance(ctx, item, state.StageSummaryChoice, now)
		}

	case state.StageSummaryChoice:
		switch action.Kind {
		case ActionSummaryYes, ActionSummaryNo:
			item.SetSummaryRequested(action.Kind == ActionSummaryYes)
			return e.advance(ctx, item, state.StageReadyToFinalize, now)
		}
	}
	return Ignored, nil
}

func (e *Engine) back(ctx context.Context, item *state.PendingItem, now time.Time) (Outcome, error) {
	switch item.Stage {
	case state.StageParticipants:
		item.ParticipantsFinal = false
		return e.advance(ctx, item, state.StageTags, now)
	case state.StageSummaryChoice:
		item.SummaryRequested = nil
		item.ParticipantsFinal = false
		return e.advance(ctx, item, state.StageParticipants, now)
	default:
		return e.reject(ctx, item, textAlreadyAtFirstStep, now)
	}
}

// toggled commits a selection change and refreshes the keyboard.
func (e *Engine) toggled(ctx context.Context, item *state.PendingItem, now time.Time) (Outcome, error) {
	e.reminders.Rearm(item, now)
	item.MarkupDirty = true
	if err := e.commit(item); err != nil {
		return Ignored, err
	}
	return Updated, e.refreshMarkup(ctx, item, now)
}

// reject keeps the stage, re-arms the reminder and tells the user why.
func (e *Engine) reject(ctx context.Context, item *state.PendingItem, text string, now time.Time) (Outcome, error) {
	e.reminders.Rearm(item, now)
	if err := e.commit(item); err != nil {
		return Ignored, err
	}
	if _, err := e.gateway.SendText(ctx, item.Destination, text, nil); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "re-prompt not delivered", "reprompt_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "user was not told why the answer was rejected"),
			logging.String(logging.FieldErrorHint, "check chat gateway connectivity"),
		)
	}
	return Rejected, nil
}

// advance moves item to stage, commits, retires the previous prompt's
// keyboard and sends the new prompt.
func (e *Engine) advance(ctx context.Context, item *state.PendingItem, to state.Stage, now time.Time) (Outcome, error) {
	from := item.Stage
	previousPrompt := item.PromptID(from)
	if to == state.StageSummaryChoice && !e.aiEnabled {
		item.SetSummaryRequested(false)
		to = state.StageReadyToFinalize
	}
	item.Stage = to
	item.ClearPrompt(to)
	item.LastToggle = ""
	item.LastToggleAt = time.Time{}
	item.MarkupDirty = false
	item.MarkupRetryAt = time.Time{}
	e.reminders.Rearm(item, now)
	if err := e.commit(item); err != nil {
		return Ignored, err
	}
	e.transitioned(ctx, item, from)

	if previousPrompt != 0 {
		if err := e.gateway.EditKeyboard(ctx, item.Destination, previousPrompt, nil); err != nil {
			logging.WithContext(ctx, e.logger).Debug("previous keyboard not removed", logging.Error(err))
		}
	}
	if err := e.EnsurePrompt(ctx, item, now); err != nil {
		if !errors.Is(err, services.ErrTransient) {
			return Advanced, err
		}
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "stage prompt not delivered", "prompt_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "prompt will be re-sent on the next tick"),
			logging.String(logging.FieldErrorHint, "check chat gateway connectivity"),
		)
	}
	return Advanced, nil
}

func (e *Engine) transitioned(ctx context.Context, item *state.PendingItem, from state.Stage) {
	logging.WithContext(ctx, e.logger).Info("stage changed",
		logging.String(logging.FieldEventType, "stage_transition"),
		logging.String(logging.FieldItemKey, item.Key),
		logging.String("from", string(from)),
		logging.String("to", string(item.Stage)),
	)
	if e.onTransition != nil {
		e.onTransition(ctx, item, from)
	}
}

// EnsurePrompt sends the active stage's prompt when none is recorded. A
// summary prompt that cannot be delivered skips the summary stage. Other send
// failures come back marked services.ErrTransient.
func (e *Engine) EnsurePrompt(ctx context.Context, item *state.PendingItem, now time.Time) error {
	if item == nil {
		return nil
	}
	switch item.Stage {
	case state.StageReadyToFinalize:
		return nil
	case state.StageSummaryChoice:
		if !e.aiEnabled {
			return e.skipSummary(ctx, item, now)
		}
	}
	if item.PromptID(item.Stage) != 0 {
		return nil
	}
	id, err := e.gateway.SendText(ctx, item.Destination, promptText(item), KeyboardFor(e.vocab, item))
	if err != nil {
		if item.Stage == state.StageSummaryChoice {
			logging.WarnWithContext(logging.WithContext(ctx, e.logger), "summary prompt not delivered; skipping summary", "summary_prompt_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "recording will be delivered without a summary"),
			)
			return e.skipSummary(ctx, item, now)
		}
		return services.Wrap(services.ErrTransient, "conversation", "send prompt", string(item.Stage), err)
	}
	item.SetPrompt(item.Stage, id)
	return e.commit(item)
}

func (e *Engine) skipSummary(ctx context.Context, item *state.PendingItem, now time.Time) error {
	from := item.Stage
	item.SetSummaryRequested(false)
	item.Stage = state.StageReadyToFinalize
	e.reminders.Rearm(item, now)
	if err := e.commit(item); err != nil {
		return err
	}
	e.transitioned(ctx, item, from)
	return nil
}

// FlushMarkup retries a deferred keyboard refresh once its deadline passed.
func (e *Engine) FlushMarkup(ctx context.Context, item *state.PendingItem, now time.Time) error {
	if item == nil || !item.MarkupDirty {
		return nil
	}
	return e.refreshMarkup(ctx, item, now)
}

func (e *Engine) refreshMarkup(ctx context.Context, item *state.PendingItem, now time.Time) error {
	if now.Before(item.MarkupRetryAt) {
		return nil
	}
	prompt := item.PromptID(item.Stage)
	if prompt == 0 {
		return nil
	}
	err := e.gateway.EditKeyboard(ctx, item.Destination, prompt, KeyboardFor(e.vocab, item))
	if err != nil {
		logger := logging.WithContext(ctx, e.logger)
		if wait, ok := messaging.RetryAfter(err); ok {
			item.MarkupRetryAt = now.Add(wait)
			logger.Info("keyboard refresh deferred",
				logging.String(logging.FieldEventType, "markup_rate_limited"),
				logging.Duration("retry_after", wait),
			)
		} else {
			item.MarkupRetryAt = now.Add(markupRetryDelay)
			logging.WarnWithContext(logger, "keyboard refresh failed", "markup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "buttons show a stale selection until the next refresh"),
			)
		}
		return e.commit(item)
	}
	item.MarkupDirty = false
	item.MarkupRetryAt = time.Time{}
	return e.commit(item)
}

// SendReminder sends the stage reminder text for item.
func (e *Engine) SendReminder(ctx context.Context, item *state.PendingItem) error {
	text := reminderText(item)
	if text == "" {
		return nil
	}
	if _, err := e.gateway.SendText(ctx, item.Destination, text, nil); err != nil {
		return services.Wrap(services.ErrTransient, "conversation", "send reminder", string(item.Stage), err)
	}
	return nil
}

func toggle(values []string, value string) []string {
	if i := slices.Index(values, value); i >= 0 {
		return slices.Delete(slices.Clone(values), i, i+1)
	}
	return append(slices.Clone(values), value)
}
