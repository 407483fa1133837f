package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"recflow/internal/ai"
	"recflow/internal/config"
	"recflow/internal/conversation"
	"recflow/internal/delivery"
	"recflow/internal/discovery"
	"recflow/internal/history"
	"recflow/internal/logging"
	"recflow/internal/media"
	"recflow/internal/messaging"
	"recflow/internal/notifications"
	"recflow/internal/reminder"
	"recflow/internal/state"
)

// Journal receives the audit trail of the workflow. *history.Store
// implements it.
type Journal interface {
	Record(ctx context.Context, ev history.Event) error
	RecordCompletion(ctx context.Context, item state.CompletedItem) error
}

// ChangeSource reports whether the source directory changed since the last
// call. *watcher.Watcher implements it.
type ChangeSource interface {
	TakeDirty() bool
}

// Deps are the collaborators of a Manager. Store, Gateway and Media are
// required.
type Deps struct {
	Store    *state.Store
	Gateway  messaging.Gateway
	Media    media.Tool
	AI       ai.Backend
	Journal  Journal
	Notifier notifications.Service
	Changes  ChangeSource
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager drives the pending item through its conversation.
type Manager struct {
	cfg      *config.Config
	store    *state.Store
	gateway  messaging.Gateway
	media    media.Tool
	ai       ai.Backend
	journal  Journal
	notifier notifications.Service
	changes  ChangeSource
	now      func() time.Time
	logger   *slog.Logger

	engine    *conversation.Engine
	reminders *reminder.Scheduler
	retrier   *delivery.Retrier
	scanner   *discovery.Scanner

	pollTimeout  time.Duration
	scanInterval time.Duration
	retryDelay   time.Duration
	errorBackoff time.Duration
	lastScan     time.Time

	mu       sync.RWMutex
	running  bool
	lastErr  error
	lastTick time.Time
	ticks    int64
}

// NewManager wires the workflow. A configured chat id overrides any
// destination learned earlier.
func NewManager(cfg *config.Config, deps Deps, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("workflow: config is required")
	}
	if deps.Store == nil || deps.Gateway == nil || deps.Media == nil {
		return nil, errors.New("workflow: store, gateway and media tool are required")
	}
	if deps.AI == nil {
		deps.AI = ai.Disabled{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	m := &Manager{
		cfg:          cfg,
		store:        deps.Store,
		gateway:      deps.Gateway,
		media:        deps.Media,
		ai:           deps.AI,
		journal:      deps.Journal,
		notifier:     deps.Notifier,
		changes:      deps.Changes,
		now:          deps.Now,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		reminders:    reminder.New(reminder.SettingsFromConfig(cfg), logger),
		retrier:      delivery.New(deps.Media, deps.Gateway, delivery.SettingsFromConfig(cfg), logger),
		pollTimeout:  time.Duration(cfg.Telegram.PollTimeout) * time.Second,
		scanInterval: time.Duration(cfg.Discovery.ScanInterval) * time.Second,
		retryDelay:   time.Duration(cfg.Delivery.RetryDelaySeconds) * time.Second,
		errorBackoff: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		scanner: discovery.New(
			cfg.Paths.SourceDir,
			cfg.Discovery.Extensions,
			time.Duration(cfg.Discovery.StabilitySeconds)*time.Second,
			time.Duration(cfg.Discovery.MinAgeSeconds)*time.Second,
		),
	}

	engine, err := conversation.New(conversation.Options{
		Gateway:      deps.Gateway,
		Reminders:    m.reminders,
		Vocabulary:   conversation.VocabularyFromConfig(cfg),
		Debounce:     time.Duration(cfg.Conversation.DebounceMS) * time.Millisecond,
		AIEnabled:    deps.AI.Enabled(),
		Commit:       m.commit,
		OnTransition: m.onTransition,
	}, logger)
	if err != nil {
		return nil, err
	}
	m.engine = engine

	if chatID := cfg.Telegram.ChatID; chatID != "" && m.store.Destination() != chatID {
		m.store.SetDestination(chatID)
		if err := m.store.Save(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// commit persists item as the pending item.
func (m *Manager) commit(item *state.PendingItem) error {
	m.store.SetPending(item)
	return m.store.Save()
}

func (m *Manager) onTransition(ctx context.Context, item *state.PendingItem, from state.Stage) {
	m.record(ctx, history.Event{
		Key:    item.Key,
		Kind:   history.KindStage,
		Stage:  string(item.Stage),
		Detail: "from " + string(from),
	})
}

// record appends to the journal. Journal failures never affect the item.
func (m *Manager) record(ctx context.Context, ev history.Event) {
	if m.journal == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = m.now()
	}
	if err := m.journal.Record(ctx, ev); err != nil {
		logging.WithContext(ctx, m.logger).Debug("journal write failed",
			logging.String("kind", string(ev.Kind)),
			logging.Error(err),
		)
	}
}
