package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"recflow/internal/logging"
	"recflow/internal/messaging"
	"recflow/internal/services"
	"recflow/internal/state"
)

// Run executes ticks until ctx ends. It returns nil on cancellation and the
// persistence error that stopped it otherwise.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.String("source_dir", m.cfg.Paths.SourceDir),
		logging.Bool("ai_enabled", m.ai.Enabled()),
	)
	for {
		if ctx.Err() != nil {
			m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
			return nil
		}
		err := m.safeTick(ctx)
		m.setLastError(err)
		if err == nil {
			continue
		}
		if errors.Is(err, state.ErrPersist) {
			logging.ErrorWithContext(m.logger, "state could not be saved; stopping", "state_persist_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check free space and permissions of the state directory"),
			)
			_ = m.notifier.NotifyError(context.WithoutCancel(ctx), err, "state save")
			return err
		}
		if ctx.Err() != nil {
			continue
		}
		logging.WarnWithContext(m.logger, "tick failed; retrying", "tick_failed",
			logging.Error(err),
			logging.Duration("retry_in", m.errorBackoff),
			logging.String(logging.FieldErrorHint, tickHint(err)),
		)
		m.wait(ctx, m.errorBackoff)
	}
}

// safeTick turns a panic inside a tick into an error.
func (m *Manager) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("tick panicked",
				logging.String(logging.FieldEventType, "tick_panic"),
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return m.Tick(ctx)
}

func (m *Manager) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Tick runs one pass: events, prompt upkeep, finalize, reminders, discovery.
func (m *Manager) Tick(ctx context.Context) error {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	m.mu.Lock()
	m.ticks++
	m.lastTick = m.now()
	m.mu.Unlock()

	if err := m.processEvents(ctx); err != nil {
		return err
	}
	if item := m.store.Pending(); item != nil {
		if err := m.tickPending(ctx, item); err != nil {
			return err
		}
	}
	return m.maybeStartNext(ctx, m.now())
}

// processEvents pulls one batch of inbound events. The watermark moves past
// each event before it is applied so a crash never replays it.
func (m *Manager) processEvents(ctx context.Context) error {
	events, err := m.gateway.PollEvents(ctx, m.store.Watermark(), m.pollTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return services.Wrap(services.ErrTransient, "workflow", "poll events", "", err)
	}
	if len(events) == 0 {
		return nil
	}
	logger := logging.WithContext(ctx, m.logger)
	for _, ev := range events {
		if ev.ID <= m.store.Watermark() {
			continue
		}
		m.store.AdvanceWatermark(ev.ID)
		if !m.acceptDestination(ctx, ev) {
			logger.Debug("event from another conversation dropped",
				logging.String("destination", ev.Destination),
				logging.Int64("event_id", ev.ID),
			)
			continue
		}
		item := m.store.Pending()
		if item == nil {
			continue
		}
		itemCtx := services.WithStage(services.WithItemKey(ctx, item.Key), string(item.Stage))
		outcome, err := m.engine.HandleEvent(itemCtx, item, ev, m.now())
		if err != nil {
			return err
		}
		logger.Debug("event handled",
			logging.String("kind", ev.Kind.String()),
			logging.Int64("event_id", ev.ID),
			logging.String("outcome", outcome.String()),
		)
	}
	return m.store.Save()
}

// acceptDestination learns the destination from the first event when none
// is configured and filters out every other conversation.
func (m *Manager) acceptDestination(ctx context.Context, ev messaging.Event) bool {
	dest := m.store.Destination()
	if dest == "" {
		if ev.Destination == "" {
			return false
		}
		m.store.SetDestination(ev.Destination)
		logging.WithContext(ctx, m.logger).Info("conversation destination learned",
			logging.String(logging.FieldEventType, "destination_learned"),
			logging.String("destination", ev.Destination),
		)
		return true
	}
	return ev.Destination == dest
}

func (m *Manager) tickPending(ctx context.Context, item *state.PendingItem) error {
	ctx = services.WithStage(services.WithItemKey(ctx, item.Key), string(item.Stage))
	now := m.now()
	if err := m.engine.EnsurePrompt(ctx, item, now); err != nil {
		if !errors.Is(err, services.ErrTransient) {
			return err
		}
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "stage prompt not delivered", "prompt_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "prompt will be re-sent on the next tick"),
			logging.String(logging.FieldErrorHint, "check chat gateway connectivity"),
		)
	}
	if err := m.engine.FlushMarkup(ctx, item, now); err != nil {
		return err
	}
	done, err := m.maybeFinalize(ctx, item, now)
	if err != nil || done {
		return err
	}
	return m.maybeNudge(ctx, item, now)
}

func (m *Manager) maybeNudge(ctx context.Context, item *state.PendingItem, now time.Time) error {
	_, err := m.reminders.MaybeNudge(ctx, item, now, m.commit, m.engine.SendReminder)
	if err == nil || errors.Is(err, state.ErrPersist) {
		return err
	}
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), "reminder not delivered", "reminder_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "next reminder follows the backoff schedule"),
	)
	return nil
}

func tickHint(err error) string {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return "check recflow configuration"
	case errors.Is(err, services.ErrExternalTool):
		return "check ffmpeg/ffprobe installation"
	default:
		return "check chat gateway connectivity and the source directory"
	}
}
