package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"recflow/internal/config"
	"recflow/internal/logging"
	"recflow/internal/state"
)

// MinBaseInterval is the smallest base interval the scheduler accepts.
const MinBaseInterval = 30 * time.Second

// Settings configures a Scheduler.
type Settings struct {
	Base       time.Duration
	Max        time.Duration
	Location   *time.Location
	NightStart int
	NightEnd   int
}

// SettingsFromConfig maps the reminders section of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Base:       time.Duration(cfg.Reminders.BaseInterval) * time.Second,
		Max:        time.Duration(cfg.Reminders.MaxInterval) * time.Second,
		Location:   cfg.Location(),
		NightStart: cfg.Reminders.NightStartHour,
		NightEnd:   cfg.Reminders.NightEndHour,
	}
}

// Outcome reports what MaybeNudge did.
type Outcome int

const (
	NotDue Outcome = iota
	Deferred
	Sent
)

func (o Outcome) String() string {
	switch o {
	case Deferred:
		return "deferred"
	case Sent:
		return "sent"
	default:
		return "not_due"
	}
}

// CommitFunc persists the pending item.
type CommitFunc func(item *state.PendingItem) error

// SendFunc delivers the stage reminder text for item.
type SendFunc func(ctx context.Context, item *state.PendingItem) error

// Scheduler computes and applies reminder deadlines.
type Scheduler struct {
	settings Settings
	logger   *slog.Logger
}

// New builds a scheduler. The base interval is floored at MinBaseInterval and
// the cap is raised to the base when smaller.
func New(settings Settings, logger *slog.Logger) *Scheduler {
	settings.Base = max(settings.Base, MinBaseInterval)
	settings.Max = max(settings.Max, settings.Base)
	if settings.Location == nil {
		settings.Location = time.Local
	}
	return &Scheduler{settings: settings, logger: logging.NewComponentLogger(logger, "reminder")}
}

// ScheduleFirst resets the attempt counter and arms the first nudge.
func (s *Scheduler) ScheduleFirst(item *state.PendingItem, now time.Time) {
	item.Reminder = state.Reminder{
		NextAt: now.Add(s.settings.Base),
	}
}

// Rearm schedules a fresh reminder when item awaits the user and disarms it
// otherwise.
func (s *Scheduler) Rearm(item *state.PendingItem, now time.Time) {
	if NeedsReply(item) {
		s.ScheduleFirst(item, now)
		return
	}
	item.Reminder = state.Reminder{}
}

// ComputeInterval returns min(max, base*2^attempt).
func (s *Scheduler) ComputeInterval(attempt int) time.Duration {
	interval := s.settings.Base
	for range max(attempt, 0) {
		if interval >= s.settings.Max/2 {
			return s.settings.Max
		}
		interval *= 2
	}
	return min(interval, s.settings.Max)
}

// NeedsReply reports whether the item is waiting on the user.
func NeedsReply(item *state.PendingItem) bool {
	if item == nil {
		return false
	}
	switch item.Stage {
	case state.StageTags, state.StageSummaryChoice:
		return true
	case state.StageParticipants:
		return !item.ParticipantsFinal
	default:
		return false
	}
}

// InQuietHours reports whether t falls inside the night window in the
// configured zone. Equal start and end hours disable the window.
func (s *Scheduler) InQuietHours(t time.Time) bool {
	start, end := s.settings.NightStart, s.settings.NightEnd
	if start == end {
		return false
	}
	hour := t.In(s.settings.Location).Hour()
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// QuietHoursEnd returns the first night-end instant strictly after t.
func (s *Scheduler) QuietHoursEnd(t time.Time) time.Time {
	local := t.In(s.settings.Location)
	boundary := time.Date(local.Year(), local.Month(), local.Day(), s.settings.NightEnd, 0, 0, 0, s.settings.Location)
	if !boundary.After(local) {
		next := local.AddDate(0, 0, 1)
		boundary = time.Date(next.Year(), next.Month(), next.Day(), s.settings.NightEnd, 0, 0, 0, s.settings.Location)
	}
	return boundary
}

// MaybeNudge sends the stage reminder when one is due. The updated schedule
// is committed before the reminder goes out, so a crash never repeats a
// nudge for the same attempt.
func (s *Scheduler) MaybeNudge(ctx context.Context, item *state.PendingItem, now time.Time, commit CommitFunc, send SendFunc) (Outcome, error) {
	if !NeedsReply(item) {
		return NotDue, nil
	}
	if item.Reminder.NextAt.IsZero() {
		s.ScheduleFirst(item, now)
		return NotDue, commit(item)
	}
	if now.Before(item.Reminder.NextAt) {
		return NotDue, nil
	}

	if s.InQuietHours(now) {
		item.Reminder.NextAt = s.QuietHoursEnd(now)
		if err := commit(item); err != nil {
			return NotDue, err
		}
		s.logger.Debug("reminder deferred for quiet hours",
			logging.String(logging.FieldEventType, "reminder_deferred"),
			logging.String(logging.FieldItemKey, item.Key),
			logging.Time("next_at", item.Reminder.NextAt),
		)
		return Deferred, nil
	}

	item.Reminder.Attempt++
	item.Reminder.LastAt = now
	item.Reminder.NextAt = now.Add(s.ComputeInterval(item.Reminder.Attempt))
	if err := commit(item); err != nil {
		return NotDue, err
	}
	if err := send(ctx, item); err != nil {
		return NotDue, fmt.Errorf("send reminder: %w", err)
	}
	s.logger.Info("reminder sent",
		logging.String(logging.FieldEventType, "reminder_sent"),
		logging.String(logging.FieldItemKey, item.Key),
		logging.String(logging.FieldStage, string(item.Stage)),
		logging.Int("attempt", item.Reminder.Attempt),
		logging.Time("next_at", item.Reminder.NextAt),
	)
	return Sent, nil
}
