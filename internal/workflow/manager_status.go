package workflow

import (
	"time"

	"recflow/internal/state"
)

// StatusSummary is a point-in-time view of the workflow.
type StatusSummary struct {
	Running     bool
	Ticks       int64
	LastTick    time.Time
	LastError   string
	Destination string
	Watermark   int64
	Pending     *state.PendingItem
	Completed   int
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:  m.running,
		Ticks:    m.ticks,
		LastTick: m.lastTick,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	summary.Destination = m.store.Destination()
	summary.Watermark = m.store.Watermark()
	summary.Pending = m.store.Pending()
	summary.Completed = len(m.store.CompletedItems())
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
