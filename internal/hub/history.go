package hub

import (
	"sync"

	"vaultwatch/internal/model"
)

// History keeps confirmed alerts in process memory for the lifetime of
// the service. It is a convenience mirror only: the on-chain registry is
// the source of truth and a restart legitimately starts empty.
type History struct {
	mu     sync.RWMutex
	alerts []model.Alert
	limit  int
}

// NewHistory builds a history bounded to limit entries (oldest evicted).
// A non-positive limit keeps everything.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Append records a confirmed alert.
func (h *History) Append(alert model.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, alert)
	if h.limit > 0 && len(h.alerts) > h.limit {
		h.alerts = h.alerts[len(h.alerts)-h.limit:]
	}
}

// Snapshot returns a copy of the recorded alerts, oldest first.
func (h *History) Snapshot() []model.Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.Alert, len(h.alerts))
	copy(out, h.alerts)
	return out
}

// Len returns the number of recorded alerts.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.alerts)
}
