package hub

import (
	"sync"

	"vaultwatch/internal/model"
)

const defaultBuffer = 32

// Hub fans confirmed alerts out to live subscribers. Each subscriber owns
// a buffered channel; a full buffer drops that delivery rather than
// blocking the others. The connection layer unsubscribes on write failure,
// which is the only other mutation path into the set.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan model.Alert]struct{}
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan model.Alert]struct{})}
}

// Subscribe registers a new subscriber channel.
func (h *Hub) Subscribe(buffer int) chan model.Alert {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan model.Alert, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel. Safe to call
// repeatedly.
func (h *Hub) Unsubscribe(ch chan model.Alert) {
	h.mu.Lock()
	_, exists := h.subs[ch]
	if exists {
		delete(h.subs, ch)
	}
	h.mu.Unlock()
	if exists {
		close(ch)
	}
}

// Broadcast delivers an alert to every live subscriber, at most once each.
func (h *Hub) Broadcast(alert model.Alert) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- alert:
		default:
		}
	}
}

// Len returns the current subscriber count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
