package heartbeat

import (
	"sync"

	"github.com/raphaelgruber/pulse/internal/models"
)

// subscriberBuffer bounds how far a slow watcher may lag before records
// are dropped for it.
const subscriberBuffer = 8

// Hub fans completed cycle records out to live watchers. Publish never
// blocks; a watcher that stops draining misses records instead of
// stalling the scheduler.
type Hub struct {
	mu   sync.Mutex
	subs map[chan models.HeartbeatRecord]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan models.HeartbeatRecord]struct{})}
}

// Subscribe registers a watcher. The returned cancel func releases the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan models.HeartbeatRecord, func()) {
	ch := make(chan models.HeartbeatRecord, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers a record to every subscriber without blocking.
func (h *Hub) Publish(rec models.HeartbeatRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

// Subscribers returns the current watcher count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
