// ABOUTME: In-memory fan-out of store change notifications to view bindings
// ABOUTME: Non-blocking: a slow subscriber coalesces ticks instead of queueing them

package notify

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Hub lets views learn that a store's snapshot changed. Subscribers receive
// at-least-one tick per change; consecutive changes coalesce when the
// subscriber has not drained its channel yet. Views are expected to re-read
// the store snapshot on every tick, so coalescing loses nothing.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan struct{}
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]chan struct{}),
		logger:      logger.With("component", "notify"),
	}
}

// Subscribe registers a listener. Returns the tick channel and a
// subscription ID for Unsubscribe.
func (h *Hub) Subscribe() (<-chan struct{}, string) {
	subID := uuid.New().String()
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	h.subscribers[subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "sub_id", subID)
	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subscribers[subID]
	if !ok {
		return
	}
	delete(h.subscribers, subID)
	close(ch)

	h.logger.Debug("subscriber removed", "sub_id", subID)
}

// Notify ticks every subscriber. Never blocks.
func (h *Hub) Notify() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// Tick already pending; subscriber will see the latest snapshot.
		}
	}
}

// Close shuts down the hub and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for subID, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, subID)
	}
}
