package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

type EventType string

const (
	EventAlert  EventType = "emergency_alert"
	EventUpdate EventType = "emergency_update"
)

// Event is one observer broadcast: emitted on emergency creation and on
// every status change.
type Event struct {
	Type        EventType         `json:"type"`
	EmergencyID string            `json:"emergencyId"`
	Emergency   *models.Emergency `json:"emergency,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Hub fans events out to observer subscribers. Delivery is best-effort:
// a subscriber with a full buffer is skipped rather than blocking
// emergency processing.
type Hub struct {
	subscribers map[uint64]chan Event
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uint64]chan Event),
	}
}

func (h *Hub) Subscribe() (uint64, chan Event) {
	id := h.nextID.Add(1)
	ch := make(chan Event, 32)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
}

func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// Skip slow subscribers
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes all subscriber channels, causing observer streams to exit
// gracefully.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
