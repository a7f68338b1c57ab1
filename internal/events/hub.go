package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/blockbridge/internal/log"
)

// Event types published by the hub.
const (
	TypeDispatchSent       = "dispatch.sent"
	TypeDispatchDropped    = "dispatch.dropped"
	TypeDispatchDeclined   = "dispatch.declined"
	TypeDispatchSuppressed = "dispatch.suppressed"
	TypeDispatchFault      = "dispatch.fault"
	TypeBackendConnected   = "backend.connected"
	TypeBackendLost        = "backend.disconnected"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

const subscriberBuffer = 128

// Hub is an in-memory pub/sub with a ring buffer so late SSE clients can replay.
type Hub struct {
	nextID atomic.Int64
	logger *slog.Logger

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		logger: log.WithComponent("events"),
		ring:   make([]Event, capacity),
		subs:   make(map[int]chan Event),
	}
}

// Publish stores the event and fans it out. Slow subscribers miss events rather than block.
func (h *Hub) Publish(eventType string, data any) Event {
	payload := json.RawMessage("{}")
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			h.logger.Warn("event data is not JSON-encodable", "type", eventType, "error", err)
			b, _ = json.Marshal(map[string]string{"error": "unencodable event data: " + err.Error()})
		}
		payload = b
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.pushLocked(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns a live channel and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
