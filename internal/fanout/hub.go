package fanout

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/clock"
)

// DefaultQueueSize is the per-subscriber bound when none is configured.
const DefaultQueueSize = 64

// Message is one delivered item.
type Message struct {
	Seq       uint64    `json:"seq"`
	Event     string    `json:"event"`
	Priority  bool      `json:"priority,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Logger defines the logging interface used by the Hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Hub tracks subscriptions and broadcasts to them.
//
// All methods are safe for concurrent use.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscription

	queueSize int
	seq       atomic.Uint64
	clock     clock.Clock
	logger    Logger
}

// NewHub creates a Hub whose subscriptions queue up to queueSize normal
// messages each.
func NewHub(queueSize int, clk clock.Clock) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Hub{
		subs:      make(map[string]*Subscription),
		queueSize: queueSize,
		clock:     clk,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// Subscribe registers a new subscription. With no events it receives
// every broadcast.
func (h *Hub) Subscribe(events ...string) *Subscription {
	sub := newSubscription(h, h.queueSize)
	sub.SetFilter(events...)

	h.mu.Lock()
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("fanout subscriber added", "subscriber_id", sub.id, "subscribers", n)
	return sub
}

// Unsubscribe removes sub and wakes any pending Next. Calling it more
// than once, or with nil, is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	_, existed := h.subs[sub.id]
	delete(h.subs, sub.id)
	h.mu.Unlock()

	sub.close()
	if existed {
		h.logger.Debug("fanout subscriber removed", "subscriber_id", sub.id, "dropped", sub.Dropped())
	}
}

// Broadcast delivers a normal message to every interested subscriber.
func (h *Hub) Broadcast(event string, payload any) {
	h.publish(event, payload, false)
}

// BroadcastPriority delivers a message that is never dropped and jumps
// ahead of queued normal messages.
func (h *Hub) BroadcastPriority(event string, payload any) {
	h.publish(event, payload, true)
}

func (h *Hub) publish(event string, payload any, priority bool) {
	msg := Message{
		Seq:       h.seq.Add(1),
		Event:     event,
		Priority:  priority,
		Timestamp: h.clock.Now(),
		Payload:   payload,
	}

	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if s.Wants(event) {
			s.offer(msg)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// SubscriberStats describes one subscription's backlog.
type SubscriberStats struct {
	ID      string `json:"id"`
	Queued  int    `json:"queued"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns per-subscriber counters sorted by id.
func (h *Hub) Stats() []SubscriberStats {
	h.mu.RLock()
	out := make([]SubscriberStats, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, SubscriberStats{ID: s.id, Queued: s.Len(), Dropped: s.Dropped()})
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

func newSubscriberID() string {
	return "sub-" + uuid.NewString()[:8]
}
