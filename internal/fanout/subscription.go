package fanout

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscription is one consumer's view of the hub.
type Subscription struct {
	id  string
	hub *Hub

	mu       sync.Mutex
	all      bool
	filter   map[string]struct{}
	ring     []Message
	head     int
	count    int
	priority []Message
	closed   bool

	// notify holds at most one wake-up token.
	notify chan struct{}
	done   chan struct{}

	dropped atomic.Uint64
}

func newSubscription(h *Hub, size int) *Subscription {
	return &Subscription{
		id:     newSubscriberID(),
		hub:    h,
		all:    true,
		filter: make(map[string]struct{}),
		ring:   make([]Message, size),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// SetFilter replaces the event filter. No events means everything.
func (s *Subscription) SetFilter(events ...string) {
	s.mu.Lock()
	s.filter = make(map[string]struct{}, len(events))
	for _, e := range events {
		if e != "" {
			s.filter[e] = struct{}{}
		}
	}
	s.all = len(s.filter) == 0
	s.mu.Unlock()
}

// Add extends the filter. On a subscription receiving everything it
// narrows delivery to the named events.
func (s *Subscription) Add(events ...string) {
	s.mu.Lock()
	for _, e := range events {
		if e != "" {
			s.filter[e] = struct{}{}
			s.all = false
		}
	}
	s.mu.Unlock()
}

// Remove drops events from the filter. An explicit filter left empty
// delivers nothing until Add or SetFilter is called. Remove on a
// subscription receiving everything is a no-op.
func (s *Subscription) Remove(events ...string) {
	s.mu.Lock()
	for _, e := range events {
		delete(s.filter, e)
	}
	s.mu.Unlock()
}

// Wants reports whether event passes the filter.
func (s *Subscription) Wants(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.all {
		return true
	}
	_, ok := s.filter[event]
	return ok
}

// offer enqueues msg without blocking.
func (s *Subscription) offer(msg Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if msg.Priority {
		s.priority = append(s.priority, msg)
	} else {
		size := len(s.ring)
		if s.count == size {
			// Full: overwrite the oldest.
			s.ring[s.head] = Message{}
			s.head = (s.head + 1) % size
			s.count--
			s.dropped.Add(1)
		}
		s.ring[(s.head+s.count)%size] = msg
		s.count++
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// TryNext returns the next message without waiting.
func (s *Subscription) TryNext() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popLocked()
}

func (s *Subscription) popLocked() (Message, bool) {
	if s.closed {
		return Message{}, false
	}
	if len(s.priority) > 0 {
		msg := s.priority[0]
		s.priority[0] = Message{}
		s.priority = s.priority[1:]
		return msg, true
	}
	if s.count == 0 {
		return Message{}, false
	}
	msg := s.ring[s.head]
	s.ring[s.head] = Message{}
	s.head = (s.head + 1) % len(s.ring)
	s.count--
	return msg, true
}

// Next blocks until a message is available, ctx is done, or the
// subscription is closed.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Message{}, ErrSubscriptionClosed
		}
		msg, ok := s.popLocked()
		s.mu.Unlock()
		if ok {
			return msg, nil
		}

		select {
		case <-s.notify:
		case <-s.done:
			return Message{}, ErrSubscriptionClosed
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Len returns the number of undelivered messages.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count + len(s.priority)
}

// Dropped returns how many normal messages were discarded on overflow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Done is closed when the subscription is removed from the hub.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.ring = nil
	s.priority = nil
	s.count = 0
	close(s.done)
}

// Close is shorthand for removing s from its hub.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}
