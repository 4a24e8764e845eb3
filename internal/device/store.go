package device

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/clock"
)

// Event ring bounds.
const (
	DefaultEventBuffer = 200
	DefaultEventLimit  = 50
	MaxEventLimit      = 200
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer is notified after a write commits.
//
// For a device created by the write, prev has Version 0. Notifications
// for one device arrive in commit order, one at a time; a write made
// from inside StateChanged may return before its own notification is
// delivered.
type Observer interface {
	StateChanged(prev, next State)
	EventAppended(ev Event)
}

// Config controls Store behaviour.
type Config struct {
	// EventBuffer caps the per-device event ring. Zero means DefaultEventBuffer.
	EventBuffer int

	// RejectStale makes Upsert refuse updates whose timestamp is older
	// than the stored UpdatedAt. Off by default: updates apply in arrival order.
	RejectStale bool

	// Clock supplies timestamps for writes that carry none.
	Clock clock.Clock
}

// entry is the per-device slot. mu serializes every write to the device.
//
// Notifications are queued under mu in commit order and delivered by a
// single drainer at a time, so observers see each device's versions in
// order. A write made from inside an observer is queued and delivered by
// the drainer already running.
type entry struct {
	mu       sync.Mutex
	exists   bool
	state    State
	events   []Event
	pending  []notification
	draining bool
}

// notification is a committed change waiting for delivery.
type notification struct {
	prev, next State
	event      *Event
}

// Store is the authoritative in-memory device state.
//
// All public methods are thread-safe.
type Store struct {
	mu      sync.RWMutex // guards entries map membership only
	entries map[string]*entry

	obsMu     sync.RWMutex
	observers []Observer

	eventBuffer int
	rejectStale bool
	clock       clock.Clock
	logger      Logger
}

// NewStore creates an empty Store.
func NewStore(cfg Config) *Store {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Store{
		entries:     make(map[string]*entry),
		eventBuffer: cfg.EventBuffer,
		rejectStale: cfg.RejectStale,
		clock:       cfg.Clock,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// AddObserver registers o for change notifications.
func (s *Store) AddObserver(o Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

func (s *Store) snapshotObservers() []Observer {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return append([]Observer(nil), s.observers...)
}

// slot returns the entry for id, creating it when create is set.
func (s *Store) slot(id string, create bool) *entry {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[id]; ok {
		return e
	}
	e = &entry{}
	s.entries[id] = e
	return e
}

// Upsert merges partial into the device's state.
//
// A device seen for the first time starts from Defaults(kind). Keys in
// partial overwrite stored values; keys absent from partial, or present
// with a nil value, leave the stored value untouched. A zero ts is
// replaced with the current time.
//
// Returns:
//   - State: copy of the committed state
//   - error: ErrInvalidDeviceID, ErrInvalidKind, ErrKindMismatch, or ErrStaleUpdate
func (s *Store) Upsert(id string, kind Kind, partial map[string]any, ts time.Time) (State, error) {
	if id == "" {
		return State{}, ErrInvalidDeviceID
	}
	if !kind.Valid() {
		return State{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if ts.IsZero() {
		ts = s.clock.Now()
	}

	e := s.slot(id, true)
	e.mu.Lock()

	if !e.exists {
		e.state = State{
			DeviceID:   id,
			Kind:       kind,
			Attributes: Defaults(kind),
		}
	} else {
		if e.state.Kind != kind {
			e.mu.Unlock()
			return State{}, fmt.Errorf("%w: %s is %s, update is %s", ErrKindMismatch, id, e.state.Kind, kind)
		}
		if s.rejectStale && ts.Before(e.state.UpdatedAt) {
			e.mu.Unlock()
			s.logger.Debug("stale update rejected", "device_id", id, "ts", ts, "updated_at", e.state.UpdatedAt)
			return State{}, fmt.Errorf("%w: %s at %s older than %s", ErrStaleUpdate, id,
				ts.Format(time.RFC3339Nano), e.state.UpdatedAt.Format(time.RFC3339Nano))
		}
	}

	var prev State
	if e.exists {
		prev = e.state.Clone()
	}

	for k, v := range partial {
		if v == nil {
			continue
		}
		e.state.Attributes[k] = deepCopyValue(v)
	}
	if kind == KindLock {
		if locked, ok := e.state.Bool(AttrLocked); ok && locked {
			e.state.RelockDeadline = nil
		}
	}
	if ts.After(e.state.UpdatedAt) {
		e.state.UpdatedAt = ts
	}
	e.state.Version++
	e.exists = true

	next := e.state.Clone()
	s.notify(e, notification{prev: prev, next: next.Clone()})
	return next, nil
}

// SetRelockDeadline records when an unlocked lock will relock.
//
// A nil deadline clears any recorded deadline. A non-nil deadline is
// applied only while the lock is unlocked; the returned bool reports
// whether the stored state changed.
func (s *Store) SetRelockDeadline(id string, deadline *time.Time) (bool, error) {
	e := s.slot(id, false)
	if e == nil {
		return false, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	e.mu.Lock()
	if !e.exists {
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if e.state.Kind != KindLock {
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotALock, id)
	}

	switch {
	case deadline == nil && e.state.RelockDeadline == nil:
		e.mu.Unlock()
		return false, nil
	case deadline != nil && !e.state.IsUnlockedLock():
		e.mu.Unlock()
		return false, nil
	case deadline != nil && e.state.RelockDeadline != nil && e.state.RelockDeadline.Equal(*deadline):
		e.mu.Unlock()
		return false, nil
	}

	prev := e.state.Clone()
	if deadline == nil {
		e.state.RelockDeadline = nil
	} else {
		d := *deadline
		e.state.RelockDeadline = &d
	}
	e.state.Version++
	s.notify(e, notification{prev: prev, next: e.state.Clone()})
	return true, nil
}

// Read returns a copy of the device's state.
func (s *Store) Read(id string) (State, error) {
	e := s.slot(id, false)
	if e == nil {
		return State{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.exists {
		return State{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return e.state.Clone(), nil
}

// List returns every known device sorted by id.
func (s *Store) List() []State {
	return s.collect(func(State) bool { return true })
}

// ListByKind returns devices of kind k sorted by id.
func (s *Store) ListByKind(k Kind) []State {
	return s.collect(func(st State) bool { return st.Kind == k })
}

// CountByKind returns how many devices of each kind are known.
func (s *Store) CountByKind() map[Kind]int {
	counts := make(map[Kind]int, len(AllKinds))
	for _, k := range AllKinds {
		counts[k] = 0
	}
	for _, st := range s.List() {
		counts[st.Kind]++
	}
	return counts
}

func (s *Store) collect(keep func(State) bool) []State {
	s.mu.RLock()
	slots := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		slots = append(slots, e)
	}
	s.mu.RUnlock()

	out := make([]State, 0, len(slots))
	for _, e := range slots {
		e.mu.Lock()
		if e.exists && keep(e.state) {
			out = append(out, e.state.Clone())
		}
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// AppendEvent records ev in the device's event ring.
//
// ID is generated and a zero Timestamp is replaced with the current time.
// Appending to a device with no state does not create state.
func (s *Store) AppendEvent(ev Event) (Event, error) {
	if ev.DeviceID == "" {
		return Event{}, ErrInvalidDeviceID
	}
	if !ev.Kind.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidKind, ev.Kind)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("device: event type is required")
	}
	if ev.ID == "" {
		ev.ID = "evt-" + uuid.NewString()[:8]
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.clock.Now()
	}

	e := s.slot(ev.DeviceID, true)
	e.mu.Lock()
	e.events = append(e.events, ev)
	if over := len(e.events) - s.eventBuffer; over > 0 {
		e.events = append(e.events[:0:0], e.events[over:]...)
	}
	s.notify(e, notification{event: &ev})
	return ev, nil
}

// notify queues n and releases e.mu, which the caller must hold. If no
// drainer is running for e, the caller becomes it and delivers until the
// queue is empty.
func (s *Store) notify(e *entry, n notification) {
	e.pending = append(e.pending, n)
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true

	for {
		batch := e.pending
		e.pending = nil
		if len(batch) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()

		observers := s.snapshotObservers()
		for _, n := range batch {
			for _, o := range observers {
				if n.event != nil {
					o.EventAppended(*n.event)
				} else {
					o.StateChanged(n.prev, n.next.Clone())
				}
			}
		}
		e.mu.Lock()
	}
}

// Events returns up to limit of the device's most recent events, newest
// first. limit <= 0 means DefaultEventLimit; it is capped at MaxEventLimit.
func (s *Store) Events(id string, limit int) []Event {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}

	e := s.slot(id, false)
	if e == nil {
		return []Event{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n := min(limit, len(e.events))
	out := make([]Event, 0, n)
	for i := len(e.events) - 1; i >= len(e.events)-n; i-- {
		out = append(out, e.events[i])
	}
	return out
}
