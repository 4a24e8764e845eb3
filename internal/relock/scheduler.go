package relock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/clock"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// Defaults.
const (
	DefaultDelay       = 30 * time.Second
	defaultFireTimeout = 10 * time.Second
)

// StateStore is the subset of device.Store the scheduler needs.
type StateStore interface {
	Read(id string) (device.State, error)
	SetRelockDeadline(id string, deadline *time.Time) (bool, error)
}

// LockFunc issues the automatic lock command.
type LockFunc func(ctx context.Context, lockID string) error

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Scheduler. Store and Lock are required.
type Options struct {
	Store StateStore
	Lock  LockFunc
	Clock clock.Clock

	// Delay is used when Arm is called with a non-positive delay.
	Delay time.Duration

	// FireTimeout bounds each automatic lock command.
	FireTimeout time.Duration
}

type pending struct {
	gen      uint64
	timer    clock.Timer
	deadline time.Time
}

// Scheduler owns the relock timers. It implements device.Observer.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*pending
	gen     uint64
	closed  bool

	store       StateStore
	lock        LockFunc
	clock       clock.Clock
	delay       time.Duration
	fireTimeout time.Duration
	logger      Logger

	// fired counts automatic lock commands issued.
	fired uint64
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.FireTimeout <= 0 {
		opts.FireTimeout = defaultFireTimeout
	}
	return &Scheduler{
		pending:     make(map[string]*pending),
		store:       opts.Store,
		lock:        opts.Lock,
		clock:       opts.Clock,
		delay:       opts.Delay,
		fireTimeout: opts.FireTimeout,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Delay returns the default relock delay.
func (s *Scheduler) Delay() time.Duration { return s.delay }

// Arm starts the relock timer for lockID, replacing any pending one.
// A non-positive delay uses the configured default.
//
// The deadline is mirrored onto the lock's state if the lock is
// currently unlocked. Otherwise it is applied when the device reports
// the unlock.
func (s *Scheduler) Arm(lockID string, delay time.Duration) time.Time {
	if delay <= 0 {
		delay = s.delay
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return time.Time{}
	}
	if old := s.pending[lockID]; old != nil {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	deadline := s.clock.Now().Add(delay)
	p := &pending{gen: gen, deadline: deadline}
	s.pending[lockID] = p
	// AfterFunc never runs f inline, so holding mu here cannot deadlock.
	p.timer = s.clock.AfterFunc(delay, func() { s.fire(lockID, gen) })
	s.mu.Unlock()

	s.logger.Debug("relock armed", "lock_id", lockID, "delay", delay.String())
	s.mirrorDeadline(lockID, &deadline)
	return deadline
}

// Cancel stops the pending timer for lockID and clears any recorded
// deadline. It is a no-op when nothing is armed.
func (s *Scheduler) Cancel(lockID string) {
	if s.drop(lockID) {
		s.logger.Debug("relock cancelled", "lock_id", lockID)
	}
	s.mirrorDeadline(lockID, nil)
}

// drop removes and stops the pending timer. Reports whether one existed.
func (s *Scheduler) drop(lockID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending[lockID]
	if p == nil {
		return false
	}
	p.timer.Stop()
	delete(s.pending, lockID)
	return true
}

// Deadline returns the pending deadline for lockID.
func (s *Scheduler) Deadline(lockID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.pending[lockID]; p != nil {
		return p.deadline, true
	}
	return time.Time{}, false
}

// Active returns the ids of locks with a pending timer, sorted.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Fired returns how many automatic lock commands have been issued.
func (s *Scheduler) Fired() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Close stops every timer. Later Arm calls are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
}

func (s *Scheduler) fire(lockID string, gen uint64) {
	s.mu.Lock()
	p := s.pending[lockID]
	if s.closed || p == nil || p.gen != gen {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Re-check against the store: a manual lock may have landed after
	// the timer was scheduled but before it could be cancelled.
	st, err := s.store.Read(lockID)
	if err != nil || !st.IsUnlockedLock() {
		s.logger.Debug("relock skipped, lock not unlocked", "lock_id", lockID)
		s.mu.Lock()
		if s.pending[lockID] == p {
			delete(s.pending, lockID)
		}
		s.mu.Unlock()
		return
	}

	// A fresh Arm or Cancel during the read supersedes this timer.
	s.mu.Lock()
	if s.closed || s.pending[lockID] != p {
		s.mu.Unlock()
		s.logger.Debug("relock skipped, superseded", "lock_id", lockID)
		return
	}
	delete(s.pending, lockID)
	s.fired++
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.fireTimeout)
	defer cancel()

	s.logger.Info("auto relock firing", "lock_id", lockID)
	if err := s.lock(ctx, lockID); err != nil {
		s.logger.Warn("auto relock failed, re-arming", "lock_id", lockID, "error", err)
		s.Arm(lockID, s.delay)
	}
}

func (s *Scheduler) mirrorDeadline(lockID string, deadline *time.Time) {
	if _, err := s.store.SetRelockDeadline(lockID, deadline); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		s.logger.Warn("relock deadline not recorded", "lock_id", lockID, "error", err)
	}
}

// StateChanged cancels the timer when a lock transitions to locked, and
// mirrors a pending deadline onto a lock that has just reported unlocked.
func (s *Scheduler) StateChanged(prev, next device.State) {
	if next.Kind != device.KindLock {
		return
	}

	nowLocked, _ := next.Bool(device.AttrLocked)
	if nowLocked {
		wasLocked, _ := prev.Bool(device.AttrLocked)
		// Only a real unlocked→locked transition cancels. A stale
		// "still locked" report arriving before the device applies an
		// unlock command must leave the timer armed.
		if prev.Version > 0 && !wasLocked && s.drop(next.DeviceID) {
			s.logger.Debug("relock cancelled by lock transition", "lock_id", next.DeviceID)
		}
		return
	}

	if next.RelockDeadline != nil {
		return
	}
	if deadline, ok := s.Deadline(next.DeviceID); ok {
		s.mirrorDeadline(next.DeviceID, &deadline)
	}
}

// EventAppended implements device.Observer.
func (s *Scheduler) EventAppended(device.Event) {}

var _ device.Observer = (*Scheduler)(nil)
