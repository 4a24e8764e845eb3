package relock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/clock"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// lockRecorder is a LockFunc that records calls and applies the lock to
// the store, standing in for the dispatcher plus the device round-trip.
type lockRecorder struct {
	mu    sync.Mutex
	calls []string
	store *device.Store
	err   error
}

func (r *lockRecorder) lock(_ context.Context, id string) error {
	r.mu.Lock()
	r.calls = append(r.calls, id)
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	_, err = r.store.Upsert(id, device.KindLock, map[string]any{device.AttrLocked: true, device.AttrLastMethod: "AUTO"}, time.Time{})
	return err
}

func (r *lockRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fixture struct {
	clk   *clock.FakeClock
	store *device.Store
	rec   *lockRecorder
	sched *Scheduler
}

func newFixture(t *testing.T, observe bool) *fixture {
	t.Helper()
	clk := clock.Fake(t0)
	store := device.NewStore(device.Config{Clock: clk})
	rec := &lockRecorder{store: store}
	sched := New(Options{Store: store, Lock: rec.lock, Clock: clk, Delay: 5 * time.Second})
	if observe {
		store.AddObserver(sched)
	}
	return &fixture{clk: clk, store: store, rec: rec, sched: sched}
}

func (f *fixture) setLocked(t *testing.T, id string, locked bool) {
	t.Helper()
	if _, err := f.store.Upsert(id, device.KindLock, map[string]any{device.AttrLocked: locked}, time.Time{}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func TestFire_LocksWhenStillUnlocked(t *testing.T) {
	f := newFixture(t, true)
	f.setLocked(t, "FRONT_DOOR", false)

	deadline := f.sched.Arm("FRONT_DOOR", 0)
	if !deadline.Equal(t0.Add(5 * time.Second)) {
		t.Errorf("deadline = %v", deadline)
	}
	st, _ := f.store.Read("FRONT_DOOR") //nolint:errcheck // exists
	if st.RelockDeadline == nil || !st.RelockDeadline.Equal(deadline) {
		t.Errorf("store deadline = %v, want %v", st.RelockDeadline, deadline)
	}

	f.clk.Advance(4 * time.Second)
	if f.rec.count() != 0 {
		t.Fatal("fired early")
	}
	f.clk.Advance(time.Second)

	if f.rec.count() != 1 {
		t.Fatalf("lock calls = %d, want 1", f.rec.count())
	}
	st, _ = f.store.Read("FRONT_DOOR") //nolint:errcheck // exists
	if !mustBool(st, device.AttrLocked) || st.RelockDeadline != nil {
		t.Errorf("after fire: locked=%v deadline=%v", mustBool(st, device.AttrLocked), st.RelockDeadline)
	}
	if len(f.sched.Active()) != 0 || f.sched.Fired() != 1 {
		t.Errorf("Active() = %v, Fired() = %d", f.sched.Active(), f.sched.Fired())
	}
}

// Unlock at t=0, manual lock at t=4 that does not reach the scheduler,
// timer at t=5 must be a no-op.
func TestFire_ManualLockRaceIsNoOp(t *testing.T) {
	f := newFixture(t, false)
	f.setLocked(t, "FRONT_DOOR", false)
	f.sched.Arm("FRONT_DOOR", 5*time.Second)

	f.clk.Advance(4 * time.Second)
	f.setLocked(t, "FRONT_DOOR", true)
	before, _ := f.store.Read("FRONT_DOOR") //nolint:errcheck // exists

	f.clk.Advance(time.Second)

	if f.rec.count() != 0 {
		t.Errorf("lock calls = %d, want 0", f.rec.count())
	}
	after, _ := f.store.Read("FRONT_DOOR") //nolint:errcheck // exists
	if after.Version != before.Version || !mustBool(after, device.AttrLocked) {
		t.Errorf("state changed by stale timer: %+v", after)
	}
	if f.sched.Fired() != 0 {
		t.Errorf("Fired() = %d", f.sched.Fired())
	}
}

func TestObserver_LockTransitionCancels(t *testing.T) {
	f := newFixture(t, true)
	f.setLocked(t, "FRONT_DOOR", false)
	f.sched.Arm("FRONT_DOOR", 5*time.Second)

	f.clk.Advance(4 * time.Second)
	f.setLocked(t, "FRONT_DOOR", true)

	if _, ok := f.sched.Deadline("FRONT_DOOR"); ok {
		t.Error("timer still armed after lock transition")
	}
	if f.clk.Pending() != 0 {
		t.Errorf("fake clock pending = %d, want 0", f.clk.Pending())
	}
	f.clk.Advance(time.Minute)
	if f.rec.count() != 0 {
		t.Errorf("lock calls = %d", f.rec.count())
	}
}

// The unlock command is dispatched while the store still says locked;
// the deadline appears once the device reports the unlock.
func TestArm_BeforeDeviceConfirmsUnlock(t *testing.T) {
	f := newFixture(t, true)
	f.setLocked(t, "FRONT_DOOR", true)

	deadline := f.sched.Arm("FRONT_DOOR", 5*time.Second)
	st, _ := f.store.Read("FRONT_DOOR") //nolint:errcheck // exists
	if st.RelockDeadline != nil {
		t.Fatal("deadline recorded on a locked lock")
	}

	// A stale locked report must not cancel.
	f.setLocked(t, "FRONT_DOOR", true)
	if _, ok := f.sched.Deadline("FRONT_DOOR"); !ok {
		t.Fatal("stale locked report cancelled the timer")
	}

	f.clk.Advance(time.Second)
	f.setLocked(t, "FRONT_DOOR", false)
	st, _ = f.store.Read("FRONT_DOOR") //nolint:errcheck // exists
	if st.RelockDeadline == nil || !st.RelockDeadline.Equal(deadline) {
		t.Errorf("deadline after unlock report = %v, want %v", st.RelockDeadline, deadline)
	}

	f.clk.Advance(4 * time.Second)
	if f.rec.count() != 1 {
		t.Errorf("lock calls = %d, want 1", f.rec.count())
	}
}

func TestArm_ForUnknownDevice(t *testing.T) {
	f := newFixture(t, true)
	f.sched.Arm("NEW_LOCK", 5*time.Second)

	f.setLocked(t, "NEW_LOCK", false)
	st, _ := f.store.Read("NEW_LOCK") //nolint:errcheck // exists
	if st.RelockDeadline == nil {
		t.Error("deadline not mirrored when device first appeared unlocked")
	}
}

func TestArm_ReplacesPending(t *testing.T) {
	f := newFixture(t, true)
	f.setLocked(t, "FRONT_DOOR", false)

	f.sched.Arm("FRONT_DOOR", 5*time.Second)
	f.clk.Advance(3 * time.Second)
	second := f.sched.Arm("FRONT_DOOR", 5*time.Second)

	if f.clk.Pending() != 1 {
		t.Errorf("pending timers = %d, want 1", f.clk.Pending())
	}
	f.clk.Advance(3 * time.Second) // t=6: first deadline passed
	if f.rec.count() != 0 {
		t.Fatal("replaced timer fired")
	}
	st, _ := f.store.Read("FRONT_DOOR") //nolint:errcheck // exists
	if st.RelockDeadline == nil || !st.RelockDeadline.Equal(second) {
		t.Errorf("deadline = %v, want %v", st.RelockDeadline, second)
	}
	f.clk.Advance(2 * time.Second)
	if f.rec.count() != 1 {
		t.Errorf("lock calls = %d, want 1", f.rec.count())
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, true)
	f.setLocked(t, "FRONT_DOOR", false)

	f.sched.Cancel("FRONT_DOOR") // nothing armed
	f.sched.Cancel("NOPE")

	f.sched.Arm("FRONT_DOOR", 5*time.Second)
	f.sched.Cancel("FRONT_DOOR")

	st, _ := f.store.Read("FRONT_DOOR") //nolint:errcheck // exists
	if st.RelockDeadline != nil {
		t.Error("deadline not cleared by Cancel")
	}
	f.clk.Advance(time.Minute)
	if f.rec.count() != 0 {
		t.Errorf("lock calls = %d after Cancel", f.rec.count())
	}
}

func TestFire_FailureRearms(t *testing.T) {
	f := newFixture(t, true)
	f.setLocked(t, "FRONT_DOOR", false)
	f.rec.err = errors.New("broker down")

	f.sched.Arm("FRONT_DOOR", 5*time.Second)
	f.clk.Advance(5 * time.Second)

	if f.rec.count() != 1 {
		t.Fatalf("lock calls = %d", f.rec.count())
	}
	if _, ok := f.sched.Deadline("FRONT_DOOR"); !ok {
		t.Fatal("timer not re-armed after failed lock")
	}

	f.rec.mu.Lock()
	f.rec.err = nil
	f.rec.mu.Unlock()
	f.clk.Advance(5 * time.Second)
	if f.rec.count() != 2 {
		t.Errorf("lock calls = %d, want 2", f.rec.count())
	}
}

func TestClose_StopsTimers(t *testing.T) {
	f := newFixture(t, true)
	f.setLocked(t, "A", false)
	f.setLocked(t, "B", false)
	f.sched.Arm("A", time.Second)
	f.sched.Arm("B", time.Second)
	if got := f.sched.Active(); len(got) != 2 || got[0] != "A" {
		t.Fatalf("Active() = %v", got)
	}

	f.sched.Close()
	f.sched.Arm("A", time.Second)
	f.clk.Advance(time.Minute)

	if f.rec.count() != 0 || len(f.sched.Active()) != 0 {
		t.Errorf("calls=%d active=%v after Close", f.rec.count(), f.sched.Active())
	}
}

func TestObserver_IgnoresOtherKinds(t *testing.T) {
	f := newFixture(t, true)
	f.sched.Arm("HALL", time.Second)
	if _, err := f.store.Upsert("HALL", device.KindLight, map[string]any{"power": true}, time.Time{}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, ok := f.sched.Deadline("HALL"); !ok {
		t.Error("non-lock state change affected timer")
	}
}

func mustBool(st device.State, key string) bool {
	v, _ := st.Bool(key)
	return v
}

// readHookStore runs onRead once, before the wrapped Read returns.
type readHookStore struct {
	*device.Store
	onRead func()
}

func (s *readHookStore) Read(id string) (device.State, error) {
	st, err := s.Store.Read(id)
	if hook := s.onRead; hook != nil {
		s.onRead = nil
		hook()
	}
	return st, err
}

// A fresh unlock re-arms the timer while the old one is checking the
// store. The old timer must not lock, and the new one must survive.
func TestFire_RearmDuringCheckSupersedes(t *testing.T) {
	tests := []struct {
		name      string
		during    func(s *Scheduler)
		wantCalls int
		wantArmed bool
	}{
		{"rearm", func(s *Scheduler) { s.Arm("FRONT_DOOR", 10*time.Second) }, 1, false},
		{"cancel", func(s *Scheduler) { s.Cancel("FRONT_DOOR") }, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.Fake(t0)
			inner := device.NewStore(device.Config{Clock: clk})
			store := &readHookStore{Store: inner}
			rec := &lockRecorder{store: inner}
			sched := New(Options{Store: store, Lock: rec.lock, Clock: clk, Delay: 5 * time.Second})
			inner.AddObserver(sched)
			if _, err := inner.Upsert("FRONT_DOOR", device.KindLock, map[string]any{device.AttrLocked: false}, time.Time{}); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			sched.Arm("FRONT_DOOR", 5*time.Second)
			store.onRead = func() { tt.during(sched) }
			clk.Advance(5 * time.Second)

			if rec.count() != 0 || sched.Fired() != 0 {
				t.Fatalf("superseded timer fired: calls=%d fired=%d", rec.count(), sched.Fired())
			}

			clk.Advance(10 * time.Second)
			if rec.count() != tt.wantCalls {
				t.Errorf("lock calls = %d, want %d", rec.count(), tt.wantCalls)
			}
			if _, ok := sched.Deadline("FRONT_DOOR"); ok != tt.wantArmed {
				t.Errorf("armed = %v, want %v", ok, tt.wantArmed)
			}
		})
	}
}
