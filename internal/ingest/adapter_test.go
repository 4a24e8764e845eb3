package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/clock"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSubscriber captures the handler the adapter registers.
type fakeSubscriber struct {
	err        error
	filters    []string
	qos        byte
	handler    mqtt.MessageHandler
	subscribed chan struct{}
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: make(chan struct{})}
}

func (f *fakeSubscriber) SubscribeAll(filters []string, qos byte, handler mqtt.MessageHandler) error {
	if f.err != nil {
		return f.err
	}
	f.filters = filters
	f.qos = qos
	f.handler = handler
	close(f.subscribed)
	return nil
}

func newTestAdapter(t *testing.T, sub Subscriber) (*Adapter, *device.Store) {
	t.Helper()
	clk := clock.Fake(t0)
	store := device.NewStore(device.Config{Clock: clk})
	a := New(Options{Store: store, Subscriber: sub, Clock: clk, QoS: 1, Workers: 3, QueueSize: 8})
	return a, store
}

// runAdapter starts Run and waits for the subscription. The returned func
// stops the adapter and waits for Run to return.
func runAdapter(t *testing.T, a *Adapter, sub *fakeSubscriber) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	select {
	case <-sub.subscribed:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("adapter did not subscribe")
	}

	return func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return")
			return nil
		}
	}
}

func TestAdapter_SyncWhenNotRunning(t *testing.T) {
	a, store := newTestAdapter(t, nil)

	if err := a.OnMessage("home/lock/FRONT_DOOR/state", []byte(`{"locked": false, "method": "PIN", "actor": "alice"}`)); err != nil {
		t.Fatalf("OnMessage() error = %v", err)
	}

	st, err := store.Read("FRONT_DOOR")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !st.IsUnlockedLock() {
		t.Errorf("lock state = %v, want unlocked", st.Attributes)
	}
	if m, _ := st.String(device.AttrLastMethod); m != "PIN" {
		t.Errorf("last_method = %q, want PIN", m)
	}
	if b, _ := st.Number(device.AttrBattery); b != 100 {
		t.Errorf("battery = %v, want default 100", b)
	}
	if !st.UpdatedAt.Equal(t0) {
		t.Errorf("UpdatedAt = %v, want receive time %v", st.UpdatedAt, t0)
	}
}

func TestAdapter_NeverReturnsErrors(t *testing.T) {
	a, store := newTestAdapter(t, nil)

	msgs := []struct {
		topic   string
		payload string
	}{
		{"home/lock/FRONT_DOOR/state", `{not json`},
		{"home/lock/FRONT_DOOR/state", `{"locked": 1}`},
		{"garbage", `{}`},
		{"home/air_conditioner/AC1/state", `{"on": true}`},
		{"home/hub/status", `{"status": "online"}`},
		{"home/lock/FRONT_DOOR/cmd", `{"action": "lock"}`},
	}
	for _, m := range msgs {
		if err := a.OnMessage(m.topic, []byte(m.payload)); err != nil {
			t.Errorf("OnMessage(%s) error = %v, want nil", m.topic, err)
		}
	}

	stats := a.Stats()
	if stats.Received != 6 || stats.Malformed != 3 || stats.Ignored != 3 || stats.Processed != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
	if _, err := store.Read("FRONT_DOOR"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Read() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestAdapter_RejectedKindMismatch(t *testing.T) {
	a, store := newTestAdapter(t, nil)

	if _, err := store.Upsert("GARAGE", device.KindLight, nil, t0); err != nil {
		t.Fatal(err)
	}
	a.OnMessage("home/lock/GARAGE/state", []byte(`{"locked": true}`)) //nolint:errcheck // always nil

	if got := a.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestAdapter_EventAppended(t *testing.T) {
	a, store := newTestAdapter(t, nil)

	a.OnMessage("home/lock/FRONT_DOOR/event", //nolint:errcheck // always nil
		[]byte(`{"type": "unlock", "method": "PIN", "actor": "alice", "detail": "keypad", "ts": "2026-03-01T11:59:00"}`))

	events := store.Events("FRONT_DOOR", 0)
	if len(events) != 1 {
		t.Fatalf("Events() len = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != "unlock" || ev.Actor != "alice" || ev.Detail != "keypad" {
		t.Errorf("event = %+v", ev)
	}
	if want := t0.Add(-time.Minute); !ev.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestAdapter_RunSubscribesIngestFilters(t *testing.T) {
	sub := newFakeSubscriber()
	a, _ := newTestAdapter(t, sub)
	stop := runAdapter(t, a, sub)

	if !a.Running() {
		t.Error("Running() = false while Run is active")
	}
	if err := stop(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if a.Running() {
		t.Error("Running() = true after Run returned")
	}

	want := mqtt.Topics{}.IngestFilters()
	if len(sub.filters) != len(want) {
		t.Fatalf("filters = %v, want %v", sub.filters, want)
	}
	for i := range want {
		if sub.filters[i] != want[i] {
			t.Errorf("filters[%d] = %q, want %q", i, sub.filters[i], want[i])
		}
	}
	if sub.qos != 1 {
		t.Errorf("qos = %d, want 1", sub.qos)
	}
}

func TestAdapter_RunPreservesPerDeviceOrder(t *testing.T) {
	sub := newFakeSubscriber()
	a, store := newTestAdapter(t, sub)
	stop := runAdapter(t, a, sub)

	const n = 200
	devices := []string{"FRONT_DOOR", "BACK_DOOR", "GARAGE", "SHED"}
	for i := 0; i < n; i++ {
		for _, id := range devices {
			topic := mqtt.Topics{}.LockState(id)
			payload := fmt.Sprintf(`{"battery": %d}`, i)
			if err := sub.handler(topic, []byte(payload)); err != nil {
				t.Fatalf("handler error = %v", err)
			}
		}
	}

	if err := stop(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, id := range devices {
		st, err := store.Read(id)
		if err != nil {
			t.Fatalf("Read(%s) error = %v", id, err)
		}
		if b, _ := st.Number(device.AttrBattery); b != n-1 {
			t.Errorf("%s battery = %v, want %d", id, b, n-1)
		}
		if st.Version != n {
			t.Errorf("%s Version = %d, want %d", id, st.Version, n)
		}
	}
	if got := a.Stats().Processed; got != uint64(n*len(devices)) {
		t.Errorf("Processed = %d, want %d", got, n*len(devices))
	}
}

func TestAdapter_RunSubscribeFailure(t *testing.T) {
	sub := newFakeSubscriber()
	sub.err = mqtt.ErrNotConnected
	a, _ := newTestAdapter(t, sub)

	err := a.Run(context.Background())
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("Run() error = %v, want ErrNotConnected", err)
	}
	if a.Running() {
		t.Error("Running() = true after failed Run")
	}
}

func TestAdapter_RunTwice(t *testing.T) {
	sub := newFakeSubscriber()
	a, _ := newTestAdapter(t, sub)
	stop := runAdapter(t, a, sub)
	defer stop() //nolint:errcheck // checked elsewhere

	if err := a.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestShardFor_Stable(t *testing.T) {
	for _, id := range []string{"FRONT_DOOR", "LIVING_ROOM", "x"} {
		first := shardFor(id, 4)
		if first < 0 || first >= 4 {
			t.Fatalf("shardFor(%q) = %d out of range", id, first)
		}
		for i := 0; i < 10; i++ {
			if got := shardFor(id, 4); got != first {
				t.Fatalf("shardFor(%q) = %d, then %d", id, first, got)
			}
		}
	}
}

// attachShards installs queues as Run would, without starting workers.
func attachShards(a *Adapter, n, size int, done <-chan struct{}) []chan Message {
	shards := make([]chan Message, n)
	for i := range shards {
		shards[i] = make(chan Message, size)
	}
	a.mu.Lock()
	a.shards = shards
	a.done = done
	a.mu.Unlock()
	return shards
}

func TestAdapter_ShutdownAccountsEveryMessage(t *testing.T) {
	tests := []struct {
		name        string
		stopping    bool
		msgs        int
		wantQueued  int
		wantDropped uint64
	}{
		{"running queues", false, 3, 3, 0},
		{"stopping drops instead of queueing", true, 3, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAdapter(t, nil)
			done := make(chan struct{})
			if tt.stopping {
				close(done)
			}
			shards := attachShards(a, 1, 8, done)

			for i := 0; i < tt.msgs; i++ {
				a.OnMessage("home/lock/FRONT_DOOR/state", []byte(`{"locked": true}`)) //nolint:errcheck // always nil
			}

			if got := len(shards[0]); got != tt.wantQueued {
				t.Errorf("queued = %d, want %d", got, tt.wantQueued)
			}
			if got := a.Stats().Dropped; got != tt.wantDropped {
				t.Errorf("Dropped = %d, want %d", got, tt.wantDropped)
			}
		})
	}
}

// Messages left in a queue after its worker drained are counted, not lost.
func TestAdapter_StopCountsLeftovers(t *testing.T) {
	a, _ := newTestAdapter(t, nil)
	shards := attachShards(a, 2, 8, make(chan struct{}))
	shards[0] <- Message{}
	shards[1] <- Message{}
	shards[1] <- Message{}

	a.stop(shards)

	if a.Running() {
		t.Error("Running() = true after stop")
	}
	if got := a.Stats().Dropped; got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
	for i, ch := range shards {
		if len(ch) != 0 {
			t.Errorf("shard %d still holds %d messages", i, len(ch))
		}
	}
}
