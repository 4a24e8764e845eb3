package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hub/internal/clock"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// Defaults.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// Store is the subset of device.Store the adapter writes to.
type Store interface {
	Upsert(id string, kind device.Kind, partial map[string]any, ts time.Time) (device.State, error)
	AppendEvent(ev device.Event) (device.Event, error)
}

// Subscriber registers the adapter's handler on the bus.
type Subscriber interface {
	SubscribeAll(filters []string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface used by the Adapter.
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

// Options configures an Adapter. Store is required.
type Options struct {
	Store      Store
	Subscriber Subscriber
	Clock      clock.Clock
	QoS        byte
	Workers    int
	QueueSize  int
}

// Message is a bus message waiting for a worker.
type Message struct {
	Route    Route
	Payload  []byte
	Received time.Time
}

// Stats are cumulative message counters.
type Stats struct {
	Received  uint64 `json:"received"`
	Processed uint64 `json:"processed"`
	Malformed uint64 `json:"malformed"`
	Ignored   uint64 `json:"ignored"`
	Rejected  uint64 `json:"rejected"`
	Dropped   uint64 `json:"dropped"`
}

// Adapter routes bus messages into the device store.
type Adapter struct {
	store     Store
	sub       Subscriber
	clock     clock.Clock
	qos       byte
	workers   int
	queueSize int
	logger    Logger

	mu     sync.RWMutex
	shards []chan Message
	done   <-chan struct{}

	received  atomic.Uint64
	processed atomic.Uint64
	malformed atomic.Uint64
	ignored   atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64
}

// New creates an Adapter. It processes messages synchronously until Run
// starts the workers.
func New(opts Options) *Adapter {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Adapter{
		store:     opts.Store,
		sub:       opts.Subscriber,
		clock:     opts.Clock,
		qos:       opts.QoS,
		workers:   opts.Workers,
		queueSize: opts.QueueSize,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger Logger) {
	a.logger = logger
}

// Run starts the workers, subscribes to the ingest filters, and blocks
// until ctx is cancelled. Queued messages are drained before it returns.
//
// Returns:
//   - error: subscription failure, or nil on clean shutdown
func (a *Adapter) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shards := make([]chan Message, a.workers)
	for i := range shards {
		shards[i] = make(chan Message, a.queueSize)
	}

	a.mu.Lock()
	if a.shards != nil {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.shards = shards
	a.done = ctx.Done()
	a.mu.Unlock()

	defer a.stop(shards)

	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range shards {
		i, ch := i, ch
		g.Go(func() error {
			a.work(gctx, i, ch)
			return nil
		})
	}

	if a.sub != nil {
		filters := mqtt.Topics{}.IngestFilters()
		if err := a.sub.SubscribeAll(filters, a.qos, a.OnMessage); err != nil {
			cancel()
			g.Wait() //nolint:errcheck // workers never return errors
			return fmt.Errorf("subscribing ingest topics: %w", err)
		}
		a.logger.Info("ingest subscribed", "filters", filters, "workers", a.workers)
	}

	return g.Wait()
}

func (a *Adapter) work(ctx context.Context, id int, ch <-chan Message) {
	for {
		select {
		case msg := <-ch:
			a.handle(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-ch:
					a.handle(msg)
				default:
					a.logger.Debug("ingest worker stopped", "worker", id)
					return
				}
			}
		}
	}
}

// OnMessage is the bus handler. It never returns an error; bad messages
// are counted and logged.
func (a *Adapter) OnMessage(topic string, payload []byte) error {
	a.received.Add(1)

	route, err := ParseTopic(topic)
	if err != nil {
		if errors.Is(err, ErrUnknownDomain) {
			a.ignored.Add(1)
			a.logger.Debug("ignoring topic", "topic", topic)
			return nil
		}
		a.malformed.Add(1)
		a.logger.Warn("malformed topic", "topic", topic, "error", err)
		return nil
	}
	if route.Channel == ChannelCmd {
		a.ignored.Add(1)
		return nil
	}

	msg := Message{
		Route:    route,
		Payload:  append([]byte(nil), payload...),
		Received: a.clock.Now(),
	}

	// The read lock is held across the send so stop cannot detach the
	// shards while a message is on its way in.
	a.mu.RLock()
	shards, done := a.shards, a.done
	if shards == nil {
		a.mu.RUnlock()
		a.handle(msg)
		return nil
	}

	select {
	case <-done:
		a.dropped.Add(1)
		a.logger.Warn("ingest stopping, message dropped", "topic", topic)
		a.mu.RUnlock()
		return nil
	default:
	}

	select {
	case shards[shardFor(route.DeviceID, len(shards))] <- msg:
	case <-done:
		a.dropped.Add(1)
		a.logger.Warn("ingest stopping, message dropped", "topic", topic)
	}
	a.mu.RUnlock()
	return nil
}

// stop detaches the shards once the workers have exited. Anything still
// queued arrived after its worker drained and is counted as dropped.
func (a *Adapter) stop(shards []chan Message) {
	a.mu.Lock()
	a.shards = nil
	a.done = nil
	a.mu.Unlock()

	var left uint64
	for _, ch := range shards {
		for len(ch) > 0 {
			<-ch
			left++
		}
	}
	if left > 0 {
		a.dropped.Add(left)
		a.logger.Warn("ingest stopped with queued messages", "dropped", left)
	}
}

func shardFor(deviceID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(deviceID)) //nolint:errcheck // hash writes never fail
	return int(h.Sum32() % uint32(n))
}

// HandleMessage decodes msg and applies it to the store.
//
// Returns:
//   - error: ErrMalformedPayload, or the store's rejection
func (a *Adapter) HandleMessage(msg Message) error {
	if msg.Received.IsZero() {
		msg.Received = a.clock.Now()
	}

	switch msg.Route.Channel {
	case ChannelState:
		partial, ts, err := DecodeState(msg.Route.Kind, msg.Payload)
		if err != nil {
			return err
		}
		if ts.IsZero() {
			ts = msg.Received
		}
		if _, err := a.store.Upsert(msg.Route.DeviceID, msg.Route.Kind, partial, ts); err != nil {
			return err
		}

	case ChannelEvent:
		ev, err := DecodeEvent(msg.Route, msg.Payload)
		if err != nil {
			return err
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = msg.Received
		}
		if _, err := a.store.AppendEvent(ev); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: channel %q", ErrMalformedTopic, msg.Route.Channel)
	}
	return nil
}

func (a *Adapter) handle(msg Message) {
	err := a.HandleMessage(msg)
	switch {
	case err == nil:
		a.processed.Add(1)
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrMalformedTopic):
		a.malformed.Add(1)
		a.logger.Warn("malformed message dropped",
			"device_id", msg.Route.DeviceID, "channel", msg.Route.Channel, "error", err)
	case errors.Is(err, device.ErrStaleUpdate):
		a.rejected.Add(1)
		a.logger.Debug("stale update dropped", "device_id", msg.Route.DeviceID, "error", err)
	default:
		a.rejected.Add(1)
		a.logger.Warn("store rejected message",
			"device_id", msg.Route.DeviceID, "channel", msg.Route.Channel, "error", err)
	}
}

// Stats returns a snapshot of the counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		Received:  a.received.Load(),
		Processed: a.processed.Load(),
		Malformed: a.malformed.Load(),
		Ignored:   a.ignored.Load(),
		Rejected:  a.rejected.Load(),
		Dropped:   a.dropped.Load(),
	}
}

// Running reports whether the workers are active.
func (a *Adapter) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.shards != nil
}
