package history

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// DefaultQueueSize bounds the recorder's pending writes.
const DefaultQueueSize = 1024

const writeTimeout = 5 * time.Second

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// record is one queued write. Exactly one of state or event is set.
type record struct {
	state *device.State
	event *device.Event
}

// RecorderStats are cumulative write counters.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Recorder persists store changes through a Repository. It implements
// device.Observer; observer calls never block.
type Recorder struct {
	repo   Repository
	queue  chan record
	logger Logger

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(repo Repository, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan record, queueSize),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// StateChanged queues a snapshot of next.
func (r *Recorder) StateChanged(_, next device.State) {
	st := next.Clone()
	r.enqueue(record{state: &st})
}

// EventAppended queues ev.
func (r *Recorder) EventAppended(ev device.Event) {
	r.enqueue(record{event: &ev})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
		r.logger.Warn("history queue full, record dropped")
	}
}

// Run writes queued records until ctx is cancelled, then flushes what
// is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec record) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var err error
	switch {
	case rec.state != nil:
		err = r.repo.RecordSnapshot(ctx, *rec.state)
	case rec.event != nil:
		err = r.repo.RecordEvent(ctx, *rec.event)
	}
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("history write failed", "error", err)
		return
	}
	r.written.Add(1)
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
	}
}
