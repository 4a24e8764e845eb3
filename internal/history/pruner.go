package history

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/clock"
)

// PrunerStats are cumulative prune counters.
type PrunerStats struct {
	Passes  uint64 `json:"passes"`
	Deleted int64  `json:"deleted"`
	Failed  uint64 `json:"failed"`
}

// Pruner trims history older than the retention window on a fixed
// interval. A pass also runs as soon as Run starts.
type Pruner struct {
	repo      Repository
	clock     clock.Clock
	retention time.Duration
	interval  time.Duration
	logger    Logger

	passes  atomic.Uint64
	deleted atomic.Int64
	failed  atomic.Uint64
}

// NewPruner creates a Pruner. A non-positive retention makes Run a no-op.
func NewPruner(repo Repository, clk clock.Clock, retention, interval time.Duration) *Pruner {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{
		repo:      repo,
		clock:     clk,
		retention: retention,
		interval:  interval,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the pruner.
func (p *Pruner) SetLogger(logger Logger) {
	p.logger = logger
}

// Run prunes until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	if p.retention <= 0 {
		return nil
	}

	tick := make(chan struct{}, 1)
	for {
		p.prune(ctx)

		t := p.clock.AfterFunc(p.interval, func() {
			select {
			case tick <- struct{}{}:
			default:
			}
		})
		select {
		case <-tick:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	p.passes.Add(1)
	n, err := p.repo.Prune(ctx, p.retention)
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("history prune failed", "error", err)
		return
	}
	p.deleted.Add(n)
	p.logger.Debug("history pruned", "deleted", n, "retention", p.retention.String())
}

// Stats returns a snapshot of the counters.
func (p *Pruner) Stats() PrunerStats {
	return PrunerStats{
		Passes:  p.passes.Load(),
		Deleted: p.deleted.Load(),
		Failed:  p.failed.Load(),
	}
}
