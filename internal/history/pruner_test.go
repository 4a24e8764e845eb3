package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/clock"
)

// pruneRepo reports each Prune call on calls.
type pruneRepo struct {
	memoryRepo
	calls   chan time.Duration
	deleted int64
	err     error
}

func (r *pruneRepo) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	r.calls <- olderThan
	return r.deleted, r.err
}

func waitPrune(t *testing.T, r *pruneRepo) time.Duration {
	t.Helper()
	select {
	case d := <-r.calls:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("Prune was not called")
		return 0
	}
}

func waitPending(t *testing.T, clk *clock.FakeClock) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for clk.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("pruner did not schedule its next pass")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPruner_RunsOnInterval(t *testing.T) {
	tests := []struct {
		name        string
		deleted     int64
		err         error
		wantDeleted int64
		wantFailed  uint64
	}{
		{"deletes", 4, nil, 8, 0},
		{"failures keep the loop alive", 0, errors.New("database is locked"), 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.Fake(t0)
			repo := &pruneRepo{calls: make(chan time.Duration, 4), deleted: tt.deleted, err: tt.err}
			p := NewPruner(repo, clk, 48*time.Hour, 10*time.Minute)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- p.Run(ctx) }()

			if got := waitPrune(t, repo); got != 48*time.Hour {
				t.Errorf("startup Prune(%v), want 48h", got)
			}
			waitPending(t, clk)
			clk.Advance(9 * time.Minute)
			select {
			case <-repo.calls:
				t.Fatal("pruned before the interval elapsed")
			case <-time.After(20 * time.Millisecond):
			}
			clk.Advance(time.Minute)
			waitPrune(t, repo)
			waitPending(t, clk)

			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Run() error = %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return")
			}

			st := p.Stats()
			if st.Passes != 2 || st.Deleted != tt.wantDeleted || st.Failed != tt.wantFailed {
				t.Errorf("Stats() = %+v, want passes=2 deleted=%d failed=%d", st, tt.wantDeleted, tt.wantFailed)
			}
			if clk.Pending() != 0 {
				t.Errorf("Pending() = %d after Run returned", clk.Pending())
			}
		})
	}
}

func TestPruner_DisabledReturnsImmediately(t *testing.T) {
	repo := &pruneRepo{calls: make(chan time.Duration, 1)}
	p := NewPruner(repo, clock.Fake(t0), 0, time.Minute)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(repo.calls) != 0 || p.Stats().Passes != 0 {
		t.Error("disabled pruner touched the repository")
	}
}
