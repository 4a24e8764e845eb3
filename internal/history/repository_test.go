package history

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Path: ":memory:", BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := NewSQLiteRepository(db.DB)
	repo.now = func() time.Time { return t0 }
	return repo
}

func TestSQLiteRepository_EventsNewestFirst(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for i, typ := range []string{"unlock", "cmd_lock", "lock"} {
		ev := device.Event{
			ID:        "evt-" + typ,
			DeviceID:  "FRONT_DOOR",
			Kind:      device.KindLock,
			Type:      typ,
			Method:    "PIN",
			Timestamp: t0.Add(time.Duration(i) * 500 * time.Millisecond),
		}
		if err := repo.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}
	if err := repo.RecordEvent(ctx, device.Event{ID: "evt-x", DeviceID: "BACK_DOOR", Kind: device.KindLock, Type: "lock", Timestamp: t0}); err != nil {
		t.Fatal(err)
	}

	events, err := repo.Events(ctx, "FRONT_DOOR", 0)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Events() len = %d, want 3", len(events))
	}
	wantOrder := []string{"lock", "cmd_lock", "unlock"}
	for i, ev := range events {
		if ev.Type != wantOrder[i] {
			t.Errorf("events[%d].Type = %q, want %q", i, ev.Type, wantOrder[i])
		}
	}
	if events[0].ID != "evt-lock" || events[0].Method != "PIN" || events[0].Actor != "" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if want := t0.Add(time.Second); !events[0].Timestamp.Equal(want) {
		t.Errorf("events[0].Timestamp = %v, want %v", events[0].Timestamp, want)
	}

	limited, err := repo.Events(ctx, "FRONT_DOOR", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("Events(limit=2) len = %d", len(limited))
	}
}

func TestSQLiteRepository_Snapshots(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	st := device.State{
		DeviceID:   "LIVING_ROOM",
		Kind:       device.KindLight,
		Attributes: map[string]any{"power": true, "brightness": 80.0},
		UpdatedAt:  t0,
		Version:    4,
	}
	if err := repo.RecordSnapshot(ctx, st); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	snaps, err := repo.Snapshots(ctx, "LIVING_ROOM", 10)
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("Snapshots() len = %d, want 1", len(snaps))
	}
	got := snaps[0]
	if got.Version != 4 || got.Kind != device.KindLight || !got.UpdatedAt.Equal(t0) {
		t.Errorf("snapshot = %+v", got)
	}
	if got.Fields["power"] != true || got.Fields["brightness"] != 80.0 {
		t.Errorf("fields = %v", got.Fields)
	}

	empty, err := repo.Snapshots(ctx, "UNKNOWN", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("Snapshots(UNKNOWN) = %v, want empty", empty)
	}
}

func TestSQLiteRepository_RequiresDeviceID(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.RecordEvent(ctx, device.Event{Type: "lock"}); err == nil {
		t.Error("RecordEvent() without device id succeeded")
	}
	if err := repo.RecordSnapshot(ctx, device.State{}); err == nil {
		t.Error("RecordSnapshot() without device id succeeded")
	}
}

func TestSQLiteRepository_Prune(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	old := t0.Add(-48 * time.Hour)
	recent := t0.Add(-time.Hour)

	for i, ts := range []time.Time{old, recent} {
		ev := device.Event{ID: "evt-" + string(rune('a'+i)), DeviceID: "FRONT_DOOR", Kind: device.KindLock, Type: "lock", Timestamp: ts}
		if err := repo.RecordEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
		st := device.State{DeviceID: "FRONT_DOOR", Kind: device.KindLock, Attributes: map[string]any{}, UpdatedAt: ts, Version: uint64(i + 1)}
		if err := repo.RecordSnapshot(ctx, st); err != nil {
			t.Fatal(err)
		}
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() deleted %d rows, want 2", n)
	}

	events, _ := repo.Events(ctx, "FRONT_DOOR", 10)   //nolint:errcheck // checked by length
	snaps, _ := repo.Snapshots(ctx, "FRONT_DOOR", 10) //nolint:errcheck // checked by length
	if len(events) != 1 || len(snaps) != 1 {
		t.Errorf("after prune: %d events, %d snapshots, want 1 each", len(events), len(snaps))
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) succeeded, want error")
	}
}
