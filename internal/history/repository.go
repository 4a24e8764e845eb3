package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
)

// Query bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Snapshot is a stored copy of a device state.
type Snapshot struct {
	ID        int64          `json:"id"`
	DeviceID  string         `json:"device_id"`
	Kind      device.Kind    `json:"kind"`
	Version   uint64         `json:"version"`
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Repository stores device events and state snapshots.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	RecordEvent(ctx context.Context, ev device.Event) error
	RecordSnapshot(ctx context.Context, st device.State) error

	// Events returns the device's stored events, newest first.
	Events(ctx context.Context, deviceID string, limit int) ([]device.Event, error)

	// Snapshots returns the device's stored snapshots, newest first.
	Snapshots(ctx context.Context, deviceID string, limit int) ([]Snapshot, error)

	// Prune deletes rows older than olderThan and reports how many went.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository using the device_events and
// state_snapshots tables.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite history repository.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// RecordEvent inserts one event row.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, ev device.Event) error {
	if ev.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_events (event_id, device_id, kind, type, method, actor, detail, ts, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.DeviceID, string(ev.Kind), ev.Type,
		nullable(ev.Method), nullable(ev.Actor), nullable(ev.Detail),
		database.FormatTime(ev.Timestamp), database.FormatTime(r.now()),
	)
	if err != nil {
		return fmt.Errorf("inserting device event: %w", err)
	}
	return nil
}

// RecordSnapshot inserts one state snapshot row.
func (r *SQLiteRepository) RecordSnapshot(ctx context.Context, st device.State) error {
	if st.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}

	fields := st.Attributes
	if fields == nil {
		fields = map[string]any{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshalling state fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO state_snapshots (device_id, kind, version, fields, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		st.DeviceID, string(st.Kind), int64(st.Version), string(fieldsJSON), //nolint:gosec // versions stay far below MaxInt64
		database.FormatTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting state snapshot: %w", err)
	}
	return nil
}

// Events returns stored events for a device, newest first.
//
// Returns:
//   - []device.Event: Ordered by ts DESC (may be empty)
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) Events(ctx context.Context, deviceID string, limit int) ([]device.Event, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id, device_id, kind, type, method, actor, detail, ts
		 FROM device_events
		 WHERE device_id = ?
		 ORDER BY ts DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device events: %w", err)
	}
	defer rows.Close()

	events := make([]device.Event, 0, limit)
	for rows.Next() {
		var (
			ev                    device.Event
			kind, ts              string
			method, actor, detail sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &kind, &ev.Type, &method, &actor, &detail, &ts); err != nil {
			return nil, fmt.Errorf("scanning device event: %w", err)
		}
		ev.Kind = device.Kind(kind)
		ev.Method, ev.Actor, ev.Detail = method.String, actor.String, detail.String
		if ev.Timestamp, err = database.ParseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", ts, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device events: %w", err)
	}
	return events, nil
}

// Snapshots returns stored snapshots for a device, newest first.
func (r *SQLiteRepository) Snapshots(ctx context.Context, deviceID string, limit int) ([]Snapshot, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, kind, version, fields, updated_at
		 FROM state_snapshots
		 WHERE device_id = ?
		 ORDER BY updated_at DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0, limit)
	for rows.Next() {
		var (
			s                    Snapshot
			kind, fields, update string
			version              int64
		)
		if err := rows.Scan(&s.ID, &s.DeviceID, &kind, &version, &fields, &update); err != nil {
			return nil, fmt.Errorf("scanning state snapshot: %w", err)
		}
		s.Kind = device.Kind(kind)
		s.Version = uint64(version) //nolint:gosec // written from a uint64
		if err := json.Unmarshal([]byte(fields), &s.Fields); err != nil {
			return nil, fmt.Errorf("unmarshalling state fields: %w", err)
		}
		if s.UpdatedAt, err = database.ParseTime(update); err != nil {
			return nil, fmt.Errorf("parsing snapshot timestamp %q: %w", update, err)
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state snapshots: %w", err)
	}
	return snaps, nil
}

// Prune deletes events and snapshots older than olderThan.
//
// Returns:
//   - int64: Number of rows deleted across both tables
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := database.FormatTime(r.now().Add(-olderThan))

	var total int64
	for _, stmt := range []string{
		"DELETE FROM device_events WHERE ts < ?",
		"DELETE FROM state_snapshots WHERE updated_at < ?",
	} {
		res, err := r.db.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning history: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
