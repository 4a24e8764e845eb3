package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
)

// Actions.
const (
	ActionPINRotated        = "pin_rotated"
	ActionPrincipalEnrolled = "principal_enrolled"
	ActionPrincipalRemoved  = "principal_removed"
	ActionAlarmTest         = "alarm_test"
	ActionAlarmSensitivity  = "alarm_sensitivity_changed"
	ActionAlarmAcknowledged = "alarm_acknowledged"
)

// Entity types.
const (
	EntityPIN       = "pin"
	EntityPrincipal = "principal"
	EntityAlarm     = "alarm"
)

// Sources.
const (
	SourceAPI    = "api"
	SourceSystem = "system"
)

// Page bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action     string // optional
	EntityType string // optional
	EntityID   string // optional
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// prepare fills generated fields.
func prepare(log *AuditLog) {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.Source == "" {
		log.Source = SourceAPI
	}
}

func (f *Filter) clamp() {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

func (f *Filter) matches(log *AuditLog) bool {
	return (f.Action == "" || f.Action == log.Action) &&
		(f.EntityType == "" || f.EntityType == log.EntityType) &&
		(f.EntityID == "" || f.EntityID == log.EntityID)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new audit log entry. ID, CreatedAt and Source are
// generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	prepare(log)

	var detailsJSON *string
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.EntityType,
		nullableString(log.EntityID), nullableString(log.UserID),
		log.Source, detailsJSON,
		database.FormatTime(log.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings so nullable TEXT columns
// stay NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns audit logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter.clamp()

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM audit_logs " + where //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := "SELECT id, action, entity_type, entity_id, user_id, source, details, created_at FROM audit_logs " + //nolint:gosec // WHERE built from parameterised conditions, not user input
		where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		var log AuditLog
		var entityID, userID, detailsJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&log.ID, &log.Action, &log.EntityType,
			&entityID, &userID, &log.Source, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}

		log.EntityID = entityID.String
		log.UserID = userID.String
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				log.Details = details
			}
		}

		t, err := database.ParseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
		}
		log.CreatedAt = t
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// MemoryRepository keeps audit logs in memory. Used when no database is
// configured and in tests.
type MemoryRepository struct {
	mu   sync.Mutex
	logs []AuditLog
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Create appends log.
func (m *MemoryRepository) Create(_ context.Context, log *AuditLog) error {
	prepare(log)
	m.mu.Lock()
	m.logs = append(m.logs, *log)
	m.mu.Unlock()
	return nil
}

// List returns matching logs, most recent first.
func (m *MemoryRepository) List(_ context.Context, filter Filter) (*ListResult, error) {
	filter.clamp()

	m.mu.Lock()
	var matched []AuditLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		if filter.matches(&m.logs[i]) {
			matched = append(matched, m.logs[i])
		}
	}
	m.mu.Unlock()

	res := &ListResult{Logs: []AuditLog{}, Total: len(matched), Limit: filter.Limit, Offset: filter.Offset}
	if filter.Offset < len(matched) {
		end := min(filter.Offset+filter.Limit, len(matched))
		res.Logs = append(res.Logs, matched[filter.Offset:end]...)
	}
	return res, nil
}

var (
	_ Repository = (*SQLiteRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
