package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLitePrincipalRepository implements PrincipalRepository on the
// principals table.
type SQLitePrincipalRepository struct {
	db *sql.DB
}

// NewPrincipalRepository creates a SQLite-backed principal repository.
func NewPrincipalRepository(db *sql.DB) *SQLitePrincipalRepository {
	return &SQLitePrincipalRepository{db: db}
}

const principalColumns = "id, display_name, fingerprint_hash, face_templates, created_at, updated_at"

// Create inserts a principal.
func (r *SQLitePrincipalRepository) Create(ctx context.Context, p *Principal) error {
	if !IsValidPrincipalID(p.ID) {
		return ErrInvalidPrincipal
	}

	faces, err := encodeTemplates(p.FaceTemplates)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	p.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	p.UpdatedAt = p.CreatedAt

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO principals (`+principalColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.DisplayName, nullString(p.FingerprintHash), faces, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPrincipalExists
		}
		return fmt.Errorf("creating principal: %w", err)
	}
	return nil
}

// GetByID retrieves a principal by id.
func (r *SQLitePrincipalRepository) GetByID(ctx context.Context, id string) (*Principal, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+principalColumns+" FROM principals WHERE id = ?", id)
	return scanPrincipal(row)
}

// List returns all principals ordered by id.
func (r *SQLitePrincipalRepository) List(ctx context.Context) ([]Principal, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+principalColumns+" FROM principals ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing principals: %w", err)
	}
	defer rows.Close()

	out := []Principal{}
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}
	return out, nil
}

// SetFingerprint replaces the fingerprint hash. An empty hash clears it.
func (r *SQLitePrincipalRepository) SetFingerprint(ctx context.Context, id, hash string) error {
	return r.exec(ctx, "updating fingerprint",
		"UPDATE principals SET fingerprint_hash = ?, updated_at = ? WHERE id = ?",
		nullString(hash), time.Now().UTC().Format(time.RFC3339), id)
}

// SetFaceTemplates replaces the face templates.
func (r *SQLitePrincipalRepository) SetFaceTemplates(ctx context.Context, id string, templates [][]float64) error {
	faces, err := encodeTemplates(templates)
	if err != nil {
		return err
	}
	return r.exec(ctx, "updating face templates",
		"UPDATE principals SET face_templates = ?, updated_at = ? WHERE id = ?",
		faces, time.Now().UTC().Format(time.RFC3339), id)
}

// Delete removes a principal.
func (r *SQLitePrincipalRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "deleting principal", "DELETE FROM principals WHERE id = ?", id)
}

func (r *SQLitePrincipalRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(s scanner) (*Principal, error) {
	var p Principal
	var fingerprint, faces sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&p.ID, &p.DisplayName, &fingerprint, &faces, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("scanning principal: %w", err)
	}

	p.FingerprintHash = fingerprint.String
	if faces.Valid && faces.String != "" {
		if err := json.Unmarshal([]byte(faces.String), &p.FaceTemplates); err != nil {
			return nil, fmt.Errorf("decoding face templates for %s: %w", p.ID, err)
		}
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &p, nil
}

func encodeTemplates(ts [][]float64) (sql.NullString, error) {
	if len(ts) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(ts)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding face templates: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE or PRIMARY KEY
// constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ PrincipalRepository = (*SQLitePrincipalRepository)(nil)
