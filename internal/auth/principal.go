package auth

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"
)

// principalIDPattern: alphanumeric, dots, hyphens, underscores, 1-64 characters.
var principalIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidPrincipalID checks the id format. The id doubles as the
// username for FINGERPRINT_PROXY.
func IsValidPrincipalID(id string) bool {
	return principalIDPattern.MatchString(id)
}

// Principal is a person enrolled for lock access.
type Principal struct {
	ID              string      `json:"id"`
	DisplayName     string      `json:"display_name"`
	FingerprintHash string      `json:"-"` // never serialised
	FaceTemplates   [][]float64 `json:"-"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// HasFingerprint reports whether a fingerprint-proxy secret is enrolled.
func (p *Principal) HasFingerprint() bool { return p.FingerprintHash != "" }

// HasFace reports whether at least one face template is enrolled.
func (p *Principal) HasFace() bool { return len(p.FaceTemplates) > 0 }

// PrincipalLookup is what the Verifier reads.
type PrincipalLookup interface {
	GetByID(ctx context.Context, id string) (*Principal, error)
	List(ctx context.Context) ([]Principal, error)
}

// PrincipalRepository adds enrolment changes.
type PrincipalRepository interface {
	PrincipalLookup
	Create(ctx context.Context, p *Principal) error
	SetFingerprint(ctx context.Context, id, hash string) error
	SetFaceTemplates(ctx context.Context, id string, templates [][]float64) error
	Delete(ctx context.Context, id string) error
}

// MemoryPrincipals is an in-memory PrincipalRepository.
type MemoryPrincipals struct {
	mu   sync.RWMutex
	byID map[string]Principal
}

// NewMemoryPrincipals creates a repository preloaded with ps.
func NewMemoryPrincipals(ps ...Principal) *MemoryPrincipals {
	m := &MemoryPrincipals{byID: make(map[string]Principal, len(ps))}
	for _, p := range ps {
		m.byID[p.ID] = clonePrincipal(p)
	}
	return m
}

// GetByID returns a copy of the principal.
func (m *MemoryPrincipals) GetByID(_ context.Context, id string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	c := clonePrincipal(p)
	return &c, nil
}

// List returns copies of all principals ordered by id.
func (m *MemoryPrincipals) List(_ context.Context) ([]Principal, error) {
	m.mu.RLock()
	out := make([]Principal, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, clonePrincipal(p))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create stores p.
func (m *MemoryPrincipals) Create(_ context.Context, p *Principal) error {
	if !IsValidPrincipalID(p.ID) {
		return ErrInvalidPrincipal
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.ID]; ok {
		return ErrPrincipalExists
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	m.byID[p.ID] = clonePrincipal(*p)
	return nil
}

// SetFingerprint replaces the fingerprint hash.
func (m *MemoryPrincipals) SetFingerprint(_ context.Context, id, hash string) error {
	return m.update(id, func(p *Principal) { p.FingerprintHash = hash })
}

// SetFaceTemplates replaces the enrolled templates.
func (m *MemoryPrincipals) SetFaceTemplates(_ context.Context, id string, templates [][]float64) error {
	return m.update(id, func(p *Principal) { p.FaceTemplates = cloneTemplates(templates) })
}

// Delete removes the principal.
func (m *MemoryPrincipals) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrPrincipalNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *MemoryPrincipals) update(id string, fn func(*Principal)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	fn(&p)
	p.UpdatedAt = time.Now().UTC()
	m.byID[id] = p
	return nil
}

func clonePrincipal(p Principal) Principal {
	p.FaceTemplates = cloneTemplates(p.FaceTemplates)
	return p
}

func cloneTemplates(ts [][]float64) [][]float64 {
	if ts == nil {
		return nil
	}
	out := make([][]float64, len(ts))
	for i, t := range ts {
		out[i] = append([]float64(nil), t...)
	}
	return out
}

var _ PrincipalRepository = (*MemoryPrincipals)(nil)
