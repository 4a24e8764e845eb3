package auth

import (
	"context"
	"errors"
	"testing"
)

// failingLookup simulates an unavailable principal store.
type failingLookup struct{}

func (failingLookup) GetByID(context.Context, string) (*Principal, error) {
	return nil, errors.New("disk on fire")
}

func (failingLookup) List(context.Context) ([]Principal, error) {
	return nil, errors.New("disk on fire")
}

// tableScorer returns a fixed score per template, keyed by the
// template's first element.
type tableScorer map[float64]float64

func (s tableScorer) Score(_, template []float64) float64 {
	return s[template[0]]
}

func newTestVerifier(t *testing.T, principals PrincipalLookup, scorer Scorer) *Verifier {
	t.Helper()
	pin, err := NewPINCell("0411", nil)
	if err != nil {
		t.Fatalf("NewPINCell() error = %v", err)
	}
	return NewVerifier(VerifierOptions{PIN: pin, Principals: principals, Scorer: scorer})
}

func TestVerify_PIN(t *testing.T) {
	v := newTestVerifier(t, nil, nil)
	ctx := context.Background()

	tests := []struct {
		pin        string
		wantAuth   bool
		wantReason DenyReason
	}{
		{"0411", true, ""},
		{"0412", false, ReasonInvalidPIN},
		{"04110", false, ReasonInvalidPIN},
		{"", false, ReasonMissingCredentials},
	}
	for _, tt := range tests {
		d := v.Verify(ctx, Attempt{Method: MethodPIN, PIN: tt.pin})
		if d.Authorized != tt.wantAuth || d.Reason != tt.wantReason {
			t.Errorf("Verify(pin=%q) = %+v", tt.pin, d)
		}
		if d.Method != MethodPIN {
			t.Errorf("Method = %q", d.Method)
		}
	}
}

func TestVerify_FingerprintProxy(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	repo := NewMemoryPrincipals(
		Principal{ID: "alice", FingerprintHash: hash},
		Principal{ID: "bob"},
		Principal{ID: "mallory", FingerprintHash: "not-a-phc"},
	)
	v := newTestVerifier(t, repo, nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		user, sec  string
		wantAuth   bool
		wantReason DenyReason
	}{
		{"match", "alice", "s3cret", true, ""},
		{"wrong secret", "alice", "nope", false, ReasonInvalidSecret},
		{"unknown user", "eve", "s3cret", false, ReasonUnknownPrincipal},
		{"not enrolled", "bob", "s3cret", false, ReasonInvalidSecret},
		{"corrupt hash", "mallory", "s3cret", false, ReasonInvalidSecret},
		{"missing username", "", "s3cret", false, ReasonMissingCredentials},
		{"missing secret", "alice", "", false, ReasonMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := v.Verify(ctx, Attempt{Method: MethodFingerprintProxy, Username: tt.user, Secret: tt.sec})
			if d.Authorized != tt.wantAuth || d.Reason != tt.wantReason {
				t.Errorf("Verify() = %+v", d)
			}
			if tt.wantAuth && d.Principal != "alice" {
				t.Errorf("Principal = %q", d.Principal)
			}
		})
	}
}

func TestVerify_Face(t *testing.T) {
	// Templates are tagged by their first element; the scorer maps tag to score.
	scorer := tableScorer{1: 0.50, 2: 0.45, 3: 0.30, 4: 0.20, 5: 0.40}
	ctx := context.Background()

	tests := []struct {
		name       string
		principals []Principal
		wantAuth   bool
		wantID     string
		wantReason DenyReason
	}{
		{
			name: "ambiguous",
			principals: []Principal{
				{ID: "A", FaceTemplates: [][]float64{{1}}},
				{ID: "B", FaceTemplates: [][]float64{{2}}},
			},
			wantReason: ReasonAmbiguousMatch,
		},
		{
			name: "clear winner",
			principals: []Principal{
				{ID: "A", FaceTemplates: [][]float64{{1}}},
				{ID: "B", FaceTemplates: [][]float64{{3}}},
			},
			wantAuth: true,
			wantID:   "A",
		},
		{
			name: "best template per principal",
			principals: []Principal{
				{ID: "A", FaceTemplates: [][]float64{{4}, {1}}},
				{ID: "B", FaceTemplates: [][]float64{{3}}},
			},
			wantAuth: true,
			wantID:   "A",
		},
		{
			name: "single candidate above threshold",
			principals: []Principal{
				{ID: "A", FaceTemplates: [][]float64{{5}}},
				{ID: "B"},
			},
			wantAuth: true,
			wantID:   "A",
		},
		{
			name:       "single candidate below threshold",
			principals: []Principal{{ID: "A", FaceTemplates: [][]float64{{3}}}},
			wantReason: ReasonNoMatch,
		},
		{
			name:       "nobody enrolled",
			principals: []Principal{{ID: "A"}},
			wantReason: ReasonNoTemplates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t, NewMemoryPrincipals(tt.principals...), scorer)
			d := v.Verify(ctx, Attempt{Method: MethodFace, Probe: []float64{0}})
			if d.Authorized != tt.wantAuth {
				t.Fatalf("Authorized = %v, want %v (%+v)", d.Authorized, tt.wantAuth, d)
			}
			if tt.wantAuth && d.Principal != tt.wantID {
				t.Errorf("Principal = %q, want %q", d.Principal, tt.wantID)
			}
			if !tt.wantAuth && d.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.wantReason)
			}
		})
	}
}

func TestVerify_FaceMissingProbe(t *testing.T) {
	v := newTestVerifier(t, nil, nil)
	d := v.Verify(context.Background(), Attempt{Method: MethodFace})
	if d.Authorized || d.Reason != ReasonMissingCredentials {
		t.Errorf("Verify() = %+v", d)
	}
}

func TestVerify_Unsupported(t *testing.T) {
	v := newTestVerifier(t, nil, nil)
	for _, m := range []Method{MethodAuto, "", "RETINA"} {
		d := v.Verify(context.Background(), Attempt{Method: m, PIN: "0411"})
		if d.Authorized || d.Reason != ReasonUnsupportedMethod {
			t.Errorf("Verify(method=%q) = %+v", m, d)
		}
	}
}

func TestVerify_StoreUnavailable(t *testing.T) {
	v := newTestVerifier(t, failingLookup{}, nil)
	ctx := context.Background()

	d := v.Verify(ctx, Attempt{Method: MethodFingerprintProxy, Username: "a", Secret: "b"})
	if d.Authorized || d.Reason != ReasonUnavailable {
		t.Errorf("fingerprint Verify() = %+v", d)
	}
	d = v.Verify(ctx, Attempt{Method: MethodFace, Probe: []float64{1}})
	if d.Authorized || d.Reason != ReasonUnavailable {
		t.Errorf("face Verify() = %+v", d)
	}
}

func TestVerify_UsesRotatedPIN(t *testing.T) {
	pin, _ := NewPINCell("0411", nil) //nolint:errcheck // valid seed
	v := NewVerifier(VerifierOptions{PIN: pin})

	if _, err := pin.Rotate("2222"); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if d := v.Verify(context.Background(), Attempt{Method: MethodPIN, PIN: "0411"}); d.Authorized {
		t.Error("old PIN accepted after rotation")
	}
	if d := v.Verify(context.Background(), Attempt{Method: MethodPIN, PIN: "2222"}); !d.Authorized {
		t.Error("rotated PIN rejected")
	}
}
