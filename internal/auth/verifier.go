package auth

import (
	"context"
	"errors"
)

// DenyReason explains a denied Decision. Reasons are safe to log and
// return to clients.
type DenyReason string

const (
	ReasonInvalidPIN         DenyReason = "invalid_pin"
	ReasonUnknownPrincipal   DenyReason = "unknown_principal"
	ReasonInvalidSecret      DenyReason = "invalid_secret"
	ReasonNoMatch            DenyReason = "no_match"
	ReasonAmbiguousMatch     DenyReason = "ambiguous_match"
	ReasonMissingCredentials DenyReason = "missing_credentials"
	ReasonUnsupportedMethod  DenyReason = "unsupported_method"
	ReasonNoTemplates        DenyReason = "no_templates"
	ReasonUnavailable        DenyReason = "credential_store_unavailable"
)

// Attempt carries the method-specific credentials of one request.
type Attempt struct {
	Method Method

	// PIN
	PIN string

	// FINGERPRINT_PROXY
	Username string
	Secret   string

	// FACE
	Probe []float64
}

// Decision is the terminal outcome of a verification.
type Decision struct {
	Authorized bool       `json:"authorized"`
	Method     Method     `json:"method"`
	Principal  string     `json:"principal,omitempty"`
	Reason     DenyReason `json:"reason,omitempty"`
	Score      float64    `json:"score,omitempty"`
}

// Authorized builds an authorising Decision.
func Authorized(m Method, principal string) Decision {
	return Decision{Authorized: true, Method: m, Principal: principal}
}

// Denied builds a denying Decision.
func Denied(m Method, reason DenyReason) Decision {
	return Decision{Method: m, Reason: reason}
}

// Logger defines the logging interface used by the Verifier.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Verifier evaluates lock credentials. It holds no per-attempt state.
type Verifier struct {
	pin        *PINCell
	principals PrincipalLookup
	scorer     Scorer
	policy     FacePolicy
	logger     Logger
}

// VerifierOptions configures a Verifier. PIN is required.
type VerifierOptions struct {
	PIN        *PINCell
	Principals PrincipalLookup
	Scorer     Scorer
	Policy     FacePolicy
}

// NewVerifier creates a Verifier. A zero Policy means DefaultFacePolicy
// and a nil Scorer means CosineScorer.
func NewVerifier(opts VerifierOptions) *Verifier {
	if opts.Principals == nil {
		opts.Principals = NewMemoryPrincipals()
	}
	if opts.Scorer == nil {
		opts.Scorer = CosineScorer{}
	}
	if opts.Policy == (FacePolicy{}) {
		opts.Policy = DefaultFacePolicy()
	}
	return &Verifier{
		pin:        opts.PIN,
		principals: opts.Principals,
		scorer:     opts.Scorer,
		policy:     opts.Policy,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the verifier.
func (v *Verifier) SetLogger(logger Logger) {
	v.logger = logger
}

// Verify evaluates a. It never fails: lookup problems come back as a
// denial with ReasonUnavailable.
func (v *Verifier) Verify(ctx context.Context, a Attempt) Decision {
	var d Decision
	switch a.Method {
	case MethodPIN:
		d = v.verifyPIN(a)
	case MethodFingerprintProxy:
		d = v.verifyFingerprint(ctx, a)
	case MethodFace:
		d = v.verifyFace(ctx, a)
	default:
		d = Denied(a.Method, ReasonUnsupportedMethod)
	}

	if d.Authorized {
		v.logger.Debug("credential accepted", "method", d.Method, "principal", d.Principal)
	} else {
		v.logger.Debug("credential denied", "method", d.Method, "reason", d.Reason)
	}
	return d
}

func (v *Verifier) verifyPIN(a Attempt) Decision {
	if a.PIN == "" {
		return Denied(MethodPIN, ReasonMissingCredentials)
	}
	if v.pin == nil || !v.pin.Matches(a.PIN) {
		return Denied(MethodPIN, ReasonInvalidPIN)
	}
	return Authorized(MethodPIN, "")
}

func (v *Verifier) verifyFingerprint(ctx context.Context, a Attempt) Decision {
	if a.Username == "" || a.Secret == "" {
		return Denied(MethodFingerprintProxy, ReasonMissingCredentials)
	}

	p, err := v.principals.GetByID(ctx, a.Username)
	if errors.Is(err, ErrPrincipalNotFound) {
		return Denied(MethodFingerprintProxy, ReasonUnknownPrincipal)
	}
	if err != nil {
		v.logger.Warn("principal lookup failed", "error", err)
		return Denied(MethodFingerprintProxy, ReasonUnavailable)
	}
	if !p.HasFingerprint() {
		return Denied(MethodFingerprintProxy, ReasonInvalidSecret)
	}

	ok, err := VerifySecret(a.Secret, p.FingerprintHash)
	if err != nil {
		v.logger.Warn("stored fingerprint hash unreadable", "principal", p.ID, "error", err)
		return Denied(MethodFingerprintProxy, ReasonInvalidSecret)
	}
	if !ok {
		return Denied(MethodFingerprintProxy, ReasonInvalidSecret)
	}
	return Authorized(MethodFingerprintProxy, p.ID)
}

func (v *Verifier) verifyFace(ctx context.Context, a Attempt) Decision {
	if len(a.Probe) == 0 {
		return Denied(MethodFace, ReasonMissingCredentials)
	}

	principals, err := v.principals.List(ctx)
	if err != nil {
		v.logger.Warn("principal list failed", "error", err)
		return Denied(MethodFace, ReasonUnavailable)
	}

	candidates := make([]Candidate, 0, len(principals))
	for i := range principals {
		p := &principals[i]
		if !p.HasFace() {
			continue
		}
		best := 0.0
		for _, tmpl := range p.FaceTemplates {
			if s := clampScore(v.scorer.Score(a.Probe, tmpl)); s > best {
				best = s
			}
		}
		candidates = append(candidates, Candidate{PrincipalID: p.ID, Score: best})
	}
	if len(candidates) == 0 {
		return Denied(MethodFace, ReasonNoTemplates)
	}

	fd := DecideFace(candidates, v.policy)
	if !fd.Authorized {
		d := Denied(MethodFace, fd.Reason)
		d.Score = fd.Score
		return d
	}
	d := Authorized(MethodFace, fd.PrincipalID)
	d.Score = fd.Score
	return d
}
