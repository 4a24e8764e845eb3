package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/audit"
	"github.com/nerrad567/gray-logic-hub/internal/auth"
)

type rotatePINRequest struct {
	PIN string `json:"pin"`
}

// handleGetPIN returns PIN metadata. The value itself is never returned.
func (s *Server) handleGetPIN(w http.ResponseWriter, _ *http.Request) {
	if s.pin == nil {
		writeUnavailable(w, "pin not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.pin.Info())
}

// handleRotatePIN replaces the shared lock PIN.
func (s *Server) handleRotatePIN(w http.ResponseWriter, r *http.Request) {
	var req rotatePINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	version, err := s.commands.RotatePIN(r.Context(), adminSubject(r), req.PIN)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPIN) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("pin rotation failed", "error", err)
		writeInternalError(w, "pin rotation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"version": version})
}

// principalResponse never carries credential material.
type principalResponse struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"display_name"`
	HasFingerprint bool      `json:"has_fingerprint"`
	FaceTemplates  int       `json:"face_templates"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toPrincipalResponse(p *auth.Principal) principalResponse {
	return principalResponse{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		HasFingerprint: p.HasFingerprint(),
		FaceTemplates:  len(p.FaceTemplates),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type createPrincipalRequest struct {
	ID            string      `json:"id"`
	DisplayName   string      `json:"display_name"`
	Secret        string      `json:"secret,omitempty"`
	FaceTemplates [][]float64 `json:"face_templates,omitempty"`
}

// handleListPrincipals returns enrolled principals.
func (s *Server) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	if s.principals == nil {
		writeUnavailable(w, "principal store not configured")
		return
	}

	ps, err := s.principals.List(r.Context())
	if err != nil {
		s.logger.Error("list principals failed", "error", err)
		writeInternalError(w, "failed to list principals")
		return
	}

	out := make([]principalResponse, 0, len(ps))
	for i := range ps {
		out = append(out, toPrincipalResponse(&ps[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"principals": out, "count": len(out)})
}

// handleCreatePrincipal enrols a principal with an optional fingerprint
// secret and face templates.
func (s *Server) handleCreatePrincipal(w http.ResponseWriter, r *http.Request) {
	if s.principals == nil {
		writeUnavailable(w, "principal store not configured")
		return
	}

	var req createPrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !auth.IsValidPrincipalID(req.ID) {
		writeBadRequest(w, "id must be 1-64 characters of letters, digits, '.', '-' or '_'")
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		writeBadRequest(w, "display_name is required")
		return
	}

	p := &auth.Principal{
		ID:            req.ID,
		DisplayName:   req.DisplayName,
		FaceTemplates: req.FaceTemplates,
	}
	if req.Secret != "" {
		hash, err := auth.HashSecret(req.Secret)
		if err != nil {
			writeInternalError(w, "failed to hash secret")
			return
		}
		p.FingerprintHash = hash
	}

	if err := s.principals.Create(r.Context(), p); err != nil {
		switch {
		case errors.Is(err, auth.ErrPrincipalExists):
			writeConflict(w, "principal already exists")
		case errors.Is(err, auth.ErrInvalidPrincipal):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("create principal failed", "error", err)
			writeInternalError(w, "failed to create principal")
		}
		return
	}

	s.recordAudit(r.Context(), audit.ActionPrincipalEnrolled, audit.EntityPrincipal, p.ID, adminSubject(r), map[string]any{
		"fingerprint":    p.HasFingerprint(),
		"face_templates": len(p.FaceTemplates),
	})
	writeJSON(w, http.StatusCreated, toPrincipalResponse(p))
}

// handleDeletePrincipal removes a principal and all its credentials.
func (s *Server) handleDeletePrincipal(w http.ResponseWriter, r *http.Request) {
	if s.principals == nil {
		writeUnavailable(w, "principal store not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.principals.Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrPrincipalNotFound) {
			writeNotFound(w, "principal not found")
			return
		}
		s.logger.Error("delete principal failed", "error", err)
		writeInternalError(w, "failed to delete principal")
		return
	}

	s.recordAudit(r.Context(), audit.ActionPrincipalRemoved, audit.EntityPrincipal, id, adminSubject(r), nil)
	w.WriteHeader(http.StatusNoContent)
}

func adminSubject(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
