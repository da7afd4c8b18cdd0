package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tucano/internal/log"
	"tucano/internal/middleware/auth"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.deps.Clock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": now.Format(time.RFC3339),
		"uptime":    now.Sub(s.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.deps.Health == nil {
		checks["storage"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if err := s.deps.Health.Ping(ctx); err != nil {
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
	} else {
		checks["storage"] = "ok"
	}

	if s.deps.State != nil {
		checks["open_states"] = s.deps.State.Len()
	}
	limits := s.limiter.GetMetrics()
	checks["rate_limited_clients"] = limits.ClientCount

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.deps.Clock().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMe returns the caller's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, id)
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleIssueToken signs a token for the posted identity. It is only routed
// when development tokens are enabled.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var id auth.Identity
	if err := decodeJSON(w, r, &id); err != nil {
		writeError(w, r, err)
		return
	}
	id.UserID = sanitizeInput(id.UserID)
	id.Name = sanitizeInput(id.Name)
	id.Email = sanitizeInput(id.Email)
	id.Picture = sanitizeInput(id.Picture)

	token, expires, err := s.deps.Auth.IssueToken(id)
	if err != nil {
		BadRequestError("invalid user id").Write(w)
		return
	}
	s.logger.InfoContext(r.Context(), "Token issued", log.FieldUserID, id.UserID)
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, ExpiresAt: expires})
}
