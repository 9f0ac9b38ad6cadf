package http

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driving"
)

// Browser flow

// redirect sends the browser to the reporter's URL for o.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, o Outcome) {
	if o.Err != nil {
		if _, ok := driving.AsOAuthError(o.Err); !ok {
			s.logger.Error("connection flow failed",
				zap.String("platform", o.Platform.String()),
				zap.String("path", r.URL.Path),
				zap.Error(o.Err),
			)
		}
	}
	http.Redirect(w, r, s.reporter.ToRedirect(o), http.StatusSeeOther)
}

// handleAuthorize stores the state cookie and sends the browser to the
// platform consent screen.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		s.redirect(w, r, Outcome{Err: driving.ErrOAuthUnsupportedPlatform})
		return
	}

	authCtx := GetAuthContext(r.Context())
	if !authCtx.HasTeam() {
		s.redirect(w, r, Outcome{Platform: platform, Err: driving.ErrOAuthMissingTeam})
		return
	}

	resp, err := s.connections.Authorize(r.Context(), driving.AuthorizeRequest{
		Platform: platform,
		TeamID:   authCtx.TeamID,
		UserID:   authCtx.UserID,
	})
	if err != nil {
		s.redirect(w, r, Outcome{Platform: platform, Err: err})
		return
	}

	if err := s.cookies.SetState(w, platform, resp.State); err != nil {
		s.redirect(w, r, Outcome{Platform: platform, Err: fmt.Errorf("set state cookie: %w", err)})
		return
	}

	http.Redirect(w, r, resp.AuthorizationURL, http.StatusFound)
}

// handleCallback receives the platform redirect. The state cookie is
// removed before anything else happens.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	platform := domain.Platform(r.PathValue("platform"))
	if !platform.IsValid() {
		s.redirect(w, r, Outcome{Err: driving.ErrOAuthUnsupportedPlatform})
		return
	}
	storedState := s.cookies.TakeState(w, r, platform)

	q := r.URL.Query()
	result, err := s.connections.Callback(r.Context(), driving.CallbackRequest{
		Platform:         platform,
		Code:             q.Get("code"),
		State:            q.Get("state"),
		StoredState:      storedState,
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		s.redirect(w, r, Outcome{Platform: platform, Err: err})
		return
	}

	if result.Outcome == driving.OutcomeStaged {
		if err := s.cookies.SetStaging(w, platform, result.StagingHandle, result.Candidates); err != nil {
			s.redirect(w, r, Outcome{Platform: platform, Err: fmt.Errorf("set staging cookies: %w", err)})
			return
		}
		s.redirect(w, r, Outcome{Platform: platform, Staged: true})
		return
	}

	s.cookies.ClearStaging(w, platform)
	s.redirect(w, r, Outcome{Platform: platform, Message: result.Message})
}

// handleSelectAccount completes a staged connection from the
// select-account form (field account_id).
func (s *Server) handleSelectAccount(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		s.redirect(w, r, Outcome{Err: driving.ErrOAuthUnsupportedPlatform})
		return
	}

	authCtx := GetAuthContext(r.Context())
	if !authCtx.HasTeam() {
		s.redirect(w, r, Outcome{Platform: platform, Err: driving.ErrOAuthMissingTeam})
		return
	}

	if err := r.ParseForm(); err != nil {
		s.redirect(w, r, Outcome{Platform: platform, Staged: true, Err: driving.ErrOAuthInvalidAccount})
		return
	}

	summary, err := s.connections.SelectAccount(r.Context(), driving.SelectAccountRequest{
		Platform:  platform,
		Handle:    s.cookies.StagingHandle(r, platform),
		TeamID:    authCtx.TeamID,
		AccountID: r.PostFormValue("account_id"),
	})
	if err != nil {
		if errors.Is(err, driving.ErrOAuthInvalidAccount) {
			s.redirect(w, r, Outcome{Platform: platform, Staged: true, Err: err})
			return
		}
		s.cookies.ClearStaging(w, platform)
		s.redirect(w, r, Outcome{Platform: platform, Err: err})
		return
	}

	s.cookies.ClearStaging(w, platform)
	s.redirect(w, r, Outcome{
		Platform: platform,
		Message:  fmt.Sprintf("Successfully connected to %s (%s)", platform.DisplayName(), accountLabel(summary)),
	})
}

func accountLabel(c *domain.ConnectionSummary) string {
	if c.PlatformAccountName != "" {
		return c.PlatformAccountName
	}
	return c.PlatformAccountID
}

// JSON endpoints

// ConnectionListResponse wraps the team's connections.
type ConnectionListResponse struct {
	Connections []*domain.ConnectionSummary `json:"connections"`
}

// handlePendingAccounts returns the staged account candidates for the
// caller's staging cookie.
func (s *Server) handlePendingAccounts(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unsupported platform")
		return
	}

	authCtx := GetAuthContext(r.Context())
	pending, err := s.connections.PendingAccounts(r.Context(), driving.PendingRequest{
		Platform: platform,
		Handle:   s.cookies.StagingHandle(r, platform),
		TeamID:   authCtx.TeamID,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())

	conns, err := s.connections.List(r.Context(), authCtx.TeamID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ConnectionListResponse{Connections: conns})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unsupported platform")
		return
	}

	authCtx := GetAuthContext(r.Context())
	conn, err := s.connections.Get(r.Context(), authCtx.TeamID, platform)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unsupported platform")
		return
	}

	authCtx := GetAuthContext(r.Context())
	if err := s.connections.Disconnect(r.Context(), authCtx.TeamID, platform); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service errors to JSON responses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	if oe, ok := driving.AsOAuthError(err); ok {
		status := http.StatusBadRequest
		switch oe.Code {
		case driving.CodeStagingExpired:
			status = http.StatusGone
		case driving.CodeMissingTeam:
			status = http.StatusForbidden
		case driving.CodeUnsupportedPlatform:
			status = http.StatusNotFound
		case driving.CodeNotConfigured:
			status = http.StatusServiceUnavailable
		case driving.CodePersistFailed:
			status = http.StatusInternalServerError
		}
		if status == http.StatusInternalServerError {
			s.logger.Error("request failed", zap.Error(err))
		}
		writeJSON(w, status, ErrorResponse{Error: oe.Code, ErrorDescription: oe.Description})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrNoTeam):
		writeError(w, http.StatusForbidden, "no team context")
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		writeError(w, http.StatusNotFound, "unsupported platform")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
