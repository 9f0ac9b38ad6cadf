package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
)

// ConnectionService runs the platform connection bootstrap flow and exposes
// the resulting connections to the integrations page.
type ConnectionService interface {
	// Authorize starts an OAuth authorization flow.
	// Returns the consent-screen URL and the state to store in the browser.
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error)

	// Callback handles the platform redirect: validates state, exchanges the
	// code, fetches the profile, then persists or stages the connection.
	Callback(ctx context.Context, req CallbackRequest) (*CallbackResult, error)

	// PendingAccounts returns the staged account candidates for a handle.
	PendingAccounts(ctx context.Context, req PendingRequest) (*PendingAccounts, error)

	// SelectAccount completes a staged connection with the chosen account.
	SelectAccount(ctx context.Context, req SelectAccountRequest) (*domain.ConnectionSummary, error)

	// List returns the team's connections without secrets.
	List(ctx context.Context, teamID string) ([]*domain.ConnectionSummary, error)

	// Get returns one connection without secrets.
	Get(ctx context.Context, teamID string, platform domain.Platform) (*domain.ConnectionSummary, error)

	// Disconnect removes the team's connection to a platform.
	Disconnect(ctx context.Context, teamID string, platform domain.Platform) error
}

// AuthorizeRequest represents a request to start an OAuth flow.
type AuthorizeRequest struct {
	Platform domain.Platform `json:"platform" example:"meta"`
	TeamID   string          `json:"team_id"`
	UserID   string          `json:"user_id"`
}

// AuthorizeResponse contains the authorization URL and state.
type AuthorizeResponse struct {
	// AuthorizationURL is the platform consent screen to redirect the user to.
	AuthorizationURL string `json:"authorization_url"`

	// State is the CSRF token the caller stores in the state cookie.
	State string `json:"state"`

	ExpiresAt time.Time `json:"expires_at"`
}

// CallbackRequest represents the platform redirect plus the stored state cookie.
type CallbackRequest struct {
	Platform domain.Platform

	Code  string
	State string

	// StoredState is the value read from the state cookie; empty when absent.
	StoredState string

	// Error and ErrorDescription are set when the platform reports a failure.
	Error            string
	ErrorDescription string
}

// CallbackOutcome tells the caller where the flow ended.
type CallbackOutcome string

const (
	OutcomePersisted CallbackOutcome = "persisted"
	OutcomeStaged    CallbackOutcome = "staged"
)

// CallbackResult is the successful end of a callback.
type CallbackResult struct {
	Outcome CallbackOutcome

	// Connection is set when Outcome is OutcomePersisted.
	Connection *domain.ConnectionSummary

	// StagingHandle, Candidates and ExpiresAt are set when Outcome is OutcomeStaged.
	StagingHandle string
	Candidates    []domain.AccountCandidate
	ExpiresAt     time.Time

	// Message provides a human-readable status message.
	Message string
}

// PendingRequest identifies a staged connection.
type PendingRequest struct {
	Platform domain.Platform
	Handle   string
	TeamID   string
}

// PendingAccounts is the non-secret view of a staged connection.
type PendingAccounts struct {
	Platform   domain.Platform           `json:"platform"`
	Candidates []domain.AccountCandidate `json:"accounts"`
	ExpiresAt  time.Time                 `json:"expires_at"`
}

// SelectAccountRequest completes a staged connection.
type SelectAccountRequest struct {
	Platform  domain.Platform
	Handle    string
	TeamID    string
	AccountID string
}
