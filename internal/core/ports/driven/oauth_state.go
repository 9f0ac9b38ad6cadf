package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
)

// OAuthState represents a pending OAuth authorization round trip.
// It binds the state token to the team that started the flow.
type OAuthState struct {
	// State is a cryptographically random string used for CSRF protection.
	State string `json:"state"`

	// Platform is the ad platform being connected.
	Platform domain.Platform `json:"platform"`

	// TeamID and UserID identify who started the flow.
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`

	// CodeVerifier is the PKCE code verifier (plain text).
	// Empty for platforms that do not use PKCE.
	CodeVerifier string `json:"code_verifier,omitempty"`

	// RedirectURI is the exact callback URL sent in the authorization request.
	// Platforms validate it byte-for-byte during code exchange.
	RedirectURI string `json:"redirect_uri"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OAuthStateStore manages OAuth flow state for CSRF protection.
// States are single-use and expire after a short period.
type OAuthStateStore interface {
	// Save stores a new OAuth state.
	Save(ctx context.Context, state *OAuthState) error

	// GetAndDelete atomically retrieves and deletes the state.
	// Returns nil, nil if the state doesn't exist or has expired.
	GetAndDelete(ctx context.Context, state string) (*OAuthState, error)

	// Cleanup removes expired states.
	Cleanup(ctx context.Context) error
}
