package platforms

import (
	"context"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

// OAuthHandler provides the OAuth operations for one ad platform.
// The bootstrap state machine is written once against this interface;
// each platform supplies endpoints, field names and account discovery.
type OAuthHandler interface {
	// Platform returns the platform this handler serves.
	Platform() domain.Platform

	// AuthCodeURL constructs the consent-screen URL.
	// codeVerifier is empty unless SupportsPKCE is true.
	AuthCodeURL(creds driven.ClientCredentials, redirectURI, state, codeVerifier string) string

	// ExchangeCode trades an authorization code for tokens.
	// redirectURI must be byte-identical to the one used in AuthCodeURL.
	ExchangeCode(ctx context.Context, creds driven.ClientCredentials, code, redirectURI, codeVerifier string) (*driven.OAuthToken, error)

	// FetchProfile fetches the platform user and the ad accounts they can use.
	// It makes no selection among accounts.
	FetchProfile(ctx context.Context, accessToken string) (*domain.PlatformProfile, error)

	// SupportsPKCE indicates the platform expects a PKCE code challenge.
	SupportsPKCE() bool

	// RequiresAccount indicates a connection is unusable without at least one ad account.
	RequiresAccount() bool
}

// TokenUpgrader is implemented by platforms that can swap a short-lived
// access token for a long-lived one.
type TokenUpgrader interface {
	UpgradeToken(ctx context.Context, creds driven.ClientCredentials, token *driven.OAuthToken) (*driven.OAuthToken, error)
}
