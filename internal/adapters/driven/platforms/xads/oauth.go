// Package xads implements the X (Twitter) Ads OAuth 2.0 handler.
package xads

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/adlink-core/internal/adapters/driven/platforms"
	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

var _ platforms.OAuthHandler = (*OAuthHandler)(nil)

// DefaultScopes are the scopes requested on the consent screen.
// offline.access is what makes X issue a refresh token.
var DefaultScopes = []string{"tweet.read", "users.read", "offline.access"}

// Endpoints holds the X URLs. Tests point them at an httptest server.
type Endpoints struct {
	AuthURL  string
	TokenURL string
	// APIURL is the v2 API root.
	APIURL string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthURL:  "https://twitter.com/i/oauth2/authorize",
		TokenURL: "https://api.twitter.com/2/oauth2/token",
		APIURL:   "https://api.twitter.com/2",
	}
}

// OAuthHandler handles OAuth operations for X.
type OAuthHandler struct {
	httpClient *http.Client
	endpoints  Endpoints
}

// NewOAuthHandler creates a new X OAuth handler.
// A nil httpClient uses platforms.DefaultHTTPClient.
func NewOAuthHandler(httpClient *http.Client, endpoints Endpoints) *OAuthHandler {
	if httpClient == nil {
		httpClient = platforms.DefaultHTTPClient()
	}
	return &OAuthHandler{
		httpClient: httpClient,
		endpoints:  endpoints,
	}
}

func (h *OAuthHandler) Platform() domain.Platform { return domain.PlatformX }

// SupportsPKCE is true: X rejects authorization requests without a code challenge.
func (h *OAuthHandler) SupportsPKCE() bool { return true }

// RequiresAccount is false: the connected account is the authorizing user.
func (h *OAuthHandler) RequiresAccount() bool { return false }

func (h *OAuthHandler) config(creds driven.ClientCredentials, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       DefaultScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   h.endpoints.AuthURL,
			TokenURL:  h.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthCodeURL constructs the X consent URL with an S256 code challenge.
func (h *OAuthHandler) AuthCodeURL(creds driven.ClientCredentials, redirectURI, state, codeVerifier string) string {
	return h.config(creds, redirectURI).AuthCodeURL(state, oauth2.S256ChallengeOption(codeVerifier))
}

// ExchangeCode exchanges an authorization code and PKCE verifier for tokens.
func (h *OAuthHandler) ExchangeCode(ctx context.Context, creds driven.ClientCredentials, code, redirectURI, codeVerifier string) (*driven.OAuthToken, error) {
	return platforms.Exchange(ctx, h.httpClient, h.config(creds, redirectURI), code, codeVerifier)
}

// FetchProfile fetches the authorizing X user, who is also the only account candidate.
func (h *OAuthHandler) FetchProfile(ctx context.Context, accessToken string) (*domain.PlatformProfile, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	var resp struct {
		Data struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"data"`
	}
	rawURL := strings.TrimRight(h.endpoints.APIURL, "/") + "/users/me"
	if err := platforms.GetJSON(ctx, h.httpClient, "fetch user", rawURL, header, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, &platforms.Error{Op: "fetch user", Message: "response missing user id"}
	}

	handle := resp.Data.Username
	if handle != "" {
		handle = "@" + handle
	} else {
		handle = resp.Data.Name
	}

	return &domain.PlatformProfile{
		UserID:   resp.Data.ID,
		UserName: resp.Data.Name,
		AccountCandidates: []domain.AccountCandidate{
			{ID: resp.Data.ID, Name: handle},
		},
	}, nil
}
