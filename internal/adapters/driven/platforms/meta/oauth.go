// Package meta implements the Meta (Facebook Marketing API) OAuth handler.
package meta

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/adlink-core/internal/adapters/driven/platforms"
	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

var (
	_ platforms.OAuthHandler  = (*OAuthHandler)(nil)
	_ platforms.TokenUpgrader = (*OAuthHandler)(nil)
)

// DefaultGraphVersion is the Graph API version used when none is configured.
const DefaultGraphVersion = "v19.0"

// accountStatusActive is the Graph API account_status for a usable ad account.
const accountStatusActive = 1

// maxAccountPages bounds paging through /me/adaccounts.
const maxAccountPages = 10

// DefaultScopes are the permissions requested on the consent screen.
var DefaultScopes = []string{"ads_management", "ads_read", "business_management"}

// Endpoints holds the Meta URLs. Tests point them at an httptest server.
type Endpoints struct {
	// AuthURL is the consent dialog.
	AuthURL string
	// GraphURL is the versioned Graph API root, e.g. https://graph.facebook.com/v19.0
	GraphURL string
}

// DefaultEndpoints returns the production endpoints for a Graph API version.
func DefaultEndpoints(version string) Endpoints {
	if version == "" {
		version = DefaultGraphVersion
	}
	return Endpoints{
		AuthURL:  "https://www.facebook.com/" + version + "/dialog/oauth",
		GraphURL: "https://graph.facebook.com/" + version,
	}
}

// OAuthHandler handles OAuth operations for Meta.
type OAuthHandler struct {
	httpClient *http.Client
	endpoints  Endpoints
	scopes     []string
}

// NewOAuthHandler creates a new Meta OAuth handler.
// A nil httpClient uses platforms.DefaultHTTPClient.
func NewOAuthHandler(httpClient *http.Client, endpoints Endpoints) *OAuthHandler {
	if httpClient == nil {
		httpClient = platforms.DefaultHTTPClient()
	}
	return &OAuthHandler{
		httpClient: httpClient,
		endpoints:  endpoints,
		scopes:     DefaultScopes,
	}
}

func (h *OAuthHandler) Platform() domain.Platform { return domain.PlatformMeta }

func (h *OAuthHandler) SupportsPKCE() bool { return false }

func (h *OAuthHandler) RequiresAccount() bool { return true }

func (h *OAuthHandler) config(creds driven.ClientCredentials, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       h.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   h.endpoints.AuthURL,
			TokenURL:  h.endpoints.GraphURL + "/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL constructs the Meta consent dialog URL.
func (h *OAuthHandler) AuthCodeURL(creds driven.ClientCredentials, redirectURI, state, _ string) string {
	return h.config(creds, redirectURI).AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for a short-lived user token.
func (h *OAuthHandler) ExchangeCode(ctx context.Context, creds driven.ClientCredentials, code, redirectURI, _ string) (*driven.OAuthToken, error) {
	return platforms.Exchange(ctx, h.httpClient, h.config(creds, redirectURI), code, "")
}

// UpgradeToken swaps a short-lived user token for a long-lived one
// using the fb_exchange_token grant.
func (h *OAuthHandler) UpgradeToken(ctx context.Context, creds driven.ClientCredentials, token *driven.OAuthToken) (*driven.OAuthToken, error) {
	params := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {creds.ClientID},
		"client_secret":     {creds.ClientSecret},
		"fb_exchange_token": {token.AccessToken},
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	rawURL := h.endpoints.GraphURL + "/oauth/access_token?" + params.Encode()
	if err := platforms.GetJSON(ctx, h.httpClient, "token upgrade", rawURL, nil, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &platforms.Error{Op: "token upgrade", Message: "response missing access_token"}
	}

	upgraded := &driven.OAuthToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    resp.TokenType,
		Scope:        token.Scope,
	}
	if resp.ExpiresIn > 0 {
		upgraded.Expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return upgraded, nil
}

type graphUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type graphAdAccount struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AccountStatus int    `json:"account_status"`
}

type graphAdAccountPage struct {
	Data   []graphAdAccount `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// FetchProfile fetches the Meta user and their usable ad accounts.
func (h *OAuthHandler) FetchProfile(ctx context.Context, accessToken string) (*domain.PlatformProfile, error) {
	var user graphUser
	meURL := h.graphURL("/me", url.Values{
		"fields":       {"id,name"},
		"access_token": {accessToken},
	})
	if err := platforms.GetJSON(ctx, h.httpClient, "fetch user", meURL, nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, &platforms.Error{Op: "fetch user", Message: "response missing user id"}
	}

	accounts, err := h.listAdAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	return &domain.PlatformProfile{
		UserID:            user.ID,
		UserName:          user.Name,
		AccountCandidates: accounts,
	}, nil
}

func (h *OAuthHandler) listAdAccounts(ctx context.Context, accessToken string) ([]domain.AccountCandidate, error) {
	next := h.graphURL("/me/adaccounts", url.Values{
		"fields":       {"id,name,account_status"},
		"limit":        {"100"},
		"access_token": {accessToken},
	})

	candidates := make([]domain.AccountCandidate, 0)
	for page := 0; next != "" && page < maxAccountPages; page++ {
		var resp graphAdAccountPage
		if err := platforms.GetJSON(ctx, h.httpClient, "list ad accounts", next, nil, &resp); err != nil {
			return nil, err
		}
		for _, acct := range resp.Data {
			// account_status is omitted when the token lacks ads_read
			if acct.ID == "" || (acct.AccountStatus != 0 && acct.AccountStatus != accountStatusActive) {
				continue
			}
			name := acct.Name
			if name == "" {
				name = acct.ID
			}
			candidates = append(candidates, domain.AccountCandidate{ID: acct.ID, Name: name})
		}
		next = resp.Paging.Next
	}
	return candidates, nil
}

func (h *OAuthHandler) graphURL(path string, params url.Values) string {
	return fmt.Sprintf("%s/%s?%s", strings.TrimRight(h.endpoints.GraphURL, "/"), strings.TrimLeft(path, "/"), params.Encode())
}
