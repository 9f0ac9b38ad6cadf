// Package googleads implements the Google Ads OAuth handler.
package googleads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/custodia-labs/adlink-core/internal/adapters/driven/platforms"
	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

var _ platforms.OAuthHandler = (*OAuthHandler)(nil)

// DefaultAPIVersion is the Google Ads REST API version.
const DefaultAPIVersion = "v17"

// DefaultScopes are the scopes requested on the consent screen.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/adwords",
	googleoauth2.OpenIDScope,
	googleoauth2.UserinfoEmailScope,
	googleoauth2.UserinfoProfileScope,
}

// Endpoints holds the Google URLs. Tests point them at an httptest server.
type Endpoints struct {
	OAuth2 oauth2.Endpoint

	// UserInfoURL is the base path of the OAuth2 v2 API, ending in a slash.
	UserInfoURL string

	// AdsURL is the Google Ads API root.
	AdsURL     string
	APIVersion string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		OAuth2:      google.Endpoint,
		UserInfoURL: "https://www.googleapis.com/",
		AdsURL:      "https://googleads.googleapis.com",
		APIVersion:  DefaultAPIVersion,
	}
}

// Config holds the Google Ads API settings needed for account discovery.
type Config struct {
	// DeveloperToken is required by every Google Ads API call.
	DeveloperToken string

	// LoginCustomerID is the manager account to call through, if any.
	LoginCustomerID string
}

// OAuthHandler handles OAuth operations for Google Ads.
type OAuthHandler struct {
	httpClient *http.Client
	endpoints  Endpoints
	cfg        Config
}

// NewOAuthHandler creates a new Google Ads OAuth handler.
// A nil httpClient uses platforms.DefaultHTTPClient.
func NewOAuthHandler(httpClient *http.Client, endpoints Endpoints, cfg Config) *OAuthHandler {
	if httpClient == nil {
		httpClient = platforms.DefaultHTTPClient()
	}
	if endpoints.APIVersion == "" {
		endpoints.APIVersion = DefaultAPIVersion
	}
	return &OAuthHandler{
		httpClient: httpClient,
		endpoints:  endpoints,
		cfg:        cfg,
	}
}

func (h *OAuthHandler) Platform() domain.Platform { return domain.PlatformGoogle }

func (h *OAuthHandler) SupportsPKCE() bool { return false }

func (h *OAuthHandler) RequiresAccount() bool { return true }

func (h *OAuthHandler) config(creds driven.ClientCredentials, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       DefaultScopes,
		Endpoint:     h.endpoints.OAuth2,
	}
}

// AuthCodeURL constructs the Google consent URL. Offline access with a
// forced consent prompt makes Google return a refresh token every time.
func (h *OAuthHandler) AuthCodeURL(creds driven.ClientCredentials, redirectURI, state, _ string) string {
	return h.config(creds, redirectURI).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// ExchangeCode exchanges an authorization code for tokens.
func (h *OAuthHandler) ExchangeCode(ctx context.Context, creds driven.ClientCredentials, code, redirectURI, _ string) (*driven.OAuthToken, error) {
	return platforms.Exchange(ctx, h.httpClient, h.config(creds, redirectURI), code, "")
}

// FetchProfile fetches the Google user and the Ads customers they can access.
func (h *OAuthHandler) FetchProfile(ctx context.Context, accessToken string) (*domain.PlatformProfile, error) {
	info, err := h.userInfo(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	customers, err := h.listAccessibleCustomers(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	name := info.Name
	if name == "" {
		name = info.Email
	}
	return &domain.PlatformProfile{
		UserID:            info.Id,
		UserName:          name,
		AccountCandidates: customers,
	}, nil
}

func (h *OAuthHandler) userInfo(ctx context.Context, accessToken string) (*googleoauth2.Userinfo, error) {
	clientCtx := context.WithValue(ctx, oauth2.HTTPClient, h.httpClient)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	svc, err := googleoauth2.NewService(ctx,
		option.WithHTTPClient(oauth2.NewClient(clientCtx, ts)),
		option.WithEndpoint(h.endpoints.UserInfoURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return nil, &platforms.Error{Op: "fetch user", StatusCode: gerr.Code, Message: gerr.Message}
		}
		return nil, &platforms.Error{Op: "fetch user", Message: err.Error()}
	}
	if info.Id == "" {
		return nil, &platforms.Error{Op: "fetch user", Message: "response missing user id"}
	}
	return info, nil
}

func (h *OAuthHandler) listAccessibleCustomers(ctx context.Context, accessToken string) ([]domain.AccountCandidate, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)
	header.Set("developer-token", h.cfg.DeveloperToken)
	if h.cfg.LoginCustomerID != "" {
		header.Set("login-customer-id", h.cfg.LoginCustomerID)
	}

	var resp struct {
		ResourceNames []string `json:"resourceNames"`
	}
	rawURL := fmt.Sprintf("%s/%s/customers:listAccessibleCustomers",
		strings.TrimRight(h.endpoints.AdsURL, "/"), h.endpoints.APIVersion)
	if err := platforms.GetJSON(ctx, h.httpClient, "list customers", rawURL, header, &resp); err != nil {
		return nil, err
	}

	candidates := make([]domain.AccountCandidate, 0, len(resp.ResourceNames))
	for _, rn := range resp.ResourceNames {
		id := strings.TrimPrefix(rn, "customers/")
		if id == "" {
			continue
		}
		candidates = append(candidates, domain.AccountCandidate{ID: id, Name: FormatCustomerID(id)})
	}
	return candidates, nil
}

// FormatCustomerID renders a ten digit customer id the way the Ads UI does (123-456-7890).
func FormatCustomerID(id string) string {
	if len(id) != 10 {
		return id
	}
	return id[:3] + "-" + id[3:6] + "-" + id[6:]
}
