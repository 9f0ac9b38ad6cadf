package mocks

import (
	"context"
	"net/url"
	"sync"

	"github.com/custodia-labs/adlink-core/internal/adapters/driven/platforms"
	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

var (
	_ platforms.OAuthHandler  = (*MockOAuthHandler)(nil)
	_ platforms.OAuthHandler  = (*MockUpgradingOAuthHandler)(nil)
	_ platforms.TokenUpgrader = (*MockUpgradingOAuthHandler)(nil)
)

// MockOAuthHandler is a scripted platform OAuth handler for testing.
// It records every call so tests can assert that no network step ran.
type MockOAuthHandler struct {
	mu sync.Mutex

	PlatformValue   domain.Platform
	PKCE            bool
	AccountRequired bool

	Token       *driven.OAuthToken
	ExchangeErr error
	Profile     *domain.PlatformProfile
	ProfileErr  error

	ExchangeCalls    int
	ProfileCalls     int
	LastCode         string
	LastRedirectURI  string
	LastCodeVerifier string
	LastAccessToken  string
}

// NewMockOAuthHandler creates a handler that returns token and profile.
func NewMockOAuthHandler(platform domain.Platform, token *driven.OAuthToken, profile *domain.PlatformProfile) *MockOAuthHandler {
	return &MockOAuthHandler{
		PlatformValue:   platform,
		AccountRequired: platform != domain.PlatformX,
		PKCE:            platform == domain.PlatformX,
		Token:           token,
		Profile:         profile,
	}
}

func (m *MockOAuthHandler) Platform() domain.Platform {
	return m.PlatformValue
}

func (m *MockOAuthHandler) AuthCodeURL(creds driven.ClientCredentials, redirectURI, state, codeVerifier string) string {
	q := url.Values{}
	q.Set("client_id", creds.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("response_type", "code")
	if codeVerifier != "" {
		q.Set("code_challenge_method", "S256")
	}
	return "https://auth.example.com/" + string(m.PlatformValue) + "/authorize?" + q.Encode()
}

func (m *MockOAuthHandler) ExchangeCode(ctx context.Context, creds driven.ClientCredentials, code, redirectURI, codeVerifier string) (*driven.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExchangeCalls++
	m.LastCode = code
	m.LastRedirectURI = redirectURI
	m.LastCodeVerifier = codeVerifier
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	tok := *m.Token
	return &tok, nil
}

func (m *MockOAuthHandler) FetchProfile(ctx context.Context, accessToken string) (*domain.PlatformProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ProfileCalls++
	m.LastAccessToken = accessToken
	if m.ProfileErr != nil {
		return nil, m.ProfileErr
	}
	p := *m.Profile
	p.AccountCandidates = append([]domain.AccountCandidate(nil), m.Profile.AccountCandidates...)
	return &p, nil
}

func (m *MockOAuthHandler) SupportsPKCE() bool {
	return m.PKCE
}

func (m *MockOAuthHandler) RequiresAccount() bool {
	return m.AccountRequired
}

// NetworkCalls returns the number of exchange and profile calls made.
func (m *MockOAuthHandler) NetworkCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExchangeCalls + m.ProfileCalls
}

// MockUpgradingOAuthHandler adds a scripted long-lived token upgrade.
type MockUpgradingOAuthHandler struct {
	*MockOAuthHandler

	Upgraded   *driven.OAuthToken
	UpgradeErr error

	UpgradeCalls int
}

func (m *MockUpgradingOAuthHandler) UpgradeToken(ctx context.Context, creds driven.ClientCredentials, token *driven.OAuthToken) (*driven.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpgradeCalls++
	if m.UpgradeErr != nil {
		return nil, m.UpgradeErr
	}
	tok := *m.Upgraded
	return &tok, nil
}
