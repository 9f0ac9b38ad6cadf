package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/adlink-core/internal/adapters/driven/platforms"
	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/adlink-core/internal/core/services"
)

const (
	testIntegrationsURL  = "https://dash.example.com/integrations"
	testSelectAccountURL = "https://dash.example.com/integrations/select-account"
	testTeamID           = "team-1"
	testUserID           = "user-1"
)

var testCookieKey = []byte("0123456789abcdef0123456789abcdef")

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// testEnv runs the full HTTP stack against in-memory stores and scripted
// platform handlers.
type testEnv struct {
	ts     *httptest.Server
	client *http.Client
	jar    *cookiejar.Jar

	states  *mocks.MockOAuthStateStore
	staging *mocks.MockStagingStore
	conns   *mocks.MockConnectionStore
	meta    *mocks.MockUpgradingOAuthHandler
	google  *mocks.MockOAuthHandler
	x       *mocks.MockOAuthHandler

	auth    *mocks.MockAuthAdapter
	session string
	dbErr   error
}

func buildTestEnv() (*testEnv, error) {
	env := &testEnv{
		states:  mocks.NewMockOAuthStateStore(),
		staging: mocks.NewMockStagingStore(),
		conns:   mocks.NewMockConnectionStore(),
		auth:    mocks.NewMockAuthAdapter(),
	}

	env.meta = &mocks.MockUpgradingOAuthHandler{
		MockOAuthHandler: mocks.NewMockOAuthHandler(domain.PlatformMeta,
			&driven.OAuthToken{AccessToken: "short-token", Scope: "ads_read,ads_management", Expiry: time.Now().Add(time.Hour)},
			&domain.PlatformProfile{
				UserID:            "fb-user",
				UserName:          "Jane Doe",
				AccountCandidates: []domain.AccountCandidate{{ID: "act_1", Name: "Acme"}},
			}),
		Upgraded: &driven.OAuthToken{AccessToken: "long-token", Expiry: time.Now().Add(60 * 24 * time.Hour)},
	}
	env.google = mocks.NewMockOAuthHandler(domain.PlatformGoogle,
		&driven.OAuthToken{AccessToken: "ya29", RefreshToken: "1//refresh"},
		&domain.PlatformProfile{
			UserID: "g-user",
			AccountCandidates: []domain.AccountCandidate{
				{ID: "123-456-7890", Name: "123-456-7890"},
				{ID: "555-555-5555", Name: "555-555-5555"},
			},
		})
	env.x = mocks.NewMockOAuthHandler(domain.PlatformX,
		&driven.OAuthToken{AccessToken: "x-access", RefreshToken: "x-refresh"},
		&domain.PlatformProfile{
			UserID:            "2244994945",
			UserName:          "Acme Ads",
			AccountCandidates: []domain.AccountCandidate{{ID: "2244994945", Name: "@acme"}},
		})

	svc := services.NewConnectionService(services.ConnectionServiceConfig{
		StateStore:      env.states,
		StagingStore:    env.staging,
		ConnectionStore: env.conns,
		Registry:        platforms.NewRegistry(env.meta, env.google, env.x),
		Credentials: map[domain.Platform]driven.ClientCredentials{
			domain.PlatformMeta:   {ClientID: "meta-id", ClientSecret: "meta-secret"},
			domain.PlatformGoogle: {ClientID: "google-id", ClientSecret: "google-secret"},
			domain.PlatformX:      {ClientID: "x-id", ClientSecret: "x-secret"},
		},
		BaseURL: "https://api.example.com",
		Logger:  zap.NewNop(),
	})

	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	cfg.IntegrationsURL = testIntegrationsURL
	cfg.SelectAccountURL = testSelectAccountURL
	cfg.CookieHashKey = testCookieKey
	cfg.CookieSecure = false
	cfg.AllowedOrigins = []string{"https://dash.example.com"}

	srv, err := NewServer(cfg, svc, env.auth, map[string]Pinger{
		"postgres": pingerFunc(func(ctx context.Context) error { return env.dbErr }),
		"redis":    nil,
	}, zap.NewNop())
	if err != nil {
		return nil, err
	}

	env.ts = httptest.NewServer(srv.Handler())

	jar, err := cookiejar.New(nil)
	if err != nil {
		env.ts.Close()
		return nil, err
	}
	env.jar = jar
	env.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	env.session, err = env.auth.GenerateToken(&domain.TokenClaims{
		UserID:    testUserID,
		Email:     "jane@example.com",
		TeamID:    testTeamID,
		SessionID: "session-1",
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		env.ts.Close()
		return nil, err
	}
	return env, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env, err := buildTestEnv()
	if err != nil {
		t.Fatalf("build test env: %v", err)
	}
	t.Cleanup(env.close)
	return env
}

func (e *testEnv) close() {
	e.ts.Close()
}

func (e *testEnv) baseURL() *url.URL {
	u, _ := url.Parse(e.ts.URL)
	return u
}

// signIn stores the dashboard session cookie in the browser jar.
func (e *testEnv) signIn() {
	e.jar.SetCookies(e.baseURL(), []*http.Cookie{{Name: sessionCookieName, Value: e.session, Path: "/"}})
}

func (e *testEnv) cookie(name string) *http.Cookie {
	for _, c := range e.jar.Cookies(e.baseURL()) {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (e *testEnv) do(method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return e.client.Do(req)
}

// browse issues a browser GET and returns the response with its body drained.
func (e *testEnv) browse(path string) (*http.Response, error) {
	resp, err := e.do(http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp, nil
}

// authorize starts a flow and returns the state from the consent URL.
func (e *testEnv) authorize(platform domain.Platform) (string, error) {
	resp, err := e.browse("/api/v1/connections/" + string(platform) + "/authorize")
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusFound {
		return "", errors.New("authorize: unexpected status " + resp.Status + " to " + resp.Header.Get("Location"))
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		return "", err
	}
	return loc.Query().Get("state"), nil
}

// callback simulates the platform redirecting the browser back.
func (e *testEnv) callback(platform domain.Platform, params url.Values) (*url.URL, error) {
	resp, err := e.browse("/api/v1/connections/" + string(platform) + "/callback?" + params.Encode())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusSeeOther {
		return nil, errors.New("callback: unexpected status " + resp.Status)
	}
	return url.Parse(resp.Header.Get("Location"))
}

// selectAccount posts the select-account form.
func (e *testEnv) selectAccount(platform domain.Platform, accountID string) (*url.URL, error) {
	form := url.Values{"account_id": {accountID}}
	resp, err := e.do(http.MethodPost, "/api/v1/connections/"+string(platform)+"/select",
		strings.NewReader(form.Encode()),
		http.Header{"Content-Type": {"application/x-www-form-urlencoded"}})
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		return nil, errors.New("select: unexpected status " + resp.Status)
	}
	return url.Parse(resp.Header.Get("Location"))
}

// api issues a JSON request authenticated with the Bearer header only.
func (e *testEnv) api(method, path string) (*http.Response, error) {
	return e.do(method, path, nil, http.Header{"Authorization": {"Bearer " + e.session}})
}

func pageOf(u *url.URL) string {
	return u.Scheme + "://" + u.Host + u.Path
}
