package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven/mocks"
)

// flowWorld is the per-scenario state of the browser flow.
type flowWorld struct {
	env *testEnv

	state       string
	stateCookie *http.Cookie
	lastParams  url.Values
	location    *url.URL
}

func (w *flowWorld) iAmSignedIn() error {
	w.env.signIn()
	return nil
}

func (w *flowWorld) iStartConnecting(platform string) error {
	state, err := w.env.authorize(domain.Platform(platform))
	if err != nil {
		return err
	}
	w.state = state
	w.stateCookie = w.env.cookie(platform + "_oauth_state")
	if w.stateCookie == nil {
		return errors.New("state cookie not set")
	}
	return nil
}

// platform returns the platform of the flow in progress.
func (w *flowWorld) platform() domain.Platform {
	return domain.Platform(strings.TrimSuffix(w.stateCookie.Name, "_oauth_state"))
}

func (w *flowWorld) redirectBack(params url.Values) error {
	w.lastParams = params
	loc, err := w.env.callback(w.platform(), params)
	if err != nil {
		return err
	}
	w.location = loc
	return nil
}

func (w *flowWorld) redirectsBackWithValidCode() error {
	return w.redirectBack(url.Values{"code": {"auth-code"}, "state": {w.state}})
}

func (w *flowWorld) redirectsBackWithState(state string) error {
	return w.redirectBack(url.Values{"code": {"auth-code"}, "state": {state}})
}

func (w *flowWorld) redirectsBackWithError(code, description string) error {
	return w.redirectBack(url.Values{"state": {w.state}, "error": {code}, "error_description": {description}})
}

func (w *flowWorld) redirectIsReplayed() error {
	w.env.jar.SetCookies(w.env.baseURL(), []*http.Cookie{{Name: w.stateCookie.Name, Value: w.stateCookie.Value, Path: "/"}})
	return w.redirectBack(w.lastParams)
}

func (w *flowWorld) iChooseAccount(accountID, platform string) error {
	loc, err := w.env.selectAccount(domain.Platform(platform), accountID)
	if err != nil {
		return err
	}
	w.location = loc
	return nil
}

func (w *flowWorld) handler(platform string) (*mocks.MockOAuthHandler, error) {
	switch domain.Platform(platform) {
	case domain.PlatformMeta:
		return w.env.meta.MockOAuthHandler, nil
	case domain.PlatformGoogle:
		return w.env.google, nil
	case domain.PlatformX:
		return w.env.x, nil
	}
	return nil, fmt.Errorf("unknown platform %q", platform)
}

func (w *flowWorld) accountListIsEmpty(platform string) error {
	h, err := w.handler(platform)
	if err != nil {
		return err
	}
	h.Profile = &domain.PlatformProfile{UserID: h.Profile.UserID, UserName: h.Profile.UserName}
	return nil
}

func (w *flowWorld) accountListBecomes(platform, id, name string) error {
	h, err := w.handler(platform)
	if err != nil {
		return err
	}
	h.Profile = &domain.PlatformProfile{
		UserID:            h.Profile.UserID,
		UserName:          h.Profile.UserName,
		AccountCandidates: []domain.AccountCandidate{{ID: id, Name: name}},
	}
	return nil
}

func (w *flowWorld) tokenUpgradeFails(platform string) error {
	if domain.Platform(platform) != domain.PlatformMeta {
		return fmt.Errorf("%s has no token upgrade", platform)
	}
	w.env.meta.UpgradeErr = errors.New("graph api unavailable")
	return nil
}

func (w *flowWorld) sentToIntegrationsWithSuccess() error {
	if w.location == nil || pageOf(w.location) != testIntegrationsURL {
		return fmt.Errorf("redirected to %v", w.location)
	}
	if w.location.Query().Get("success") == "" {
		return fmt.Errorf("no success message: error=%q", w.location.Query().Get("error"))
	}
	return nil
}

func (w *flowWorld) sentToIntegrationsWithError() (string, error) {
	if w.location == nil || pageOf(w.location) != testIntegrationsURL {
		return "", fmt.Errorf("redirected to %v", w.location)
	}
	msg := w.location.Query().Get("error")
	if msg == "" {
		return "", errors.New("no error message")
	}
	return msg, nil
}

func (w *flowWorld) errorStartingWith(prefix string) error {
	msg, err := w.sentToIntegrationsWithError()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(msg, prefix) {
		return fmt.Errorf("error %q does not start with %q", msg, prefix)
	}
	return nil
}

func (w *flowWorld) errorContaining(substr string) error {
	msg, err := w.sentToIntegrationsWithError()
	if err != nil {
		return err
	}
	if !strings.Contains(msg, substr) {
		return fmt.Errorf("error %q does not contain %q", msg, substr)
	}
	return nil
}

func (w *flowWorld) sentToSelectAccount() error {
	if w.location == nil || pageOf(w.location) != testSelectAccountURL {
		return fmt.Errorf("redirected to %v", w.location)
	}
	return nil
}

func (w *flowWorld) accountsCookieLists(platform string, n int) error {
	c := w.env.cookie(platform + "_ad_accounts_list")
	if c == nil {
		return errors.New("accounts list cookie not set")
	}
	candidates, err := DecodeAccountList(c.Value)
	if err != nil {
		return err
	}
	if len(candidates) != n {
		return fmt.Errorf("got %d accounts, want %d", len(candidates), n)
	}
	return nil
}

func (w *flowWorld) teamHasConnection(n int, platform, accountID string) error {
	if got := w.env.conns.Len(); got != n {
		return fmt.Errorf("got %d connections, want %d", got, n)
	}
	conn, err := w.env.conns.Get(context.Background(), testTeamID, domain.Platform(platform))
	if err != nil {
		return err
	}
	if conn.PlatformAccountID != accountID {
		return fmt.Errorf("account %q, want %q", conn.PlatformAccountID, accountID)
	}
	return nil
}

func (w *flowWorld) teamHasNoConnection(platform string) error {
	_, err := w.env.conns.Get(context.Background(), testTeamID, domain.Platform(platform))
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("expected no connection, got err=%v", err)
	}
	return nil
}

func (w *flowWorld) stateCookieIsGone(platform string) error {
	if w.env.cookie(platform+"_oauth_state") != nil {
		return errors.New("state cookie still present")
	}
	return nil
}

func (w *flowWorld) noPlatformCall(platform string) error {
	h, err := w.handler(platform)
	if err != nil {
		return err
	}
	if n := h.NetworkCalls(); n != 0 {
		return fmt.Errorf("%d platform calls made", n)
	}
	return nil
}

func (w *flowWorld) codeExchangedOnce(platform string) error {
	h, err := w.handler(platform)
	if err != nil {
		return err
	}
	if h.ExchangeCalls != 1 {
		return fmt.Errorf("code exchanged %d times", h.ExchangeCalls)
	}
	return nil
}

func (w *flowWorld) storedAccessTokenIs(platform, token string) error {
	conn, err := w.env.conns.Get(context.Background(), testTeamID, domain.Platform(platform))
	if err != nil {
		return err
	}
	if conn.Secrets.AccessToken != token {
		return fmt.Errorf("access token %q, want %q", conn.Secrets.AccessToken, token)
	}
	return nil
}

func initializeScenario(sc *godog.ScenarioContext) {
	w := &flowWorld{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		env, err := buildTestEnv()
		if err != nil {
			return ctx, err
		}
		*w = flowWorld{env: env}
		return ctx, nil
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if w.env != nil {
			w.env.close()
		}
		return ctx, nil
	})

	sc.Step(`^I am signed in to a team$`, w.iAmSignedIn)
	sc.Step(`^I start connecting "([^"]*)"$`, w.iStartConnecting)
	sc.Step(`^the platform redirects back with a valid code$`, w.redirectsBackWithValidCode)
	sc.Step(`^the platform redirects back with state "([^"]*)"$`, w.redirectsBackWithState)
	sc.Step(`^the platform redirects back with error "([^"]*)" and description "([^"]*)"$`, w.redirectsBackWithError)
	sc.Step(`^the same redirect is replayed with the original state cookie$`, w.redirectIsReplayed)
	sc.Step(`^I choose account "([^"]*)" for "([^"]*)"$`, w.iChooseAccount)
	sc.Step(`^the "([^"]*)" account list is empty$`, w.accountListIsEmpty)
	sc.Step(`^the "([^"]*)" account list becomes "([^"]*)" named "([^"]*)"$`, w.accountListBecomes)
	sc.Step(`^the "([^"]*)" token upgrade fails$`, w.tokenUpgradeFails)
	sc.Step(`^I am sent to the integrations page with a success message$`, w.sentToIntegrationsWithSuccess)
	sc.Step(`^I am sent to the integrations page with an error starting with "([^"]*)"$`, w.errorStartingWith)
	sc.Step(`^I am sent to the integrations page with an error containing "([^"]*)"$`, w.errorContaining)
	sc.Step(`^I am sent to the select-account page$`, w.sentToSelectAccount)
	sc.Step(`^the "([^"]*)" accounts list cookie lists (\d+) accounts$`, w.accountsCookieLists)
	sc.Step(`^the team has (\d+) connection for "([^"]*)" with account "([^"]*)"$`, w.teamHasConnection)
	sc.Step(`^the team has no connection for "([^"]*)"$`, w.teamHasNoConnection)
	sc.Step(`^the "([^"]*)" state cookie is gone$`, w.stateCookieIsGone)
	sc.Step(`^no platform call was made for "([^"]*)"$`, w.noPlatformCall)
	sc.Step(`^the code was exchanged once for "([^"]*)"$`, w.codeExchangedOnce)
	sc.Step(`^the stored "([^"]*)" access token is "([^"]*)"$`, w.storedAccessTokenIs)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "connection-flow",
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
