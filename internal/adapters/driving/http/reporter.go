package http

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driving"
)

// maxDetailLength caps platform-provided text carried in a redirect.
const maxDetailLength = 200

const genericErrorMessage = "Something went wrong while connecting. Please try again."

// Outcome is the end of a browser flow.
type Outcome struct {
	Platform domain.Platform

	// Err is set when the flow failed.
	Err error

	// Staged is set when the user must pick an ad account. Combined with
	// Err it sends the user back to the selection page with the error.
	Staged bool

	// Message is the success text shown on the integrations page.
	Message string
}

// Reporter maps every end of the browser flow to a redirect toward the
// integrations page, with either a success or an error query parameter.
type Reporter struct {
	integrationsURL  *url.URL
	selectAccountURL *url.URL
	policy           *bluemonday.Policy
}

// NewReporter creates a reporter for the given pages.
func NewReporter(integrationsURL, selectAccountURL string) (*Reporter, error) {
	integrations, err := parseAbsoluteURL(integrationsURL)
	if err != nil {
		return nil, fmt.Errorf("integrations url: %w", err)
	}
	selectAccount, err := parseAbsoluteURL(selectAccountURL)
	if err != nil {
		return nil, fmt.Errorf("select account url: %w", err)
	}
	return &Reporter{
		integrationsURL:  integrations,
		selectAccountURL: selectAccount,
		policy:           bluemonday.StrictPolicy(),
	}, nil
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", domain.ErrInvalidInput, raw)
	}
	return u, nil
}

// ToRedirect returns the URL the browser is sent to.
func (r *Reporter) ToRedirect(o Outcome) string {
	switch {
	case o.Err != nil && o.Staged:
		return r.withParams(r.selectAccountURL, o.Platform, "error", r.Message(o.Platform, o.Err))
	case o.Err != nil:
		return r.withParams(r.integrationsURL, o.Platform, "error", r.Message(o.Platform, o.Err))
	case o.Staged:
		return r.withParams(r.selectAccountURL, o.Platform, "", "")
	default:
		msg := o.Message
		if msg == "" {
			msg = fmt.Sprintf("Successfully connected to %s", o.Platform.DisplayName())
		}
		return r.withParams(r.integrationsURL, o.Platform, "success", msg)
	}
}

func (r *Reporter) withParams(base *url.URL, platform domain.Platform, key, value string) string {
	u := *base
	q := u.Query()
	if platform != "" {
		q.Set("platform", string(platform))
	}
	if key != "" {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Message returns the human-readable text for a flow error. Expected and
// received state values are never included.
func (r *Reporter) Message(platform domain.Platform, err error) string {
	name := platform.DisplayName()
	if name == "" {
		name = "the platform"
	}

	oe, ok := driving.AsOAuthError(err)
	if !ok {
		switch {
		case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTokenExpired), errors.Is(err, domain.ErrTokenInvalid):
			return "Your session has expired. Please sign in again."
		case errors.Is(err, domain.ErrNoTeam):
			return "You must belong to a team to connect an ad platform."
		}
		return genericErrorMessage
	}

	switch oe.Code {
	case driving.CodeInvalidState:
		return "Invalid state parameter. Please start the connection again."
	case driving.CodeNotConfigured:
		return fmt.Sprintf("%s integration is not configured. Contact your administrator.", name)
	case driving.CodePlatformDenied:
		return r.withDetail(fmt.Sprintf("%s authorization was declined", name), oe, driving.ErrOAuthPlatformDenied)
	case driving.CodeMissingCode:
		return fmt.Sprintf("No authorization code received from %s. Please try again.", name)
	case driving.CodeMissingTeam:
		return "You must belong to a team to connect an ad platform."
	case driving.CodeExchangeFailed:
		return r.withDetail(fmt.Sprintf("Failed to connect to %s", name), oe, driving.ErrOAuthExchangeFailed)
	case driving.CodeProfileFailed:
		return r.withDetail(fmt.Sprintf("Failed to fetch %s account information", name), oe, driving.ErrOAuthProfileFailed)
	case driving.CodeNoAccounts:
		return fmt.Sprintf("No ad accounts found on %s. Create or get access to an ad account, then try again.", name)
	case driving.CodePersistFailed:
		return fmt.Sprintf("Failed to save the %s connection. Please try again.", name)
	case driving.CodeStagingExpired:
		return "Your account selection has expired. Please start the connection again."
	case driving.CodeInvalidAccount:
		return "The selected account is not available. Please choose another."
	case driving.CodeUnsupportedPlatform:
		return "This platform is not supported."
	}
	return genericErrorMessage
}

// withDetail appends the platform's own description when it differs from
// the stock one.
func (r *Reporter) withDetail(prefix string, oe, stock *driving.OAuthError) string {
	if oe.Description == "" || oe.Description == stock.Description {
		return prefix + "."
	}
	detail := r.Sanitize(oe.Description)
	if detail == "" {
		return prefix + "."
	}
	return prefix + ": " + detail
}

// Sanitize strips markup and control characters from platform-provided
// text and truncates it.
func (r *Reporter) Sanitize(s string) string {
	// The policy strips markup but entity-escapes what it keeps; the text
	// travels in a query string, not HTML.
	s = html.UnescapeString(r.policy.Sanitize(s))
	s = strings.Map(func(c rune) rune {
		if c < 0x20 || c == 0x7f {
			return ' '
		}
		return c
	}, s)
	s = strings.Join(strings.Fields(s), " ")

	if utf8.RuneCountInString(s) > maxDetailLength {
		runes := []rune(s)
		s = string(runes[:maxDetailLength]) + "..."
	}
	return s
}
