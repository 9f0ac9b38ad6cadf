package driven

import "time"

// ClientCredentials are the OAuth app credentials for one platform.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// IsConfigured reports whether both the client id and secret are present.
func (c ClientCredentials) IsConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// OAuthToken is the result of an authorization code exchange.
type OAuthToken struct {
	AccessToken  string
	RefreshToken string
	TokenType    string // Usually "Bearer"
	Scope        string // Space or comma separated, as returned by the platform

	// Expiry is zero when the platform did not report one.
	Expiry time.Time
}

// ExpiresAt returns the expiry as a pointer, nil when unknown.
func (t *OAuthToken) ExpiresAt() *time.Time {
	if t.Expiry.IsZero() {
		return nil
	}
	e := t.Expiry
	return &e
}
