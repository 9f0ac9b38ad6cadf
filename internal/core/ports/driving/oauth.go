package driving

import "errors"

// OAuthError represents a failure in the connection bootstrap flow.
// Code identifies the failure class; Description is safe to show to users.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// Is matches OAuthErrors by code so wrapped or re-described errors still
// compare equal to the predefined values below.
func (e *OAuthError) Is(target error) bool {
	t, ok := target.(*OAuthError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// OAuth error codes
const (
	CodeNotConfigured       = "not_configured"
	CodeInvalidState        = "invalid_state"
	CodePlatformDenied      = "platform_denied"
	CodeMissingCode         = "missing_code"
	CodeMissingTeam         = "missing_team"
	CodeExchangeFailed      = "exchange_failed"
	CodeProfileFailed       = "profile_failed"
	CodeNoAccounts          = "no_accounts"
	CodePersistFailed       = "persist_failed"
	CodeStagingExpired      = "staging_expired"
	CodeInvalidAccount      = "invalid_account"
	CodeUnsupportedPlatform = "unsupported_platform"
)

// Common OAuth errors
var (
	ErrOAuthNotConfigured       = &OAuthError{Code: CodeNotConfigured, Description: "The platform integration is not configured"}
	ErrOAuthInvalidState        = &OAuthError{Code: CodeInvalidState, Description: "The state parameter is invalid or expired"}
	ErrOAuthPlatformDenied      = &OAuthError{Code: CodePlatformDenied, Description: "The platform denied the authorization request"}
	ErrOAuthMissingCode         = &OAuthError{Code: CodeMissingCode, Description: "The authorization code is missing"}
	ErrOAuthMissingTeam         = &OAuthError{Code: CodeMissingTeam, Description: "The caller is not associated with a team"}
	ErrOAuthExchangeFailed      = &OAuthError{Code: CodeExchangeFailed, Description: "Failed to exchange authorization code for tokens"}
	ErrOAuthProfileFailed       = &OAuthError{Code: CodeProfileFailed, Description: "Failed to fetch account information"}
	ErrOAuthNoAccounts          = &OAuthError{Code: CodeNoAccounts, Description: "No ad accounts were found"}
	ErrOAuthPersistFailed       = &OAuthError{Code: CodePersistFailed, Description: "Failed to save the connection"}
	ErrOAuthStagingExpired      = &OAuthError{Code: CodeStagingExpired, Description: "The pending connection has expired"}
	ErrOAuthInvalidAccount      = &OAuthError{Code: CodeInvalidAccount, Description: "The selected account is not available"}
	ErrOAuthUnsupportedPlatform = &OAuthError{Code: CodeUnsupportedPlatform, Description: "The platform is not supported"}
)

// AsOAuthError extracts an OAuthError from err's chain.
func AsOAuthError(err error) (*OAuthError, bool) {
	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// withDescription returns a copy of base carrying a more specific description.
func withDescription(base *OAuthError, description string) *OAuthError {
	if description == "" {
		return base
	}
	return &OAuthError{Code: base.Code, Description: description}
}

// NewPlatformDeniedError reports an error the platform returned on the redirect.
func NewPlatformDeniedError(description string) *OAuthError {
	return withDescription(ErrOAuthPlatformDenied, description)
}

// NewExchangeError reports a token endpoint failure with the platform's message.
func NewExchangeError(description string) *OAuthError {
	return withDescription(ErrOAuthExchangeFailed, description)
}

// NewProfileError reports an identity or account listing failure.
func NewProfileError(description string) *OAuthError {
	return withDescription(ErrOAuthProfileFailed, description)
}
