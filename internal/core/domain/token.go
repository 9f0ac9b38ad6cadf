package domain

import "time"

// AccountCandidate is an ad account the user may connect.
// It never carries secrets and is safe to show in the browser.
type AccountCandidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlatformProfile is the identity and account list fetched with a fresh token.
type PlatformProfile struct {
	UserID            string             `json:"user_id"`
	UserName          string             `json:"user_name,omitempty"`
	AccountCandidates []AccountCandidate `json:"account_candidates"`
}

// TokenBundle is the transient result of code exchange plus profile fetch.
// It is either persisted immediately or staged pending account selection.
type TokenBundle struct {
	AccessToken       string             `json:"access_token"`
	RefreshToken      string             `json:"refresh_token,omitempty"`
	ExpiresAt         *time.Time         `json:"expires_at,omitempty"`
	Scopes            string             `json:"scopes,omitempty"`
	PlatformUserID    string             `json:"platform_user_id,omitempty"`
	PlatformUserName  string             `json:"platform_user_name,omitempty"`
	AccountCandidates []AccountCandidate `json:"account_candidates"`
}

// Candidate returns the candidate with the given id.
func (b *TokenBundle) Candidate(id string) (AccountCandidate, bool) {
	for _, c := range b.AccountCandidates {
		if c.ID == id {
			return c, true
		}
	}
	return AccountCandidate{}, false
}
