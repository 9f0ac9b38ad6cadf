package domain

import "time"

// ConnectionStatus is the lifecycle state of a platform connection.
type ConnectionStatus string

const (
	ConnectionStatusActive  ConnectionStatus = "active"
	ConnectionStatusRevoked ConnectionStatus = "revoked"
	ConnectionStatusError   ConnectionStatus = "error"
)

// PlatformConnection is the persisted credential record for one team on one
// ad platform. There is at most one per (TeamID, Platform).
type PlatformConnection struct {
	ID       string   `json:"id"`
	TeamID   string   `json:"team_id"`
	Platform Platform `json:"platform"`

	// Secrets contains decrypted token values (never persisted as-is).
	// Populated when fetched with secrets, nil on summaries.
	Secrets *ConnectionSecrets `json:"-"`

	// TokenExpiresAt is nil when the token does not expire or the expiry is unknown.
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	Scopes         string     `json:"scopes,omitempty"`

	PlatformUserID      string `json:"platform_user_id,omitempty"`
	PlatformUserName    string `json:"platform_user_name,omitempty"`
	PlatformAccountID   string `json:"platform_account_id,omitempty"`
	PlatformAccountName string `json:"platform_account_name,omitempty"`

	Status    ConnectionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ConnectionSecrets contains decrypted token values.
// These are encrypted before storage and decrypted on retrieval.
type ConnectionSecrets struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ConnectionSummary is a safe view without secrets.
type ConnectionSummary struct {
	ID                  string           `json:"id"`
	Platform            Platform         `json:"platform"`
	PlatformUserID      string           `json:"platform_user_id,omitempty"`
	PlatformUserName    string           `json:"platform_user_name,omitempty"`
	PlatformAccountID   string           `json:"platform_account_id,omitempty"`
	PlatformAccountName string           `json:"platform_account_name,omitempty"`
	Scopes              string           `json:"scopes,omitempty"`
	TokenExpiresAt      *time.Time       `json:"token_expires_at,omitempty"`
	Status              ConnectionStatus `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// ToSummary converts PlatformConnection to ConnectionSummary.
func (c *PlatformConnection) ToSummary() *ConnectionSummary {
	return &ConnectionSummary{
		ID:                  c.ID,
		Platform:            c.Platform,
		PlatformUserID:      c.PlatformUserID,
		PlatformUserName:    c.PlatformUserName,
		PlatformAccountID:   c.PlatformAccountID,
		PlatformAccountName: c.PlatformAccountName,
		Scopes:              c.Scopes,
		TokenExpiresAt:      c.TokenExpiresAt,
		Status:              c.Status,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

// IsExpired returns true if the stored access token has passed its expiry.
func (c *PlatformConnection) IsExpired() bool {
	if c.TokenExpiresAt == nil {
		return false
	}
	return time.Now().After(*c.TokenExpiresAt)
}
