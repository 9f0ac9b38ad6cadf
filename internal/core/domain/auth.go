package domain

// AuthContext contains authenticated user info for request context.
// Sessions are issued by the dashboard; this service only verifies them.
type AuthContext struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	TeamID    string `json:"team_id"`
	SessionID string `json:"session_id"`
}

// HasTeam reports whether the caller belongs to a team.
func (a *AuthContext) HasTeam() bool {
	return a != nil && a.TeamID != ""
}

// TokenClaims represents the session token payload
type TokenClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	TeamID    string `json:"team_id"`
	SessionID string `json:"session_id"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// ToAuthContext converts verified claims into a request auth context.
func (c *TokenClaims) ToAuthContext() *AuthContext {
	return &AuthContext{
		UserID:    c.UserID,
		Email:     c.Email,
		TeamID:    c.TeamID,
		SessionID: c.SessionID,
	}
}
