package driven

import "github.com/custodia-labs/adlink-core/internal/core/domain"

// AuthAdapter handles session token cryptographic operations.
// Sessions are minted by the dashboard with a shared secret.
type AuthAdapter interface {
	GenerateToken(claims *domain.TokenClaims) (string, error)
	ParseToken(token string) (*domain.TokenClaims, error)
}
