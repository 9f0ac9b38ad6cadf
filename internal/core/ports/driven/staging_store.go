package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
)

// StagedConnection holds a token bundle while the user picks an ad account.
type StagedConnection struct {
	// Handle is the opaque key handed to the browser (inside a signed cookie).
	Handle   string          `json:"handle"`
	Platform domain.Platform `json:"platform"`
	TeamID   string          `json:"team_id"`
	UserID   string          `json:"user_id"`

	// Bundle includes secrets; stores must encrypt it at rest.
	Bundle domain.TokenBundle `json:"bundle"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StagingStore is a short-TTL store for credentials awaiting account selection.
type StagingStore interface {
	// Save stores a staged connection until its ExpiresAt.
	Save(ctx context.Context, staged *StagedConnection) error

	// Get returns the staged connection for a handle.
	// Returns nil, nil if the handle is unknown or expired.
	Get(ctx context.Context, handle string) (*StagedConnection, error)

	// Delete removes a staged connection. Deleting a missing handle is not an error.
	Delete(ctx context.Context, handle string) error

	// Cleanup removes expired entries.
	Cleanup(ctx context.Context) error
}
