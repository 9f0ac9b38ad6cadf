package driven

import (
	"context"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
)

// ConnectionStore persists platform connections with encrypted tokens.
type ConnectionStore interface {
	// Upsert inserts the connection, or overwrites every mutable field of the
	// existing row for (TeamID, Platform), in a single atomic statement.
	// ID, CreatedAt and UpdatedAt are filled in from the stored row.
	Upsert(ctx context.Context, conn *domain.PlatformConnection) error

	// Get retrieves the connection for a team and platform with decrypted secrets.
	// Returns domain.ErrNotFound if it doesn't exist.
	Get(ctx context.Context, teamID string, platform domain.Platform) (*domain.PlatformConnection, error)

	// List retrieves all connections for a team as summaries (no secrets).
	List(ctx context.Context, teamID string) ([]*domain.ConnectionSummary, error)

	// Delete removes the connection for a team and platform.
	// Returns domain.ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, teamID string, platform domain.Platform) error
}
