package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.OAuthStateStore = (*OAuthStateStore)(nil)

const oauthStatePrefix = keyPrefix + "oauth_state:"

// OAuthStateStore implements driven.OAuthStateStore using Redis.
// States expire through Redis TTL and are consumed with GETDEL.
type OAuthStateStore struct {
	client *redis.Client
}

// NewOAuthStateStore creates a new Redis-backed OAuthStateStore
func NewOAuthStateStore(client *redis.Client) *OAuthStateStore {
	return &OAuthStateStore{client: client}
}

// Save stores a state with TTL based on ExpiresAt.
func (s *OAuthStateStore) Save(ctx context.Context, state *driven.OAuthState) error {
	ttl := time.Until(state.ExpiresAt)
	if ttl <= 0 {
		// Already expired, don't save
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal oauth state: %w", err)
	}

	if err := s.client.Set(ctx, oauthStatePrefix+state.State, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// GetAndDelete atomically retrieves and deletes a state.
func (s *OAuthStateStore) GetAndDelete(ctx context.Context, state string) (*driven.OAuthState, error) {
	data, err := s.client.GetDel(ctx, oauthStatePrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth state: %w", err)
	}

	var result driven.OAuthState
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal oauth state: %w", err)
	}

	// TTL granularity can leave a key alive slightly past ExpiresAt
	if time.Now().After(result.ExpiresAt) {
		return nil, nil
	}
	return &result, nil
}

// Cleanup is a no-op; Redis expires keys itself.
func (s *OAuthStateStore) Cleanup(ctx context.Context) error {
	return nil
}
