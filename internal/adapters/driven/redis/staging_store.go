package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/adlink-core/internal/adapters/driven/secrets"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.StagingStore = (*StagingStore)(nil)

const stagingPrefix = keyPrefix + "staging:"

// StagingStore implements driven.StagingStore using Redis.
// Each entry is a single encrypted blob bound to its handle.
type StagingStore struct {
	client    *redis.Client
	encryptor *secrets.SecretEncryptor
}

// NewStagingStore creates a new Redis-backed StagingStore
func NewStagingStore(client *redis.Client, encryptor *secrets.SecretEncryptor) *StagingStore {
	return &StagingStore{client: client, encryptor: encryptor}
}

func (s *StagingStore) Save(ctx context.Context, staged *driven.StagedConnection) error {
	ttl := time.Until(staged.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	blob, err := s.encryptor.Encrypt(staged, secrets.AAD("staging", staged.Handle))
	if err != nil {
		return fmt.Errorf("failed to encrypt staged connection: %w", err)
	}

	if err := s.client.Set(ctx, stagingPrefix+staged.Handle, blob, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save staged connection: %w", err)
	}
	return nil
}

func (s *StagingStore) Get(ctx context.Context, handle string) (*driven.StagedConnection, error) {
	blob, err := s.client.Get(ctx, stagingPrefix+handle).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staged connection: %w", err)
	}

	var staged driven.StagedConnection
	if err := s.encryptor.Decrypt(blob, secrets.AAD("staging", handle), &staged); err != nil {
		return nil, fmt.Errorf("failed to decrypt staged connection: %w", err)
	}

	if time.Now().After(staged.ExpiresAt) {
		return nil, nil
	}
	return &staged, nil
}

func (s *StagingStore) Delete(ctx context.Context, handle string) error {
	if err := s.client.Del(ctx, stagingPrefix+handle).Err(); err != nil {
		return fmt.Errorf("failed to delete staged connection: %w", err)
	}
	return nil
}

// Cleanup is a no-op; Redis expires keys itself.
func (s *StagingStore) Cleanup(ctx context.Context) error {
	return nil
}
