package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/adlink-core/internal/adapters/driven/secrets"
	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

// Ensure StagingStore implements the interface.
var _ driven.StagingStore = (*StagingStore)(nil)

// StagingStore implements driven.StagingStore using PostgreSQL.
// The token bundle is stored as one encrypted blob.
type StagingStore struct {
	db        *sql.DB
	encryptor *secrets.SecretEncryptor
}

// NewStagingStore creates a new PostgreSQL-backed staging store.
func NewStagingStore(db *sql.DB, encryptor *secrets.SecretEncryptor) *StagingStore {
	return &StagingStore{db: db, encryptor: encryptor}
}

func bundleAAD(handle, teamID string, platform domain.Platform) []byte {
	return secrets.AAD("staging", handle, teamID, string(platform))
}

func (s *StagingStore) Save(ctx context.Context, staged *driven.StagedConnection) error {
	blob, err := s.encryptor.Encrypt(staged.Bundle, bundleAAD(staged.Handle, staged.TeamID, staged.Platform))
	if err != nil {
		return fmt.Errorf("encrypt staged bundle: %w", err)
	}

	query := `
		INSERT INTO staged_connections (handle, platform, team_id, user_id, bundle_blob, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		staged.Handle,
		staged.Platform,
		staged.TeamID,
		staged.UserID,
		blob,
		staged.CreatedAt,
		staged.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save staged connection: %w", err)
	}
	return nil
}

func (s *StagingStore) Get(ctx context.Context, handle string) (*driven.StagedConnection, error) {
	query := `
		SELECT handle, platform, team_id, user_id, bundle_blob, created_at, expires_at
		FROM staged_connections
		WHERE handle = $1 AND expires_at > NOW()
	`

	var staged driven.StagedConnection
	var blob []byte
	err := s.db.QueryRowContext(ctx, query, handle).Scan(
		&staged.Handle,
		&staged.Platform,
		&staged.TeamID,
		&staged.UserID,
		&blob,
		&staged.CreatedAt,
		&staged.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staged connection: %w", err)
	}

	if err := s.encryptor.Decrypt(blob, bundleAAD(staged.Handle, staged.TeamID, staged.Platform), &staged.Bundle); err != nil {
		return nil, fmt.Errorf("decrypt staged bundle: %w", err)
	}
	return &staged, nil
}

func (s *StagingStore) Delete(ctx context.Context, handle string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM staged_connections WHERE handle = $1`, handle); err != nil {
		return fmt.Errorf("delete staged connection: %w", err)
	}
	return nil
}

func (s *StagingStore) Cleanup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM staged_connections WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("cleanup staged connections: %w", err)
	}
	return nil
}
