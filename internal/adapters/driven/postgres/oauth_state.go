package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

// Ensure OAuthStateStore implements the interface.
var _ driven.OAuthStateStore = (*OAuthStateStore)(nil)

// OAuthStateStore implements driven.OAuthStateStore using PostgreSQL.
type OAuthStateStore struct {
	db *sql.DB
}

// NewOAuthStateStore creates a new PostgreSQL-backed OAuth state store.
func NewOAuthStateStore(db *sql.DB) *OAuthStateStore {
	return &OAuthStateStore{db: db}
}

// Save stores a new OAuth state.
func (s *OAuthStateStore) Save(ctx context.Context, state *driven.OAuthState) error {
	query := `
		INSERT INTO oauth_states (state, platform, team_id, user_id, code_verifier, redirect_uri, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		state.State,
		state.Platform,
		state.TeamID,
		state.UserID,
		state.CodeVerifier,
		state.RedirectURI,
		state.CreatedAt,
		state.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}

	return nil
}

// GetAndDelete atomically retrieves and deletes the state.
// An expired row is deleted too but reported as missing.
func (s *OAuthStateStore) GetAndDelete(ctx context.Context, state string) (*driven.OAuthState, error) {
	query := `
		DELETE FROM oauth_states
		WHERE state = $1
		RETURNING state, platform, team_id, user_id, code_verifier, redirect_uri, created_at, expires_at,
		          expires_at > NOW()
	`

	var oauthState driven.OAuthState
	var live bool
	err := s.db.QueryRowContext(ctx, query, state).Scan(
		&oauthState.State,
		&oauthState.Platform,
		&oauthState.TeamID,
		&oauthState.UserID,
		&oauthState.CodeVerifier,
		&oauthState.RedirectURI,
		&oauthState.CreatedAt,
		&oauthState.ExpiresAt,
		&live,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get and delete oauth state: %w", err)
	}
	if !live {
		return nil, nil
	}

	return &oauthState, nil
}

// Cleanup removes expired states.
func (s *OAuthStateStore) Cleanup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("cleanup oauth states: %w", err)
	}
	return nil
}
