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

// Ensure ConnectionStore implements the interface.
var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// ConnectionStore implements driven.ConnectionStore using PostgreSQL.
// Tokens are encrypted with associated data naming the owning team,
// platform and token kind.
type ConnectionStore struct {
	db        *sql.DB
	encryptor *secrets.SecretEncryptor
}

// NewConnectionStore creates a new PostgreSQL-backed connection store.
func NewConnectionStore(db *sql.DB, encryptor *secrets.SecretEncryptor) *ConnectionStore {
	return &ConnectionStore{
		db:        db,
		encryptor: encryptor,
	}
}

func tokenAAD(teamID string, platform domain.Platform, kind string) []byte {
	return secrets.AAD("connection", teamID, string(platform), kind)
}

// Upsert inserts or overwrites the (team, platform) row in one statement.
func (s *ConnectionStore) Upsert(ctx context.Context, conn *domain.PlatformConnection) error {
	if conn.TeamID == "" {
		return fmt.Errorf("%w: team id is required", domain.ErrInvalidInput)
	}
	if conn.Secrets == nil || conn.Secrets.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", domain.ErrInvalidInput)
	}

	accessBlob, err := s.encryptor.EncryptString(conn.Secrets.AccessToken, tokenAAD(conn.TeamID, conn.Platform, "access"))
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refreshBlob, err := s.encryptor.EncryptString(conn.Secrets.RefreshToken, tokenAAD(conn.TeamID, conn.Platform, "refresh"))
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	status := conn.Status
	if status == "" {
		status = domain.ConnectionStatusActive
	}

	query := `
		INSERT INTO platform_connections (
			id, team_id, platform, access_token_enc, refresh_token_enc,
			token_expires_at, scopes, platform_user_id, platform_user_name,
			platform_account_id, platform_account_name, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT (team_id, platform) DO UPDATE SET
			access_token_enc = EXCLUDED.access_token_enc,
			refresh_token_enc = EXCLUDED.refresh_token_enc,
			token_expires_at = EXCLUDED.token_expires_at,
			scopes = EXCLUDED.scopes,
			platform_user_id = EXCLUDED.platform_user_id,
			platform_user_name = EXCLUDED.platform_user_name,
			platform_account_id = EXCLUDED.platform_account_id,
			platform_account_name = EXCLUDED.platform_account_name,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		conn.ID,
		conn.TeamID,
		conn.Platform,
		accessBlob,
		refreshBlob,
		nullTime(conn.TokenExpiresAt),
		conn.Scopes,
		conn.PlatformUserID,
		conn.PlatformUserName,
		conn.PlatformAccountID,
		conn.PlatformAccountName,
		status,
	).Scan(&conn.ID, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}

	conn.Status = status
	return nil
}

// Get retrieves a connection with decrypted secrets.
func (s *ConnectionStore) Get(ctx context.Context, teamID string, platform domain.Platform) (*domain.PlatformConnection, error) {
	query := `
		SELECT id, team_id, platform, access_token_enc, refresh_token_enc,
			   token_expires_at, scopes, platform_user_id, platform_user_name,
			   platform_account_id, platform_account_name, status,
			   created_at, updated_at
		FROM platform_connections
		WHERE team_id = $1 AND platform = $2
	`

	var conn domain.PlatformConnection
	var accessBlob, refreshBlob []byte
	var expiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, teamID, platform).Scan(
		&conn.ID,
		&conn.TeamID,
		&conn.Platform,
		&accessBlob,
		&refreshBlob,
		&expiresAt,
		&conn.Scopes,
		&conn.PlatformUserID,
		&conn.PlatformUserName,
		&conn.PlatformAccountID,
		&conn.PlatformAccountName,
		&conn.Status,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	conn.TokenExpiresAt = timePtr(expiresAt)

	access, err := s.encryptor.DecryptString(accessBlob, tokenAAD(conn.TeamID, conn.Platform, "access"))
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := s.encryptor.DecryptString(refreshBlob, tokenAAD(conn.TeamID, conn.Platform, "refresh"))
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}
	conn.Secrets = &domain.ConnectionSecrets{AccessToken: access, RefreshToken: refresh}

	return &conn, nil
}

// List retrieves all connections for a team without touching token columns.
func (s *ConnectionStore) List(ctx context.Context, teamID string) ([]*domain.ConnectionSummary, error) {
	query := `
		SELECT id, platform, token_expires_at, scopes, platform_user_id,
			   platform_user_name, platform_account_id, platform_account_name,
			   status, created_at, updated_at
		FROM platform_connections
		WHERE team_id = $1
		ORDER BY platform
	`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	summaries := make([]*domain.ConnectionSummary, 0)
	for rows.Next() {
		var sum domain.ConnectionSummary
		var expiresAt sql.NullTime
		if err := rows.Scan(
			&sum.ID,
			&sum.Platform,
			&expiresAt,
			&sum.Scopes,
			&sum.PlatformUserID,
			&sum.PlatformUserName,
			&sum.PlatformAccountID,
			&sum.PlatformAccountName,
			&sum.Status,
			&sum.CreatedAt,
			&sum.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		sum.TokenExpiresAt = timePtr(expiresAt)
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}

	return summaries, nil
}

// Delete removes a connection.
func (s *ConnectionStore) Delete(ctx context.Context, teamID string, platform domain.Platform) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM platform_connections WHERE team_id = $1 AND platform = $2`,
		teamID, platform,
	)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
