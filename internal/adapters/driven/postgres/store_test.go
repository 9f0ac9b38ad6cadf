package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/adlink-core/internal/adapters/driven/secrets"
	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

// setupTestDB connects to TEST_DATABASE_URL, applies migrations and
// truncates every table. Tests are skipped without it.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, DefaultConfig(url))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Running twice must be a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}

	if _, err := db.ExecContext(ctx, `TRUNCATE platform_connections, oauth_states, staged_connections`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

func testEncryptor(t *testing.T) *secrets.SecretEncryptor {
	t.Helper()
	enc, err := secrets.NewSecretEncryptor([]byte("01234567890123456789012345678901"))
	if err != nil {
		t.Fatalf("NewSecretEncryptor: %v", err)
	}
	return enc
}

func newConnection(teamID string, platform domain.Platform, account string) *domain.PlatformConnection {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	return &domain.PlatformConnection{
		ID:       uuid.New().String(),
		TeamID:   teamID,
		Platform: platform,
		Secrets: &domain.ConnectionSecrets{
			AccessToken:  "access-" + account,
			RefreshToken: "refresh-" + account,
		},
		TokenExpiresAt:      &expires,
		Scopes:              "ads_read ads_management",
		PlatformUserID:      "u1",
		PlatformUserName:    "Jane",
		PlatformAccountID:   account,
		PlatformAccountName: "Account " + account,
		Status:              domain.ConnectionStatusActive,
	}
}

func TestConnectionStore_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	store := NewConnectionStore(db.DB, testEncryptor(t))
	ctx := context.Background()

	conn := newConnection("team-1", domain.PlatformMeta, "act_1")
	if err := store.Upsert(ctx, conn); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	firstID := conn.ID
	firstCreated := conn.CreatedAt

	got, err := store.Get(ctx, "team-1", domain.PlatformMeta)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Secrets.AccessToken != "access-act_1" || got.Secrets.RefreshToken != "refresh-act_1" {
		t.Errorf("secrets: got %+v", got.Secrets)
	}
	if got.PlatformAccountID != "act_1" {
		t.Errorf("account: got %q", got.PlatformAccountID)
	}

	// A second upsert for the same team and platform overwrites in place.
	second := newConnection("team-1", domain.PlatformMeta, "act_2")
	if err := store.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert second: %v", err)
	}
	if second.ID != firstID {
		t.Errorf("ID changed: got %q, want %q", second.ID, firstID)
	}
	if !second.CreatedAt.Equal(firstCreated) {
		t.Errorf("CreatedAt changed: got %v, want %v", second.CreatedAt, firstCreated)
	}

	got, err = store.Get(ctx, "team-1", domain.PlatformMeta)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PlatformAccountID != "act_2" || got.Secrets.AccessToken != "access-act_2" {
		t.Errorf("overwrite not applied: %+v", got)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM platform_connections`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows: got %d, want 1", count)
	}
}

func TestConnectionStore_TokensEncryptedAtRest(t *testing.T) {
	db := setupTestDB(t)
	store := NewConnectionStore(db.DB, testEncryptor(t))
	ctx := context.Background()

	if err := store.Upsert(ctx, newConnection("team-1", domain.PlatformGoogle, "123")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var access []byte
	if err := db.QueryRowContext(ctx, `SELECT access_token_enc FROM platform_connections`).Scan(&access); err != nil {
		t.Fatalf("select: %v", err)
	}
	if string(access) == "access-123" {
		t.Error("access token stored in plaintext")
	}

	// A row copied to another team must not decrypt.
	if _, err := db.ExecContext(ctx, `UPDATE platform_connections SET team_id = 'team-2'`); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.Get(ctx, "team-2", domain.PlatformGoogle); err == nil {
		t.Error("expected decryption failure for moved row")
	}
}

func TestConnectionStore_ListAndDelete(t *testing.T) {
	db := setupTestDB(t)
	store := NewConnectionStore(db.DB, testEncryptor(t))
	ctx := context.Background()

	for _, p := range []domain.Platform{domain.PlatformX, domain.PlatformMeta} {
		if err := store.Upsert(ctx, newConnection("team-1", p, "a-"+string(p))); err != nil {
			t.Fatalf("Upsert %s: %v", p, err)
		}
	}
	if err := store.Upsert(ctx, newConnection("team-2", domain.PlatformMeta, "other")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	list, err := store.List(ctx, "team-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List: got %d, want 2", len(list))
	}
	if list[0].Platform != domain.PlatformMeta || list[1].Platform != domain.PlatformX {
		t.Errorf("order: got %s, %s", list[0].Platform, list[1].Platform)
	}

	if err := store.Delete(ctx, "team-1", domain.PlatformMeta); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "team-1", domain.PlatformMeta); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, "team-1", domain.PlatformMeta); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, "team-2", domain.PlatformMeta); err != nil {
		t.Errorf("other team affected: %v", err)
	}
}

func TestOAuthStateStore_SingleUse(t *testing.T) {
	db := setupTestDB(t)
	store := NewOAuthStateStore(db.DB)
	ctx := context.Background()

	now := time.Now()
	state := &driven.OAuthState{
		State:        "state-1",
		Platform:     domain.PlatformX,
		TeamID:       "team-1",
		UserID:       "user-1",
		CodeVerifier: "verifier",
		RedirectURI:  "https://app.example.com/api/v1/connections/x/callback",
		CreatedAt:    now,
		ExpiresAt:    now.Add(10 * time.Minute),
	}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.GetAndDelete(ctx, "state-1")
	if err != nil {
		t.Fatalf("GetAndDelete: %v", err)
	}
	if got == nil || got.TeamID != "team-1" || got.CodeVerifier != "verifier" {
		t.Fatalf("GetAndDelete: got %+v", got)
	}

	got, err = store.GetAndDelete(ctx, "state-1")
	if err != nil {
		t.Fatalf("GetAndDelete again: %v", err)
	}
	if got != nil {
		t.Error("state was reusable")
	}
}

func TestOAuthStateStore_ExpiredAndCleanup(t *testing.T) {
	db := setupTestDB(t)
	store := NewOAuthStateStore(db.DB)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	for _, s := range []string{"old-1", "old-2"} {
		if err := store.Save(ctx, &driven.OAuthState{
			State: s, Platform: domain.PlatformMeta, TeamID: "team-1",
			RedirectURI: "https://app.example.com/cb", CreatedAt: past, ExpiresAt: past.Add(time.Minute),
		}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := store.GetAndDelete(ctx, "old-1")
	if err != nil {
		t.Fatalf("GetAndDelete: %v", err)
	}
	if got != nil {
		t.Error("expired state returned")
	}

	if err := store.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM oauth_states`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("rows after cleanup: got %d, want 0", count)
	}
}

func TestStagingStore_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := NewStagingStore(db.DB, testEncryptor(t))
	ctx := context.Background()

	now := time.Now()
	staged := &driven.StagedConnection{
		Handle:   "handle-1",
		Platform: domain.PlatformGoogle,
		TeamID:   "team-1",
		UserID:   "user-1",
		Bundle: domain.TokenBundle{
			AccessToken:  "ya29.secret",
			RefreshToken: "1//refresh",
			AccountCandidates: []domain.AccountCandidate{
				{ID: "123-456-7890", Name: "123-456-7890"},
				{ID: "111-222-3333", Name: "111-222-3333"},
			},
		},
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
	if err := store.Save(ctx, staged); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var blob []byte
	if err := db.QueryRowContext(ctx, `SELECT bundle_blob FROM staged_connections`).Scan(&blob); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(blob) == 0 || blob[0] != 0x01 {
		t.Errorf("bundle not stored as encrypted blob")
	}

	got, err := store.Get(ctx, "handle-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Bundle.AccessToken != "ya29.secret" || len(got.Bundle.AccountCandidates) != 2 {
		t.Fatalf("Get: got %+v", got)
	}

	if err := store.Delete(ctx, "handle-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "handle-1"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	got, err = store.Get(ctx, "handle-1")
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if got != nil {
		t.Error("staged connection survived delete")
	}
}

func TestAdvisoryLock_Exclusive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := NewAdvisoryLock(db.DB)
	b := NewAdvisoryLock(db.DB)

	ok, err := a.Acquire(ctx, "janitor", time.Minute)
	if err != nil || !ok {
		t.Fatalf("a.Acquire: ok=%v err=%v", ok, err)
	}
	ok, err = b.Acquire(ctx, "janitor", time.Minute)
	if err != nil {
		t.Fatalf("b.Acquire: %v", err)
	}
	if ok {
		t.Error("b acquired a held lock")
	}

	if err := a.Release(ctx, "janitor"); err != nil {
		t.Fatalf("a.Release: %v", err)
	}
	ok, err = b.Acquire(ctx, "janitor", time.Minute)
	if err != nil || !ok {
		t.Fatalf("b.Acquire after release: ok=%v err=%v", ok, err)
	}
	if err := b.Release(ctx, "janitor"); err != nil {
		t.Fatalf("b.Release: %v", err)
	}
	if err := b.Release(ctx, "janitor"); err != nil {
		t.Errorf("Release of unheld lock: %v", err)
	}
}

func TestAdvisoryLock_FailedReleaseDiscardsSession(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := NewAdvisoryLock(db.DB)
	b := NewAdvisoryLock(db.DB)

	ok, err := a.Acquire(ctx, "janitor", time.Minute)
	if err != nil || !ok {
		t.Fatalf("a.Acquire: ok=%v err=%v", ok, err)
	}

	// A cancelled context cannot run the unlock.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := a.Release(cancelled, "janitor"); err == nil {
		t.Fatal("expected Release to fail with a cancelled context")
	}

	// The holding session is closed rather than pooled, so the lock frees up.
	deadline := time.Now().Add(5 * time.Second)
	for {
		ok, err = b.Acquire(ctx, "janitor", time.Minute)
		if err != nil {
			t.Fatalf("b.Acquire: %v", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("lock still held after failed release")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := b.Release(ctx, "janitor"); err != nil {
		t.Fatalf("b.Release: %v", err)
	}
}

func TestHashLockName(t *testing.T) {
	if hashLockName("janitor") != hashLockName("janitor") {
		t.Error("hash not stable")
	}
	if hashLockName("janitor") == hashLockName("other") {
		t.Error("distinct names collided")
	}
}
