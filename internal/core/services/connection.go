package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/adlink-core/internal/adapters/driven/platforms"
	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driving"
)

// Ensure connectionService implements ConnectionService
var _ driving.ConnectionService = (*connectionService)(nil)

const (
	// DefaultStateTTL bounds the consent-screen round trip.
	DefaultStateTTL = 10 * time.Minute

	// DefaultStagingTTL bounds how long a user has to pick an ad account.
	DefaultStagingTTL = 15 * time.Minute
)

// CallbackPath returns the callback route for a platform. The redirect URI
// sent to the platform is BaseURL + CallbackPath(platform).
func CallbackPath(platform domain.Platform) string {
	return "/api/v1/connections/" + string(platform) + "/callback"
}

// ConnectionServiceConfig holds configuration for the connection service.
type ConnectionServiceConfig struct {
	// StateStore holds the server side of the OAuth state round trip.
	StateStore driven.OAuthStateStore

	// StagingStore holds token bundles awaiting account selection.
	StagingStore driven.StagingStore

	// ConnectionStore persists connections with encrypted tokens.
	ConnectionStore driven.ConnectionStore

	// Registry provides OAuth handlers per platform.
	Registry *platforms.Registry

	// Credentials are the OAuth app credentials per platform.
	Credentials map[domain.Platform]driven.ClientCredentials

	// BaseURL is the public application URL used to build redirect URIs.
	// Example: "https://app.example.com"
	BaseURL string

	StateTTL   time.Duration
	StagingTTL time.Duration

	Logger *zap.Logger
}

// connectionService implements the ConnectionService interface.
type connectionService struct {
	stateStore   driven.OAuthStateStore
	stagingStore driven.StagingStore
	connStore    driven.ConnectionStore
	registry     *platforms.Registry
	credentials  map[domain.Platform]driven.ClientCredentials
	baseURL      string
	stateTTL     time.Duration
	stagingTTL   time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewConnectionService creates a new connection service.
func NewConnectionService(cfg ConnectionServiceConfig) driving.ConnectionService {
	return newConnectionService(cfg)
}

func newConnectionService(cfg ConnectionServiceConfig) *connectionService {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if cfg.StagingTTL <= 0 {
		cfg.StagingTTL = DefaultStagingTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = platforms.NewRegistry()
	}
	return &connectionService{
		stateStore:   cfg.StateStore,
		stagingStore: cfg.StagingStore,
		connStore:    cfg.ConnectionStore,
		registry:     cfg.Registry,
		credentials:  cfg.Credentials,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		stateTTL:     cfg.StateTTL,
		stagingTTL:   cfg.StagingTTL,
		logger:       cfg.Logger.Named("connections"),
		now:          time.Now,
	}
}

// handler resolves the OAuth handler and credentials for a platform.
// It performs no network calls.
func (s *connectionService) handler(platform domain.Platform) (platforms.OAuthHandler, driven.ClientCredentials, error) {
	if !platform.IsValid() {
		return nil, driven.ClientCredentials{}, driving.ErrOAuthUnsupportedPlatform
	}
	h, ok := s.registry.Get(platform)
	if !ok {
		return nil, driven.ClientCredentials{}, driving.ErrOAuthNotConfigured
	}
	creds := s.credentials[platform]
	if !creds.IsConfigured() || s.baseURL == "" {
		return nil, driven.ClientCredentials{}, driving.ErrOAuthNotConfigured
	}
	return h, creds, nil
}

func (s *connectionService) redirectURI(platform domain.Platform) string {
	return s.baseURL + CallbackPath(platform)
}

// Authorize starts an OAuth authorization flow.
// It stores the state record server side and returns the consent-screen URL.
func (s *connectionService) Authorize(ctx context.Context, req driving.AuthorizeRequest) (*driving.AuthorizeResponse, error) {
	handler, creds, err := s.handler(req.Platform)
	if err != nil {
		return nil, err
	}
	if req.TeamID == "" {
		return nil, driving.ErrOAuthMissingTeam
	}

	state, err := IssueState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	var codeVerifier string
	if handler.SupportsPKCE() {
		codeVerifier = oauth2.GenerateVerifier()
	}

	now := s.now()
	record := &driven.OAuthState{
		State:        state,
		Platform:     req.Platform,
		TeamID:       req.TeamID,
		UserID:       req.UserID,
		CodeVerifier: codeVerifier,
		RedirectURI:  s.redirectURI(req.Platform),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.stateTTL),
	}
	if err := s.stateStore.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save oauth state: %w", err)
	}

	s.logger.Debug("authorization started",
		zap.String("platform", req.Platform.String()),
		zap.String("team_id", req.TeamID),
	)

	return &driving.AuthorizeResponse{
		AuthorizationURL: handler.AuthCodeURL(creds, record.RedirectURI, state, codeVerifier),
		State:            state,
		ExpiresAt:        record.ExpiresAt,
	}, nil
}

// Callback handles the platform redirect.
// START -> STATE_CHECKED -> CODE_EXCHANGED -> PROFILE_FETCHED -> {STAGED | PERSISTED}
func (s *connectionService) Callback(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResult, error) {
	log := s.logger.With(zap.String("platform", req.Platform.String()))

	if !ValidateState(req.State, req.StoredState) {
		log.Warn("oauth state mismatch", zap.Bool("stored_state_present", req.StoredState != ""))
		return nil, driving.ErrOAuthInvalidState
	}

	// Consume the record even if a later step fails; states are single-use.
	record, err := s.stateStore.GetAndDelete(ctx, req.State)
	if err != nil {
		return nil, fmt.Errorf("get oauth state: %w", err)
	}
	if record == nil || record.Platform != req.Platform {
		log.Warn("oauth state unknown, expired or for another platform")
		return nil, driving.ErrOAuthInvalidState
	}
	log = log.With(zap.String("team_id", record.TeamID))

	if req.Error != "" {
		desc := req.ErrorDescription
		if desc == "" {
			desc = req.Error
		}
		log.Info("platform denied authorization", zap.String("error", req.Error))
		return nil, driving.NewPlatformDeniedError(desc)
	}
	if req.Code == "" {
		return nil, driving.ErrOAuthMissingCode
	}

	handler, creds, err := s.handler(req.Platform)
	if err != nil {
		return nil, err
	}
	if record.TeamID == "" {
		return nil, driving.ErrOAuthMissingTeam
	}

	token, err := handler.ExchangeCode(ctx, creds, req.Code, record.RedirectURI, record.CodeVerifier)
	if err != nil {
		log.Warn("code exchange failed", zap.Error(err))
		return nil, driving.NewExchangeError(platforms.Message(err))
	}

	token = s.upgradeToken(ctx, log, handler, creds, token)

	profile, err := handler.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		log.Warn("profile fetch failed", zap.Error(err))
		return nil, driving.NewProfileError(platforms.Message(err))
	}

	bundle := domain.TokenBundle{
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		ExpiresAt:         token.ExpiresAt(),
		Scopes:            normalizeScopes(token.Scope),
		PlatformUserID:    profile.UserID,
		PlatformUserName:  profile.UserName,
		AccountCandidates: profile.AccountCandidates,
	}

	switch n := len(bundle.AccountCandidates); {
	case n == 0 && handler.RequiresAccount():
		log.Info("no ad accounts available")
		return nil, driving.ErrOAuthNoAccounts
	case n > 1:
		return s.stage(ctx, log, record, bundle)
	}

	account := domain.AccountCandidate{ID: bundle.PlatformUserID, Name: bundle.PlatformUserName}
	if len(bundle.AccountCandidates) == 1 {
		account = bundle.AccountCandidates[0]
	}

	summary, err := s.upsert(ctx, record.TeamID, req.Platform, &bundle, account)
	if err != nil {
		return nil, err
	}
	log.Info("connection persisted", zap.String("account_id", account.ID))

	return &driving.CallbackResult{
		Outcome:    driving.OutcomePersisted,
		Connection: summary,
		Message:    connectedMessage(req.Platform, account),
	}, nil
}

// upgradeToken swaps a short-lived token for a long-lived one when the
// platform supports it. Failure keeps the original token.
func (s *connectionService) upgradeToken(ctx context.Context, log *zap.Logger, handler platforms.OAuthHandler, creds driven.ClientCredentials, token *driven.OAuthToken) *driven.OAuthToken {
	upgrader, ok := handler.(platforms.TokenUpgrader)
	if !ok {
		return token
	}

	upgraded, err := upgrader.UpgradeToken(ctx, creds, token)
	if err != nil || upgraded == nil || upgraded.AccessToken == "" {
		log.Warn("long-lived token upgrade failed, keeping short-lived token", zap.Error(err))
		return token
	}
	if upgraded.RefreshToken == "" {
		upgraded.RefreshToken = token.RefreshToken
	}
	if upgraded.Scope == "" {
		upgraded.Scope = token.Scope
	}
	return upgraded
}

// stage parks the bundle until the user picks an account.
func (s *connectionService) stage(ctx context.Context, log *zap.Logger, record *driven.OAuthState, bundle domain.TokenBundle) (*driving.CallbackResult, error) {
	handle, err := generateRandomString(stateBytes)
	if err != nil {
		return nil, fmt.Errorf("generate staging handle: %w", err)
	}

	now := s.now()
	staged := &driven.StagedConnection{
		Handle:    handle,
		Platform:  record.Platform,
		TeamID:    record.TeamID,
		UserID:    record.UserID,
		Bundle:    bundle,
		CreatedAt: now,
		ExpiresAt: now.Add(s.stagingTTL),
	}
	if err := s.stagingStore.Save(ctx, staged); err != nil {
		log.Error("failed to stage connection", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", driving.ErrOAuthPersistFailed, err)
	}

	log.Info("connection staged for account selection", zap.Int("accounts", len(bundle.AccountCandidates)))

	return &driving.CallbackResult{
		Outcome:       driving.OutcomeStaged,
		StagingHandle: handle,
		Candidates:    bundle.AccountCandidates,
		ExpiresAt:     staged.ExpiresAt,
		Message:       fmt.Sprintf("Select an ad account to finish connecting %s", record.Platform.DisplayName()),
	}, nil
}

// upsert writes the connection for (teamID, platform). The store encrypts
// the tokens; store failures become persist_failed.
func (s *connectionService) upsert(ctx context.Context, teamID string, platform domain.Platform, bundle *domain.TokenBundle, account domain.AccountCandidate) (*domain.ConnectionSummary, error) {
	if teamID == "" {
		return nil, driving.ErrOAuthMissingTeam
	}

	conn := &domain.PlatformConnection{
		ID:       uuid.New().String(),
		TeamID:   teamID,
		Platform: platform,
		Secrets: &domain.ConnectionSecrets{
			AccessToken:  bundle.AccessToken,
			RefreshToken: bundle.RefreshToken,
		},
		TokenExpiresAt:      bundle.ExpiresAt,
		Scopes:              bundle.Scopes,
		PlatformUserID:      bundle.PlatformUserID,
		PlatformUserName:    bundle.PlatformUserName,
		PlatformAccountID:   account.ID,
		PlatformAccountName: account.Name,
		Status:              domain.ConnectionStatusActive,
	}

	if err := s.connStore.Upsert(ctx, conn); err != nil {
		s.logger.Error("failed to upsert connection",
			zap.String("platform", platform.String()),
			zap.String("team_id", teamID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", driving.ErrOAuthPersistFailed, err)
	}
	return conn.ToSummary(), nil
}

// loadStaged returns the staged connection for handle if it belongs to the
// caller's team and platform. Anything else reads as expired.
func (s *connectionService) loadStaged(ctx context.Context, platform domain.Platform, handle, teamID string) (*driven.StagedConnection, error) {
	if !platform.IsValid() {
		return nil, driving.ErrOAuthUnsupportedPlatform
	}
	if teamID == "" {
		return nil, driving.ErrOAuthMissingTeam
	}
	if handle == "" {
		return nil, driving.ErrOAuthStagingExpired
	}

	staged, err := s.stagingStore.Get(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("get staged connection: %w", err)
	}
	if staged == nil || staged.Platform != platform || staged.TeamID != teamID {
		return nil, driving.ErrOAuthStagingExpired
	}
	return staged, nil
}

// PendingAccounts returns the staged account candidates without secrets.
func (s *connectionService) PendingAccounts(ctx context.Context, req driving.PendingRequest) (*driving.PendingAccounts, error) {
	staged, err := s.loadStaged(ctx, req.Platform, req.Handle, req.TeamID)
	if err != nil {
		return nil, err
	}
	return &driving.PendingAccounts{
		Platform:   staged.Platform,
		Candidates: staged.Bundle.AccountCandidates,
		ExpiresAt:  staged.ExpiresAt,
	}, nil
}

// SelectAccount completes a staged connection with the chosen account.
// An unknown account keeps the staged entry so the user can pick again.
func (s *connectionService) SelectAccount(ctx context.Context, req driving.SelectAccountRequest) (*domain.ConnectionSummary, error) {
	staged, err := s.loadStaged(ctx, req.Platform, req.Handle, req.TeamID)
	if err != nil {
		return nil, err
	}

	account, ok := staged.Bundle.Candidate(req.AccountID)
	if !ok {
		return nil, driving.ErrOAuthInvalidAccount
	}

	summary, err := s.upsert(ctx, staged.TeamID, staged.Platform, &staged.Bundle, account)
	if err != nil {
		return nil, err
	}

	if err := s.stagingStore.Delete(ctx, req.Handle); err != nil {
		// The entry expires on its own; the connection is already saved.
		s.logger.Warn("failed to delete staged connection", zap.Error(err))
	}

	s.logger.Info("connection persisted from selection",
		zap.String("platform", staged.Platform.String()),
		zap.String("team_id", staged.TeamID),
		zap.String("account_id", account.ID),
	)
	return summary, nil
}

// List returns the team's connections.
func (s *connectionService) List(ctx context.Context, teamID string) ([]*domain.ConnectionSummary, error) {
	if teamID == "" {
		return nil, domain.ErrNoTeam
	}
	conns, err := s.connStore.List(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return conns, nil
}

// Get returns one connection summary.
func (s *connectionService) Get(ctx context.Context, teamID string, platform domain.Platform) (*domain.ConnectionSummary, error) {
	if teamID == "" {
		return nil, domain.ErrNoTeam
	}
	if !platform.IsValid() {
		return nil, domain.ErrUnsupportedPlatform
	}
	conn, err := s.connStore.Get(ctx, teamID, platform)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return conn.ToSummary(), nil
}

// Disconnect removes the team's connection to a platform.
func (s *connectionService) Disconnect(ctx context.Context, teamID string, platform domain.Platform) error {
	if teamID == "" {
		return domain.ErrNoTeam
	}
	if !platform.IsValid() {
		return domain.ErrUnsupportedPlatform
	}
	if err := s.connStore.Delete(ctx, teamID, platform); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete connection: %w", err)
	}
	s.logger.Info("connection removed",
		zap.String("platform", platform.String()),
		zap.String("team_id", teamID),
	)
	return nil
}

func connectedMessage(platform domain.Platform, account domain.AccountCandidate) string {
	name := account.Name
	if name == "" {
		name = account.ID
	}
	return fmt.Sprintf("Successfully connected to %s (%s)", platform.DisplayName(), name)
}

// normalizeScopes accepts space or comma separated scopes and returns them
// space separated.
func normalizeScopes(scope string) string {
	fields := strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
	return strings.Join(fields, " ")
}
