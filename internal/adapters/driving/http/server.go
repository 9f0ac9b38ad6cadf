package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string
	logger     *zap.Logger

	// Services
	connections driving.ConnectionService
	auth        *AuthMiddleware

	cookies  *CookieJar
	reporter *Reporter

	// Infrastructure; readiness pings every entry, nil entries are skipped.
	pingers map[string]Pinger
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// IntegrationsURL is where every browser flow ends.
	IntegrationsURL string

	// SelectAccountURL is the page that lets the user pick one of several
	// staged ad accounts.
	SelectAccountURL string

	// CookieHashKey signs the state and staging cookies.
	CookieHashKey []byte

	// CookieSecure marks cookies Secure; disable only for local HTTP.
	CookieSecure bool

	StateTTL   time.Duration
	StagingTTL time.Duration

	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:             "0.0.0.0",
		Port:             8080,
		Version:          "dev",
		IntegrationsURL:  "http://localhost:3000/integrations",
		SelectAccountURL: "http://localhost:3000/integrations/select-account",
		CookieSecure:     true,
		StateTTL:         10 * time.Minute,
		StagingTTL:       15 * time.Minute,
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	connections driving.ConnectionService,
	authAdapter driven.AuthAdapter,
	pingers map[string]Pinger,
	logger *zap.Logger,
) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reporter, err := NewReporter(cfg.IntegrationsURL, cfg.SelectAccountURL)
	if err != nil {
		return nil, err
	}
	cookies, err := NewCookieJar(cfg.CookieHashKey, cfg.CookieSecure, cfg.StateTTL, cfg.StagingTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		logger:      logger.Named("http"),
		connections: connections,
		auth:        NewAuthMiddleware(authAdapter, reporter),
		cookies:     cookies,
		reporter:    reporter,
		pingers:     pingers,
	}

	s.setupRoutes()

	s.handler = NewRecoveryMiddleware(s.logger).Handler(
		NewLoggingMiddleware(s.logger).Handler(
			NewCORSMiddleware(cfg.AllowedOrigins).Handler(s.router)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Browser flow. The callback is public: the team comes from the state record.
	s.router.Handle("GET /api/v1/connections/{platform}/authorize",
		s.auth.AuthenticateBrowser(http.HandlerFunc(s.handleAuthorize)))
	s.router.HandleFunc("GET /api/v1/connections/{platform}/callback", s.handleCallback)
	s.router.Handle("POST /api/v1/connections/{platform}/select",
		s.auth.AuthenticateBrowser(http.HandlerFunc(s.handleSelectAccount)))

	// JSON endpoints
	s.router.Handle("GET /api/v1/connections/{platform}/accounts",
		s.auth.Authenticate(http.HandlerFunc(s.handlePendingAccounts)))
	s.router.Handle("GET /api/v1/connections",
		s.auth.Authenticate(http.HandlerFunc(s.handleListConnections)))
	s.router.Handle("GET /api/v1/connections/{platform}",
		s.auth.Authenticate(http.HandlerFunc(s.handleGetConnection)))
	s.router.Handle("DELETE /api/v1/connections/{platform}",
		s.auth.Authenticate(http.HandlerFunc(s.handleDisconnect)))
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
