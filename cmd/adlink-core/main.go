package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/custodia-labs/adlink-core/internal/adapters/driven/auth"
	"github.com/custodia-labs/adlink-core/internal/adapters/driven/platforms"
	"github.com/custodia-labs/adlink-core/internal/adapters/driven/platforms/googleads"
	"github.com/custodia-labs/adlink-core/internal/adapters/driven/platforms/meta"
	"github.com/custodia-labs/adlink-core/internal/adapters/driven/platforms/xads"
	"github.com/custodia-labs/adlink-core/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/adlink-core/internal/adapters/driven/redis"
	"github.com/custodia-labs/adlink-core/internal/adapters/driven/secrets"
	httpserver "github.com/custodia-labs/adlink-core/internal/adapters/driving/http"
	"github.com/custodia-labs/adlink-core/internal/config"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
	"github.com/custodia-labs/adlink-core/internal/core/services"
	"github.com/custodia-labs/adlink-core/internal/logging"
	"github.com/custodia-labs/adlink-core/internal/worker"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "adlink-core: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Run mode from RUN_MODE or the first argument: api, worker or all.
	mode := os.Getenv("RUN_MODE")
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	if mode == "" {
		mode = "all"
	}
	if mode != "api" && mode != "worker" && mode != "all" {
		return fmt.Errorf("unknown mode %q (use: api, worker, or all)", mode)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("adlink-core starting", zap.String("version", version), zap.String("mode", mode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ===== PostgreSQL =====
	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("postgres connected and migrated")

	// ===== Redis (optional) =====
	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("redis connected")
	}

	encryptor, err := secrets.NewSecretEncryptorFromSecret(cfg.TokenEncryptionKey)
	if err != nil {
		return fmt.Errorf("create token encryptor: %w", err)
	}

	// ===== Stores (Redis if available, otherwise PostgreSQL) =====
	var (
		stateStore   driven.OAuthStateStore
		stagingStore driven.StagingStore
		lock         driven.DistributedLock
	)
	pingers := map[string]httpserver.Pinger{"postgres": db}
	if redisClient != nil {
		redisLock := redisadapter.NewLock(redisClient)
		stateStore = redisadapter.NewOAuthStateStore(redisClient)
		stagingStore = redisadapter.NewStagingStore(redisClient, encryptor)
		lock = redisLock
		pingers["redis"] = redisLock
		logger.Info("using redis for oauth state, staging and locks")
	} else {
		stateStore = postgres.NewOAuthStateStore(db.DB)
		stagingStore = postgres.NewStagingStore(db.DB, encryptor)
		lock = postgres.NewAdvisoryLock(db.DB)
		logger.Info("using postgres for oauth state, staging and locks")
	}
	connectionStore := postgres.NewConnectionStore(db.DB, encryptor)

	// ===== Platforms =====
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	registry := platforms.NewRegistry(
		meta.NewOAuthHandler(httpClient, meta.DefaultEndpoints(cfg.Meta.GraphVersion)),
		googleads.NewOAuthHandler(httpClient, googleads.DefaultEndpoints(), googleads.Config{
			DeveloperToken:  cfg.Google.DeveloperToken,
			LoginCustomerID: cfg.Google.LoginCustomerID,
		}),
		xads.NewOAuthHandler(httpClient, xads.DefaultEndpoints()),
	)

	credentials := cfg.Credentials()
	for _, p := range registry.Platforms() {
		if _, ok := credentials[p]; !ok {
			logger.Warn("platform not configured, connections will fail", zap.String("platform", p.String()))
		}
	}

	connectionService := services.NewConnectionService(services.ConnectionServiceConfig{
		StateStore:      stateStore,
		StagingStore:    stagingStore,
		ConnectionStore: connectionStore,
		Registry:        registry,
		Credentials:     credentials,
		BaseURL:         cfg.BaseURL,
		StateTTL:        cfg.StateTTL,
		StagingTTL:      cfg.StagingTTL,
		Logger:          logger,
	})

	if mode == "worker" || mode == "all" {
		janitor := worker.NewJanitor(worker.JanitorConfig{
			Cleaners: map[string]worker.Cleaner{
				"oauth_states":       stateStore,
				"staged_connections": stagingStore,
			},
			Lock:     lock,
			Interval: cfg.JanitorInterval,
			Logger:   logger,
		})
		if err := janitor.Start(ctx); err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}
		defer janitor.Stop()
	}

	if mode == "worker" {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		return nil
	}

	server, err := httpserver.NewServer(httpserver.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		Version:          version,
		IntegrationsURL:  cfg.IntegrationsURL,
		SelectAccountURL: cfg.SelectAccountURL,
		CookieHashKey:    []byte(cfg.CookieHashKey),
		CookieSecure:     cfg.CookieSecure,
		StateTTL:         cfg.StateTTL,
		StagingTTL:       cfg.StagingTTL,
		AllowedOrigins:   cfg.AllowedOrigins,
	}, connectionService, auth.NewAdapter(cfg.JWTSecret), pingers, logger)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	return server.Start(ctx)
}
