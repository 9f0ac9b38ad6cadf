// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

// Config is the fully resolved service configuration.
type Config struct {
	Environment string
	Host        string
	Port        int

	// BaseURL is the public origin the platforms redirect back to.
	BaseURL string

	// IntegrationsURL and SelectAccountURL are the frontend pages the
	// callback redirects to.
	IntegrationsURL  string
	SelectAccountURL string

	AllowedOrigins []string

	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// RedisURL is optional; without it state and staging live in Postgres.
	RedisURL string

	JWTSecret          string
	TokenEncryptionKey string
	CookieHashKey      string
	CookieSecure       bool

	// cookieKeySource names the variable CookieHashKey was read from.
	cookieKeySource string

	StateTTL        time.Duration
	StagingTTL      time.Duration
	JanitorInterval time.Duration
	HTTPTimeout     time.Duration

	Meta   MetaConfig
	Google GoogleConfig
	X      XConfig
}

// MetaConfig holds the Meta app credentials.
type MetaConfig struct {
	ClientID     string
	ClientSecret string
	GraphVersion string
}

// GoogleConfig holds the Google OAuth client and Google Ads API settings.
type GoogleConfig struct {
	ClientID        string
	ClientSecret    string
	DeveloperToken  string
	LoginCustomerID string
}

// XConfig holds the X app credentials.
type XConfig struct {
	ClientID     string
	ClientSecret string
}

// Load reads configuration from the environment, loading a .env file first
// when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}

	cfg := &Config{
		Environment:      e.getString("APP_ENV", "development"),
		Host:             e.getString("HOST", "0.0.0.0"),
		Port:             e.getInt("PORT", 8080),
		BaseURL:          strings.TrimRight(e.getString("BASE_URL", ""), "/"),
		IntegrationsURL:  e.getString("INTEGRATIONS_URL", ""),
		SelectAccountURL: e.getString("SELECT_ACCOUNT_URL", ""),
		AllowedOrigins:   e.getList("CORS_ALLOWED_ORIGINS"),

		DatabaseURL:       e.getString("DATABASE_URL", ""),
		DBMaxOpenConns:    e.getInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    e.getInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: e.getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		DBConnMaxIdleTime: e.getDuration("DB_CONN_MAX_IDLE_TIME", time.Minute),

		RedisURL: e.getString("REDIS_URL", ""),

		JWTSecret:          e.getString("JWT_SECRET", ""),
		TokenEncryptionKey: e.getString("TOKEN_ENCRYPTION_KEY", ""),
		CookieHashKey:      e.getString("COOKIE_HASH_KEY", ""),
		CookieSecure:       e.getBool("COOKIE_SECURE", true),

		StateTTL:        e.getDuration("OAUTH_STATE_TTL", 10*time.Minute),
		StagingTTL:      e.getDuration("OAUTH_STAGING_TTL", 15*time.Minute),
		JanitorInterval: e.getDuration("JANITOR_INTERVAL", 5*time.Minute),
		HTTPTimeout:     e.getDuration("PLATFORM_HTTP_TIMEOUT", 30*time.Second),

		Meta: MetaConfig{
			ClientID:     e.getString("META_CLIENT_ID", ""),
			ClientSecret: e.getString("META_CLIENT_SECRET", ""),
			GraphVersion: e.getString("META_GRAPH_VERSION", "v19.0"),
		},
		Google: GoogleConfig{
			ClientID:        e.getString("GOOGLE_CLIENT_ID", ""),
			ClientSecret:    e.getString("GOOGLE_CLIENT_SECRET", ""),
			DeveloperToken:  e.getString("GOOGLE_ADS_DEVELOPER_TOKEN", ""),
			LoginCustomerID: e.getString("GOOGLE_ADS_LOGIN_CUSTOMER_ID", ""),
		},
		X: XConfig{
			ClientID:     e.getString("X_CLIENT_ID", ""),
			ClientSecret: e.getString("X_CLIENT_SECRET", ""),
		},
	}

	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}

	if cfg.IntegrationsURL == "" && cfg.BaseURL != "" {
		cfg.IntegrationsURL = cfg.BaseURL + "/settings/integrations"
	}
	if cfg.SelectAccountURL == "" && cfg.BaseURL != "" {
		cfg.SelectAccountURL = cfg.BaseURL + "/settings/integrations/select-account"
	}
	// Signing falls back to the JWT secret so a single secret is enough in development.
	cfg.cookieKeySource = "COOKIE_HASH_KEY"
	if cfg.CookieHashKey == "" {
		cfg.CookieHashKey = cfg.JWTSecret
		cfg.cookieKeySource = "JWT_SECRET (used as COOKIE_HASH_KEY fallback)"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and their shape.
func (c *Config) Validate() error {
	var errs []error

	required := []struct{ key, value string }{
		{"DATABASE_URL", c.DatabaseURL},
		{"BASE_URL", c.BaseURL},
		{"TOKEN_ENCRYPTION_KEY", c.TokenEncryptionKey},
		{"JWT_SECRET", c.JWTSecret},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}

	for _, u := range []struct{ key, value string }{
		{"BASE_URL", c.BaseURL},
		{"INTEGRATIONS_URL", c.IntegrationsURL},
		{"SELECT_ACCOUNT_URL", c.SelectAccountURL},
	} {
		if u.value == "" {
			continue
		}
		parsed, err := url.Parse(u.value)
		if err != nil || !parsed.IsAbs() || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL", u.key))
		}
	}

	if c.CookieHashKey != "" && len(c.CookieHashKey) < 32 {
		source := c.cookieKeySource
		if source == "" {
			source = "COOKIE_HASH_KEY"
		}
		errs = append(errs, fmt.Errorf("%s must be at least 32 bytes", source))
	}
	if c.Google.ClientID != "" && c.Google.DeveloperToken == "" {
		errs = append(errs, errors.New("GOOGLE_ADS_DEVELOPER_TOKEN is required when GOOGLE_CLIENT_ID is set"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Credentials returns the OAuth app credentials keyed by platform.
// Platforms without a client id and secret are omitted.
func (c *Config) Credentials() map[domain.Platform]driven.ClientCredentials {
	all := map[domain.Platform]driven.ClientCredentials{
		domain.PlatformMeta:   {ClientID: c.Meta.ClientID, ClientSecret: c.Meta.ClientSecret},
		domain.PlatformGoogle: {ClientID: c.Google.ClientID, ClientSecret: c.Google.ClientSecret},
		domain.PlatformX:      {ClientID: c.X.ClientID, ClientSecret: c.X.ClientSecret},
	}

	creds := make(map[domain.Platform]driven.ClientCredentials, len(all))
	for p, cc := range all {
		if cc.IsConfigured() {
			creds[p] = cc
		}
	}
	return creds
}

// env reads typed values and collects parse errors.
type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) getString(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) getInt(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (e *env) getBool(key string, def bool) bool {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (e *env) getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *env) getList(key string) []string {
	var out []string
	for _, part := range strings.Split(e.getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
