// Package config provides application configuration management using environment variables.
// It uses github.com/kelseyhightower/envconfig for loading configuration from environment variables
// with support for validation, default values, and environment-specific helpers.
//
// # Basic Usage
//
// Load configuration from environment variables:
//
//	cfg, err := config.Load("APP")
//	if err != nil {
//		log.Fatalf("Failed to load configuration: %v", err)
//	}
//
//	// Validate configuration
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
//
// # Environment Variables
//
// The following environment variables are supported (using "APP" prefix):
//
// Basic configuration:
//   - APP_ENVIRONMENT: Environment (local, development, staging, production)
//
// Server configuration:
//   - APP_SERVER_PORT: Server port (default: 8080)
//   - APP_SERVER_HOST: Server host (default: localhost)
//   - APP_SERVER_HEALTH_PORT: Liveness/readiness probe port (default: 8081)
//   - APP_SERVER_READ_TIMEOUT: Read timeout (default: 1s)
//   - APP_SERVER_IDLE_TIMEOUT: Idle timeout (default: 3s)
//   - APP_CORS_ALLOWED_ORIGINS: Allowed CORS origins (default: http://localhost:9000)
//
// Store configuration:
//   - APP_STORE_HOST, APP_STORE_PORT, APP_STORE_NAME, APP_STORE_USER,
//     APP_STORE_PASSWORD, APP_STORE_SSL_MODE
//   - APP_STORE_MAX_OPEN_CONNS, APP_STORE_MAX_IDLE_CONNS
//
// Domain configuration:
//   - APP_DOMAIN_REQUEST_DEADLINE: per-call deadline applied to each ActStore
//     operation within FetchMany (default: 500ms)
//   - APP_DOMAIN_UPSTREAM_TIMEOUT: HTTP client timeout for MusicBrainz and
//     Bandsintown requests (default: 5s)
//   - APP_DOMAIN_QUEUE_INTERVAL: minimum spacing between Fetch Queue drains
//     of successive ids (default: 30s)
//   - APP_DOMAIN_BANDSINTOWN_CACHE_TTL: window within which a concurrent
//     inline request and a queue/sweep pass share one page fetch (default: 5m)
//   - APP_DOMAIN_SWEEP_CYCLE: wall-clock budget T for one sweep cycle (default: 12h)
//   - APP_DOMAIN_SWEEP_RETRY: pause R before retrying a failed sweep cycle (default: 1h)
//   - APP_DOMAIN_STALENESS_THRESHOLD: age past which a cached act, still served
//     as-is, is queued for a background refresh (default: 24h)
//   - APP_DOMAIN_EVICTION_THRESHOLD: UpdatesSinceLastRequest count at which
//     EvictInactive removes an act (default: 14)
//   - APP_DOMAIN_ADMIN_SECRET: shared secret compared verbatim against the
//     X-Admin-Secret header on admin routes; empty rejects every admin request
//
// Logging configuration:
//   - APP_LOGGING_LEVEL: Log level (debug, info, warn, error, default: info)
//   - APP_LOGGING_FORMAT: Log format (json, text, default: json)
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents the application configuration loaded from environment variables.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Domain DomainConfig

	Logging LoggingConfig

	Environment string `envconfig:"ENVIRONMENT" default:"local"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// ServerConfig represents server-specific configuration.
type ServerConfig struct {
	Port int    `envconfig:"SERVER_PORT" default:"8080"`
	Host string `envconfig:"SERVER_HOST" default:"localhost"`

	// HealthPort serves /healthz and /readyz on a separate listener, the
	// conventional split for a Kubernetes sidecar probe port.
	HealthPort int `envconfig:"SERVER_HEALTH_PORT" default:"8081"`

	ReadHeaderTimeout time.Duration `envconfig:"SERVER_READ_HEADER_TIMEOUT" default:"500ms"`
	ReadTimeout       time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"1s"`
	IdleTimeout       time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"3s"`

	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:9000"`
}

// StoreConfig represents the Postgres-backed Cache Store's connection settings.
type StoreConfig struct {
	Host string `envconfig:"STORE_HOST" default:"localhost"`
	Port int    `envconfig:"STORE_PORT" default:"5432"`

	Name string `envconfig:"STORE_NAME" required:"true"`
	User string `envconfig:"STORE_USER" required:"true"`

	// Password is never logged; GetDSN is the only method that reads it.
	Password string `envconfig:"STORE_PASSWORD" required:"true"`

	SSLMode string `envconfig:"STORE_SSL_MODE" default:"disable"`

	MaxOpenConns int `envconfig:"STORE_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int `envconfig:"STORE_MAX_IDLE_CONNS" default:"5"`
}

// DomainConfig represents the caching aggregator's own tunables: the
// request-path deadline, upstream client timeout, Fetch Queue pacing,
// Sweeper cadence, staleness threshold, and eviction threshold.
type DomainConfig struct {
	RequestDeadline time.Duration `envconfig:"DOMAIN_REQUEST_DEADLINE" default:"500ms"`
	UpstreamTimeout time.Duration `envconfig:"DOMAIN_UPSTREAM_TIMEOUT" default:"5s"`

	QueueInterval time.Duration `envconfig:"DOMAIN_QUEUE_INTERVAL" default:"30s"`

	// BandsintownCacheTTL windows duplicate page fetches for the same act
	// across a concurrent inline request and a queue/sweep pass.
	BandsintownCacheTTL time.Duration `envconfig:"DOMAIN_BANDSINTOWN_CACHE_TTL" default:"5m"`

	SweepCycle time.Duration `envconfig:"DOMAIN_SWEEP_CYCLE" default:"12h"`
	SweepRetry time.Duration `envconfig:"DOMAIN_SWEEP_RETRY" default:"1h"`

	StalenessThreshold time.Duration `envconfig:"DOMAIN_STALENESS_THRESHOLD" default:"24h"`
	EvictionThreshold  int           `envconfig:"DOMAIN_EVICTION_THRESHOLD" default:"14"`

	// AdminSecret is the shared secret that server.StaticSecretAuthenticator
	// compares verbatim against the X-Admin-Secret request header. It is not
	// parsed or validated as a TOTP seed.
	AdminSecret string `envconfig:"DOMAIN_ADMIN_SECRET"`
}

// LoggingConfig represents logging-specific configuration.
type LoggingConfig struct {
	Level  string `envconfig:"LOGGING_LEVEL" default:"info"`
	Format string `envconfig:"LOGGING_FORMAT" default:"json"`
}

// Load loads configuration from environment variables.
// The prefix parameter is used to namespace environment variables.
// For example, with prefix "APP", environment variables like APP_SERVER_PORT will be loaded.
func Load(prefix string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration according to the following rules:
//   - Server port: 1-65535 range
//   - Store port: 1-65535 range
//   - Environment: local, development, staging, or production
//   - Log level: debug, info, warn, or error
//   - Log format: json or text
//   - Eviction threshold: positive
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.HealthPort <= 0 || c.Server.HealthPort > 65535 {
		return fmt.Errorf("invalid health port: %d", c.Server.HealthPort)
	}

	if c.Store.Port <= 0 || c.Store.Port > 65535 {
		return fmt.Errorf("invalid store port: %d", c.Store.Port)
	}

	if !oneOf(c.Environment, "local", "development", "staging", "production") {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if !oneOf(c.Logging.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if !oneOf(c.Logging.Format, "json", "text") {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Domain.EvictionThreshold <= 0 {
		return fmt.Errorf("invalid eviction threshold: %d", c.Domain.EvictionThreshold)
	}

	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// GetDSN returns the Postgres connection string used by the actstore's bun.DB.
func (c StoreConfig) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// IsDevelopment returns true if the environment is "development".
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if the environment is "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsLocal returns true if the environment is "local".
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}
