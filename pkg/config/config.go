package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the screening engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath is the directory holding SQL migration files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// RolesPath is the YAML file defining role permission bundles, seeded at startup.
	RolesPath string `yaml:"roles_path" env:"ROLES_PATH" env-default:"roles.yaml"`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Scorer configuration (external AI inference service)
	Scorer ScorerConfig `yaml:"scorer"`

	// Audit ledger configuration
	Audit AuditConfig `yaml:"audit"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"cervixai"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"screening_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether bearer tokens are validated against
	// JWKS. Set to false for local development without an identity provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSURL is the identity provider's JWKS endpoint.
	JWKSURL string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`

	// Issuer is the expected token issuer.
	Issuer string `yaml:"issuer" env:"AUTH_ISSUER" env-default:""`
}

// ScorerConfig holds settings for the external AI scoring service.
type ScorerConfig struct {
	// BaseURL of the inference service. Empty selects the built-in mock scorer.
	BaseURL string `yaml:"base_url" env:"SCORER_BASE_URL" env-default:""`

	// TimeoutSeconds bounds a single scoring call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"SCORER_TIMEOUT_SECONDS" env-default:"30"`

	// ConfidenceThreshold below which results are flagged for manual review.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"SCORER_CONFIDENCE_THRESHOLD" env-default:"0.7"`
}

// AuditConfig holds audit ledger settings.
type AuditConfig struct {
	// RetentionDays is how long ledger entries are kept before the retention
	// sweep purges them (with an audited purge marker).
	RetentionDays int `yaml:"retention_days" env:"AUDIT_RETENTION_DAYS" env-default:"2555"` // ~7 years

	// SweepIntervalHours is how often the retention sweep runs.
	SweepIntervalHours int `yaml:"sweep_interval_hours" env:"AUDIT_SWEEP_INTERVAL_HOURS" env-default:"24"`

	// DefaultPageSize bounds ledger query pages when the caller does not ask
	// for a specific limit.
	DefaultPageSize int `yaml:"default_page_size" env:"AUDIT_DEFAULT_PAGE_SIZE" env-default:"50"`

	// MaxPageSize is the hard ceiling on ledger query pages.
	MaxPageSize int `yaml:"max_page_size" env:"AUDIT_MAX_PAGE_SIZE" env-default:"500"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Scorer.ConfidenceThreshold < 0 || c.Scorer.ConfidenceThreshold > 1 {
		return fmt.Errorf("scorer confidence_threshold must be in [0,1], got %f", c.Scorer.ConfidenceThreshold)
	}
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention_days must be positive, got %d", c.Audit.RetentionDays)
	}
	if c.Auth.EnableVerification && c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth jwks_url required when verification is enabled")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
