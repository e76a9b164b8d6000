package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for statecore-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Reconciler configuration (matcher and commit engine knobs)
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSURL is the JWKS endpoint used to verify JWT signatures.
	JWKSURL string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`

	// SessionSecret signs the UI session cookie. Any passphrase works;
	// it is SHA-256 hashed to derive the signing key.
	SessionSecret string `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"statecore"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"statecore"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// URL returns the pgx connection string for this configuration.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// ReconcilerConfig holds the matcher and commit engine settings.
type ReconcilerConfig struct {
	// AutoThreshold is the minimum candidate score for auto-selection.
	AutoThreshold int `yaml:"auto_threshold" env:"RECONCILER_AUTO_THRESHOLD" env-default:"90"`

	// AutoMargin is the minimum score gap to the second candidate
	// required for auto-selection.
	AutoMargin int `yaml:"auto_margin" env:"RECONCILER_AUTO_MARGIN" env-default:"10"`

	// MatchMinScore discards fuzzy candidates scoring below it.
	MatchMinScore int `yaml:"match_min_score" env:"RECONCILER_MATCH_MIN_SCORE" env-default:"50"`

	// ChunkSize is how many distinct values the matcher processes between
	// context checks while building a proposal.
	ChunkSize int `yaml:"chunk_size" env:"RECONCILER_CHUNK_SIZE" env-default:"100"`

	// RemoteTimeout bounds each remote call (catalogue load, record scans,
	// record and audit writes).
	RemoteTimeout time.Duration `yaml:"remote_timeout" env:"RECONCILER_REMOTE_TIMEOUT" env-default:"30s"`

	// RecordTable and StateField identify the reconciled column.
	RecordTable string `yaml:"record_table" env:"RECONCILER_RECORD_TABLE" env-default:"creators"`
	StateField  string `yaml:"state_field" env:"RECONCILER_STATE_FIELD" env-default:"state"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// If config.yaml does not exist, configuration comes from the environment alone.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	r := c.Reconciler
	if r.AutoThreshold < 0 || r.AutoThreshold > 100 {
		return fmt.Errorf("auto_threshold must be in [0,100], got %d", r.AutoThreshold)
	}
	if r.AutoMargin < 0 || r.AutoMargin > 100 {
		return fmt.Errorf("auto_margin must be in [0,100], got %d", r.AutoMargin)
	}
	if r.MatchMinScore < 0 || r.MatchMinScore > 100 {
		return fmt.Errorf("match_min_score must be in [0,100], got %d", r.MatchMinScore)
	}
	if r.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", r.ChunkSize)
	}
	if r.RemoteTimeout <= 0 {
		return fmt.Errorf("remote_timeout must be positive, got %s", r.RemoteTimeout)
	}
	return nil
}
