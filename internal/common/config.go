// Package common provides shared utilities for fintrack
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Storage backend identifiers.
const (
	BackendSurrealDB = "surrealdb"
	BackendBadger    = "badger"
)

// Mutation modes for the two-write transaction sequence.
const (
	MutationModeSequential = "sequential"
	MutationModeCompensate = "compensate"
)

// Config holds all configuration for fintrack
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Clients     ClientsConfig `toml:"clients"`
	Auth        AuthConfig    `toml:"auth"`
	Ledger      LedgerConfig  `toml:"ledger"`
	Prices      PricesConfig  `toml:"prices"`
	Display     DisplayConfig `toml:"display"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig selects and configures the document store backend.
type StorageConfig struct {
	Backend   string `toml:"backend"` // "surrealdb" or "badger"
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Path      string `toml:"path"` // BadgerHold directory
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Gemini GeminiConfig `toml:"gemini"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	RateLimit int    `toml:"rate_limit"` // oracle requests per minute
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *GeminiConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// AuthConfig holds authentication configuration for JWT sessions.
type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	TokenExpiry  string `toml:"token_expiry"` // duration string, default "24h"
	SeedDemoData bool   `toml:"seed_demo_data"`
}

// GetTokenExpiry parses and returns the token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LedgerConfig controls the mutation service and ledger store.
type LedgerConfig struct {
	MutationMode string `toml:"mutation_mode"` // "sequential" (default) or "compensate"
	ReadyTimeout string `toml:"ready_timeout"`
}

// GetReadyTimeout returns how long a new session waits for its first snapshots.
func (c *LedgerConfig) GetReadyTimeout() time.Duration {
	d, err := time.ParseDuration(c.ReadyTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// Compensate reports whether partial two-write failures should be compensated.
func (c *LedgerConfig) Compensate() bool {
	return strings.EqualFold(strings.TrimSpace(c.MutationMode), MutationModeCompensate)
}

// PricesConfig controls the background price scheduler.
type PricesConfig struct {
	RefreshInterval string `toml:"refresh_interval"` // empty or "0" disables the scheduler
	Freshness       string `toml:"freshness"`
}

// GetRefreshInterval returns the scheduler interval, or zero when disabled.
func (c *PricesConfig) GetRefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// GetFreshness returns the age after which a holding price counts as stale.
func (c *PricesConfig) GetFreshness() time.Duration {
	d, err := time.ParseDuration(c.Freshness)
	if err != nil || d <= 0 {
		return FreshnessHoldingPrice
	}
	return d
}

// DisplayConfig holds the dashboard conversion settings. The rate is a
// display estimate only and is never persisted.
type DisplayConfig struct {
	BaseCurrency string  `toml:"base_currency"`
	USDRate      float64 `toml:"usd_rate"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend:   BackendBadger,
			Address:   "ws://localhost:8000/rpc",
			Namespace: "fintrack",
			Database:  "fintrack",
			Username:  "root",
			Password:  "root",
			Path:      "data/ledger",
		},
		Clients: ClientsConfig{
			Gemini: GeminiConfig{
				Model:     "gemini-2.5-flash",
				RateLimit: 6,
				Timeout:   "60s",
			},
		},
		Auth: AuthConfig{
			JWTSecret:    "dev-jwt-secret-change-in-production",
			TokenExpiry:  "24h",
			SeedDemoData: true,
		},
		Ledger: LedgerConfig{
			MutationMode: MutationModeSequential,
			ReadyTimeout: "10s",
		},
		Prices: PricesConfig{
			RefreshInterval: "",
			Freshness:       "6h",
		},
		Display: DisplayConfig{
			BaseCurrency: "TWD",
			USDRate:      30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Outputs:    []string{"console"},
			FilePath:   "./logs/fintrack.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FINTRACK_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FINTRACK_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FINTRACK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FINTRACK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Storage overrides
	if v := os.Getenv("FINTRACK_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("FINTRACK_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("FINTRACK_STORAGE_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("FINTRACK_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}
	if v := os.Getenv("FINTRACK_DATA_PATH"); v != "" {
		config.Storage.Path = v
	}

	// Gemini key: the original client read API_KEY, keep honouring the common names
	for _, name := range []string{"GEMINI_API_KEY", "FINTRACK_GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			config.Clients.Gemini.APIKey = v
			break
		}
	}

	// Auth overrides
	if v := os.Getenv("FINTRACK_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("FINTRACK_AUTH_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}

	if v := os.Getenv("FINTRACK_MUTATION_MODE"); v != "" {
		config.Ledger.MutationMode = strings.ToLower(v)
	}
	if v := os.Getenv("FINTRACK_PRICE_REFRESH_INTERVAL"); v != "" {
		config.Prices.RefreshInterval = v
	}
}

// Validate checks enumerated settings and normalises case.
func (c *Config) Validate() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case BackendSurrealDB, BackendBadger:
	default:
		return fmt.Errorf("unknown storage backend %q (supported: surrealdb, badger)", c.Storage.Backend)
	}

	mode := strings.ToLower(strings.TrimSpace(c.Ledger.MutationMode))
	switch mode {
	case "":
		mode = MutationModeSequential
	case MutationModeSequential, MutationModeCompensate:
	default:
		return fmt.Errorf("unknown ledger mutation_mode %q (supported: sequential, compensate)", c.Ledger.MutationMode)
	}
	c.Ledger.MutationMode = mode

	c.Display.BaseCurrency = strings.ToUpper(strings.TrimSpace(c.Display.BaseCurrency))
	if c.Display.BaseCurrency == "" {
		c.Display.BaseCurrency = "TWD"
	}
	if c.Display.USDRate <= 0 {
		c.Display.USDRate = 30
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
