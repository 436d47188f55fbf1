// Package config loads the dispatch service configuration from TOML files
// and DISPATCH_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/dispatch/internal/pipeline"
	"github.com/JaimeStill/dispatch/internal/priority"
	"github.com/JaimeStill/dispatch/pkg/database"
	"github.com/JaimeStill/dispatch/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvDispatchEnv             = "DISPATCH_ENV"
	EnvDispatchShutdownTimeout = "DISPATCH_SHUTDOWN_TIMEOUT"
	EnvDispatchVersion         = "DISPATCH_VERSION"
	EnvDispatchLogLevel        = "DISPATCH_LOG_LEVEL"
)

var databaseEnv = &database.Env{
	Host:            "DISPATCH_DB_HOST",
	Port:            "DISPATCH_DB_PORT",
	Name:            "DISPATCH_DB_NAME",
	User:            "DISPATCH_DB_USER",
	Password:        "DISPATCH_DB_PASSWORD",
	SSLMode:         "DISPATCH_DB_SSL_MODE",
	MaxOpenConns:    "DISPATCH_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "DISPATCH_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "DISPATCH_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "DISPATCH_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "DISPATCH_STORAGE_CONTAINER_NAME",
	ConnectionString: "DISPATCH_STORAGE_CONNECTION_STRING",
	AccountURL:       "DISPATCH_STORAGE_ACCOUNT_URL",
	Prefix:           "DISPATCH_STORAGE_PREFIX",
}

var pipelineEnv = &pipeline.Env{
	Store:       "DISPATCH_PIPELINE_STORE",
	SQLitePath:  "DISPATCH_PIPELINE_SQLITE_PATH",
	Workers:     "DISPATCH_PIPELINE_WORKERS",
	LexiconFile: "DISPATCH_PIPELINE_LEXICON_FILE",
	Archive:     "DISPATCH_PIPELINE_ARCHIVE",
	Priority: &priority.ConfigEnv{
		FraudConfidence:  "DISPATCH_PRIORITY_FRAUD_CONFIDENCE",
		InvoiceTotal:     "DISPATCH_PRIORITY_INVOICE_TOTAL",
		MediumConfidence: "DISPATCH_PRIORITY_MEDIUM_CONFIDENCE",
	},
}

// Config is the root configuration for the dispatch service.
//
// The database section is only finalized when the pipeline uses the
// postgres store, and the storage section only when archiving is enabled.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	API             APIConfig       `toml:"api"`
	Pipeline        pipeline.Config `toml:"pipeline"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
	LogLevel        string          `toml:"log_level"`
}

// Env returns the DISPATCH_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvDispatchEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Level returns LogLevel as a slog.Level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. Without a config.toml, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Pipeline.Merge(&overlay.Pipeline)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Pipeline.Finalize(pipelineEnv); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if c.Pipeline.Store == pipeline.StorePostgres {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.Pipeline.Archive {
		if err := c.Storage.Finalize(storageEnv); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvDispatchShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvDispatchVersion); v != "" {
		c.Version = v
	}
	if v := os.Getenv(EnvDispatchLogLevel); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvDispatchEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
