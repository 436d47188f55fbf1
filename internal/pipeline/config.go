package pipeline

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/dispatch/internal/priority"
)

// Record store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds pipeline and record store settings.
type Config struct {
	Store       string          `toml:"store"`
	SQLitePath  string          `toml:"sqlite_path"`
	Workers     int             `toml:"workers"`
	LexiconFile string          `toml:"lexicon_file"`
	Archive     bool            `toml:"archive"`
	Priority    priority.Config `toml:"priority"`
}

// Env maps pipeline config fields to environment variable names.
type Env struct {
	Store       string
	SQLitePath  string
	Workers     string
	LexiconFile string
	Archive     string
	Priority    *priority.ConfigEnv
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	if err := c.validate(); err != nil {
		return err
	}

	var penv *priority.ConfigEnv
	if env != nil {
		penv = env.Priority
	}
	if err := c.Priority.Finalize(penv); err != nil {
		return fmt.Errorf("priority: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay. Archive always applies.
func (c *Config) Merge(overlay *Config) {
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
	if overlay.SQLitePath != "" {
		c.SQLitePath = overlay.SQLitePath
	}
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.LexiconFile != "" {
		c.LexiconFile = overlay.LexiconFile
	}
	c.Archive = overlay.Archive
	c.Priority.Merge(&overlay.Priority)
}

func (c *Config) loadDefaults() {
	if c.Store == "" {
		c.Store = StoreSQLite
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "data/dispatch.db"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Store != "" {
		if v := os.Getenv(env.Store); v != "" {
			c.Store = v
		}
	}
	if env.SQLitePath != "" {
		if v := os.Getenv(env.SQLitePath); v != "" {
			c.SQLitePath = v
		}
	}
	if env.Workers != "" {
		if v := os.Getenv(env.Workers); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.Workers = n
			}
		}
	}
	if env.LexiconFile != "" {
		if v := os.Getenv(env.LexiconFile); v != "" {
			c.LexiconFile = v
		}
	}
	if env.Archive != "" {
		if v := os.Getenv(env.Archive); v != "" {
			if archive, err := strconv.ParseBool(v); err == nil {
				c.Archive = archive
			}
		}
	}
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	return nil
}
