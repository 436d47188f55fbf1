// Package infrastructure provides core service initialization for application startup.
// It assembles the logger, record store, lexicon, and optional archive that the
// pipeline and its front ends require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/dispatch/internal/actions"
	"github.com/JaimeStill/dispatch/internal/archive"
	"github.com/JaimeStill/dispatch/internal/config"
	"github.com/JaimeStill/dispatch/internal/lexicon"
	"github.com/JaimeStill/dispatch/internal/pipeline"
	"github.com/JaimeStill/dispatch/internal/records"
	"github.com/JaimeStill/dispatch/pkg/database"
	"github.com/JaimeStill/dispatch/pkg/lifecycle"
	"github.com/JaimeStill/dispatch/pkg/storage"
)

// Infrastructure holds the core systems shared by the HTTP API and the CLI.
// Database is nil for the in-memory store; Storage and Archive are nil unless
// archiving is enabled.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Records   records.Store
	Lexicon   *lexicon.Lexicon
	Archive   *archive.Archive
}

// New creates an Infrastructure from the application configuration, logging
// to stderr. It initializes all systems but does not start them; call Start
// separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	return NewWithLogger(cfg, logger)
}

// NewWithLogger is New with a caller-supplied root logger.
func NewWithLogger(cfg *config.Config, logger *slog.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    logger,
	}

	lex, err := loadLexicon(cfg.Pipeline.LexiconFile)
	if err != nil {
		return nil, fmt.Errorf("lexicon init failed: %w", err)
	}
	infra.Lexicon = lex

	if err := infra.openRecords(cfg); err != nil {
		return nil, fmt.Errorf("record store init failed: %w", err)
	}

	if cfg.Pipeline.Archive {
		store, err := storage.New(&cfg.Storage, logger)
		if err != nil {
			infra.Records.Close()
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
		infra.Storage = store
		infra.Archive = archive.New(store, cfg.Storage.Prefix, logger)
	}

	logger.Info(
		"infrastructure initialized",
		"store", cfg.Pipeline.Store,
		"archive", cfg.Pipeline.Archive,
		"lexicon", lexiconName(cfg.Pipeline.LexiconFile),
	)

	return infra, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	} else {
		i.Lifecycle.OnShutdown(func() {
			<-i.Lifecycle.Context().Done()
			i.Records.Close()
		})
	}

	if i.Storage != nil {
		if err := i.Storage.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}
	return nil
}

// Pipeline builds an Orchestrator over the record store with the simulated
// action executor.
func (i *Infrastructure) Pipeline(cfg pipeline.Config) *pipeline.Orchestrator {
	var archiver pipeline.Archiver
	if i.Archive != nil {
		archiver = i.Archive
	}

	return pipeline.New(
		cfg,
		i.Records,
		i.Lexicon,
		actions.NewSimulator(i.Logger),
		archiver,
		i.Logger,
	)
}

// Close releases the record store. Used by callers that never Start.
func (i *Infrastructure) Close() error {
	return i.Records.Close()
}

func (i *Infrastructure) openRecords(cfg *config.Config) error {
	switch cfg.Pipeline.Store {
	case pipeline.StoreMemory:
		i.Records = records.NewMemory(cfg.API.Pagination)
		return nil

	case pipeline.StoreSQLite:
		db, err := database.NewSQLite(cfg.Pipeline.SQLitePath, i.Logger)
		if err != nil {
			return err
		}
		if err := records.Migrate(db.Connection(), records.SQLite); err != nil {
			db.Connection().Close()
			return err
		}
		i.Database = db
		i.Records = records.NewSQL(db.Connection(), records.SQLite, i.Logger, cfg.API.Pagination)
		return nil

	case pipeline.StorePostgres:
		db, err := database.New(&cfg.Database, i.Logger)
		if err != nil {
			return err
		}
		i.Database = db
		i.Records = records.NewSQL(db.Connection(), records.Postgres, i.Logger, cfg.API.Pagination)
		return nil
	}

	return fmt.Errorf("unknown store %q", cfg.Pipeline.Store)
}

func loadLexicon(path string) (*lexicon.Lexicon, error) {
	if path == "" {
		return lexicon.Default(), nil
	}
	return lexicon.Load(path)
}

func lexiconName(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}
