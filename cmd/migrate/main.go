package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"

	"github.com/JaimeStill/dispatch/internal/config"
	"github.com/JaimeStill/dispatch/internal/pipeline"
	"github.com/JaimeStill/dispatch/internal/records"
)

const (
	envDSN     = "DISPATCH_DB_DSN"
	envDialect = "DISPATCH_DB_DIALECT"
)

func main() {
	var (
		dsn     = flag.String("dsn", "", "Database connection string (postgres:// or sqlite://, default from config)")
		dialect = flag.String("dialect", "", "Migration set: postgres or sqlite (default from dsn scheme)")
		up      = flag.Bool("up", false, "Run all up migrations")
		down    = flag.Bool("down", false, "Run all down migrations")
		steps   = flag.Int("steps", 0, "Number of migrations (positive=up, negative=down)")
		version = flag.Bool("version", false, "Print current migration version")
		force   = flag.Int("force", -1, "Force set version (use with caution)")
	)
	flag.Parse()

	forceSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "force" {
			forceSet = true
		}
	})

	if *dsn == "" {
		*dsn = os.Getenv(envDSN)
	}
	if *dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		if *dsn, err = configDSN(cfg); err != nil {
			log.Fatal(err)
		}
	}
	if *dialect == "" {
		*dialect = os.Getenv(envDialect)
	}
	if *dialect == "" {
		*dialect = dialectOf(*dsn)
	}

	source, err := records.MigrationSource(records.Dialect(*dialect))
	if err != nil {
		log.Fatalf("failed to create migration source: %v", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, *dsn)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	switch {
	case *version:
		v, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("failed to get version: %v", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", v, dirty)
	case forceSet:
		if err := m.Force(*force); err != nil {
			log.Fatalf("failed to force version: %v", err)
		}
		fmt.Printf("forced to version %d\n", *force)
	case *up:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("failed to run up migrations: %v", err)
		}
		fmt.Println("migrations applied successfully")
	case *down:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("failed to run down migrations: %v", err)
		}
		fmt.Println("migrations reverted successfully")
	case *steps != 0:
		if err := m.Steps(*steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("failed to run migrations: %v", err)
		}
		fmt.Printf("applied %d migration steps\n", *steps)
	default:
		fmt.Println("usage: migrate [-dsn <connection-string>] [-dialect postgres|sqlite] [-up|-down|-steps N|-version|-force N]")
		flag.PrintDefaults()
	}
}

// configDSN derives a migrate URL from the configured record store.
func configDSN(cfg *config.Config) (string, error) {
	switch cfg.Pipeline.Store {
	case pipeline.StorePostgres:
		return cfg.Database.URL(), nil
	case pipeline.StoreSQLite:
		return "sqlite://" + cfg.Pipeline.SQLitePath, nil
	default:
		return "", fmt.Errorf("store %q has no schema to migrate", cfg.Pipeline.Store)
	}
}

func dialectOf(dsn string) string {
	if strings.HasPrefix(dsn, "sqlite") {
		return string(records.SQLite)
	}
	return string(records.Postgres)
}
