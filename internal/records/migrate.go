package records

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// Dialect selects the SQL flavor used by the SQL store and its migrations.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// MigrationSource returns the embedded migration set for the dialect.
func MigrationSource(d Dialect) (source.Driver, error) {
	switch d {
	case Postgres, SQLite:
		return iofs.New(migrations, "migrations/"+string(d))
	}
	return nil, fmt.Errorf("unsupported dialect: %q", d)
}

// Migrate applies all pending up migrations for the dialect to db.
// The migrator is not closed, since closing it would close db.
func Migrate(db *sql.DB, d Dialect) error {
	src, err := MigrationSource(d)
	if err != nil {
		return err
	}

	var driver database.Driver
	switch d {
	case Postgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	case SQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(d), driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
