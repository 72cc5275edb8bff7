package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"winery/internal/log"
)

//go:embed migrations/*.sql
var sessionMigrations embed.FS

// sessionSchemaTable records the applied session schema version.
const sessionSchemaTable = "session_schema_migrations"

// MigrateSessionSchema brings the session database at dbPath up to the
// newest embedded schema and returns the version it ends on.
//
// The migrator closes the handle it is given, so it runs on its own
// connection rather than the store's.
func MigrateSessionSchema(dbPath string, logger *log.Logger) (uint, error) {
	if logger == nil {
		logger = log.Discard()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open session database: %w", err)
	}
	defer db.Close()

	target, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: sessionSchemaTable})
	if err != nil {
		return 0, fmt.Errorf("session schema driver: %w", err)
	}
	source, err := iofs.New(sessionMigrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("session schema source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", target)
	if err != nil {
		return 0, fmt.Errorf("session schema migrator: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate session schema: %w", err)
	}
	version, dirty, verr := m.Version()
	if verr != nil {
		return 0, fmt.Errorf("read session schema version: %w", verr)
	}
	if dirty {
		return version, fmt.Errorf("session schema version %d is dirty", version)
	}
	if err == nil {
		logger.Info("Session schema migrated", "version", version)
	}
	return version, nil
}
