package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	historyMigrationsTable = "history_schema_migrations"
	iotMigrationsTable     = "iot_schema_migrations"
)

// RunHistoryMigrations creates or upgrades the query history tables in a SQLite database.
// It is idempotent and safe to call multiple times - only pending migrations will be executed.
func RunHistoryMigrations(db *sql.DB, logger *zap.Logger) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: historyMigrationsTable})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	return run(driver, "sqlite3", "migrations/history", logger.Named("migrations").With(zap.String("set", "history")))
}

// RunIoTMigrations creates the IoT schema for the given backend type ("sqlite" or "postgres").
// db must be opened with the matching database/sql driver ("sqlite3" or "pgx").
func RunIoTMigrations(db *sql.DB, backend string, logger *zap.Logger) error {
	var (
		driver migratedb.Driver
		err    error
	)
	switch backend {
	case "sqlite":
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: iotMigrationsTable})
	case "postgres":
		driver, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{MigrationsTable: iotMigrationsTable})
	default:
		return fmt.Errorf("no IoT migrations for backend %q", backend)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	return run(driver, backend, "migrations/iot/"+backend, logger.Named("migrations").With(zap.String("set", "iot")))
}

func run(driver migratedb.Driver, dbName, dir string, logger *zap.Logger) error {
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to open migration source %s: %w", dir, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Closing m would also close the caller's *sql.DB, so only the source is released.
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("Failed to close migration source", zap.Error(err))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("No migrations to apply (database up-to-date)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully", zap.Uint("version", newVersion))
	return nil
}
