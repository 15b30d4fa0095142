package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
)

// migrationsDir is the default location of the goose migration files,
// relative to the working directory. STRATA_MIGRATIONS_DIR overrides it
// for deployments that ship migrations elsewhere.
const migrationsDir = "migrations"

// runMigrations applies all pending schema migrations before the server
// starts serving. The server refuses to start on a schema it does not
// understand.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	dir := migrationsDir
	if override := os.Getenv("STRATA_MIGRATIONS_DIR"); override != "" {
		dir = override
	}

	absDir, err := filepath.Abs(dir)
	if err == nil {
		dir = absDir
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found at %s", dir)
	}

	goose.SetLogger(&slogGooseLogger{logger: logger.With("component", "migrations")})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	logger.Info("Applying pending migrations", "dir", dir)
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// slogGooseLogger adapts goose's logger interface to slog.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}
