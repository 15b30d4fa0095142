package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"github.com/phrazzld/strata/internal/config"
	"github.com/phrazzld/strata/internal/platform/logger"
	"github.com/phrazzld/strata/internal/platform/postgres"
	"github.com/phrazzld/strata/internal/service/export"
	"github.com/phrazzld/strata/internal/service/materialize"
	"github.com/phrazzld/strata/internal/service/resolution"
	"github.com/phrazzld/strata/internal/store"
)

// env bundles the services a CLI command needs. Commands call setupEnv,
// do their work, and Close.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB

	keys     store.KeyStore
	channels store.ChannelStore
	resolved store.ResolvedStore

	exporter *export.Exporter
	primer   *materialize.Primer
}

// setupEnv loads configuration, connects to the database and wires the
// services used by the CLI commands.
func setupEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	keys := postgres.NewPostgresKeyStore(db, log)
	channels := postgres.NewPostgresChannelStore(db, log)
	profiles := postgres.NewPostgresProfileStore(db, log)
	values := postgres.NewPostgresValueStore(db, log)
	resolved := postgres.NewPostgresResolvedStore(db, log)

	resolver := resolution.NewResolver(keys, channels, profiles, values, log)
	primer := materialize.NewPrimer(db, resolver, resolved, channels, profiles, cfg.Prime.Workers, log, nil)
	exporter := export.NewExporter(resolved, keys, channels, log)

	return &env{
		cfg:      cfg,
		logger:   log,
		db:       db,
		keys:     keys,
		channels: channels,
		resolved: resolved,
		exporter: exporter,
		primer:   primer,
	}, nil
}

// Close releases the environment's database connection.
func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		e.logger.Error("Error closing database connection", "error", err)
	}
}

// parseWorkspaceFlag parses an optional workspace flag value.
func parseWorkspaceFlag(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace ID %q: %w", raw, err)
	}

	return &id, nil
}
