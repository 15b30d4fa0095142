package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/phrazzld/strata/internal/config"
	"github.com/phrazzld/strata/internal/platform/postgres"
	"github.com/phrazzld/strata/internal/service/export"
	"github.com/phrazzld/strata/internal/service/materialize"
	"github.com/phrazzld/strata/internal/service/resolution"
	"github.com/phrazzld/strata/internal/service/settings"
	"github.com/phrazzld/strata/internal/service/version"
	"github.com/phrazzld/strata/internal/store"
	"github.com/phrazzld/strata/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	keyStore      store.KeyStore
	channelStore  store.ChannelStore
	profileStore  store.ProfileStore
	valueStore    store.ValueStore
	resolvedStore store.ResolvedStore
	snapshotStore store.SnapshotStore
	taskStore     task.TaskStore

	// Services
	resolver        *resolution.Resolver
	primer          *materialize.Primer
	settingsService *settings.Service
	exporter        *export.Exporter
	versionService  *version.Service

	// Background work
	taskRunner *task.TaskRunner
	scheduler  *cron.Cron
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before application
// initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize stores
	app.keyStore = postgres.NewPostgresKeyStore(db, logger)
	app.channelStore = postgres.NewPostgresChannelStore(db, logger)
	app.profileStore = postgres.NewPostgresProfileStore(db, logger)
	app.valueStore = postgres.NewPostgresValueStore(db, logger)
	app.resolvedStore = postgres.NewPostgresResolvedStore(db, logger)
	app.snapshotStore = postgres.NewPostgresSnapshotStore(db, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)

	// Resolution and materialization
	app.resolver = resolution.NewResolver(
		app.keyStore,
		app.channelStore,
		app.profileStore,
		app.valueStore,
		logger,
	)

	metrics := materialize.NewMetrics(prometheus.DefaultRegisterer)

	app.primer = materialize.NewPrimer(
		db,
		app.resolver,
		app.resolvedStore,
		app.channelStore,
		app.profileStore,
		cfg.Prime.Workers,
		logger,
		metrics,
	)

	// Task runner for queued prime passes. Recovered tasks are rehydrated
	// against the primer so they execute after a crash.
	if err := setupTaskRunner(app); err != nil {
		return nil, fmt.Errorf("failed to setup task runner: %w", err)
	}

	// Writes trigger a re-prime of the affected scope. Async routes the
	// pass through the task runner; inline blocks the write until the
	// materialized table is current.
	var trigger settings.PrimeTrigger
	if cfg.Prime.Async {
		trigger = settings.NewAsyncPrimeTrigger(app.taskRunner, app.primer, logger)
	} else {
		trigger = settings.NewInlinePrimeTrigger(app.primer)
	}

	app.settingsService = settings.NewService(
		app.keyStore,
		app.channelStore,
		app.profileStore,
		app.valueStore,
		app.resolvedStore,
		app.resolver,
		trigger,
		logger,
	)

	app.exporter = export.NewExporter(
		app.resolvedStore,
		app.keyStore,
		app.channelStore,
		logger,
	)

	app.versionService = version.NewService(
		db,
		app.snapshotStore,
		app.profileStore,
		app.keyStore,
		app.valueStore,
		app.resolver,
		trigger,
		cfg.Snapshot.Keep,
		logger,
	)

	// Periodic full re-prime keeps scopes that receive no writes from
	// drifting after key or channel definitions change.
	if cfg.Prime.Schedule != "" {
		if err := setupScheduler(app); err != nil {
			return nil, fmt.Errorf("failed to setup prime scheduler: %w", err)
		}
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// setupTaskRunner initializes and starts the background task processor.
func setupTaskRunner(app *application) error {
	rehydrate := task.RehydratePrimeScopeTask(app.primer, app.logger)

	app.taskRunner = task.NewTaskRunner(app.taskStore, rehydrate, task.TaskRunnerConfig{
		WorkerCount:  app.config.Task.WorkerCount,
		QueueSize:    app.config.Task.QueueSize,
		StuckTaskAge: time.Duration(app.config.Task.StuckTaskAgeMinutes) * time.Minute,
	}, app.logger)

	if err := app.taskRunner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	return nil
}

// setupScheduler registers the periodic full prime pass.
func setupScheduler(app *application) error {
	app.scheduler = cron.New()

	_, err := app.scheduler.AddFunc(app.config.Prime.Schedule, func() {
		ctx := context.Background()
		if err := app.primer.PrimeAll(ctx); err != nil {
			app.logger.Error("Scheduled prime pass failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid prime schedule %q: %w", app.config.Prime.Schedule, err)
	}

	app.scheduler.Start()
	app.logger.Info("Prime scheduler started", "schedule", app.config.Prime.Schedule)
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}

	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
