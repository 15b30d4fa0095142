package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/strata/internal/api"
	apiMiddleware "github.com/phrazzld/strata/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware. It accepts the application dependencies to create handlers
// and register routes. Returns the configured router.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware) // Add trace IDs for improved error handling

	// Create API handlers using the application's services
	configHandler := api.NewConfigHandler(
		app.resolvedStore,
		app.keyStore,
		app.channelStore,
		app.exporter,
		app.primer,
	)
	settingsHandler := api.NewSettingsHandler(app.settingsService)
	primeHandler := api.NewPrimeHandler(app.primer)
	exportHandler := api.NewExportHandler(app.exporter)
	snapshotHandler := api.NewSnapshotHandler(app.versionService)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		// Read path: materialized lookups only
		r.Get("/config", configHandler.ListConfig)
		r.Get("/config/{key}", configHandler.GetConfig)
		r.Get("/export", exportHandler.Export)

		// Write path
		r.Post("/keys", settingsHandler.DefineKey)
		r.Delete("/keys/{key}", settingsHandler.DeleteKey)
		r.Post("/channels", settingsHandler.EnsureChannel)
		r.Delete("/channels/{channel}", settingsHandler.DeleteChannel)
		r.Post("/profiles", settingsHandler.CreateProfile)
		r.Put("/values", settingsHandler.SetValue)
		r.Delete("/values", settingsHandler.ClearValue)

		// Cache management
		r.Post("/prime", primeHandler.Prime)

		// Versioning
		r.Post("/profiles/{id}/snapshots", snapshotHandler.CreateSnapshot)
		r.Get("/profiles/{id}/snapshots", snapshotHandler.ListSnapshots)
		r.Post("/profiles/{id}/rollback", snapshotHandler.Rollback)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	return r
}
