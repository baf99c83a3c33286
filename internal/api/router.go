package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"buildrelay/internal/api/handlers"
	"buildrelay/internal/api/middleware"
	"buildrelay/internal/config"
	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
	"buildrelay/internal/notify"
	"buildrelay/internal/storage"
)

// NewRouter wires the HTTP API
func NewRouter(cfg config.Config, builder handlers.Builder, store *storage.Store, notifier notify.Notifier) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(chimw.Recoverer)
	if cfg.Server.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(cfg.Server.MaxBodySize))
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	buildsHandler := handlers.NewBuildsHandler(builder, store)
	jobsHandler := handlers.NewJobsHandler(builder, store, cfg.Jenkins.TemplatePath)
	callbackHandler := handlers.NewCallbackHandler(store, notifier)
	auditHandler := handlers.NewAuditHandler(store)
	authMiddleware := middleware.NewAuthMiddleware(cfg.API)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"message": "buildrelay API",
			"version": "1.0.0",
			"endpoints": []string{
				"/health - Health check",
				"/metrics - Prometheus metrics",
				"/api/v1/builds - Trigger and list builds",
				"/api/v1/builds/{id}/output - Build console output",
				"/api/v1/jobs - Create or update a CI job",
				"/api/v1/audit - Get audit logs",
			},
		}); err != nil {
			logger.Error("Failed to encode response", "error", err)
		}
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Handle("/metrics", promhttp.Handler())

	// Jenkins cannot send API keys, so the callback route is public
	r.Post(engine.CallbackPath(cfg.Jenkins.CallbackURL), callbackHandler.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware.Middleware)

		r.Post("/builds", buildsHandler.Trigger)
		r.Get("/builds", buildsHandler.List)
		r.Get("/builds/{id}", buildsHandler.Get)
		r.Get("/builds/{id}/output", buildsHandler.Output)
		r.Post("/jobs", jobsHandler.Setup)
		r.Get("/audit", auditHandler.GetAuditLogs)
	})

	return r
}
