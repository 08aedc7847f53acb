package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contextiq/contextiq/internal/api"
	"github.com/contextiq/contextiq/internal/api/handlers"
	"github.com/contextiq/contextiq/internal/api/middleware"
)

type RouterConfig struct {
	IngestHandler *handlers.IngestHandler
	GraphHandler  *handlers.GraphHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/ingest", cfg.IngestHandler.Ingest)

	r.Route("/graph", func(r chi.Router) {
		r.Get("/entities", cfg.GraphHandler.ListEntities)
		r.Get("/entities/{id}", cfg.GraphHandler.GetEntity)
		r.Get("/entities/{id}/relationships", cfg.GraphHandler.EntityRelationships)
		r.Get("/stale", cfg.GraphHandler.ListStale)
		r.Post("/decay", cfg.GraphHandler.TriggerDecay)
		r.Post("/prune", cfg.GraphHandler.PruneStale)
	})

	return r
}
