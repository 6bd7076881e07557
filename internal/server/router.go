package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sevigo/revision-warden/internal/server/handler"
	"github.com/sevigo/revision-warden/internal/storage"
)

// Dependencies are the services behind the HTTP routes.
type Dependencies struct {
	Judgements handler.JudgementService
	Reverter   handler.Reverter
	Feeds      storage.FeedStore
	Gatherer   prometheus.Gatherer
}

// NewRouter creates and configures a new HTTP router with middleware and API routes.
func NewRouter(deps Dependencies, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Configure middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		interactions := handler.NewInteractionHandler(deps.Judgements, logger)
		r.Post("/interactions", interactions.Submit)
		r.Get("/interactions/{wikiRevId}", interactions.List)

		feeds := handler.NewFeedHandler(deps.Feeds, logger)
		r.Get("/feeds/{feed}/revisions", feeds.Revisions)
		r.Get("/feeds/{feed}/scope", feeds.Scope)

		reverts := handler.NewRevertHandler(deps.Reverter, logger)
		r.Post("/revert/{wikiRevId}", reverts.Handle)
	})

	return r
}
