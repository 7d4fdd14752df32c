// Package router sets up all HTTP routes and middleware chains for the
// taxonomy service.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"taxonomy/internal/handlers"
	"taxonomy/internal/metrics"
	"taxonomy/internal/middleware"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// New creates and returns the configured Chi router. metrics and db may be
// nil: without metrics /metrics is not mounted, without db /health only
// reports that the process is up.
func New(categories *handlers.Categories, m *metrics.Collector, db Pinger) chi.Router {
	r := chi.NewRouter()

	var obs middleware.RequestObserver
	if m != nil {
		obs = m
	}

	// Global middleware, applied to every request.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger(obs))

	r.Get("/health", healthHandler(db))
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", categories.List)
		r.Post("/", categories.Create)
		r.Get("/roots", categories.Roots)
		r.Get("/slug/{slug}", categories.GetBySlug)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", categories.Get)
			r.Patch("/", categories.Update)
			r.Delete("/", categories.Delete)
			r.Get("/children", categories.Children)
			r.Post("/move", categories.Move)
			r.Post("/slug", categories.RegenerateSlug)
		})
	})

	return r
}

// healthHandler returns a JSON health check response. When db is set it is
// pinged and a failure turns the response into a 503.
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				slog.Warn("health check: database unreachable", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}
