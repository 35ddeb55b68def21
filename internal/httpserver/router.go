package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"snowgate/internal/handlers"
	"snowgate/internal/metrics"
	"snowgate/internal/middleware"
)

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, tickets *handlers.TicketsHandler) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	// The upstream gateway itself gives up near 60s; one retried
	// attempt can take most of that, so the request budget is wide.
	r.Use(middleware.Timeout(90 * time.Second))
	r.Use(middleware.MaxBodySize(64 * 1024))

	// routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/tickets/{table}", tickets.Tickets)
		r.Get("/tickets/{table}/estimate", tickets.Estimate)
		r.Get("/search", tickets.Search)
		r.Post("/cache/warm", tickets.Warm)
		r.Get("/cache/warm", tickets.WarmStatus)
		r.Get("/streams/{name}", tickets.StreamEvents)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
