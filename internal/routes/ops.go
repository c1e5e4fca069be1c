package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/dukerupert/tally/internal/handler"
	"github.com/dukerupert/tally/internal/router"
)

// RegisterOpsRoutes registers the health check and the Prometheus scrape
// endpoint.
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	r.Get("/health", healthHandler(deps.Store))
	if deps.MetricsHandler != nil {
		r.Handle(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
}

func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				handler.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
