package routes

import (
	"context"
	"net/http"
)

// WebhookDeps contains dependencies for webhook routes
type WebhookDeps struct {
	StripeHandler http.HandlerFunc
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsDeps contains dependencies for health and metrics routes
type OpsDeps struct {
	Store          Pinger
	MetricsHandler http.Handler
}
