package routes

import (
	"github.com/dukerupert/tally/internal/router"
)

// RegisterWebhookRoutes registers all webhook routes.
// Signature verification happens inside the handler, so no session or
// CSRF middleware applies here.
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	r.Post("/webhooks/stripe", deps.StripeHandler)
}
