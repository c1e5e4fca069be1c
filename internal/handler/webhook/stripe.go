package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/handler"
	"github.com/dukerupert/tally/internal/middleware"
	"github.com/dukerupert/tally/internal/service"
	"github.com/dukerupert/tally/internal/telemetry"
	"github.com/getsentry/sentry-go"
	"github.com/stripe/stripe-go/v83"
)

// DefaultMaxBodySize matches Stripe's documented upper bound for event payloads
// with room to spare.
const DefaultMaxBodySize = 512 * 1024

// SignatureHeader carries Stripe's timestamped HMAC signatures.
const SignatureHeader = "Stripe-Signature"

// Verifier authenticates a raw payload against the configured signing secrets.
type Verifier interface {
	Verify(payload []byte, signature string) (stripe.Event, error)
}

// Processor runs a verified event through the reconciliation pipeline.
type Processor interface {
	Process(ctx context.Context, event domain.ExternalEvent) (service.ProcessResult, error)
}

// StripeHandler handles POST /webhooks/stripe for both platform and Connect
// deliveries.
type StripeHandler struct {
	verifier    Verifier
	processor   Processor
	logger      *slog.Logger
	maxBodySize int64
}

// NewStripeHandler creates a new Stripe webhook handler
func NewStripeHandler(verifier Verifier, processor Processor, logger *slog.Logger) *StripeHandler {
	return &StripeHandler{
		verifier:    verifier,
		processor:   processor,
		logger:      logger,
		maxBodySize: DefaultMaxBodySize,
	}
}

// HandleWebhook verifies, stores, and reconciles one delivery.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger payment_intent.succeeded
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := middleware.GetLogger(r.Context(), h.logger)

	// The body must reach the verifier byte for byte.
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		logger.Warn("failed to read webhook body", "error", err)
		h.reject("body_unreadable")
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.read", "Error reading request body"))
		return
	}

	event, err := h.verifier.Verify(payload, r.Header.Get(SignatureHeader))
	if err != nil {
		h.rejectVerification(w, r, err)
		return
	}

	result, err := h.processor.Process(r.Context(), domain.ExternalEvent{
		ID:        event.ID,
		Type:      string(event.Type),
		AccountID: event.Account,
		Payload:   payload,
	})
	if err != nil {
		// Non-2xx makes Stripe redeliver. The event row, if stored, stays
		// unprocessed for the replay worker as well.
		handler.ErrorResponse(w, r, err)
		return
	}

	logger.Info("webhook event acknowledged",
		"event_id", result.EventID,
		"event_type", event.Type,
		"account_id", event.Account,
		"duplicate", result.Duplicate,
		"retried", result.Retried,
	)

	handler.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *StripeHandler) rejectVerification(w http.ResponseWriter, r *http.Request, err error) {
	logger := middleware.GetLogger(r.Context(), h.logger)
	switch {
	case domain.IsConfigurationError(err):
		logger.Error("no webhook signing secrets configured")
		h.reject("no_secrets")
		telemetry.CaptureMessage(r.Context(), "webhook received but no signing secrets are configured", sentry.LevelError, nil)
	case errors.Is(err, domain.ErrMissingSignature):
		logger.Warn("webhook rejected: missing signature header")
		h.reject("missing_signature")
	default:
		logger.Warn("webhook rejected: signature verification failed", "error", err)
		h.reject("invalid_signature")
	}
	handler.ErrorResponse(w, r, err)
}

func (h *StripeHandler) reject(reason string) {
	if telemetry.Business != nil {
		telemetry.Business.WebhookRejected.WithLabelValues(reason).Inc()
	}
}
