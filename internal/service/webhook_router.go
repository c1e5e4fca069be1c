package service

import (
	"context"
	"log/slog"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/telemetry"
)

// EventHandlerFunc reconciles one stored event. It must be safe to run more
// than once for the same event.
type EventHandlerFunc func(ctx context.Context, event domain.ExternalEvent) error

// EventRouter dispatches an event to the single handler registered for its kind.
type EventRouter struct {
	handlers map[domain.EventKind]EventHandlerFunc
	logger   *slog.Logger
}

func NewEventRouter(logger *slog.Logger) *EventRouter {
	return &EventRouter{
		handlers: make(map[domain.EventKind]EventHandlerFunc),
		logger:   logger,
	}
}

// Handle registers fn for kind, replacing any previous handler.
// Registering EventUnknown panics; unknown events are always acknowledged.
func (r *EventRouter) Handle(kind domain.EventKind, fn EventHandlerFunc) {
	if kind == domain.EventUnknown {
		panic("service: cannot register a handler for unknown events")
	}
	r.handlers[kind] = fn
}

// Handles reports whether a handler is registered for kind.
func (r *EventRouter) Handles(kind domain.EventKind) bool {
	_, ok := r.handlers[kind]
	return ok
}

// Dispatch runs the handler for the event's kind. Events with no handler are
// logged and treated as handled.
func (r *EventRouter) Dispatch(ctx context.Context, event domain.ExternalEvent) error {
	kind := event.Kind()

	fn, ok := r.handlers[kind]
	if !ok {
		r.logger.Info("ignoring unhandled event type",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		if telemetry.Business != nil {
			telemetry.Business.ReconciliationSkipped.WithLabelValues(event.Type, "unknown_type").Inc()
		}
		return nil
	}

	r.logger.Debug("dispatching event",
		"event_id", event.ID,
		"event_type", event.Type,
		"kind", kind.String(),
	)
	return fn(ctx, event)
}
