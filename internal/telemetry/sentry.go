package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN              string // required if Enabled is true
	Enabled          bool
	Environment      string
	Release          string
	SampleRate       float64 // 0 means 1.0
	TracesSampleRate float64
	Debug            bool
}

// scrubbedHeaders never leave the process. Webhook bodies are dropped as well,
// since they carry customer names, emails, and billing details.
var scrubbedHeaders = []string{"Stripe-Signature", "Authorization", "Cookie", "X-Postmark-Server-Token"}

// sentryEnabled is set by InitSentry.
var sentryEnabled bool

// InitSentry initializes the Sentry client
// Returns a cleanup function that should be called on application shutdown
func InitSentry(cfg SentryConfig, logger *slog.Logger) (func(), error) {
	sentryEnabled = false

	if !cfg.Enabled {
		logger.Info("Sentry disabled (SENTRY_ENABLED=false or DSN not configured)")
		return func() {}, nil
	}

	if cfg.DSN == "" {
		logger.Warn("Sentry DSN not configured, disabling error tracking")
		return func() {}, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		SendDefaultPII:   false,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return scrubEvent(event)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	sentryEnabled = true

	logger.Info("Sentry initialized",
		"environment", cfg.Environment,
		"release", cfg.Release,
		"sample_rate", sampleRate,
		"traces_sample_rate", cfg.TracesSampleRate,
	)

	return func() { sentry.Flush(2 * time.Second) }, nil
}

// IsEnabled returns whether Sentry is currently enabled
func IsEnabled() bool {
	return sentryEnabled
}

func scrubEvent(event *sentry.Event) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}
	for name := range event.Request.Headers {
		for _, h := range scrubbedHeaders {
			if strings.EqualFold(name, h) {
				event.Request.Headers[name] = "[Filtered]"
			}
		}
	}
	event.Request.Data = ""
	event.Request.Cookies = ""
	return event
}

// hub returns the request-scoped hub when SentryMiddleware installed one.
func hub(ctx context.Context) *sentry.Hub {
	if ctx != nil {
		if h := sentry.GetHubFromContext(ctx); h != nil {
			return h
		}
	}
	return sentry.CurrentHub()
}

// CaptureError captures an error with optional extras.
// Safe to call even when Sentry is disabled.
func CaptureError(ctx context.Context, err error, extras map[string]interface{}) {
	if !IsEnabled() || err == nil {
		return
	}

	hub(ctx).WithScope(func(scope *sentry.Scope) {
		for key, value := range extras {
			scope.SetExtra(key, value)
		}
		hub(ctx).CaptureException(err)
	})
}

// CaptureEventError captures a reconciliation error tagged with the event
// that triggered it. Failures of the same event type group together.
func CaptureEventError(ctx context.Context, err error, eventID, eventType string, extras map[string]interface{}) {
	if !IsEnabled() || err == nil {
		return
	}

	hub(ctx).WithScope(func(scope *sentry.Scope) {
		scope.SetTag("event_type", eventType)
		scope.SetTag("event_id", eventID)
		scope.SetFingerprint([]string{"{{ default }}", eventType})
		for key, value := range extras {
			scope.SetExtra(key, value)
		}
		hub(ctx).CaptureException(err)
	})
}

// CaptureMessage captures a message (non-error event)
func CaptureMessage(ctx context.Context, message string, level sentry.Level, extras map[string]interface{}) {
	if !IsEnabled() {
		return
	}

	hub(ctx).WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		for key, value := range extras {
			scope.SetExtra(key, value)
		}
		hub(ctx).CaptureMessage(message)
	})
}

// AddBreadcrumb records a step on the request's hub so a later capture shows
// how the event got there.
func AddBreadcrumb(ctx context.Context, category, message string, data map[string]interface{}) {
	if !IsEnabled() {
		return
	}

	hub(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Data:     data,
		Level:    sentry.LevelInfo,
	}, nil)
}

// SentryMiddleware gives each request its own hub carrying the request and
// its ID. Panics are left to the router's Recovery middleware.
func SentryMiddleware(requestID func(context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			h := sentry.CurrentHub().Clone()
			h.Scope().SetRequest(r)
			if requestID != nil {
				if id := requestID(r.Context()); id != "" {
					h.Scope().SetTag("request_id", id)
				}
			}

			next.ServeHTTP(w, r.WithContext(sentry.SetHubOnContext(r.Context(), h)))
		})
	}
}
