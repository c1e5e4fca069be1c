package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for the webhook reconciliation pipeline.
type BusinessMetrics struct {
	// Ingestion
	WebhookReceived   *prometheus.CounterVec
	WebhookRejected   *prometheus.CounterVec
	WebhookDuplicates *prometheus.CounterVec
	WebhookProcessed  *prometheus.CounterVec
	WebhookFailed     *prometheus.CounterVec
	WebhookLatency    *prometheus.HistogramVec

	// Reconciliation
	ReconciliationSkipped *prometheus.CounterVec
	PaymentsRecorded      *prometheus.CounterVec
	RevenueCollected      *prometheus.CounterVec
	InvoicesPaid          prometheus.Counter
	AccountsSynced        *prometheus.CounterVec
	SubscriptionsSynced   *prometheus.CounterVec

	// Replay worker
	ReplayClaimed   prometheus.Counter
	ReplaySucceeded prometheus.Counter
	ReplayFailed    prometheus.Counter

	// Payload archive
	ArchiveWritten prometheus.Counter
	ArchiveFailed  prometheus.Counter

	// Email delivery
	EmailSent   *prometheus.CounterVec
	EmailFailed *prometheus.CounterVec

	// External API performance
	StripeAPILatency *prometheus.HistogramVec
}

// NewBusinessMetrics creates metrics and registers them with reg.
// A nil reg uses the default registry.
func NewBusinessMetrics(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	if namespace == "" {
		namespace = "tally"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	subsystem := "webhook"
	factory := promauto.With(reg)

	m := &BusinessMetrics{
		// =======================================================================
		// Ingestion
		// =======================================================================
		WebhookReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "received_total",
				Help:      "Total verified webhook events received",
			},
			[]string{"event_type"},
		),
		WebhookRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rejected_total",
				Help:      "Total webhook deliveries rejected before storage",
			},
			[]string{"reason"}, // reason: missing_signature, invalid_signature, no_secrets, store_failed
		),
		WebhookDuplicates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duplicates_total",
				Help:      "Total redeliveries of already processed events",
			},
			[]string{"event_type"},
		),
		WebhookProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "processed_total",
				Help:      "Total events marked processed",
			},
			[]string{"event_type", "source"}, // source: http, replay
		),
		WebhookFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "failed_total",
				Help:      "Total handler failures left for retry",
			},
			[]string{"event_type", "source"},
		),
		WebhookLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "processing_duration_seconds",
				Help:      "Time from verified delivery to acknowledgment",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"event_type"},
		),

		// =======================================================================
		// Reconciliation
		// =======================================================================
		ReconciliationSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconciliation_skipped_total",
				Help:      "Events acknowledged without a state change",
			},
			[]string{"event_type", "reason"}, // reason: missing_correlation, unknown_type, already_applied
		),
		PaymentsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payments_recorded_total",
				Help:      "Payment ledger rows written",
			},
			[]string{"status"},
		),
		RevenueCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "revenue_collected_total",
				Help:      "Sum of succeeded payments applied to invoices, in major units",
			},
			[]string{"currency"},
		),
		InvoicesPaid: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "invoices_paid_total",
				Help:      "Invoices that reached paid status",
			},
		),
		AccountsSynced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "accounts_synced_total",
				Help:      "Connected account status syncs by derived onboarding status",
			},
			[]string{"onboarding_status"},
		),
		SubscriptionsSynced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscriptions_synced_total",
				Help:      "Organization subscription syncs by resulting plan",
			},
			[]string{"plan", "status"},
		),

		// =======================================================================
		// Replay Worker
		// =======================================================================
		ReplayClaimed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "replay_claimed_total",
				Help:      "Stale unprocessed events claimed for replay",
			},
		),
		ReplaySucceeded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "replay_succeeded_total",
				Help:      "Replayed events that were marked processed",
			},
		),
		ReplayFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "replay_failed_total",
				Help:      "Replayed events whose handler failed again",
			},
		),

		ArchiveWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "archive_written_total",
				Help:      "Raw event payloads copied to the archive",
			},
		),

		ArchiveFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "archive_failed_total",
				Help:      "Raw event payloads that could not be archived",
			},
		),

		// =======================================================================
		// Email Delivery
		// =======================================================================
		EmailSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_sent_total",
				Help:      "Total emails sent by type",
			},
			[]string{"email_type"},
		),
		EmailFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_failed_total",
				Help:      "Total email delivery failures",
			},
			[]string{"email_type"},
		),

		// =======================================================================
		// External API Performance
		// =======================================================================
		StripeAPILatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stripe_api_duration_seconds",
				Help:      "Stripe API call duration (helps differentiate app slowness from Stripe issues)",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"}, // operation: get_balance
		),
	}

	return m
}

// Global instance for easy access from handlers
var Business *BusinessMetrics

// InitBusinessMetrics initializes the global business metrics instance
func InitBusinessMetrics(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(namespace, nil)
	return Business
}
