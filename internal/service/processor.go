package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/telemetry"
)

// Source identifies how an event reached the processor.
type Source string

const (
	SourceHTTP   Source = "http"
	SourceReplay Source = "replay"
	SourceCLI    Source = "cli"
)

// ProcessResult describes the outcome of one delivery.
type ProcessResult struct {
	EventID   string
	Kind      domain.EventKind
	Duplicate bool // an earlier delivery already processed the event
	Retried   bool // the event was stored but unprocessed, and was run again
}

// PayloadArchive stores raw event bodies outside the database.
type PayloadArchive interface {
	Put(ctx context.Context, key string, content io.Reader, contentType string) error
}

// ArchiveKeyFunc names the archived copy of an event.
type ArchiveKeyFunc func(event domain.ExternalEvent) string

const archiveTimeout = 5 * time.Second

// WebhookProcessor runs verified events through the idempotency gate, the
// router, and the processed marker.
type WebhookProcessor struct {
	events     *EventStore
	router     *EventRouter
	logger     *slog.Logger
	archive    PayloadArchive
	archiveKey ArchiveKeyFunc
}

func NewWebhookProcessor(events *EventStore, router *EventRouter, logger *slog.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		events: events,
		router: router,
		logger: logger,
	}
}

// Process handles a freshly delivered event.
//
// A failure to store the event is returned with code EINVALID. A handler
// failure is returned with code EINTERNAL and leaves the event unprocessed so
// the sender, or the replay worker, tries again.
func (p *WebhookProcessor) Process(ctx context.Context, event domain.ExternalEvent) (ProcessResult, error) {
	const op = "webhook.process"

	result := ProcessResult{EventID: event.ID, Kind: event.Kind()}
	start := time.Now()

	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues(event.Type).Inc()
		defer func() {
			telemetry.Business.WebhookLatency.WithLabelValues(event.Type).Observe(time.Since(start).Seconds())
		}()
	}

	rec, err := p.events.Record(ctx, event)
	if err != nil {
		p.logger.Error("failed to store event", "event_id", event.ID, "event_type", event.Type, "error", err)
		if telemetry.Business != nil {
			telemetry.Business.WebhookRejected.WithLabelValues("store_failed").Inc()
		}
		return result, domain.WrapError(err, domain.EINVALID, op, "Unable to record event")
	}

	if rec.AlreadyProcessed {
		p.logger.Info("duplicate event delivery, already processed",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		if telemetry.Business != nil {
			telemetry.Business.WebhookDuplicates.WithLabelValues(event.Type).Inc()
		}
		result.Duplicate = true
		return result, nil
	}

	if rec.IsNew {
		// Archive the request body, not the JSONB round trip.
		raw := rec.Event
		raw.Payload = event.Payload
		p.archivePayload(ctx, raw)
	} else {
		p.logger.Info("event stored but unprocessed, running handler again",
			"event_id", event.ID,
			"event_type", event.Type,
			"attempts", rec.Event.Attempts,
		)
		result.Retried = true
	}

	if err := p.events.BeginAttempt(ctx, event.ID); err != nil {
		return result, err
	}

	// The stored payload is authoritative for redeliveries.
	return result, p.run(ctx, rec.Event, SourceHTTP)
}

// WithArchive copies each newly recorded payload to archive under the key
// returned by key. Archive failures are logged and never fail the delivery.
func (p *WebhookProcessor) WithArchive(archive PayloadArchive, key ArchiveKeyFunc) *WebhookProcessor {
	p.archive = archive
	p.archiveKey = key
	return p
}

func (p *WebhookProcessor) archivePayload(ctx context.Context, event domain.ExternalEvent) {
	if p.archive == nil || p.archiveKey == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	key := p.archiveKey(event)
	if err := p.archive.Put(ctx, key, bytes.NewReader(event.Payload), "application/json"); err != nil {
		p.logger.Warn("failed to archive event payload", "event_id", event.ID, "key", key, "error", err)
		if telemetry.Business != nil {
			telemetry.Business.ArchiveFailed.Inc()
		}
		return
	}
	if telemetry.Business != nil {
		telemetry.Business.ArchiveWritten.Inc()
	}
}

// Replay runs a stored event whose attempt has already been counted, as the
// replay worker's claim query does.
func (p *WebhookProcessor) Replay(ctx context.Context, event domain.ExternalEvent) error {
	return p.run(ctx, event, SourceReplay)
}

// ReplayByID loads one event and runs it unless it is already processed.
// It returns true when the handler ran.
func (p *WebhookProcessor) ReplayByID(ctx context.Context, id string) (bool, error) {
	event, err := p.events.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if event.Processed {
		p.logger.Info("event already processed, nothing to replay", "event_id", id)
		return false, nil
	}
	if err := p.events.BeginAttempt(ctx, id); err != nil {
		return false, err
	}
	return true, p.run(ctx, event, SourceCLI)
}

func (p *WebhookProcessor) run(ctx context.Context, event domain.ExternalEvent, source Source) error {
	const op = "webhook.run"

	telemetry.AddBreadcrumb(ctx, "webhook", "dispatching event", map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"source":     string(source),
	})

	if err := p.router.Dispatch(ctx, event); err != nil {
		p.logger.Error("event handler failed, leaving event unprocessed",
			"event_id", event.ID,
			"event_type", event.Type,
			"source", source,
			"error", err,
		)
		if recErr := p.events.RecordFailure(ctx, event.ID, err); recErr != nil {
			p.logger.Error("failed to record handler error", "event_id", event.ID, "error", recErr)
		}
		if telemetry.Business != nil {
			telemetry.Business.WebhookFailed.WithLabelValues(event.Type, string(source)).Inc()
		}
		telemetry.CaptureEventError(ctx, err, event.ID, event.Type, map[string]interface{}{
			"account_id": event.AccountID,
			"source":     string(source),
			"attempts":   event.Attempts,
		})
		return domain.Internal(err, op, "event handler failed")
	}

	if err := p.events.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error("failed to mark event processed", "event_id", event.ID, "error", err)
		return err
	}

	if telemetry.Business != nil {
		telemetry.Business.WebhookProcessed.WithLabelValues(event.Type, string(source)).Inc()
	}
	return nil
}
