package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
)

// RecordResult reports what the idempotency gate found for an event ID.
type RecordResult struct {
	// IsNew is true when this delivery created the event row.
	IsNew bool

	// AlreadyProcessed is true when an earlier delivery finished handling the
	// event. Callers acknowledge and stop.
	AlreadyProcessed bool

	// Event is the stored row. For a duplicate it is the row from the first
	// delivery, not the redelivered payload.
	Event domain.ExternalEvent
}

// EventStore is the durable record of processor events. The primary key on
// the event ID is the only mutual exclusion between concurrent deliveries.
type EventStore struct {
	repo   repository.Querier
	logger *slog.Logger
}

func NewEventStore(repo repository.Querier, logger *slog.Logger) *EventStore {
	return &EventStore{repo: repo, logger: logger}
}

// Record inserts the event with processed=false. A duplicate key is not an
// error: the existing row is returned with IsNew=false.
func (s *EventStore) Record(ctx context.Context, event domain.ExternalEvent) (RecordResult, error) {
	const op = "event_store.record"

	row, err := s.repo.InsertStripeEvent(ctx, repository.InsertStripeEventParams{
		ID:        event.ID,
		Type:      event.Type,
		AccountID: repository.Text(event.AccountID),
		Payload:   event.Payload,
	})
	if err == nil {
		return RecordResult{IsNew: true, Event: eventFromRow(row)}, nil
	}

	if !repository.IsUniqueViolation(err) {
		return RecordResult{}, domain.Internal(err, op, "failed to store event")
	}

	existing, err := s.repo.GetStripeEvent(ctx, event.ID)
	if err != nil {
		return RecordResult{}, domain.Internal(err, op, "failed to load existing event")
	}

	stored := eventFromRow(existing)
	return RecordResult{
		IsNew:            false,
		AlreadyProcessed: stored.Processed,
		Event:            stored,
	}, nil
}

// BeginAttempt bumps the attempt counter before a handler runs.
func (s *EventStore) BeginAttempt(ctx context.Context, id string) error {
	if err := s.repo.BeginStripeEventAttempt(ctx, id); err != nil {
		return domain.Internal(err, "event_store.begin_attempt", "failed to record attempt")
	}
	return nil
}

// MarkProcessed sets processed=true. Calling it again keeps the first
// processed_at.
func (s *EventStore) MarkProcessed(ctx context.Context, id string) error {
	if err := s.repo.MarkStripeEventProcessed(ctx, id); err != nil {
		return domain.Internal(err, "event_store.mark_processed", "failed to mark event processed")
	}
	return nil
}

// RecordFailure stores the handler error on an unprocessed event for operators.
func (s *EventStore) RecordFailure(ctx context.Context, id string, cause error) error {
	msg := cause.Error()
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	err := s.repo.RecordStripeEventFailure(ctx, repository.RecordStripeEventFailureParams{
		ID:        id,
		LastError: msg,
	})
	if err != nil {
		return domain.Internal(err, "event_store.record_failure", "failed to record event failure")
	}
	return nil
}

// Get loads one event by ID.
func (s *EventStore) Get(ctx context.Context, id string) (domain.ExternalEvent, error) {
	const op = "event_store.get"

	row, err := s.repo.GetStripeEvent(ctx, id)
	if err != nil {
		if repository.IsNoRows(err) {
			return domain.ExternalEvent{}, domain.NotFound(op, "event", id)
		}
		return domain.ExternalEvent{}, domain.Internal(err, op, "failed to load event")
	}
	return eventFromRow(row), nil
}

// ListEvents returns the most recent events, newest first.
func (s *EventStore) ListEvents(ctx context.Context, onlyUnprocessed bool, limit int32) ([]domain.ExternalEvent, error) {
	rows, err := s.repo.ListStripeEvents(ctx, repository.ListStripeEventsParams{
		OnlyUnprocessed: onlyUnprocessed,
		Limit:           limit,
	})
	if err != nil {
		return nil, domain.Internal(err, "event_store.list", "failed to list events")
	}

	events := make([]domain.ExternalEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, eventFromRow(row))
	}
	return events, nil
}

// ClaimParams selects stale unprocessed events for replay.
type ClaimParams struct {
	StaleBefore time.Time
	MaxAttempts int32
	Limit       int32
}

// ClaimStale leases up to Limit unprocessed events whose last attempt is older
// than StaleBefore. Claiming counts as an attempt.
func (s *EventStore) ClaimStale(ctx context.Context, params ClaimParams) ([]domain.ExternalEvent, error) {
	rows, err := s.repo.ClaimStaleStripeEvents(ctx, repository.ClaimStaleStripeEventsParams{
		StaleBefore: repository.Timestamptz(params.StaleBefore),
		MaxAttempts: params.MaxAttempts,
		Limit:       params.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("claim stale events: %w", err)
	}

	events := make([]domain.ExternalEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, eventFromRow(row))
	}
	return events, nil
}

func eventFromRow(row repository.StripeEvent) domain.ExternalEvent {
	return domain.ExternalEvent{
		ID:            row.ID,
		Type:          row.Type,
		AccountID:     row.AccountID.String,
		Payload:       row.Payload,
		Processed:     row.Processed,
		Attempts:      row.Attempts,
		LastError:     row.LastError.String,
		ReceivedAt:    row.ReceivedAt.Time,
		ProcessedAt:   repository.TimePtr(row.ProcessedAt),
		LastAttemptAt: repository.TimePtr(row.LastAttemptAt),
	}
}
