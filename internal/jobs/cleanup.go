// Package jobs holds maintenance tasks run by operators or on a schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
)

// MinEventRetention is the shortest retention PruneProcessedEvents accepts.
// Stripe redelivers for up to three days, and an event pruned before its
// last redelivery would be recorded and run again.
const MinEventRetention = 7 * 24 * time.Hour

// DefaultEventRetention keeps processed events for 90 days.
const DefaultEventRetention = 90 * 24 * time.Hour

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	EventsDeleted   int64     `json:"events_deleted"`
	ProcessedBefore time.Time `json:"processed_before"`
}

// PruneProcessedEvents deletes events that were marked processed more than
// retention ago. Unprocessed events are never deleted.
func PruneProcessedEvents(ctx context.Context, q repository.Querier, retention time.Duration, now time.Time) (*CleanupResult, error) {
	const op = "jobs.prune_events"

	if retention < MinEventRetention {
		return nil, domain.Errorf(domain.EINVALID, op, "retention must be at least %s", MinEventRetention)
	}

	cutoff := now.Add(-retention)
	deleted, err := q.DeleteProcessedStripeEvents(ctx, repository.Timestamptz(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return &CleanupResult{
		EventsDeleted:   deleted,
		ProcessedBefore: cutoff,
	}, nil
}
