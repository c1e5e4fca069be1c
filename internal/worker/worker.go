package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/service"
	"github.com/dukerupert/tally/internal/telemetry"
)

// Config holds replay worker configuration
type Config struct {
	// WorkerID identifies this instance in logs
	WorkerID string

	// PollInterval is how often to look for stale events
	PollInterval time.Duration

	// StaleAfter is how long an unprocessed event must sit untouched before
	// the worker claims it. It should comfortably exceed the sender's own
	// first retry delay.
	StaleAfter time.Duration

	// BatchSize caps the events claimed per poll
	BatchSize int32

	// MaxAttempts stops replay of events that keep failing
	MaxAttempts int32

	// MaxConcurrency is the maximum number of events replayed at once
	MaxConcurrency int
}

// EventClaimer leases stale unprocessed events.
type EventClaimer interface {
	ClaimStale(ctx context.Context, params service.ClaimParams) ([]domain.ExternalEvent, error)
}

// EventReplayer re-runs a claimed event through the router.
type EventReplayer interface {
	Replay(ctx context.Context, event domain.ExternalEvent) error
}

// Worker re-drives events that were stored but never marked processed.
// Claims use row locks, so several instances can run side by side.
type Worker struct {
	config   Config
	claimer  EventClaimer
	replayer EventReplayer
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorker creates a replay worker
func NewWorker(claimer EventClaimer, replayer EventReplayer, config Config, logger *slog.Logger) *Worker {
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("replay-%s", uuid.New().String()[:8])
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Minute
	}
	if config.StaleAfter == 0 {
		config.StaleAfter = 10 * time.Minute
	}
	if config.BatchSize == 0 {
		config.BatchSize = 25
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 20
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 4
	}

	return &Worker{
		config:   config,
		claimer:  claimer,
		replayer: replayer,
		logger:   logger.With("worker_id", config.WorkerID),
		now:      time.Now,
	}
}

// Start polls until ctx is cancelled. A poll's batch finishes before the
// next poll starts.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("replay worker starting",
		"poll_interval", w.config.PollInterval,
		"stale_after", w.config.StaleAfter,
		"batch_size", w.config.BatchSize,
		"max_attempts", w.config.MaxAttempts,
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("replay worker shutting down")
			return ctx.Err()

		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("replay poll failed", "error", err)
			}
		}
	}
}

// RunOnce claims one batch and replays it. It returns how many events were
// processed successfully.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	events, err := w.claimer.ClaimStale(ctx, service.ClaimParams{
		StaleBefore: w.now().Add(-w.config.StaleAfter),
		MaxAttempts: w.config.MaxAttempts,
		Limit:       w.config.BatchSize,
	})
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	w.logger.Info("claimed stale events", "count", len(events))
	if telemetry.Business != nil {
		telemetry.Business.ReplayClaimed.Add(float64(len(events)))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	sem := make(chan struct{}, w.config.MaxConcurrency)

	for _, event := range events {
		if ctx.Err() != nil {
			// Unstarted claims become stale again and are picked up later.
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(event domain.ExternalEvent) {
			defer wg.Done()
			defer func() { <-sem }()

			if w.replay(ctx, event) {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(event)
	}

	wg.Wait()
	return succeeded, nil
}

func (w *Worker) replay(ctx context.Context, event domain.ExternalEvent) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("replay panicked", "event_id", event.ID, "event_type", event.Type, "panic", rec)
			telemetry.CaptureEventError(ctx, fmt.Errorf("replay panic: %v", rec), event.ID, event.Type, nil)
			if telemetry.Business != nil {
				telemetry.Business.ReplayFailed.Inc()
			}
			ok = false
		}
	}()

	if err := w.replayer.Replay(ctx, event); err != nil {
		w.logger.Warn("replay failed, event stays unprocessed",
			"event_id", event.ID,
			"event_type", event.Type,
			"attempts", event.Attempts,
			"error", err,
		)
		if event.Attempts >= w.config.MaxAttempts {
			w.logger.Error("event reached max replay attempts, operator action needed",
				"event_id", event.ID,
				"event_type", event.Type,
				"attempts", event.Attempts,
			)
		}
		if telemetry.Business != nil {
			telemetry.Business.ReplayFailed.Inc()
		}
		return false
	}

	w.logger.Info("replayed event", "event_id", event.ID, "event_type", event.Type, "attempts", event.Attempts)
	if telemetry.Business != nil {
		telemetry.Business.ReplaySucceeded.Inc()
	}
	return true
}
