package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const stripeEventColumns = `id, type, account_id, payload, processed, attempts, last_error, received_at, last_attempt_at, processed_at`

func scanStripeEvent(row interface{ Scan(...any) error }) (StripeEvent, error) {
	var i StripeEvent
	err := row.Scan(
		&i.ID,
		&i.Type,
		&i.AccountID,
		&i.Payload,
		&i.Processed,
		&i.Attempts,
		&i.LastError,
		&i.ReceivedAt,
		&i.LastAttemptAt,
		&i.ProcessedAt,
	)
	return i, err
}

const insertStripeEvent = `-- name: InsertStripeEvent :one
INSERT INTO stripe_events (id, type, account_id, payload, processed)
VALUES ($1, $2, $3, $4, false)
RETURNING ` + stripeEventColumns

type InsertStripeEventParams struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	AccountID pgtype.Text `json:"account_id"`
	Payload   []byte      `json:"payload"`
}

// InsertStripeEvent fails with a unique violation (see IsUniqueViolation) when
// the event ID has already been stored.
func (q *Queries) InsertStripeEvent(ctx context.Context, arg InsertStripeEventParams) (StripeEvent, error) {
	row := q.db.QueryRow(ctx, insertStripeEvent,
		arg.ID,
		arg.Type,
		arg.AccountID,
		arg.Payload,
	)
	return scanStripeEvent(row)
}

const getStripeEvent = `-- name: GetStripeEvent :one
SELECT ` + stripeEventColumns + `
FROM stripe_events
WHERE id = $1`

func (q *Queries) GetStripeEvent(ctx context.Context, id string) (StripeEvent, error) {
	row := q.db.QueryRow(ctx, getStripeEvent, id)
	return scanStripeEvent(row)
}

const markStripeEventProcessed = `-- name: MarkStripeEventProcessed :exec
UPDATE stripe_events
SET processed = true,
    processed_at = COALESCE(processed_at, now()),
    last_error = NULL
WHERE id = $1`

func (q *Queries) MarkStripeEventProcessed(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, markStripeEventProcessed, id)
	return err
}

const beginStripeEventAttempt = `-- name: BeginStripeEventAttempt :exec
UPDATE stripe_events
SET attempts = attempts + 1,
    last_attempt_at = now()
WHERE id = $1`

func (q *Queries) BeginStripeEventAttempt(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, beginStripeEventAttempt, id)
	return err
}

const recordStripeEventFailure = `-- name: RecordStripeEventFailure :exec
UPDATE stripe_events
SET last_error = $2
WHERE id = $1 AND processed = false`

type RecordStripeEventFailureParams struct {
	ID        string `json:"id"`
	LastError string `json:"last_error"`
}

func (q *Queries) RecordStripeEventFailure(ctx context.Context, arg RecordStripeEventFailureParams) error {
	_, err := q.db.Exec(ctx, recordStripeEventFailure, arg.ID, arg.LastError)
	return err
}

const claimStaleStripeEvents = `-- name: ClaimStaleStripeEvents :many
UPDATE stripe_events
SET attempts = attempts + 1,
    last_attempt_at = now()
WHERE id IN (
    SELECT id
    FROM stripe_events
    WHERE processed = false
      AND COALESCE(last_attempt_at, received_at) < $1
      AND attempts < $2
    ORDER BY received_at
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + stripeEventColumns

type ClaimStaleStripeEventsParams struct {
	StaleBefore pgtype.Timestamptz `json:"stale_before"`
	MaxAttempts int32              `json:"max_attempts"`
	Limit       int32              `json:"limit"`
}

// ClaimStaleStripeEvents leases unprocessed events that have not been attempted
// since StaleBefore. Bumping last_attempt_at keeps other workers from claiming
// the same rows until they go stale again.
func (q *Queries) ClaimStaleStripeEvents(ctx context.Context, arg ClaimStaleStripeEventsParams) ([]StripeEvent, error) {
	rows, err := q.db.Query(ctx, claimStaleStripeEvents, arg.StaleBefore, arg.MaxAttempts, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StripeEvent
	for rows.Next() {
		i, err := scanStripeEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listStripeEvents = `-- name: ListStripeEvents :many
SELECT ` + stripeEventColumns + `
FROM stripe_events
WHERE ($1::boolean = false OR processed = false)
ORDER BY received_at DESC
LIMIT $2`

type ListStripeEventsParams struct {
	OnlyUnprocessed bool  `json:"only_unprocessed"`
	Limit           int32 `json:"limit"`
}

func (q *Queries) ListStripeEvents(ctx context.Context, arg ListStripeEventsParams) ([]StripeEvent, error) {
	rows, err := q.db.Query(ctx, listStripeEvents, arg.OnlyUnprocessed, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StripeEvent
	for rows.Next() {
		i, err := scanStripeEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteProcessedStripeEvents = `-- name: DeleteProcessedStripeEvents :execrows
DELETE FROM stripe_events
WHERE processed = true
  AND processed_at < $1`

func (q *Queries) DeleteProcessedStripeEvents(ctx context.Context, processedBefore pgtype.Timestamptz) (int64, error) {
	result, err := q.db.Exec(ctx, deleteProcessedStripeEvents, processedBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
