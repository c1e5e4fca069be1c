package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockQuerier implements only the query the cleanup job needs.
type mockQuerier struct {
	repository.Querier
	deleteFunc func(ctx context.Context, before pgtype.Timestamptz) (int64, error)
}

func (m *mockQuerier) DeleteProcessedStripeEvents(ctx context.Context, before pgtype.Timestamptz) (int64, error) {
	return m.deleteFunc(ctx, before)
}

func TestPruneProcessedEvents(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	var gotBefore time.Time
	q := &mockQuerier{deleteFunc: func(_ context.Context, before pgtype.Timestamptz) (int64, error) {
		gotBefore = before.Time
		return 42, nil
	}}

	result, err := PruneProcessedEvents(context.Background(), q, 30*24*time.Hour, now)
	require.NoError(t, err)

	assert.Equal(t, int64(42), result.EventsDeleted)
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), result.ProcessedBefore)
	assert.True(t, gotBefore.Equal(result.ProcessedBefore))
}

func TestPruneProcessedEvents_RejectsShortRetention(t *testing.T) {
	q := &mockQuerier{deleteFunc: func(context.Context, pgtype.Timestamptz) (int64, error) {
		t.Fatal("store must not be called")
		return 0, nil
	}}

	_, err := PruneProcessedEvents(context.Background(), q, 24*time.Hour, time.Now())
	assert.True(t, domain.IsCode(err, domain.EINVALID))
}

func TestPruneProcessedEvents_StoreError(t *testing.T) {
	q := &mockQuerier{deleteFunc: func(context.Context, pgtype.Timestamptz) (int64, error) {
		return 0, errors.New("connection refused")
	}}

	_, err := PruneProcessedEvents(context.Background(), q, DefaultEventRetention, time.Now())
	assert.ErrorContains(t, err, "connection refused")
}
