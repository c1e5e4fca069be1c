package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFixture struct {
	store     *fakeStore
	notifier  *recordingNotifier
	pipeline  *Pipeline
	orgID     uuid.UUID
	invoiceID uuid.UUID
}

func newProcessorFixture(t *testing.T) processorFixture {
	t.Helper()
	store := newFakeStore()
	orgID := store.addOrganization("Acme Studio", domain.PlanPro)
	invoiceID := store.addInvoice(orgID, "INV-0001", "100.00", "client@example.com")
	notifier := &recordingNotifier{}
	return processorFixture{
		store:    store,
		notifier: notifier,
		pipeline: NewPipeline(PipelineDeps{
			Store:    store,
			Notifier: notifier,
			Catalog:  testCatalog(),
			Logger:   testLogger(),
		}),
		orgID:     orgID,
		invoiceID: invoiceID,
	}
}

func (f processorFixture) paymentEvent(t *testing.T, eventID, piID string, minor int64) domain.ExternalEvent {
	return stripeEvent(t, eventID, "payment_intent.succeeded",
		paymentIntent(piID, minor, invoiceMetadata(f.invoiceID.String(), f.orgID.String())))
}

func TestWebhookProcessor_DuplicateDeliveryAppliesOnce(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	event := f.paymentEvent(t, "evt_1", "pi_1", 4000)

	first, err := f.pipeline.Processor.Process(ctx, event)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.pipeline.Processor.Process(ctx, event)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	inv := f.store.invoice(f.invoiceID)
	assert.True(t, repository.DecimalFromNumeric(inv.AmountPaid).Equal(decimalString("40")))
	assert.Len(t, f.store.paymentsFor(f.invoiceID), 1)
	assert.Equal(t, 1, f.notifier.count())

	row, ok := f.store.event("evt_1")
	require.True(t, ok)
	assert.True(t, row.Processed)
	assert.Equal(t, int32(1), row.Attempts)
}

func TestWebhookProcessor_PartialThenPaid(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Processor.Process(ctx, f.paymentEvent(t, "evt_1", "pi_1", 4000))
	require.NoError(t, err)
	assert.Equal(t, string(domain.InvoiceStatusPartial), f.store.invoice(f.invoiceID).Status)

	_, err = f.pipeline.Processor.Process(ctx, f.paymentEvent(t, "evt_2", "pi_2", 6000))
	require.NoError(t, err)

	inv := f.store.invoice(f.invoiceID)
	assert.Equal(t, string(domain.InvoiceStatusPaid), inv.Status)
	assert.True(t, repository.DecimalFromNumeric(inv.AmountDue).IsZero())
}

func TestWebhookProcessor_UnknownTypeIsProcessed(t *testing.T) {
	f := newProcessorFixture(t)

	result, err := f.pipeline.Processor.Process(context.Background(),
		stripeEvent(t, "evt_1", "charge.refunded", map[string]any{"id": "ch_1", "object": "charge"}))

	require.NoError(t, err)
	assert.Equal(t, domain.EventUnknown, result.Kind)
	row, ok := f.store.event("evt_1")
	require.True(t, ok)
	assert.True(t, row.Processed)
}

func TestWebhookProcessor_MissingInvoiceIDIsProcessed(t *testing.T) {
	f := newProcessorFixture(t)

	event := stripeEvent(t, "evt_1", "payment_intent.succeeded",
		paymentIntent("pi_1", 4000, map[string]string{MetadataOrganizationID: f.orgID.String()}))
	_, err := f.pipeline.Processor.Process(context.Background(), event)

	require.NoError(t, err)
	assert.Empty(t, f.store.paymentsFor(f.invoiceID))
	row, _ := f.store.event("evt_1")
	assert.True(t, row.Processed)
}

func TestWebhookProcessor_HandlerFailureLeavesEventUnprocessed(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	event := f.paymentEvent(t, "evt_1", "pi_1", 4000)

	f.store.failOn("GetInvoice", errStoreDown)
	_, err := f.pipeline.Processor.Process(ctx, event)

	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	row, _ := f.store.event("evt_1")
	assert.False(t, row.Processed)
	assert.Contains(t, row.LastError.String, "connection refused")

	// The sender's retry runs the handler again.
	f.store.failOn("GetInvoice", nil)
	result, err := f.pipeline.Processor.Process(ctx, event)
	require.NoError(t, err)
	assert.True(t, result.Retried)

	row, _ = f.store.event("evt_1")
	assert.True(t, row.Processed)
	assert.Equal(t, int32(2), row.Attempts)
	assert.True(t, repository.DecimalFromNumeric(f.store.invoice(f.invoiceID).AmountPaid).Equal(decimalString("40")))
}

func TestWebhookProcessor_StoreFailureIsInvalid(t *testing.T) {
	f := newProcessorFixture(t)
	f.store.failOn("InsertStripeEvent", errStoreDown)

	_, err := f.pipeline.Processor.Process(context.Background(), f.paymentEvent(t, "evt_1", "pi_1", 4000))

	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Empty(t, f.store.paymentsFor(f.invoiceID))
}

func TestWebhookProcessor_MarkProcessedFailureIsRetriedSafely(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	event := f.paymentEvent(t, "evt_1", "pi_1", 4000)

	f.store.failOn("MarkStripeEventProcessed", errStoreDown)
	_, err := f.pipeline.Processor.Process(ctx, event)
	require.Error(t, err)

	f.store.failOn("MarkStripeEventProcessed", nil)
	_, err = f.pipeline.Processor.Process(ctx, event)
	require.NoError(t, err)

	inv := f.store.invoice(f.invoiceID)
	assert.True(t, repository.DecimalFromNumeric(inv.AmountPaid).Equal(decimalString("40")))
	assert.Len(t, f.store.paymentsFor(f.invoiceID), 1)
}

func TestWebhookProcessor_NotifierPanicIsIsolated(t *testing.T) {
	store := newFakeStore()
	orgID := store.addOrganization("Acme Studio", domain.PlanPro)
	invoiceID := store.addInvoice(orgID, "INV-0001", "100.00", "client@example.com")
	pipeline := NewPipeline(PipelineDeps{Store: store, Notifier: panickingNotifier{}, Logger: testLogger()})

	event := stripeEvent(t, "evt_1", "payment_intent.succeeded",
		paymentIntent("pi_1", 10000, invoiceMetadata(invoiceID.String(), orgID.String())))
	_, err := pipeline.Processor.Process(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, string(domain.InvoiceStatusPaid), store.invoice(invoiceID).Status)
	row, _ := store.event("evt_1")
	assert.True(t, row.Processed)
}

func TestWebhookProcessor_ReplayByID(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	f.store.failOn("ApplyInvoicePayment", errStoreDown)
	_, err := f.pipeline.Processor.Process(ctx, f.paymentEvent(t, "evt_1", "pi_1", 4000))
	require.Error(t, err)
	f.store.failOn("ApplyInvoicePayment", nil)

	ran, err := f.pipeline.Processor.ReplayByID(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, repository.DecimalFromNumeric(f.store.invoice(f.invoiceID).AmountPaid).Equal(decimalString("40")))

	ran, err = f.pipeline.Processor.ReplayByID(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, ran)

	_, err = f.pipeline.Processor.ReplayByID(ctx, "evt_missing")
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestWebhookProcessor_ReplayClaimedEvents(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	f.store.failOn("GetInvoice", errStoreDown)
	_, err := f.pipeline.Processor.Process(ctx, f.paymentEvent(t, "evt_1", "pi_1", 4000))
	require.Error(t, err)
	f.store.failOn("GetInvoice", nil)

	claimed, err := f.pipeline.Events.ClaimStale(ctx, ClaimParams{
		StaleBefore: f.store.events["evt_1"].LastAttemptAt.Time.Add(1),
		MaxAttempts: 5,
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, f.pipeline.Processor.Replay(ctx, claimed[0]))

	row, _ := f.store.event("evt_1")
	assert.True(t, row.Processed)
	assert.Equal(t, int32(2), row.Attempts)
	assert.Equal(t, string(domain.InvoiceStatusPartial), f.store.invoice(f.invoiceID).Status)
}

type recordingArchive struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (a *recordingArchive) Put(ctx context.Context, key string, content io.Reader, contentType string) error {
	if a.err != nil {
		return a.err
	}
	body, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects == nil {
		a.objects = map[string]string{}
	}
	a.objects[key] = string(body)
	return nil
}

func archiveKey(event domain.ExternalEvent) string { return "events/" + event.ID + ".json" }

func TestWebhookProcessor_ArchivesNewPayloadsOnce(t *testing.T) {
	store := newFakeStore()
	archive := &recordingArchive{}
	pipeline := NewPipeline(PipelineDeps{
		Store:      store,
		Archive:    archive,
		ArchiveKey: archiveKey,
		Logger:     testLogger(),
	})
	event := stripeEvent(t, "evt_archive", "charge.refunded", map[string]any{"id": "ch_1"})

	_, err := pipeline.Processor.Process(context.Background(), event)
	require.NoError(t, err)
	_, err = pipeline.Processor.Process(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, archive.objects, 1)
	assert.JSONEq(t, string(event.Payload), archive.objects["events/evt_archive.json"])
}

func TestWebhookProcessor_ArchivesRequestBytes(t *testing.T) {
	archive := &recordingArchive{}
	pipeline := NewPipeline(PipelineDeps{
		Store:      newFakeStore(),
		Archive:    archive,
		ArchiveKey: archiveKey,
		Logger:     testLogger(),
	})
	body := []byte("{\n  \"type\": \"charge.refunded\",\n  \"id\": \"evt_raw\",\n  \"data\": {\"object\": {\"id\": \"ch_1\"}}\n}")
	event := domain.ExternalEvent{ID: "evt_raw", Type: "charge.refunded", Payload: body}

	_, err := pipeline.Processor.Process(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, string(body), archive.objects["events/evt_raw.json"])
}

func TestWebhookProcessor_ArchiveFailureDoesNotFailDelivery(t *testing.T) {
	store := newFakeStore()
	pipeline := NewPipeline(PipelineDeps{
		Store:      store,
		Archive:    &recordingArchive{err: errors.New("bucket unavailable")},
		ArchiveKey: archiveKey,
		Logger:     testLogger(),
	})
	event := stripeEvent(t, "evt_archive_fail", "charge.refunded", map[string]any{"id": "ch_1"})

	_, err := pipeline.Processor.Process(context.Background(), event)
	require.NoError(t, err)
	row, ok := store.event("evt_archive_fail")
	require.True(t, ok)
	assert.True(t, row.Processed)
}
