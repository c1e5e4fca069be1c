package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/email"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiptSender struct {
	mu    sync.Mutex
	sent  []email.PaymentReceiptEmail
	err   error
	panic bool
}

func (s *fakeReceiptSender) SendPaymentReceipt(ctx context.Context, data email.PaymentReceiptEmail) error {
	if s.panic {
		panic("template exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeReceiptSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func seededReceipt(t *testing.T, store *fakeStore, clientEmail string) domain.PaymentReceipt {
	t.Helper()
	orgID := store.addOrganization("Acme Studio", domain.PlanPro)
	invoiceID := store.addInvoice(orgID, "INV-0042", "100.00", clientEmail)
	return domain.PaymentReceipt{
		InvoiceID:  invoiceID,
		Amount:     decimalString("40"),
		Currency:   "usd",
		PaidAt:     time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
		Method:     "card",
		AmountPaid: decimalString("40"),
		AmountDue:  decimalString("60"),
		Total:      decimalString("100"),
	}
}

func TestReceiptDispatcher_Send(t *testing.T) {
	store := newFakeStore()
	sender := &fakeReceiptSender{}
	d := NewReceiptDispatcher(store, sender, "https://app.example.com/", testLogger())
	receipt := seededReceipt(t, store, "client@example.com")

	require.NoError(t, d.Send(context.Background(), receipt))

	require.Len(t, sender.sent, 1)
	got := sender.sent[0]
	assert.Equal(t, "client@example.com", got.To)
	assert.Equal(t, "INV-0042", got.InvoiceNumber)
	assert.Equal(t, "Ada Client", got.PayerName)
	assert.Equal(t, "Acme Studio", got.MerchantName)
	assert.Equal(t, "https://app.example.com/pay/tok_INV-0042", got.StatusURL)
	assert.Equal(t, domain.FormatMoney(decimalString("40"), "usd"), got.Amount)
	assert.Equal(t, domain.FormatMoney(decimalString("60"), "usd"), got.AmountDue)
	assert.False(t, got.FullyPaid)
}

func TestReceiptDispatcher_SkipsClientWithoutEmail(t *testing.T) {
	store := newFakeStore()
	sender := &fakeReceiptSender{}
	d := NewReceiptDispatcher(store, sender, "https://app.example.com", testLogger())
	receipt := seededReceipt(t, store, "")

	require.NoError(t, d.Send(context.Background(), receipt))
	assert.Equal(t, 0, sender.count())
}

func TestReceiptDispatcher_UnknownInvoice(t *testing.T) {
	d := NewReceiptDispatcher(newFakeStore(), &fakeReceiptSender{}, "", testLogger())

	err := d.Send(context.Background(), domain.PaymentReceipt{InvoiceID: uuid.New()})
	assert.Error(t, err)
}

func TestReceiptDispatcher_NotifyIsAsync(t *testing.T) {
	store := newFakeStore()
	sender := &fakeReceiptSender{}
	d := NewReceiptDispatcher(store, sender, "https://app.example.com", testLogger())

	d.NotifyPaymentReceived(seededReceipt(t, store, "client@example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
	assert.Equal(t, 1, sender.count())
}

func TestReceiptDispatcher_FailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name   string
		sender *fakeReceiptSender
	}{
		{name: "send error", sender: &fakeReceiptSender{err: errors.New("smtp: 421 try later")}},
		{name: "send panic", sender: &fakeReceiptSender{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			d := NewReceiptDispatcher(store, tt.sender, "https://app.example.com", testLogger())

			assert.NotPanics(t, func() {
				d.NotifyPaymentReceived(seededReceipt(t, store, "client@example.com"))
			})

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			require.NoError(t, d.Wait(ctx))
			assert.Equal(t, 0, tt.sender.count())
		})
	}
}

func TestReceiptDispatcher_PermanentFailureLogsWarning(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
	}{
		{"rejected recipient", fmt.Errorf("send: %w", email.ErrInvalidToAddress), "level=WARN"},
		{"transient failure", errors.New("dial tcp: i/o timeout"), "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			store := newFakeStore()
			d := NewReceiptDispatcher(store, &fakeReceiptSender{err: tt.err}, "https://app.example.com", logger)

			d.NotifyPaymentReceived(seededReceipt(t, store, "client@example.com"))

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			require.NoError(t, d.Wait(ctx))
			assert.Contains(t, buf.String(), tt.wantLevel)
		})
	}
}

func TestReceiptDispatcher_WaitHonorsContext(t *testing.T) {
	d := NewReceiptDispatcher(newFakeStore(), &fakeReceiptSender{}, "", testLogger())
	d.wg.Add(1)
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
}
