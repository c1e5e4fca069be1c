package service

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decimalString(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stripeEvent builds a stored event whose payload wraps object the way the
// processor's envelope does.
func stripeEvent(t *testing.T, id, eventType string, object map[string]any) domain.ExternalEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":     id,
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)
	return domain.ExternalEvent{ID: id, Type: eventType, Payload: payload}
}

func paymentIntent(id string, amountReceived int64, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "payment_intent",
		"amount":               amountReceived,
		"amount_received":      amountReceived,
		"currency":             "usd",
		"payment_method_types": []string{"card"},
		"latest_charge":        "ch_" + id,
		"metadata":             metadata,
	}
}

func invoiceMetadata(invoiceID, orgID string) map[string]string {
	return map[string]string{
		MetadataInvoiceID:      invoiceID,
		MetadataOrganizationID: orgID,
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	receipts []domain.PaymentReceipt
}

func (n *recordingNotifier) NotifyPaymentReceived(receipt domain.PaymentReceipt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts = append(n.receipts, receipt)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.receipts)
}

type panickingNotifier struct{}

func (panickingNotifier) NotifyPaymentReceived(domain.PaymentReceipt) {
	panic("smtp exploded")
}
