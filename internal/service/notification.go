package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/email"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/dukerupert/tally/internal/telemetry"
)

const defaultReceiptTimeout = 30 * time.Second

// ReceiptSender delivers a rendered payment receipt.
type ReceiptSender interface {
	SendPaymentReceipt(ctx context.Context, data email.PaymentReceiptEmail) error
}

// ReceiptDispatcher sends payment receipts in the background. Sends are fire
// and forget: errors and panics are logged and reported, never returned.
type ReceiptDispatcher struct {
	repo    repository.Querier
	sender  ReceiptSender
	baseURL string
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

func NewReceiptDispatcher(repo repository.Querier, sender ReceiptSender, baseURL string, logger *slog.Logger) *ReceiptDispatcher {
	return &ReceiptDispatcher{
		repo:    repo,
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultReceiptTimeout,
		logger:  logger,
	}
}

// NotifyPaymentReceived starts a background send and returns immediately.
// The send gets its own deadline, detached from the webhook request.
func (d *ReceiptDispatcher) NotifyPaymentReceived(receipt domain.PaymentReceipt) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error("receipt dispatch panicked", "invoice_id", receipt.InvoiceID, "panic", rec)
				d.recordFailure(context.Background(), fmt.Errorf("receipt dispatch panic: %v", rec), receipt)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.Send(ctx, receipt); err != nil {
			d.recordFailure(ctx, err, receipt)
			return
		}
		if telemetry.Business != nil {
			telemetry.Business.EmailSent.WithLabelValues("payment_receipt").Inc()
		}
	}()
}

// Send looks up the recipient and delivers the receipt synchronously.
func (d *ReceiptDispatcher) Send(ctx context.Context, receipt domain.PaymentReceipt) error {
	details, err := d.repo.GetInvoiceReceiptDetails(ctx, repository.UUID(receipt.InvoiceID))
	if err != nil {
		return fmt.Errorf("load receipt details: %w", err)
	}

	receipt.ClientEmail = details.ClientEmail.String
	if receipt.PayerName == "" {
		receipt.PayerName = details.ClientName
	}
	receipt.MerchantName = details.OrganizationName
	if receipt.InvoiceNumber == "" {
		receipt.InvoiceNumber = details.InvoiceNumber
	}
	receipt.StatusURL = d.statusURL(details.PaymentLinkToken.String)

	if receipt.ClientEmail == "" {
		d.logger.Info("invoice client has no email, skipping receipt", "invoice_id", receipt.InvoiceID)
		return nil
	}

	return d.sender.SendPaymentReceipt(ctx, email.PaymentReceiptEmail{
		To:            receipt.ClientEmail,
		InvoiceNumber: receipt.InvoiceNumber,
		PayerName:     receipt.PayerName,
		MerchantName:  receipt.MerchantName,
		Amount:        domain.FormatMoney(receipt.Amount, receipt.Currency),
		PaidAt:        receipt.PaidAt,
		Method:        receipt.Method,
		AmountPaid:    domain.FormatMoney(receipt.AmountPaid, receipt.Currency),
		AmountDue:     domain.FormatMoney(receipt.AmountDue, receipt.Currency),
		Total:         domain.FormatMoney(receipt.Total, receipt.Currency),
		StatusURL:     receipt.StatusURL,
		FullyPaid:     !receipt.AmountDue.IsPositive(),
	})
}

// Wait blocks until in-flight sends finish or ctx is done.
func (d *ReceiptDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *ReceiptDispatcher) statusURL(token string) string {
	if token == "" || d.baseURL == "" {
		return ""
	}
	return d.baseURL + "/pay/" + token
}

func (d *ReceiptDispatcher) recordFailure(ctx context.Context, err error, receipt domain.PaymentReceipt) {
	if telemetry.Business != nil {
		telemetry.Business.EmailFailed.WithLabelValues("payment_receipt").Inc()
	}
	// Bounced or suppressed recipients are expected; keep them out of Sentry.
	if email.IsPermanent(err) {
		d.logger.Warn("payment receipt rejected by mail provider",
			"invoice_id", receipt.InvoiceID,
			"invoice_number", receipt.InvoiceNumber,
			"error", err,
		)
		return
	}
	d.logger.Error("failed to send payment receipt",
		"invoice_id", receipt.InvoiceID,
		"invoice_number", receipt.InvoiceNumber,
		"error", err,
	)
	telemetry.CaptureError(ctx, err, map[string]interface{}{
		"invoice_id":     receipt.InvoiceID.String(),
		"invoice_number": receipt.InvoiceNumber,
	})
}
