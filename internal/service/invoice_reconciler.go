package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/dukerupert/tally/internal/telemetry"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"
)

// Notifier receives a receipt after a payment has been applied. It must not
// block and its failures never reach the reconciler.
type Notifier interface {
	NotifyPaymentReceived(receipt domain.PaymentReceipt)
}

// InvoiceReconciler applies payment intent events to the payment ledger and
// invoice balances.
type InvoiceReconciler struct {
	store    repository.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewInvoiceReconciler creates an InvoiceReconciler. notifier may be nil.
func NewInvoiceReconciler(store repository.Store, notifier Notifier, logger *slog.Logger) *InvoiceReconciler {
	return &InvoiceReconciler{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// paymentTarget is the invoice a payment intent's metadata points at.
type paymentTarget struct {
	invoiceID      uuid.UUID
	organizationID uuid.UUID
}

func resolvePaymentTarget(op string, metadata map[string]string) (paymentTarget, error) {
	invoiceID, err := metadataUUID(op, metadata, MetadataInvoiceID)
	if err != nil {
		return paymentTarget{}, err
	}
	orgID, err := metadataUUID(op, metadata, MetadataOrganizationID)
	if err != nil {
		return paymentTarget{}, err
	}
	return paymentTarget{invoiceID: invoiceID, organizationID: orgID}, nil
}

// loadTargetInvoice fetches the invoice and checks it belongs to the
// organization named in the metadata.
func loadTargetInvoice(ctx context.Context, q repository.Querier, op string, target paymentTarget) (repository.Invoice, error) {
	inv, err := q.GetInvoice(ctx, repository.UUID(target.invoiceID))
	if err != nil {
		if repository.IsNoRows(err) {
			return repository.Invoice{}, domain.MissingCorrelation(op, MetadataInvoiceID)
		}
		return repository.Invoice{}, domain.Internal(err, op, "failed to load invoice")
	}
	if repository.FromUUID(inv.OrganizationID) != target.organizationID {
		return repository.Invoice{}, domain.MissingCorrelation(op, MetadataOrganizationID)
	}
	return inv, nil
}

// HandlePaymentSucceeded records a succeeded ledger row and credits the invoice.
//
// The ledger insert and the balance increment share one transaction. The
// ledger is unique per event and per succeeded payment intent, so a retried
// or redelivered event finds its row already present and leaves the balance
// alone.
func (r *InvoiceReconciler) HandlePaymentSucceeded(ctx context.Context, event domain.ExternalEvent) error {
	const op = "invoice.payment_succeeded"

	var pi stripe.PaymentIntent
	if err := decodeObject(op, event, &pi); err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	target, err := resolvePaymentTarget(op, pi.Metadata)
	if err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	currency := strings.ToLower(string(pi.Currency))
	minor := pi.AmountReceived
	if minor == 0 {
		minor = pi.Amount
	}
	amount := domain.FromMinorUnits(minor, currency)
	method := paymentMethod(&pi)

	var (
		applied bool
		updated repository.Invoice
	)
	err = r.store.ExecTx(ctx, func(q repository.Querier) error {
		inv, err := loadTargetInvoice(ctx, q, op, target)
		if err != nil {
			return err
		}
		if !strings.EqualFold(inv.Currency, currency) {
			r.logger.Warn("payment currency differs from invoice currency",
				"event_id", event.ID,
				"invoice_id", target.invoiceID,
				"payment_currency", currency,
				"invoice_currency", inv.Currency,
			)
		}

		_, err = q.CreatePayment(ctx, repository.CreatePaymentParams{
			ID:                    repository.UUID(uuid.New()),
			InvoiceID:             inv.ID,
			OrganizationID:        inv.OrganizationID,
			StripeEventID:         event.ID,
			StripePaymentIntentID: pi.ID,
			StripeChargeID:        repository.Text(chargeID(&pi)),
			Amount:                repository.NumericFromDecimal(amount),
			Currency:              currency,
			Status:                string(domain.PaymentStatusSucceeded),
			Method:                repository.Text(method),
		})
		if repository.IsNoRows(err) {
			return nil
		}
		if err != nil {
			return domain.Internal(err, op, "failed to record payment")
		}

		updated, err = q.ApplyInvoicePayment(ctx, repository.ApplyInvoicePaymentParams{
			ID:     inv.ID,
			Amount: repository.NumericFromDecimal(amount),
		})
		if err != nil {
			return domain.Internal(err, op, "failed to apply payment to invoice")
		}
		applied = true
		return nil
	})
	if err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	if !applied {
		r.logger.Info("payment already applied, skipping balance update",
			"event_id", event.ID,
			"invoice_id", target.invoiceID,
			"payment_intent_id", pi.ID,
		)
		if telemetry.Business != nil {
			telemetry.Business.ReconciliationSkipped.WithLabelValues(event.Type, "already_applied").Inc()
		}
		return nil
	}

	paid := repository.DecimalFromNumeric(updated.AmountPaid)
	due := repository.DecimalFromNumeric(updated.AmountDue)

	r.logger.Info("payment applied to invoice",
		"event_id", event.ID,
		"invoice_id", target.invoiceID,
		"organization_id", target.organizationID,
		"amount", amount.String(),
		"currency", currency,
		"amount_paid", paid.String(),
		"amount_due", due.String(),
		"status", updated.Status,
	)

	if telemetry.Business != nil {
		telemetry.Business.PaymentsRecorded.WithLabelValues(string(domain.PaymentStatusSucceeded)).Inc()
		telemetry.Business.RevenueCollected.WithLabelValues(currency).Add(amount.InexactFloat64())
		if updated.Status == string(domain.InvoiceStatusPaid) {
			telemetry.Business.InvoicesPaid.Inc()
		}
	}

	r.notify(event, domain.PaymentReceipt{
		InvoiceID:     target.invoiceID,
		InvoiceNumber: updated.InvoiceNumber,
		Amount:        amount,
		Currency:      currency,
		PaidAt:        r.now(),
		Method:        method,
		AmountPaid:    paid,
		AmountDue:     due,
		Total:         repository.DecimalFromNumeric(updated.Total),
	})
	return nil
}

// HandlePaymentFailed records a failed ledger row. Balances are untouched.
func (r *InvoiceReconciler) HandlePaymentFailed(ctx context.Context, event domain.ExternalEvent) error {
	const op = "invoice.payment_failed"

	var pi stripe.PaymentIntent
	if err := decodeObject(op, event, &pi); err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	target, err := resolvePaymentTarget(op, pi.Metadata)
	if err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	inv, err := loadTargetInvoice(ctx, r.store, op, target)
	if err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	currency := strings.ToLower(string(pi.Currency))
	amount := domain.FromMinorUnits(pi.Amount, currency)
	reason := failureReason(&pi)

	_, err = r.store.CreatePayment(ctx, repository.CreatePaymentParams{
		ID:                    repository.UUID(uuid.New()),
		InvoiceID:             inv.ID,
		OrganizationID:        inv.OrganizationID,
		StripeEventID:         event.ID,
		StripePaymentIntentID: pi.ID,
		StripeChargeID:        repository.Text(chargeID(&pi)),
		Amount:                repository.NumericFromDecimal(amount),
		Currency:              currency,
		Status:                string(domain.PaymentStatusFailed),
		Method:                repository.Text(paymentMethod(&pi)),
		FailureReason:         repository.Text(reason),
	})
	if repository.IsNoRows(err) {
		r.logger.Info("failed payment already recorded", "event_id", event.ID, "invoice_id", target.invoiceID)
		return nil
	}
	if err != nil {
		return domain.Internal(err, op, "failed to record failed payment")
	}

	r.logger.Info("failed payment recorded",
		"event_id", event.ID,
		"invoice_id", target.invoiceID,
		"organization_id", target.organizationID,
		"amount", amount.String(),
		"currency", currency,
		"failure_reason", reason,
	)
	if telemetry.Business != nil {
		telemetry.Business.PaymentsRecorded.WithLabelValues(string(domain.PaymentStatusFailed)).Inc()
	}
	return nil
}

// notify hands the receipt to the notifier. A panicking notifier is logged
// and swallowed; the balance update has already committed.
func (r *InvoiceReconciler) notify(event domain.ExternalEvent, receipt domain.PaymentReceipt) {
	if r.notifier == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("receipt notifier panicked",
				"event_id", event.ID,
				"invoice_id", receipt.InvoiceID,
				"panic", rec,
			)
		}
	}()
	r.notifier.NotifyPaymentReceived(receipt)
}

func paymentMethod(pi *stripe.PaymentIntent) string {
	if pi.PaymentMethod != nil && pi.PaymentMethod.Type != "" {
		return string(pi.PaymentMethod.Type)
	}
	if len(pi.PaymentMethodTypes) > 0 {
		return pi.PaymentMethodTypes[0]
	}
	return ""
}

func chargeID(pi *stripe.PaymentIntent) string {
	if pi.LatestCharge != nil {
		return pi.LatestCharge.ID
	}
	return ""
}

func failureReason(pi *stripe.PaymentIntent) string {
	if pi.LastPaymentError == nil {
		return ""
	}
	if pi.LastPaymentError.Msg != "" {
		return pi.LastPaymentError.Msg
	}
	return string(pi.LastPaymentError.Code)
}
