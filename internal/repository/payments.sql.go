package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (
    id, invoice_id, organization_id, stripe_event_id, stripe_payment_intent_id,
    stripe_charge_id, amount, currency, status, method, failure_reason
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
ON CONFLICT DO NOTHING
RETURNING id, invoice_id, organization_id, stripe_event_id, stripe_payment_intent_id,
    stripe_charge_id, amount, currency, status, method, failure_reason, created_at`

type CreatePaymentParams struct {
	ID                    pgtype.UUID    `json:"id"`
	InvoiceID             pgtype.UUID    `json:"invoice_id"`
	OrganizationID        pgtype.UUID    `json:"organization_id"`
	StripeEventID         string         `json:"stripe_event_id"`
	StripePaymentIntentID string         `json:"stripe_payment_intent_id"`
	StripeChargeID        pgtype.Text    `json:"stripe_charge_id"`
	Amount                pgtype.Numeric `json:"amount"`
	Currency              string         `json:"currency"`
	Status                string         `json:"status"`
	Method                pgtype.Text    `json:"method"`
	FailureReason         pgtype.Text    `json:"failure_reason"`
}

// CreatePayment returns pgx.ErrNoRows when the row already exists, either for
// the same event or for an intent that has already succeeded.
func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, createPayment,
		arg.ID,
		arg.InvoiceID,
		arg.OrganizationID,
		arg.StripeEventID,
		arg.StripePaymentIntentID,
		arg.StripeChargeID,
		arg.Amount,
		arg.Currency,
		arg.Status,
		arg.Method,
		arg.FailureReason,
	)
	var i Payment
	err := row.Scan(
		&i.ID,
		&i.InvoiceID,
		&i.OrganizationID,
		&i.StripeEventID,
		&i.StripePaymentIntentID,
		&i.StripeChargeID,
		&i.Amount,
		&i.Currency,
		&i.Status,
		&i.Method,
		&i.FailureReason,
		&i.CreatedAt,
	)
	return i, err
}
