package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const invoiceColumns = `id, organization_id, client_id, invoice_number, total, amount_paid, amount_due, status, currency, payment_link_token, paid_at, created_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (Invoice, error) {
	var i Invoice
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.ClientID,
		&i.InvoiceNumber,
		&i.Total,
		&i.AmountPaid,
		&i.AmountDue,
		&i.Status,
		&i.Currency,
		&i.PaymentLinkToken,
		&i.PaidAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getInvoice = `-- name: GetInvoice :one
SELECT ` + invoiceColumns + `
FROM invoices
WHERE id = $1`

func (q *Queries) GetInvoice(ctx context.Context, id pgtype.UUID) (Invoice, error) {
	row := q.db.QueryRow(ctx, getInvoice, id)
	return scanInvoice(row)
}

// The invoice balance policy lives here: amount_due is total - amount_paid,
// status becomes paid once nothing is due and partial while a balance remains.
// Every right-hand column reference reads the pre-update row, so concurrent
// payments serialize on the row lock instead of overwriting each other.
const applyInvoicePayment = `-- name: ApplyInvoicePayment :one
UPDATE invoices
SET amount_paid = amount_paid + $2::numeric,
    amount_due  = total - (amount_paid + $2::numeric),
    status = CASE
        WHEN total - (amount_paid + $2::numeric) <= 0 THEN 'paid'
        WHEN amount_paid + $2::numeric > 0 THEN 'partial'
        ELSE status
    END,
    paid_at = CASE
        WHEN total - (amount_paid + $2::numeric) <= 0 THEN COALESCE(paid_at, now())
        ELSE paid_at
    END,
    updated_at = now()
WHERE id = $1
RETURNING ` + invoiceColumns

type ApplyInvoicePaymentParams struct {
	ID     pgtype.UUID    `json:"id"`
	Amount pgtype.Numeric `json:"amount"`
}

func (q *Queries) ApplyInvoicePayment(ctx context.Context, arg ApplyInvoicePaymentParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, applyInvoicePayment, arg.ID, arg.Amount)
	return scanInvoice(row)
}

const getInvoiceReceiptDetails = `-- name: GetInvoiceReceiptDetails :one
SELECT
    i.id,
    i.invoice_number,
    i.total,
    i.amount_paid,
    i.amount_due,
    i.currency,
    i.payment_link_token,
    c.name  AS client_name,
    c.email AS client_email,
    o.name  AS organization_name
FROM invoices i
JOIN clients c ON c.id = i.client_id
JOIN organizations o ON o.id = i.organization_id
WHERE i.id = $1`

type GetInvoiceReceiptDetailsRow struct {
	ID               pgtype.UUID    `json:"id"`
	InvoiceNumber    string         `json:"invoice_number"`
	Total            pgtype.Numeric `json:"total"`
	AmountPaid       pgtype.Numeric `json:"amount_paid"`
	AmountDue        pgtype.Numeric `json:"amount_due"`
	Currency         string         `json:"currency"`
	PaymentLinkToken pgtype.Text    `json:"payment_link_token"`
	ClientName       string         `json:"client_name"`
	ClientEmail      pgtype.Text    `json:"client_email"`
	OrganizationName string         `json:"organization_name"`
}

func (q *Queries) GetInvoiceReceiptDetails(ctx context.Context, id pgtype.UUID) (GetInvoiceReceiptDetailsRow, error) {
	row := q.db.QueryRow(ctx, getInvoiceReceiptDetails, id)
	var i GetInvoiceReceiptDetailsRow
	err := row.Scan(
		&i.ID,
		&i.InvoiceNumber,
		&i.Total,
		&i.AmountPaid,
		&i.AmountDue,
		&i.Currency,
		&i.PaymentLinkToken,
		&i.ClientName,
		&i.ClientEmail,
		&i.OrganizationName,
	)
	return i, err
}
