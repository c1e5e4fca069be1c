package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	ApplyInvoicePayment(ctx context.Context, arg ApplyInvoicePaymentParams) (Invoice, error)
	BeginStripeEventAttempt(ctx context.Context, id string) error
	ClaimStaleStripeEvents(ctx context.Context, arg ClaimStaleStripeEventsParams) ([]StripeEvent, error)
	CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) error
	CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error)
	DeleteProcessedStripeEvents(ctx context.Context, processedBefore pgtype.Timestamptz) (int64, error)
	GetInvoice(ctx context.Context, id pgtype.UUID) (Invoice, error)
	GetInvoiceReceiptDetails(ctx context.Context, id pgtype.UUID) (GetInvoiceReceiptDetailsRow, error)
	GetOrganization(ctx context.Context, id pgtype.UUID) (Organization, error)
	GetStripeEvent(ctx context.Context, id string) (StripeEvent, error)
	GetUserByStripeAccountID(ctx context.Context, stripeAccountID pgtype.Text) (User, error)
	InsertStripeEvent(ctx context.Context, arg InsertStripeEventParams) (StripeEvent, error)
	ListStripeEvents(ctx context.Context, arg ListStripeEventsParams) ([]StripeEvent, error)
	MarkStripeEventProcessed(ctx context.Context, id string) error
	RecordStripeEventFailure(ctx context.Context, arg RecordStripeEventFailureParams) error
	UpdateOrganizationSubscription(ctx context.Context, arg UpdateOrganizationSubscriptionParams) (Organization, error)
	UpdateUserStripeAccountStatus(ctx context.Context, arg UpdateUserStripeAccountStatusParams) (User, error)
}

var _ Querier = (*Queries)(nil)
