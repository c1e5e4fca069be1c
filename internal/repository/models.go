package repository

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type AuditLog struct {
	ID             pgtype.UUID        `json:"id"`
	OrganizationID pgtype.UUID        `json:"organization_id"`
	UserID         pgtype.UUID        `json:"user_id"`
	Action         string             `json:"action"`
	EntityType     string             `json:"entity_type"`
	EntityID       string             `json:"entity_id"`
	Metadata       []byte             `json:"metadata"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
}

type Invoice struct {
	ID               pgtype.UUID        `json:"id"`
	OrganizationID   pgtype.UUID        `json:"organization_id"`
	ClientID         pgtype.UUID        `json:"client_id"`
	InvoiceNumber    string             `json:"invoice_number"`
	Total            pgtype.Numeric     `json:"total"`
	AmountPaid       pgtype.Numeric     `json:"amount_paid"`
	AmountDue        pgtype.Numeric     `json:"amount_due"`
	Status           string             `json:"status"`
	Currency         string             `json:"currency"`
	PaymentLinkToken pgtype.Text        `json:"payment_link_token"`
	PaidAt           pgtype.Timestamptz `json:"paid_at"`
	CreatedAt        pgtype.Timestamptz `json:"created_at"`
	UpdatedAt        pgtype.Timestamptz `json:"updated_at"`
}

type Organization struct {
	ID                   pgtype.UUID        `json:"id"`
	Name                 string             `json:"name"`
	Plan                 string             `json:"plan"`
	SubscriptionStatus   pgtype.Text        `json:"subscription_status"`
	StripeSubscriptionID pgtype.Text        `json:"stripe_subscription_id"`
	CurrentPeriodStart   pgtype.Timestamptz `json:"current_period_start"`
	CurrentPeriodEnd     pgtype.Timestamptz `json:"current_period_end"`
	CreatedAt            pgtype.Timestamptz `json:"created_at"`
	UpdatedAt            pgtype.Timestamptz `json:"updated_at"`
}

type Payment struct {
	ID                    pgtype.UUID        `json:"id"`
	InvoiceID             pgtype.UUID        `json:"invoice_id"`
	OrganizationID        pgtype.UUID        `json:"organization_id"`
	StripeEventID         string             `json:"stripe_event_id"`
	StripePaymentIntentID string             `json:"stripe_payment_intent_id"`
	StripeChargeID        pgtype.Text        `json:"stripe_charge_id"`
	Amount                pgtype.Numeric     `json:"amount"`
	Currency              string             `json:"currency"`
	Status                string             `json:"status"`
	Method                pgtype.Text        `json:"method"`
	FailureReason         pgtype.Text        `json:"failure_reason"`
	CreatedAt             pgtype.Timestamptz `json:"created_at"`
}

type StripeEvent struct {
	ID            string             `json:"id"`
	Type          string             `json:"type"`
	AccountID     pgtype.Text        `json:"account_id"`
	Payload       []byte             `json:"payload"`
	Processed     bool               `json:"processed"`
	Attempts      int32              `json:"attempts"`
	LastError     pgtype.Text        `json:"last_error"`
	ReceivedAt    pgtype.Timestamptz `json:"received_at"`
	LastAttemptAt pgtype.Timestamptz `json:"last_attempt_at"`
	ProcessedAt   pgtype.Timestamptz `json:"processed_at"`
}

type User struct {
	ID                 pgtype.UUID        `json:"id"`
	OrganizationID     pgtype.UUID        `json:"organization_id"`
	Email              string             `json:"email"`
	FullName           pgtype.Text        `json:"full_name"`
	StripeAccountID    pgtype.Text        `json:"stripe_account_id"`
	OnboardingStatus   string             `json:"onboarding_status"`
	OnboardingComplete bool               `json:"onboarding_complete"`
	PayoutsEnabled     bool               `json:"payouts_enabled"`
	Balance            pgtype.Numeric     `json:"balance"`
	CreatedAt          pgtype.Timestamptz `json:"created_at"`
	UpdatedAt          pgtype.Timestamptz `json:"updated_at"`
}
