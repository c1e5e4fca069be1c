package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, organization_id, email, full_name, stripe_account_id, onboarding_status, onboarding_complete, payouts_enabled, balance, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.Email,
		&i.FullName,
		&i.StripeAccountID,
		&i.OnboardingStatus,
		&i.OnboardingComplete,
		&i.PayoutsEnabled,
		&i.Balance,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUserByStripeAccountID = `-- name: GetUserByStripeAccountID :one
SELECT ` + userColumns + `
FROM users
WHERE stripe_account_id = $1`

func (q *Queries) GetUserByStripeAccountID(ctx context.Context, stripeAccountID pgtype.Text) (User, error) {
	row := q.db.QueryRow(ctx, getUserByStripeAccountID, stripeAccountID)
	return scanUser(row)
}

const updateUserStripeAccountStatus = `-- name: UpdateUserStripeAccountStatus :one
UPDATE users
SET onboarding_status = $2,
    onboarding_complete = $3,
    payouts_enabled = $4,
    balance = $5,
    updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

type UpdateUserStripeAccountStatusParams struct {
	ID                 pgtype.UUID    `json:"id"`
	OnboardingStatus   string         `json:"onboarding_status"`
	OnboardingComplete bool           `json:"onboarding_complete"`
	PayoutsEnabled     bool           `json:"payouts_enabled"`
	Balance            pgtype.Numeric `json:"balance"`
}

func (q *Queries) UpdateUserStripeAccountStatus(ctx context.Context, arg UpdateUserStripeAccountStatusParams) (User, error) {
	row := q.db.QueryRow(ctx, updateUserStripeAccountStatus,
		arg.ID,
		arg.OnboardingStatus,
		arg.OnboardingComplete,
		arg.PayoutsEnabled,
		arg.Balance,
	)
	return scanUser(row)
}
