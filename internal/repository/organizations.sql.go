package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const organizationColumns = `id, name, plan, subscription_status, stripe_subscription_id, current_period_start, current_period_end, created_at, updated_at`

func scanOrganization(row interface{ Scan(...any) error }) (Organization, error) {
	var i Organization
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Plan,
		&i.SubscriptionStatus,
		&i.StripeSubscriptionID,
		&i.CurrentPeriodStart,
		&i.CurrentPeriodEnd,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOrganization = `-- name: GetOrganization :one
SELECT ` + organizationColumns + `
FROM organizations
WHERE id = $1`

func (q *Queries) GetOrganization(ctx context.Context, id pgtype.UUID) (Organization, error) {
	row := q.db.QueryRow(ctx, getOrganization, id)
	return scanOrganization(row)
}

const updateOrganizationSubscription = `-- name: UpdateOrganizationSubscription :one
UPDATE organizations
SET plan = $2,
    subscription_status = $3,
    stripe_subscription_id = $4,
    current_period_start = $5,
    current_period_end = $6,
    updated_at = now()
WHERE id = $1
RETURNING ` + organizationColumns

type UpdateOrganizationSubscriptionParams struct {
	ID                   pgtype.UUID        `json:"id"`
	Plan                 string             `json:"plan"`
	SubscriptionStatus   pgtype.Text        `json:"subscription_status"`
	StripeSubscriptionID pgtype.Text        `json:"stripe_subscription_id"`
	CurrentPeriodStart   pgtype.Timestamptz `json:"current_period_start"`
	CurrentPeriodEnd     pgtype.Timestamptz `json:"current_period_end"`
}

func (q *Queries) UpdateOrganizationSubscription(ctx context.Context, arg UpdateOrganizationSubscriptionParams) (Organization, error) {
	row := q.db.QueryRow(ctx, updateOrganizationSubscription,
		arg.ID,
		arg.Plan,
		arg.SubscriptionStatus,
		arg.StripeSubscriptionID,
		arg.CurrentPeriodStart,
		arg.CurrentPeriodEnd,
	)
	return scanOrganization(row)
}
