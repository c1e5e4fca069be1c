package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/dukerupert/tally/internal/telemetry"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stripe/stripe-go/v83"
)

// SubscriptionReconciler mirrors the platform subscription of an organization
// onto its plan fields. Every event overwrites; there is no ordering check.
type SubscriptionReconciler struct {
	repo    repository.Querier
	catalog *domain.PlanCatalog
	logger  *slog.Logger
}

func NewSubscriptionReconciler(repo repository.Querier, catalog *domain.PlanCatalog, logger *slog.Logger) *SubscriptionReconciler {
	return &SubscriptionReconciler{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
	}
}

// HandleSubscriptionChanged handles created and updated events.
func (r *SubscriptionReconciler) HandleSubscriptionChanged(ctx context.Context, event domain.ExternalEvent) error {
	const op = "subscription.changed"

	var sub stripe.Subscription
	if err := decodeObject(op, event, &sub); err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	orgID, err := metadataUUID(op, sub.Metadata, MetadataOrganizationID)
	if err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	priceID, productID, start, end := firstItem(&sub)
	plan := r.catalog.Resolve(priceID, productID)
	if plan == domain.PlanFree && (priceID != "" || productID != "") {
		r.logger.Warn("unrecognized subscription price, using free plan",
			"event_id", event.ID,
			"organization_id", orgID,
			"price_id", priceID,
			"product_id", productID,
		)
	}

	return r.apply(ctx, event, op, repository.UpdateOrganizationSubscriptionParams{
		ID:                   repository.UUID(orgID),
		Plan:                 string(plan),
		SubscriptionStatus:   repository.Text(string(sub.Status)),
		StripeSubscriptionID: repository.Text(sub.ID),
		CurrentPeriodStart:   epoch(start),
		CurrentPeriodEnd:     epoch(end),
	})
}

// HandleSubscriptionDeleted resets the organization to the free plan
// regardless of what it was on.
func (r *SubscriptionReconciler) HandleSubscriptionDeleted(ctx context.Context, event domain.ExternalEvent) error {
	const op = "subscription.deleted"

	var sub stripe.Subscription
	if err := decodeObject(op, event, &sub); err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	orgID, err := metadataUUID(op, sub.Metadata, MetadataOrganizationID)
	if err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	return r.apply(ctx, event, op, repository.UpdateOrganizationSubscriptionParams{
		ID:                 repository.UUID(orgID),
		Plan:               string(domain.PlanFree),
		SubscriptionStatus: repository.Text(domain.SubscriptionStatusCanceled),
	})
}

func (r *SubscriptionReconciler) apply(ctx context.Context, event domain.ExternalEvent, op string, params repository.UpdateOrganizationSubscriptionParams) error {
	org, err := r.repo.UpdateOrganizationSubscription(ctx, params)
	if err != nil {
		if repository.IsNoRows(err) {
			return acknowledgeUncorrelated(r.logger, event, domain.MissingCorrelation(op, MetadataOrganizationID))
		}
		return domain.Internal(err, op, "failed to update organization subscription")
	}

	r.logger.Info("organization subscription synced",
		"event_id", event.ID,
		"organization_id", repository.FromUUID(org.ID),
		"plan", org.Plan,
		"subscription_status", org.SubscriptionStatus.String,
	)
	if telemetry.Business != nil {
		telemetry.Business.SubscriptionsSynced.WithLabelValues(org.Plan, org.SubscriptionStatus.String).Inc()
	}
	return nil
}

// firstItem returns the price, product and billing period of the first
// subscription item. The period lives on the item since API 2025-03-31.
func firstItem(sub *stripe.Subscription) (priceID, productID string, start, end int64) {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return "", "", 0, 0
	}
	item := sub.Items.Data[0]
	if item.Price != nil {
		priceID = item.Price.ID
		if item.Price.Product != nil {
			productID = item.Price.Product.ID
		}
	}
	return priceID, productID, item.CurrentPeriodStart, item.CurrentPeriodEnd
}

// epoch converts processor epoch seconds; zero means absent.
func epoch(seconds int64) pgtype.Timestamptz {
	if seconds <= 0 {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: time.Unix(seconds, 0).UTC(), Valid: true}
}
