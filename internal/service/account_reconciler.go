package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dukerupert/tally/internal/billing"
	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/dukerupert/tally/internal/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
)

const balanceLookupTimeout = 5 * time.Second

// AccountReconciler syncs connected account capability flags and balance onto
// the merchant that owns the account.
type AccountReconciler struct {
	store    repository.Store
	balances billing.Provider
	logger   *slog.Logger
}

// NewAccountReconciler creates an AccountReconciler. balances may be nil, in
// which case the balance snapshot is always zero.
func NewAccountReconciler(store repository.Store, balances billing.Provider, logger *slog.Logger) *AccountReconciler {
	return &AccountReconciler{
		store:    store,
		balances: balances,
		logger:   logger,
	}
}

// HandleAccountUpdated overwrites the merchant's onboarding fields and writes
// an audit log entry in the same transaction.
func (r *AccountReconciler) HandleAccountUpdated(ctx context.Context, event domain.ExternalEvent) error {
	const op = "account.updated"

	var acct stripe.Account
	if err := decodeObject(op, event, &acct); err != nil {
		return acknowledgeUncorrelated(r.logger, event, err)
	}

	accountID := acct.ID
	if accountID == "" {
		accountID = event.AccountID
	}
	if accountID == "" {
		return acknowledgeUncorrelated(r.logger, event, domain.MissingCorrelation(op, "account_id"))
	}

	merchant, err := r.store.GetUserByStripeAccountID(ctx, repository.Text(accountID))
	if err != nil {
		if repository.IsNoRows(err) {
			return acknowledgeUncorrelated(r.logger, event, domain.MissingCorrelation(op, "account_id"))
		}
		return domain.Internal(err, op, "failed to load merchant")
	}

	caps := domain.AccountCapabilities{
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	status := domain.DeriveOnboardingStatus(caps)
	balance := r.availableBalance(ctx, event, accountID)

	metadata, err := json.Marshal(map[string]any{
		"account_id":        accountID,
		"onboarding_status": status,
		"charges_enabled":   caps.ChargesEnabled,
		"payouts_enabled":   caps.PayoutsEnabled,
		"details_submitted": caps.DetailsSubmitted,
		"balance":           balance.String(),
		"source":            "webhook:" + event.Type,
		"event_id":          event.ID,
	})
	if err != nil {
		return domain.Internal(err, op, "failed to encode audit metadata")
	}

	err = r.store.ExecTx(ctx, func(q repository.Querier) error {
		_, err := q.UpdateUserStripeAccountStatus(ctx, repository.UpdateUserStripeAccountStatusParams{
			ID:                 merchant.ID,
			OnboardingStatus:   string(status),
			OnboardingComplete: status == domain.OnboardingComplete,
			PayoutsEnabled:     caps.PayoutsEnabled,
			Balance:            repository.NumericFromDecimal(balance),
		})
		if err != nil {
			return domain.Internal(err, op, "failed to update merchant account status")
		}

		err = q.CreateAuditLog(ctx, repository.CreateAuditLogParams{
			ID:             repository.UUID(uuid.New()),
			OrganizationID: merchant.OrganizationID,
			UserID:         merchant.ID,
			Action:         "stripe_account.synced",
			EntityType:     "stripe_account",
			EntityID:       accountID,
			Metadata:       metadata,
		})
		if err != nil {
			return domain.Internal(err, op, "failed to write audit log")
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("merchant account status synced",
		"event_id", event.ID,
		"account_id", accountID,
		"user_id", repository.FromUUID(merchant.ID),
		"onboarding_status", status,
		"payouts_enabled", caps.PayoutsEnabled,
		"balance", balance.String(),
	)
	if telemetry.Business != nil {
		telemetry.Business.AccountsSynced.WithLabelValues(string(status)).Inc()
	}
	return nil
}

// availableBalance is informational. Any failure yields zero.
func (r *AccountReconciler) availableBalance(ctx context.Context, event domain.ExternalEvent, accountID string) decimal.Decimal {
	if r.balances == nil {
		return decimal.Zero
	}

	ctx, cancel := context.WithTimeout(ctx, balanceLookupTimeout)
	defer cancel()

	start := time.Now()
	b, err := r.balances.GetAvailableBalance(ctx, accountID)
	if telemetry.Business != nil {
		telemetry.Business.StripeAPILatency.WithLabelValues("get_balance").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		r.logger.Warn("balance lookup failed, defaulting to zero",
			"event_id", event.ID,
			"account_id", accountID,
			"error", err,
		)
		return decimal.Zero
	}
	if b == nil {
		return decimal.Zero
	}
	return b.Available
}
