package billing

import (
	"context"
	"strings"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/balance"
)

// StripeProvider implements Provider using the Stripe API.
type StripeProvider struct {
	balances balance.Client
	currency string
}

// NewStripeProvider creates a Stripe billing provider bound to the platform key.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}

	return &StripeProvider{
		balances: balance.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: cfg.APIKey,
		},
		currency: currency,
	}, nil
}

// GetAvailableBalance retrieves the balance of a connected account on its behalf.
func (s *StripeProvider) GetAvailableBalance(ctx context.Context, accountID string) (*Balance, error) {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	b, err := s.balances.Get(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &Balance{
		AccountID: accountID,
		Available: sumAvailable(b, s.currency),
		Currency:  s.currency,
	}, nil
}

func sumAvailable(b *stripe.Balance, currency string) decimal.Decimal {
	total := decimal.Zero
	if b == nil {
		return total
	}
	for _, amt := range b.Available {
		if amt == nil || !strings.EqualFold(string(amt.Currency), currency) {
			continue
		}
		total = total.Add(domain.FromMinorUnits(amt.Amount, currency))
	}
	return total
}
