package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// Provider is the subset of the payment processor API the reconciliation
// pipeline calls outside of webhook delivery.
type Provider interface {
	// GetAvailableBalance returns the available balance of a connected
	// account in major currency units, summed over entries in the account's
	// default currency. Callers treat any error as non-fatal.
	GetAvailableBalance(ctx context.Context, accountID string) (*Balance, error)
}

// Balance is a snapshot of a connected account's available funds.
type Balance struct {
	AccountID string
	Available decimal.Decimal
	Currency  string
}
