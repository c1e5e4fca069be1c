package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MockProvider is a mock billing provider for testing.
// Returns configured balances without calling the Stripe API.
type MockProvider struct {
	// GetAvailableBalanceFunc allows customizing balance lookup behavior
	GetAvailableBalanceFunc func(ctx context.Context, accountID string) (*Balance, error)

	// Balances stores the balance returned per connected account
	Balances map[string]decimal.Decimal

	mu sync.Mutex
	// CallLog tracks method calls for test assertions
	CallLog []string
}

// NewMockProvider creates a new mock billing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Balances: make(map[string]decimal.Decimal),
		CallLog:  []string{},
	}
}

// GetAvailableBalance returns the stored balance, or zero for unknown accounts.
func (m *MockProvider) GetAvailableBalance(ctx context.Context, accountID string) (*Balance, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("GetAvailableBalance(%s)", accountID))
	m.mu.Unlock()

	if m.GetAvailableBalanceFunc != nil {
		return m.GetAvailableBalanceFunc(ctx, accountID)
	}

	return &Balance{
		AccountID: accountID,
		Available: m.Balances[accountID],
		Currency:  "usd",
	}, nil
}

var _ Provider = (*MockProvider)(nil)
var _ Provider = (*StripeProvider)(nil)
