package billing

import (
	"fmt"
	"strings"
)

// StripeConfig configures the platform account used for balance lookups.
type StripeConfig struct {
	APIKey   string // secret (sk_) or restricted (rk_) key
	Currency string // balance entries in other currencies are ignored; default usd
}

// Validate rejects keys that cannot authenticate against the API, such as a
// publishable key pasted into the wrong variable.
func (c *StripeConfig) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("%w: STRIPE_SECRET_KEY is empty", ErrInvalidAPIKey)
	case !strings.HasPrefix(c.APIKey, "sk_") && !strings.HasPrefix(c.APIKey, "rk_"):
		return fmt.Errorf("%w: expected a secret or restricted key", ErrInvalidAPIKey)
	}
	return nil
}

func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.APIKey, "sk_test_") || strings.HasPrefix(c.APIKey, "rk_test_")
}

// Mode is "test" or "live", for logs.
func (c *StripeConfig) Mode() string {
	if c.IsTestMode() {
		return "test"
	}
	return "live"
}
