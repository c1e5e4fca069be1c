package billing

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v83"
)

var (
	// ErrInvalidAPIKey is returned when Stripe API key is invalid or missing.
	ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")

	// ErrAccountNotFound is returned when a connected account does not exist
	// or the platform has no access to it.
	ErrAccountNotFound = errors.New("billing: account not found")
)

// StripeError wraps a Stripe API error with additional context.
type StripeError struct {
	Message       string // Human-readable error message
	Code          string // Stripe error code (e.g., "account_invalid")
	StatusCode    string // HTTP status code from Stripe
	RequestID     string // Stripe request ID for debugging
	OriginalError error  // Original error from Stripe SDK
}

func (e *StripeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe: %s (code: %s)", e.Message, e.Code)
	}
	return fmt.Sprintf("stripe: %s", e.Message)
}

func (e *StripeError) Unwrap() error {
	return e.OriginalError
}

// IsTemporary returns true if error is likely transient and retryable.
func (e *StripeError) IsTemporary() bool {
	return e.Code == "rate_limit" || e.Code == "api_connection_error" || e.StatusCode == "500"
}

func wrapStripeError(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &StripeError{Message: err.Error(), Code: "api_connection_error", OriginalError: err}
	}

	switch stripeErr.HTTPStatusCode {
	case 401:
		return fmt.Errorf("%w: %s", ErrInvalidAPIKey, stripeErr.Msg)
	case 403, 404:
		return fmt.Errorf("%w: %s", ErrAccountNotFound, stripeErr.Msg)
	}

	return &StripeError{
		Message:       stripeErr.Msg,
		Code:          string(stripeErr.Code),
		StatusCode:    strconv.Itoa(stripeErr.HTTPStatusCode),
		RequestID:     stripeErr.RequestID,
		OriginalError: err,
	}
}
