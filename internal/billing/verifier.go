package billing

import (
	"errors"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

// SignatureVerifier checks a webhook body against an ordered list of signing
// secrets. The platform endpoint secret and the Connect endpoint secret are
// both valid at once, and a rotated secret stays valid until it is removed.
type SignatureVerifier struct {
	secrets []string
	opts    webhook.ConstructEventOptions
}

// NewSignatureVerifier copies secrets, dropping empty entries. An empty result
// is allowed; Verify then reports domain.ErrNoWebhookSecrets.
func NewSignatureVerifier(secrets []string) *SignatureVerifier {
	kept := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return &SignatureVerifier{
		secrets: kept,
		opts: webhook.ConstructEventOptions{
			Tolerance:                webhook.DefaultTolerance,
			IgnoreAPIVersionMismatch: true,
		},
	}
}

// SecretCount is the number of candidate secrets.
func (v *SignatureVerifier) SecretCount() int {
	return len(v.secrets)
}

// Verify returns the event for the first secret that validates the signature.
func (v *SignatureVerifier) Verify(payload []byte, signature string) (stripe.Event, error) {
	const op = "billing.SignatureVerifier.Verify"

	if len(v.secrets) == 0 {
		return stripe.Event{}, domain.ErrNoWebhookSecrets
	}
	if signature == "" {
		return stripe.Event{}, domain.ErrMissingSignature
	}

	var lastErr error
	for _, secret := range v.secrets {
		event, err := webhook.ConstructEventWithOptions(payload, signature, secret, v.opts)
		if err == nil {
			return event, nil
		}
		lastErr = err
		// A malformed header fails identically for every secret.
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrInvalidHeader) {
			break
		}
	}

	return stripe.Event{}, &domain.Error{
		Code:    domain.EINVALID,
		Op:      op,
		Message: domain.ErrSignatureInvalid.Message,
		Err:     errors.Join(domain.ErrSignatureInvalid, lastErr),
	}
}
