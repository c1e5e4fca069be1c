package email

import (
	"errors"
	"fmt"

	"github.com/dukerupert/tally/internal/domain"
)

var (
	// ErrInvalidFromAddress is returned when the from address is invalid.
	ErrInvalidFromAddress = domain.Invalid("email.from", "Invalid from email address")

	// ErrInvalidToAddress is returned when the to address is invalid.
	ErrInvalidToAddress = domain.Invalid("email.to", "Invalid to email address")

	// ErrNoSender is returned when no delivery transport is configured.
	ErrNoSender = &domain.Error{Code: domain.EINTERNAL, Op: "email.new_service", Message: "No email sender configured"}
)

// ErrTemplateNotFound creates a template not found error.
func ErrTemplateNotFound(templateName string) error {
	return domain.NotFound("email.render", "email template", templateName)
}

// Postmark API error codes that no retry of the same message can fix.
const (
	postmarkInvalidRequest    = 300
	postmarkInactiveRecipient = 406
)

// DeliveryError is a rejection reported by the mail transport.
type DeliveryError struct {
	Transport  string // "postmark" or "smtp"
	StatusCode int    // HTTP status, Postmark only
	Code       int    // transport error code
	Message    string
	permanent  bool
}

func (e *DeliveryError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error %d: %s", e.Transport, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Transport, e.Message)
}

// Permanent reports whether the recipient or message was rejected outright,
// such as a bounced or suppressed address.
func (e *DeliveryError) Permanent() bool {
	return e.permanent
}

// IsPermanent reports whether err is a delivery failure that retrying
// cannot fix, including an unparseable recipient address.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrInvalidToAddress) {
		return true
	}
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent()
}
