package domain

import (
	"errors"
	"fmt"
)

// Error codes. The HTTP layer maps each one to a status.
const (
	EINVALID  = "invalid"
	ENOTFOUND = "not_found"
	ECONFLICT = "conflict"
	EINTERNAL = "internal"

	// ECORRELATION marks an event whose payload cannot be resolved to an
	// internal entity. Redelivery cannot fix it, so it is acknowledged.
	ECORRELATION = "missing_correlation"
)

const internalMessage = "An internal error occurred. Please try again later."

// Error is a coded application error. Op names where it happened
// (e.g. "invoice.apply_payment") and is for logs only; Message is safe
// to return to the caller unless Code is EINTERNAL.
type Error struct {
	Code    string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// find returns the outermost *Error in err's chain.
func find(err error) (*Error, bool) {
	var e *Error
	if err == nil || !errors.As(err, &e) {
		return nil, false
	}
	return e, true
}

// ErrorCode returns the code of err. Errors that carry no code are internal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := find(err); ok {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the caller-facing message for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := find(err); ok && e.Code != EINTERNAL {
		return e.Message
	}
	return internalMessage
}

// ErrorOp returns the operation recorded on err, if any.
func ErrorOp(err error) string {
	if e, ok := find(err); ok {
		return e.Op
	}
	return ""
}

// IsCode reports whether err carries code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// Errorf builds an error with a formatted message.
func Errorf(code, op, format string, args ...any) error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and operation to err. A nil err stays nil.
func WrapError(err error, code, op, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

func NotFound(op, resource, identifier string) error {
	return Errorf(ENOTFOUND, op, "%s not found: %s", resource, identifier)
}

func Invalid(op, message string) error {
	return &Error{Code: EINVALID, Op: op, Message: message}
}

func Internal(err error, op, message string) error {
	return &Error{Code: EINTERNAL, Op: op, Message: message, Err: err}
}

// Webhook verification failures.
var (
	// ErrNoWebhookSecrets means the deployment has no signing secrets.
	// Only an operator can fix it; the sender's retries will keep failing.
	ErrNoWebhookSecrets = &Error{Code: EINTERNAL, Op: "webhook.verify", Message: "no webhook signing secrets configured"}

	ErrSignatureInvalid = &Error{Code: EINVALID, Op: "webhook.verify", Message: "Invalid signature"}
	ErrMissingSignature = &Error{Code: EINVALID, Op: "webhook.verify", Message: "Missing signature"}
)

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNoWebhookSecrets)
}

func IsSignatureInvalid(err error) bool {
	return errors.Is(err, ErrSignatureInvalid)
}

// MissingCorrelation reports an event without the identifier named by field.
func MissingCorrelation(op, field string) error {
	return Errorf(ECORRELATION, op, "event metadata missing or invalid %s", field)
}

func IsMissingCorrelation(err error) bool {
	return IsCode(err, ECORRELATION)
}
