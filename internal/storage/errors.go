package storage

import (
	"github.com/dukerupert/tally/internal/domain"
)

var (
	// ErrR2AccountIDRequired is returned when R2 account ID is missing.
	ErrR2AccountIDRequired = domain.Invalid("storage.new", "R2 account ID is required")

	// ErrBucketRequired is returned when the bucket name is missing.
	ErrBucketRequired = domain.Invalid("storage.new", "archive bucket name is required")

	// ErrInvalidKey is returned for keys that would escape the archive root.
	ErrInvalidKey = domain.Invalid("storage.key", "archive key must be a relative path")
)

// ErrObjectNotFound creates an error for when an archived object is missing.
func ErrObjectNotFound(key string) error {
	return domain.NotFound("storage.get", "object", key)
}

// ErrUnknownProvider creates an error for unknown archive providers.
func ErrUnknownProvider(provider string) error {
	return domain.Errorf(domain.EINVALID, "storage.new", "unknown archive provider: %s", provider)
}
