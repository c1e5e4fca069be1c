package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dukerupert/tally/internal"
)

// Archive keeps copies of raw event payloads.
// Implementations can use the local filesystem, S3, or any S3-compatible store.
type Archive interface {
	// Put stores an object under key, replacing any earlier copy.
	Put(ctx context.Context, key string, content io.Reader, contentType string) error

	// Get retrieves an object by its key.
	// Returns an io.ReadCloser that must be closed by the caller.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)
}

// EventKey returns the archive key for an event payload, partitioned by the
// UTC day it was received (e.g. "events/2026/03/01/evt_123.json").
func EventKey(prefix, eventID string, receivedAt time.Time) string {
	day := receivedAt.UTC().Format("2006/01/02")
	return path.Join(strings.Trim(prefix, "/"), day, eventID+".json")
}

// NewArchive creates an Archive based on configuration.
// It returns nil when no provider is configured.
func NewArchive(ctx context.Context, cfg internal.ArchiveConfig) (Archive, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "local":
		return NewLocalArchive(cfg.LocalPath)
	case "s3":
		return NewS3Archive(ctx, S3Config{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Bucket:          cfg.Bucket,
		})
	case "r2":
		if cfg.R2AccountID == "" {
			return nil, ErrR2AccountIDRequired
		}
		return NewS3Archive(ctx, S3Config{
			Endpoint:        fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID),
			Region:          "auto",
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Bucket:          cfg.Bucket,
		})
	default:
		return nil, ErrUnknownProvider(cfg.Provider)
	}
}
