package blob

import (
	"context"
	"fmt"
	"time"
)

//go:generate mockgen -destination=../mocks/mock_blob.go -package=pkgmocks github.com/ossdesk/ossdesk/pkg/blob Store

// ErrNotFound is returned when no blob exists under the requested key.
var ErrNotFound = fmt.Errorf("blob not found")

// Store persists immutable message payloads: raw RFC822 messages and
// decoded attachments. Writes are idempotent because keys are derived
// from content hashes.
type Store interface {
	// Put stores data under key. Re-writing an existing key is allowed and
	// must leave equivalent content in place.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns the content stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// SignedURL returns a URL granting temporary read access to key.
	SignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Key returns the canonical storage key for organization-scoped content.
// Content is addressed by hash so identical payloads share one object.
func Key(organizationID string, contentHash string) string {
	return fmt.Sprintf("oss/%s/%s", organizationID, contentHash)
}

// Config selects and configures a blob storage driver.
type Config struct {
	Driver string // "fs" or "s3"

	// fs driver
	Root string

	// s3 driver
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// NewStore builds the Store selected by cfg.Driver.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "fs":
		if cfg.Root == "" {
			return nil, fmt.Errorf("blob: fs driver requires a root directory")
		}
		return NewFSStore(cfg.Root), nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("blob: s3 driver requires a bucket")
		}
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("blob: unknown driver %q", cfg.Driver)
	}
}
