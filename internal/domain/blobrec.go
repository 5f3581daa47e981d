package domain

import (
	"context"
	"database/sql"
	"time"
)

//go:generate mockgen -destination mocks/mock_blob_repository.go -package mocks github.com/ossdesk/ossdesk/internal/domain BlobRepository

// BlobKind tells raw messages from attachment payloads in the catalog.
type BlobKind string

const (
	BlobKindRawEML     BlobKind = "raw_eml"
	BlobKindAttachment BlobKind = "attachment"
)

// BlobRecord catalogs one content-addressed object in the blob store.
// Payload bytes live in the store; this row is the lookup surface.
type BlobRecord struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Kind           BlobKind  `json:"kind"`
	ContentHash    string    `json:"content_hash"`
	SizeBytes      int64     `json:"size_bytes"`
	StorageKey     string    `json:"storage_key"`
	ContentType    string    `json:"content_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// BlobRepository defines data access for the blob catalog.
type BlobRepository interface {
	// Upsert records the blob, reusing an existing row with the same
	// (organization, kind, hash). Returns the catalog row id.
	Upsert(ctx context.Context, tx *sql.Tx, record *BlobRecord) (string, error)
	GetByID(ctx context.Context, organizationID, blobID string) (*BlobRecord, error)
}
