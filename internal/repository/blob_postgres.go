package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// BlobRepository implements domain.BlobRepository
type BlobRepository struct {
	db *sql.DB
}

// NewBlobRepository creates a new BlobRepository
func NewBlobRepository(db *sql.DB) domain.BlobRepository {
	return &BlobRepository{db: db}
}

// Upsert records a blob, reusing an existing catalog row with the same
// (organization, kind, hash). Content-addressed keys make re-writes no-ops.
func (r *BlobRepository) Upsert(ctx context.Context, tx *sql.Tx, record *domain.BlobRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	var id string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO blobs (id, organization_id, kind, content_hash, size_bytes, storage_key, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (organization_id, kind, content_hash) DO UPDATE SET content_hash = EXCLUDED.content_hash
		RETURNING id
	`, record.ID, record.OrganizationID, record.Kind, record.ContentHash,
		record.SizeBytes, record.StorageKey, record.ContentType).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert blob record: %w", err)
	}
	return id, nil
}

// GetByID retrieves a blob catalog row scoped to an organization
func (r *BlobRepository) GetByID(ctx context.Context, organizationID, blobID string) (*domain.BlobRecord, error) {
	query, args, err := psql.
		Select("id", "organization_id", "kind", "content_hash", "size_bytes",
			"storage_key", "content_type", "created_at").
		From("blobs").
		Where(sq.Eq{"id": blobID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var record domain.BlobRecord
	var contentType sql.NullString
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&record.ID,
		&record.OrganizationID,
		&record.Kind,
		&record.ContentHash,
		&record.SizeBytes,
		&record.StorageKey,
		&contentType,
		&record.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "blob", ID: blobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob record: %w", err)
	}
	record.ContentType = contentType.String
	return &record, nil
}
