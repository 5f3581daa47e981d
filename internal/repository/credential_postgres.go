package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// CredentialRepository implements domain.CredentialRepository
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository
func NewCredentialRepository(db *sql.DB) domain.CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetByID retrieves a credential scoped to an organization
func (r *CredentialRepository) GetByID(ctx context.Context, organizationID, credentialID string) (*domain.OAuthCredential, error) {
	query, args, err := psql.
		Select(
			"id", "organization_id", "provider", "subject", "scopes",
			"encrypted_refresh_token", "encrypted_access_token",
			"access_token_expires_at", "created_at", "updated_at",
		).
		From("oauth_credentials").
		Where(sq.Eq{"id": credentialID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var cred domain.OAuthCredential
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&cred.ID,
		&cred.OrganizationID,
		&cred.Provider,
		&cred.Subject,
		&cred.Scopes,
		&cred.EncryptedRefreshToken,
		&cred.EncryptedAccessToken,
		&cred.AccessTokenExpiresAt,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "credential", ID: credentialID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

// UpdateAccessToken caches a freshly minted access token
func (r *CredentialRepository) UpdateAccessToken(ctx context.Context, organizationID, credentialID, encryptedToken string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE oauth_credentials SET
			encrypted_access_token = $3,
			access_token_expires_at = $4,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, credentialID, organizationID, encryptedToken, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}
	return requireRowUpdated(result, "credential", credentialID)
}
