package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

//go:generate mockgen -destination mocks/mock_credential_repository.go -package mocks github.com/ossdesk/ossdesk/internal/domain CredentialRepository

// OAuthCredential stores a provider refresh token at rest, AES-GCM encrypted.
// The access token is a short-lived cache refreshed on demand.
type OAuthCredential struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Provider       string `json:"provider"`
	// Subject is the provider-side account identity the token belongs to.
	Subject string         `json:"subject"`
	Scopes  pq.StringArray `json:"scopes"`

	EncryptedRefreshToken string     `json:"-"`
	EncryptedAccessToken  *string    `json:"-"`
	AccessTokenExpiresAt  *time.Time `json:"access_token_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EncryptionAAD binds the ciphertext to this credential row so a blob copied
// onto another row fails to decrypt.
func (c *OAuthCredential) EncryptionAAD() string {
	return OAuthCredentialAAD(c.OrganizationID, c.Provider, c.Subject)
}

// OAuthCredentialAAD builds the additional authenticated data string used
// when sealing refresh and access tokens.
func OAuthCredentialAAD(organizationID, provider, subject string) string {
	return fmt.Sprintf("oauth_credentials:%s:%s:%s", organizationID, provider, subject)
}

// CredentialRepository defines data access for OAuth credentials.
type CredentialRepository interface {
	GetByID(ctx context.Context, organizationID, credentialID string) (*OAuthCredential, error)
	// UpdateAccessToken caches a freshly minted access token.
	UpdateAccessToken(ctx context.Context, organizationID, credentialID, encryptedToken string, expiresAt time.Time) error
}
