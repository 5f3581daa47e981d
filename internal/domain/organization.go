package domain

import (
	"context"
	"time"

	"github.com/lib/pq"
)

//go:generate mockgen -destination mocks/mock_organization_repository.go -package mocks github.com/ossdesk/ossdesk/internal/domain OrganizationRepository

// Organization is the tenancy root. Every other entity carries an
// organization reference and no query crosses the boundary.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// MailDomains are the domains this organization receives mail on.
	// Used by the to_cc_scan recipient evidence fallback.
	MailDomains pq.StringArray `json:"mail_domains"`

	// ReplyDomain is the domain ticket+<code>@ reply aliases live under.
	ReplyDomain string `json:"reply_domain"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnsMailDomain reports whether domain (lowercased) belongs to the org.
func (o *Organization) OwnsMailDomain(domain string) bool {
	for _, d := range o.MailDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// OrganizationRepository defines data access for organizations.
type OrganizationRepository interface {
	GetByID(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
}
