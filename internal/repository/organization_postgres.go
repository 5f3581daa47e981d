package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// OrganizationRepository implements domain.OrganizationRepository
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new OrganizationRepository
func NewOrganizationRepository(db *sql.DB) domain.OrganizationRepository {
	return &OrganizationRepository{db: db}
}

var organizationColumns = []string{
	"id", "name", "mail_domains", "reply_domain", "created_at", "updated_at",
}

// GetByID retrieves an organization by its id
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	query, args, err := psql.
		Select(organizationColumns...).
		From("organizations").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	org, err := scanOrganization(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "organization", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// List retrieves all organizations
func (r *OrganizationRepository) List(ctx context.Context) ([]*domain.Organization, error) {
	query, args, err := psql.
		Select(organizationColumns...).
		From("organizations").
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*domain.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return orgs, nil
}

func scanOrganization(row rowScanner) (*domain.Organization, error) {
	var org domain.Organization
	var replyDomain sql.NullString
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.MailDomains,
		&replyDomain,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	org.ReplyDomain = replyDomain.String
	return &org, nil
}
