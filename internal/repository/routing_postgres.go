package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// RoutingRepository implements domain.RoutingRepository
type RoutingRepository struct {
	db *sql.DB
}

// NewRoutingRepository creates a new RoutingRepository
func NewRoutingRepository(db *sql.DB) domain.RoutingRepository {
	return &RoutingRepository{db: db}
}

// ListAllowlist retrieves the enabled allowlist entries of an organization
func (r *RoutingRepository) ListAllowlist(ctx context.Context, organizationID string) ([]*domain.AllowlistEntry, error) {
	query, args, err := psql.
		Select("id", "organization_id", "pattern", "enabled", "created_at", "updated_at").
		From("routing_allowlist").
		Where(sq.Eq{"organization_id": organizationID, "enabled": true}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowlist: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AllowlistEntry
	for rows.Next() {
		var entry domain.AllowlistEntry
		if err := rows.Scan(&entry.ID, &entry.OrganizationID, &entry.Pattern,
			&entry.Enabled, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allowlist entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

// ListRules retrieves the enabled routing rules of an organization ordered by
// ascending priority, id as tiebreaker.
func (r *RoutingRepository) ListRules(ctx context.Context, organizationID string) ([]*domain.RoutingRule, error) {
	query, args, err := psql.
		Select("id", "organization_id", "name", "priority", "enabled",
			"recipient_pattern", "sender_domain_pattern", "sender_email_pattern",
			"direction", "assign_queue_id", "assign_user_id", "set_status",
			"drop_ticket", "auto_close", "created_at", "updated_at").
		From("routing_rules").
		Where(sq.Eq{"organization_id": organizationID, "enabled": true}).
		OrderBy("priority ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.RoutingRule
	for rows.Next() {
		rule, err := scanRoutingRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return rules, nil
}

func scanRoutingRule(row rowScanner) (*domain.RoutingRule, error) {
	var rule domain.RoutingRule
	var recipientPattern, senderDomainPattern, senderEmailPattern sql.NullString
	var direction, setStatus sql.NullString
	err := row.Scan(
		&rule.ID,
		&rule.OrganizationID,
		&rule.Name,
		&rule.Priority,
		&rule.Enabled,
		&recipientPattern,
		&senderDomainPattern,
		&senderEmailPattern,
		&direction,
		&rule.AssignQueueID,
		&rule.AssignUserID,
		&setStatus,
		&rule.Drop,
		&rule.AutoClose,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan routing rule: %w", err)
	}
	rule.RecipientPattern = recipientPattern.String
	rule.SenderDomainPattern = senderDomainPattern.String
	rule.SenderEmailPattern = senderEmailPattern.String
	rule.Direction = domain.MessageDirection(direction.String)
	rule.SetStatus = domain.TicketStatus(setStatus.String)
	return &rule, nil
}
