package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// TicketRepository implements domain.TicketRepository
type TicketRepository struct {
	db *sql.DB
}

// NewTicketRepository creates a new TicketRepository
func NewTicketRepository(db *sql.DB) domain.TicketRepository {
	return &TicketRepository{db: db}
}

var ticketColumns = []string{
	"id", "organization_id", "code", "status", "priority",
	"subject", "subject_norm", "requester_email", "requester_name",
	"assignee_user_id", "assignee_queue_id",
	"stitch_reason", "stitch_confidence",
	"last_activity_at", "closed_at", "created_at", "updated_at",
}

// Create inserts a new ticket
func (r *TicketRepository) Create(ctx context.Context, tx *sql.Tx, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.New().String()
	}
	if ticket.Code == "" {
		ticket.Code = domain.NewTicketCode()
	}
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusNew
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.PriorityNormal
	}
	if ticket.LastActivityAt.IsZero() {
		ticket.LastActivityAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (
			id, organization_id, code, status, priority,
			subject, subject_norm, requester_email, requester_name,
			assignee_user_id, assignee_queue_id,
			stitch_reason, stitch_confidence,
			last_activity_at, closed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`, ticket.ID, ticket.OrganizationID, ticket.Code, ticket.Status, ticket.Priority,
		ticket.Subject, ticket.SubjectNormalized, ticket.RequesterEmail, ticket.RequesterName,
		ticket.AssigneeUserID, ticket.AssigneeQueueID,
		nullableEnum(string(ticket.StitchReason)), nullableEnum(string(ticket.StitchConfidence)),
		ticket.LastActivityAt, ticket.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetByID retrieves a ticket scoped to an organization
func (r *TicketRepository) GetByID(ctx context.Context, organizationID, ticketID string) (*domain.Ticket, error) {
	query, args, err := psql.
		Select(ticketColumns...).
		From("tickets").
		Where(sq.Eq{"id": ticketID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	ticket, err := scanTicket(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "ticket", ID: ticketID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return ticket, nil
}

// GetForUpdate loads the ticket with a row lock inside tx
func (r *TicketRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, organizationID, ticketID string) (*domain.Ticket, error) {
	query, args, err := psql.
		Select(ticketColumns...).
		From("tickets").
		Where(sq.Eq{"id": ticketID, "organization_id": organizationID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	ticket, err := scanTicket(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "ticket", ID: ticketID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock ticket: %w", err)
	}
	return ticket, nil
}

// GetByCode retrieves a ticket by its public code, or nil when unknown
func (r *TicketRepository) GetByCode(ctx context.Context, tx *sql.Tx, organizationID, code string) (*domain.Ticket, error) {
	query, args, err := psql.
		Select(ticketColumns...).
		From("tickets").
		Where(sq.Eq{"organization_id": organizationID, "code": code}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	ticket, err := scanTicket(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket by code: %w", err)
	}
	return ticket, nil
}

// Exists reports whether the ticket id belongs to the organization
func (r *TicketRepository) Exists(ctx context.Context, tx *sql.Tx, organizationID, ticketID string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1 AND organization_id = $2)
	`, ticketID, organizationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ticket existence: %w", err)
	}
	return exists, nil
}

// FindSubjectMatch returns the freshest non-closed ticket with the same
// normalized subject and requester whose last activity falls inside the
// window, or nil.
func (r *TicketRepository) FindSubjectMatch(ctx context.Context, tx *sql.Tx, organizationID, subjectNormalized, requesterEmail string, since time.Time) (*domain.Ticket, error) {
	query, args, err := psql.
		Select(ticketColumns...).
		From("tickets").
		Where(sq.Eq{
			"organization_id": organizationID,
			"subject_norm":    subjectNormalized,
			"requester_email": requesterEmail,
		}).
		Where(sq.NotEq{"status": []string{string(domain.TicketStatusClosed), string(domain.TicketStatusSpam)}}).
		Where(sq.GtOrEq{"last_activity_at": since}).
		OrderBy("last_activity_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	ticket, err := scanTicket(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subject match: %w", err)
	}
	return ticket, nil
}

// UpdateStatus transitions the ticket status, stamping or clearing closed_at
func (r *TicketRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, organizationID, ticketID string, status domain.TicketStatus, closedAt *time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE tickets SET
			status = $3,
			closed_at = $4,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, ticketID, organizationID, status, closedAt)
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	return requireRowUpdated(result, "ticket", ticketID)
}

// UpdateAssignment sets the ticket assignee. A user and a queue are mutually
// exclusive, so both columns are always written.
func (r *TicketRepository) UpdateAssignment(ctx context.Context, tx *sql.Tx, organizationID, ticketID string, assignment domain.TicketAssignment) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE tickets SET
			assignee_user_id = $3,
			assignee_queue_id = $4,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, ticketID, organizationID, assignment.UserID, assignment.QueueID)
	if err != nil {
		return fmt.Errorf("failed to update ticket assignment: %w", err)
	}
	return requireRowUpdated(result, "ticket", ticketID)
}

// TouchActivity bumps last_activity_at, never backwards
func (r *TicketRepository) TouchActivity(ctx context.Context, tx *sql.Tx, organizationID, ticketID string, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE tickets SET
			last_activity_at = GREATEST(last_activity_at, $3),
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, ticketID, organizationID, at)
	if err != nil {
		return fmt.Errorf("failed to touch ticket activity: %w", err)
	}
	return requireRowUpdated(result, "ticket", ticketID)
}

// Delete hard-deletes a ticket and its events (the routing drop action)
func (r *TicketRepository) Delete(ctx context.Context, tx *sql.Tx, organizationID, ticketID string) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM ticket_events WHERE ticket_id = $1 AND organization_id = $2
	`, ticketID, organizationID); err != nil {
		return fmt.Errorf("failed to delete ticket events: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM tickets WHERE id = $1 AND organization_id = $2
	`, ticketID, organizationID)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	return requireRowUpdated(result, "ticket", ticketID)
}

// InsertEvent appends an audit event to the ticket history
func (r *TicketRepository) InsertEvent(ctx context.Context, tx *sql.Tx, event *domain.TicketEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO ticket_events (id, organization_id, ticket_id, kind, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, event.ID, event.OrganizationID, event.TicketID, event.Kind, event.ActorUserID, []byte(payload))
	if err != nil {
		return fmt.Errorf("failed to insert ticket event: %w", err)
	}
	return nil
}

// ListEvents retrieves the most recent audit events of a ticket
func (r *TicketRepository) ListEvents(ctx context.Context, organizationID, ticketID string, limit int) ([]*domain.TicketEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query, args, err := psql.
		Select("id", "organization_id", "ticket_id", "kind", "actor", "payload", "created_at").
		From("ticket_events").
		Where(sq.Eq{"organization_id": organizationID, "ticket_id": ticketID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ticket events: %w", err)
	}
	defer rows.Close()

	var events []*domain.TicketEvent
	for rows.Next() {
		var event domain.TicketEvent
		var payload []byte
		if err := rows.Scan(&event.ID, &event.OrganizationID, &event.TicketID,
			&event.Kind, &event.ActorUserID, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket event: %w", err)
		}
		event.Payload = payload
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}

// GetQueue retrieves a ticket queue scoped to an organization
func (r *TicketRepository) GetQueue(ctx context.Context, tx *sql.Tx, organizationID, queueID string) (*domain.TicketQueue, error) {
	var queue domain.TicketQueue
	err := tx.QueryRowContext(ctx, `
		SELECT id, organization_id, name, created_at, updated_at
		FROM ticket_queues
		WHERE id = $1 AND organization_id = $2
	`, queueID, organizationID).Scan(
		&queue.ID, &queue.OrganizationID, &queue.Name, &queue.CreatedAt, &queue.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "queue", ID: queueID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	return &queue, nil
}

// DeleteQueue removes a queue unless routing rules still reference it
func (r *TicketRepository) DeleteQueue(ctx context.Context, organizationID, queueID string) error {
	var referenced bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM routing_rules
			WHERE organization_id = $1 AND assign_queue_id = $2
		)
	`, organizationID, queueID).Scan(&referenced)
	if err != nil {
		return fmt.Errorf("failed to check queue references: %w", err)
	}
	if referenced {
		return &domain.ErrQueueReferenced{QueueID: queueID}
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM ticket_queues WHERE id = $1 AND organization_id = $2
	`, queueID, organizationID)
	if err != nil {
		return fmt.Errorf("failed to delete queue: %w", err)
	}
	return requireRowUpdated(result, "queue", queueID)
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var t domain.Ticket
	var stitchReason, stitchConfidence sql.NullString
	err := row.Scan(
		&t.ID,
		&t.OrganizationID,
		&t.Code,
		&t.Status,
		&t.Priority,
		&t.Subject,
		&t.SubjectNormalized,
		&t.RequesterEmail,
		&t.RequesterName,
		&t.AssigneeUserID,
		&t.AssigneeQueueID,
		&stitchReason,
		&stitchConfidence,
		&t.LastActivityAt,
		&t.ClosedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.StitchReason = domain.StitchReason(stitchReason.String)
	t.StitchConfidence = domain.RecipientConfidence(stitchConfidence.String)
	return &t, nil
}
