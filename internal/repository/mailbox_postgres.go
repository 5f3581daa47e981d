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

// MailboxRepository implements domain.MailboxRepository
type MailboxRepository struct {
	db *sql.DB
}

// NewMailboxRepository creates a new MailboxRepository
func NewMailboxRepository(db *sql.DB) domain.MailboxRepository {
	return &MailboxRepository{db: db}
}

var mailboxColumns = []string{
	"id", "organization_id", "purpose", "provider", "email_address",
	"credential_id", "enabled", "degraded", "history_cursor",
	"last_full_sync_at", "last_incremental_sync_at", "last_sync_error",
	"consecutive_failures", "paused_until", "pause_reason",
	"created_at", "updated_at",
}

// GetByID retrieves a mailbox scoped to an organization
func (r *MailboxRepository) GetByID(ctx context.Context, organizationID, mailboxID string) (*domain.Mailbox, error) {
	query, args, err := psql.
		Select(mailboxColumns...).
		From("mailboxes").
		Where(sq.Eq{"id": mailboxID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	mailbox, err := scanMailbox(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "mailbox", ID: mailboxID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox: %w", err)
	}
	return mailbox, nil
}

// GetForSync loads the mailbox with a row lock so two workers never run
// overlapping syncs for the same mailbox.
func (r *MailboxRepository) GetForSync(ctx context.Context, tx *sql.Tx, organizationID, mailboxID string) (*domain.Mailbox, error) {
	query, args, err := psql.
		Select(mailboxColumns...).
		From("mailboxes").
		Where(sq.Eq{"id": mailboxID, "organization_id": organizationID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	mailbox, err := scanMailbox(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "mailbox", ID: mailboxID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock mailbox: %w", err)
	}
	return mailbox, nil
}

// ListByOrganization retrieves all mailboxes of an organization
func (r *MailboxRepository) ListByOrganization(ctx context.Context, organizationID string) ([]*domain.Mailbox, error) {
	query, args, err := psql.
		Select(mailboxColumns...).
		From("mailboxes").
		Where(sq.Eq{"organization_id": organizationID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	defer rows.Close()

	var mailboxes []*domain.Mailbox
	for rows.Next() {
		mailbox, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		mailboxes = append(mailboxes, mailbox)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return mailboxes, nil
}

// ApplySyncUpdate writes back the fields a completed sync run produced
func (r *MailboxRepository) ApplySyncUpdate(ctx context.Context, tx *sql.Tx, organizationID, mailboxID string, update domain.MailboxSyncUpdate) error {
	builder := psql.
		Update("mailboxes").
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": mailboxID, "organization_id": organizationID})

	if update.HistoryCursor != nil {
		builder = builder.Set("history_cursor", *update.HistoryCursor)
	}
	if update.LastFullSyncAt != nil {
		builder = builder.Set("last_full_sync_at", *update.LastFullSyncAt)
	}
	if update.LastIncrementalSyncAt != nil {
		builder = builder.Set("last_incremental_sync_at", *update.LastIncrementalSyncAt)
	}
	if update.ClearSyncError {
		builder = builder.
			Set("last_sync_error", nil).
			Set("consecutive_failures", 0)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to apply sync update: %w", err)
	}
	return requireRowUpdated(result, "mailbox", mailboxID)
}

// RecordSyncFailure stores the error and increments the consecutive failure
// counter, returning the new value.
func (r *MailboxRepository) RecordSyncFailure(ctx context.Context, organizationID, mailboxID, syncError string) (int, error) {
	var failures int
	err := r.db.QueryRowContext(ctx, `
		UPDATE mailboxes SET
			last_sync_error = $3,
			consecutive_failures = consecutive_failures + 1,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING consecutive_failures
	`, mailboxID, organizationID, syncError).Scan(&failures)
	if err == sql.ErrNoRows {
		return 0, &domain.ErrNotFound{Entity: "mailbox", ID: mailboxID}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record sync failure: %w", err)
	}
	return failures, nil
}

// SetDegraded flags a mailbox as needing re-authorization
func (r *MailboxRepository) SetDegraded(ctx context.Context, organizationID, mailboxID string, degraded bool, syncError string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE mailboxes SET
			degraded = $3,
			last_sync_error = $4,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, mailboxID, organizationID, degraded, syncError)
	if err != nil {
		return fmt.Errorf("failed to set degraded flag: %w", err)
	}
	return requireRowUpdated(result, "mailbox", mailboxID)
}

// Pause opens a pause window on the mailbox
func (r *MailboxRepository) Pause(ctx context.Context, organizationID, mailboxID string, until time.Time, reason string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE mailboxes SET
			paused_until = $3,
			pause_reason = $4,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, mailboxID, organizationID, until, reason)
	if err != nil {
		return fmt.Errorf("failed to pause mailbox: %w", err)
	}
	return requireRowUpdated(result, "mailbox", mailboxID)
}

// Resume clears the pause window, failure counter and degraded flag
func (r *MailboxRepository) Resume(ctx context.Context, organizationID, mailboxID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE mailboxes SET
			paused_until = NULL,
			pause_reason = NULL,
			consecutive_failures = 0,
			degraded = FALSE,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, mailboxID, organizationID)
	if err != nil {
		return fmt.Errorf("failed to resume mailbox: %w", err)
	}
	return requireRowUpdated(result, "mailbox", mailboxID)
}

// InsertSyncEvent appends a sync audit row
func (r *MailboxRepository) InsertSyncEvent(ctx context.Context, event *domain.SyncEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	detail := event.Detail
	if len(detail) == 0 {
		detail = []byte("{}")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_events (id, organization_id, mailbox_id, kind, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, event.ID, event.OrganizationID, event.MailboxID, event.Kind, []byte(detail))
	if err != nil {
		return fmt.Errorf("failed to insert sync event: %w", err)
	}
	return nil
}

// ListSyncEvents retrieves the most recent sync audit rows for a mailbox
func (r *MailboxRepository) ListSyncEvents(ctx context.Context, organizationID, mailboxID string, limit int) ([]*domain.SyncEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query, args, err := psql.
		Select("id", "organization_id", "mailbox_id", "kind", "detail", "created_at").
		From("sync_events").
		Where(sq.Eq{"organization_id": organizationID, "mailbox_id": mailboxID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync events: %w", err)
	}
	defer rows.Close()

	var events []*domain.SyncEvent
	for rows.Next() {
		var event domain.SyncEvent
		var detail []byte
		if err := rows.Scan(&event.ID, &event.OrganizationID, &event.MailboxID, &event.Kind, &detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		event.Detail = detail
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}

func scanMailbox(row rowScanner) (*domain.Mailbox, error) {
	var m domain.Mailbox
	err := row.Scan(
		&m.ID,
		&m.OrganizationID,
		&m.Purpose,
		&m.ProviderKind,
		&m.EmailAddress,
		&m.CredentialID,
		&m.Enabled,
		&m.Degraded,
		&m.HistoryCursor,
		&m.LastFullSyncAt,
		&m.LastIncrementalSyncAt,
		&m.LastSyncError,
		&m.ConsecutiveSyncFailures,
		&m.PausedUntil,
		&m.PauseReason,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
