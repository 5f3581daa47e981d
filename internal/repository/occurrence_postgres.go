package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// OccurrenceRepository implements domain.OccurrenceRepository
type OccurrenceRepository struct {
	db *sql.DB
}

// NewOccurrenceRepository creates a new OccurrenceRepository
func NewOccurrenceRepository(db *sql.DB) domain.OccurrenceRepository {
	return &OccurrenceRepository{db: db}
}

var occurrenceColumns = []string{
	"id", "organization_id", "mailbox_id",
	"provider_message_id", "provider_thread_id", "provider_history_id",
	"internal_date", "label_ids", "direction",
	"state", "raw_blob_id", "raw_content_hash", "canonical_message_id", "ticket_id",
	"original_recipient", "recipient_source", "recipient_confidence", "recipient_evidence",
	"fetch_error", "parse_error", "stitch_error", "route_error",
	"fetched_at", "parsed_at", "stitched_at", "routed_at", "provider_deleted_at",
	"created_at", "updated_at",
}

// Upsert inserts a discovered occurrence or refreshes the provider metadata of
// an existing one. The occurrence identity is (mailbox_id, provider_message_id).
func (r *OccurrenceRepository) Upsert(ctx context.Context, tx *sql.Tx, upsert domain.OccurrenceUpsert) (string, bool, error) {
	var threadID sql.NullString
	if upsert.ProviderThreadID != "" {
		threadID = sql.NullString{String: upsert.ProviderThreadID, Valid: true}
	}
	var historyID sql.NullString
	if upsert.ProviderHistoryID != 0 {
		historyID = sql.NullString{String: strconv.FormatUint(upsert.ProviderHistoryID, 10), Valid: true}
	}
	direction := upsert.Direction
	if direction == "" {
		direction = domain.DirectionInbound
	}

	var id string
	var created bool
	err := tx.QueryRowContext(ctx, `
		INSERT INTO message_occurrences (
			id, organization_id, mailbox_id, provider_message_id,
			provider_thread_id, provider_history_id, internal_date, label_ids,
			direction, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (mailbox_id, provider_message_id) DO UPDATE SET
			provider_thread_id = COALESCE(EXCLUDED.provider_thread_id, message_occurrences.provider_thread_id),
			provider_history_id = COALESCE(EXCLUDED.provider_history_id, message_occurrences.provider_history_id),
			internal_date = COALESCE(EXCLUDED.internal_date, message_occurrences.internal_date),
			label_ids = EXCLUDED.label_ids,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted
	`, uuid.New().String(), upsert.OrganizationID, upsert.MailboxID, upsert.ProviderMessageID,
		threadID, historyID, upsert.InternalDate, pq.Array(upsert.LabelIDs), direction,
	).Scan(&id, &created)
	if err != nil {
		return "", false, fmt.Errorf("failed to upsert occurrence: %w", err)
	}
	return id, created, nil
}

// GetByID retrieves an occurrence scoped to an organization
func (r *OccurrenceRepository) GetByID(ctx context.Context, organizationID, occurrenceID string) (*domain.MessageOccurrence, error) {
	query, args, err := psql.
		Select(occurrenceColumns...).
		From("message_occurrences").
		Where(sq.Eq{"id": occurrenceID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	occurrence, err := scanOccurrence(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "occurrence", ID: occurrenceID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get occurrence: %w", err)
	}
	return occurrence, nil
}

// GetForStage loads the occurrence with a row lock so a stage handler can
// re-check state before mutating.
func (r *OccurrenceRepository) GetForStage(ctx context.Context, tx *sql.Tx, organizationID, occurrenceID string) (*domain.MessageOccurrence, error) {
	query, args, err := psql.
		Select(occurrenceColumns...).
		From("message_occurrences").
		Where(sq.Eq{"id": occurrenceID, "organization_id": organizationID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	occurrence, err := scanOccurrence(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "occurrence", ID: occurrenceID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock occurrence: %w", err)
	}
	return occurrence, nil
}

// MarkFetched advances the occurrence to fetched with its raw blob reference
func (r *OccurrenceRepository) MarkFetched(ctx context.Context, tx *sql.Tx, occurrenceID, rawBlobID, contentHash string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE message_occurrences SET
			state = 'fetched',
			raw_blob_id = $2,
			raw_content_hash = $3,
			fetch_error = NULL,
			fetched_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`, occurrenceID, rawBlobID, contentHash)
	if err != nil {
		return fmt.Errorf("failed to mark occurrence fetched: %w", err)
	}
	return requireRowUpdated(result, "occurrence", occurrenceID)
}

// MarkParsed advances the occurrence to parsed, linking the canonical message
// and storing the resolved recipient evidence.
func (r *OccurrenceRepository) MarkParsed(ctx context.Context, tx *sql.Tx, occurrenceID, canonicalMessageID string, recipient *domain.ResolvedRecipient) error {
	var originalRecipient sql.NullString
	if recipient.Recipient != "" {
		originalRecipient = sql.NullString{String: recipient.Recipient, Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE message_occurrences SET
			state = 'parsed',
			canonical_message_id = $2,
			original_recipient = $3,
			recipient_source = $4,
			recipient_confidence = $5,
			recipient_evidence = $6,
			parse_error = NULL,
			parsed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`, occurrenceID, canonicalMessageID, originalRecipient,
		recipient.Source, recipient.Confidence, recipient.Evidence)
	if err != nil {
		return fmt.Errorf("failed to mark occurrence parsed: %w", err)
	}
	return requireRowUpdated(result, "occurrence", occurrenceID)
}

// MarkStitched advances the occurrence to stitched with its ticket link
func (r *OccurrenceRepository) MarkStitched(ctx context.Context, tx *sql.Tx, occurrenceID, ticketID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE message_occurrences SET
			state = 'stitched',
			ticket_id = $2,
			stitch_error = NULL,
			stitched_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`, occurrenceID, ticketID)
	if err != nil {
		return fmt.Errorf("failed to mark occurrence stitched: %w", err)
	}
	return requireRowUpdated(result, "occurrence", occurrenceID)
}

// MarkRouted advances the occurrence to routed, the terminal pipeline state
func (r *OccurrenceRepository) MarkRouted(ctx context.Context, tx *sql.Tx, occurrenceID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE message_occurrences SET
			state = 'routed',
			route_error = NULL,
			routed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`, occurrenceID)
	if err != nil {
		return fmt.Errorf("failed to mark occurrence routed: %w", err)
	}
	return requireRowUpdated(result, "occurrence", occurrenceID)
}

// ClearTicketLink detaches a dropped ticket while still advancing the
// occurrence to routed.
func (r *OccurrenceRepository) ClearTicketLink(ctx context.Context, tx *sql.Tx, occurrenceID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE message_occurrences SET
			state = 'routed',
			ticket_id = NULL,
			route_error = NULL,
			routed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`, occurrenceID)
	if err != nil {
		return fmt.Errorf("failed to clear occurrence ticket link: %w", err)
	}
	return requireRowUpdated(result, "occurrence", occurrenceID)
}

// MarkFailed moves the occurrence to the failed state, recording the stage
// error in its per-stage column.
func (r *OccurrenceRepository) MarkFailed(ctx context.Context, occurrenceID string, stage domain.OccurrenceState, stageError string) error {
	column, err := stageErrorColumn(stage)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE message_occurrences SET
			state = 'failed',
			%s = $2,
			updated_at = NOW()
		WHERE id = $1
	`, column), occurrenceID, stageError)
	if err != nil {
		return fmt.Errorf("failed to mark occurrence failed: %w", err)
	}
	return requireRowUpdated(result, "occurrence", occurrenceID)
}

// RecordStageError stores a transient stage error without changing state, so
// the retrying job keeps its place in the pipeline.
func (r *OccurrenceRepository) RecordStageError(ctx context.Context, occurrenceID string, stage domain.OccurrenceState, stageError string) error {
	column, err := stageErrorColumn(stage)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE message_occurrences SET
			%s = $2,
			updated_at = NOW()
		WHERE id = $1
	`, column), occurrenceID, stageError)
	if err != nil {
		return fmt.Errorf("failed to record stage error: %w", err)
	}
	return requireRowUpdated(result, "occurrence", occurrenceID)
}

// MarkProviderDeleted timestamps the provider-side deletion; the raw copy and
// canonical message stay untouched.
func (r *OccurrenceRepository) MarkProviderDeleted(ctx context.Context, tx *sql.Tx, organizationID, mailboxID, providerMessageID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE message_occurrences SET
			provider_deleted_at = NOW(),
			updated_at = NOW()
		WHERE organization_id = $1 AND mailbox_id = $2 AND provider_message_id = $3
			AND provider_deleted_at IS NULL
	`, organizationID, mailboxID, providerMessageID)
	if err != nil {
		return fmt.Errorf("failed to mark occurrence provider-deleted: %w", err)
	}
	// A deletion for a message never discovered is not an error.
	return nil
}

// HasRoutedSibling reports whether another occurrence of the same ticket has
// already reached the routed state.
func (r *OccurrenceRepository) HasRoutedSibling(ctx context.Context, tx *sql.Tx, organizationID, ticketID, excludeOccurrenceID string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM message_occurrences
			WHERE organization_id = $1 AND ticket_id = $2
				AND state = 'routed' AND id <> $3
		)
	`, organizationID, ticketID, excludeOccurrenceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check routed siblings: %w", err)
	}
	return exists, nil
}

// CountByMailbox returns occurrence counts per pipeline state for a mailbox
func (r *OccurrenceRepository) CountByMailbox(ctx context.Context, organizationID, mailboxID string) (map[domain.OccurrenceState]int64, error) {
	query, args, err := psql.
		Select("state", "COUNT(*)").
		From("message_occurrences").
		Where(sq.Eq{"organization_id": organizationID, "mailbox_id": mailboxID}).
		GroupBy("state").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count occurrences: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OccurrenceState]int64)
	for rows.Next() {
		var state domain.OccurrenceState
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan occurrence count: %w", err)
		}
		counts[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}

func stageErrorColumn(stage domain.OccurrenceState) (string, error) {
	switch stage {
	case domain.OccurrenceStateFetched:
		return "fetch_error", nil
	case domain.OccurrenceStateParsed:
		return "parse_error", nil
	case domain.OccurrenceStateStitched:
		return "stitch_error", nil
	case domain.OccurrenceStateRouted:
		return "route_error", nil
	}
	return "", fmt.Errorf("state %s has no error column", stage)
}

func scanOccurrence(row rowScanner) (*domain.MessageOccurrence, error) {
	var o domain.MessageOccurrence
	var historyID sql.NullString
	err := row.Scan(
		&o.ID,
		&o.OrganizationID,
		&o.MailboxID,
		&o.ProviderMessageID,
		&o.ProviderThreadID,
		&historyID,
		&o.InternalDate,
		&o.LabelIDs,
		&o.Direction,
		&o.State,
		&o.RawBlobID,
		&o.RawContentHash,
		&o.CanonicalMessageID,
		&o.TicketID,
		&o.OriginalRecipient,
		&o.RecipientSource,
		&o.RecipientConfidence,
		&o.Evidence,
		&o.FetchError,
		&o.ParseError,
		&o.StitchError,
		&o.RouteError,
		&o.FetchedAt,
		&o.ParsedAt,
		&o.StitchedAt,
		&o.RoutedAt,
		&o.ProviderDeletedAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if historyID.Valid {
		parsed, err := strconv.ParseUint(historyID.String, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid provider history id %q: %w", historyID.String, err)
		}
		o.ProviderHistoryID = &parsed
	}
	return &o, nil
}
