package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// CanonicalRepository implements domain.CanonicalRepository
type CanonicalRepository struct {
	db *sql.DB
}

// NewCanonicalRepository creates a new CanonicalRepository
func NewCanonicalRepository(db *sql.DB) domain.CanonicalRepository {
	return &CanonicalRepository{db: db}
}

var canonicalColumns = []string{
	"id", "organization_id", "fingerprint_v1", "body_hash", "collision_group_id",
	"subject", "subject_norm", "from_email", "from_name",
	"to_list", "cc_list", "reply_to_list", "date_header", "snippet", "headers",
	"body_text", "body_html", "rfc_message_id", "in_reply_to", "references_ids",
	"direction", "parser_version", "sanitizer_revision",
	"x_oss_ticket_id", "x_oss_message_id",
	"ticket_id", "stitch_reason", "stitch_confidence", "stitched_at",
	"created_at", "updated_at",
}

// GetByID retrieves a canonical message scoped to an organization
func (r *CanonicalRepository) GetByID(ctx context.Context, organizationID, messageID string) (*domain.CanonicalMessage, error) {
	query, args, err := psql.
		Select(canonicalColumns...).
		From("canonical_messages").
		Where(sq.Eq{"id": messageID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	message, err := scanCanonicalMessage(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "canonical message", ID: messageID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canonical message: %w", err)
	}
	return message, nil
}

// GetByOSSMessageID finds the canonical row an outbound marker points at,
// or nil when the marker is unknown.
func (r *CanonicalRepository) GetByOSSMessageID(ctx context.Context, tx *sql.Tx, organizationID, ossMessageID string) (*domain.CanonicalMessage, error) {
	query, args, err := psql.
		Select(canonicalColumns...).
		From("canonical_messages").
		Where(sq.Eq{"organization_id": organizationID, "x_oss_message_id": ossMessageID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	message, err := scanCanonicalMessage(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canonical message by marker: %w", err)
	}
	return message, nil
}

// GetByFingerprint retrieves the canonical row with the exact dedupe identity,
// or nil when none exists yet.
func (r *CanonicalRepository) GetByFingerprint(ctx context.Context, tx *sql.Tx, organizationID, fingerprint, bodyHash string) (*domain.CanonicalMessage, error) {
	query, args, err := psql.
		Select(canonicalColumns...).
		From("canonical_messages").
		Where(sq.Eq{
			"organization_id": organizationID,
			"fingerprint_v1":  fingerprint,
			"body_hash":       bodyHash,
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	message, err := scanCanonicalMessage(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canonical message by fingerprint: %w", err)
	}
	return message, nil
}

// ListByFingerprint retrieves every canonical row sharing a fingerprint
func (r *CanonicalRepository) ListByFingerprint(ctx context.Context, tx *sql.Tx, organizationID, fingerprint string) ([]*domain.CanonicalMessage, error) {
	query, args, err := psql.
		Select(canonicalColumns...).
		From("canonical_messages").
		Where(sq.Eq{"organization_id": organizationID, "fingerprint_v1": fingerprint}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list canonical messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.CanonicalMessage
	for rows.Next() {
		message, err := scanCanonicalMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return messages, nil
}

// Insert writes a new canonical row. A unique violation on the dedupe identity
// surfaces as ErrDuplicateCanonical so racing parsers can re-read.
func (r *CanonicalRepository) Insert(ctx context.Context, tx *sql.Tx, message *domain.CanonicalMessage) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Direction == "" {
		message.Direction = domain.DirectionInbound
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO canonical_messages (
			id, organization_id, fingerprint_v1, body_hash, collision_group_id,
			subject, subject_norm, from_email, from_name,
			to_list, cc_list, reply_to_list, date_header, snippet, headers,
			body_text, body_html, rfc_message_id, in_reply_to, references_ids,
			direction, parser_version, sanitizer_revision,
			x_oss_ticket_id, x_oss_message_id,
			ticket_id, stitch_reason, stitch_confidence, stitched_at,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29,
			NOW(), NOW())
	`,
		message.ID, message.OrganizationID, message.FingerprintV1, message.BodyHash, message.CollisionGroupID,
		message.Subject, message.SubjectNormalized, message.FromEmail, message.FromName,
		message.To, message.Cc, message.ReplyTo, message.DateHeader, message.Snippet, message.Headers,
		message.BodyText, message.BodyHTMLSanitized, message.RFCMessageID, message.InReplyTo, pq.Array(message.References),
		message.Direction, message.ParserVersion, message.SanitizerRevision,
		message.XOSSTicketID, message.XOSSMessageID,
		message.TicketID, nullableEnum(string(message.StitchReason)), nullableEnum(string(message.StitchConfidence)), message.StitchedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return &domain.ErrDuplicateCanonical{Fingerprint: message.FingerprintV1}
		}
		return fmt.Errorf("failed to insert canonical message: %w", err)
	}
	return nil
}

// UpdateParsedContent refreshes the parsed fields of an existing canonical row,
// used when a newer parser version reprocesses a message.
func (r *CanonicalRepository) UpdateParsedContent(ctx context.Context, tx *sql.Tx, message *domain.CanonicalMessage) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE canonical_messages SET
			subject = $3,
			subject_norm = $4,
			from_email = $5,
			from_name = $6,
			to_list = $7,
			cc_list = $8,
			reply_to_list = $9,
			date_header = $10,
			snippet = $11,
			headers = $12,
			body_text = $13,
			body_html = $14,
			rfc_message_id = $15,
			in_reply_to = $16,
			references_ids = $17,
			parser_version = $18,
			sanitizer_revision = $19,
			x_oss_ticket_id = $20,
			x_oss_message_id = $21,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`,
		message.ID, message.OrganizationID,
		message.Subject, message.SubjectNormalized, message.FromEmail, message.FromName,
		message.To, message.Cc, message.ReplyTo, message.DateHeader, message.Snippet, message.Headers,
		message.BodyText, message.BodyHTMLSanitized, message.RFCMessageID, message.InReplyTo, pq.Array(message.References),
		message.ParserVersion, message.SanitizerRevision,
		message.XOSSTicketID, message.XOSSMessageID,
	)
	if err != nil {
		return fmt.Errorf("failed to update canonical message: %w", err)
	}
	return requireRowUpdated(result, "canonical message", message.ID)
}

// EnsureCollisionGroup stamps a shared collision group onto every canonical
// row with the fingerprint, creating the group when absent. Returns the id.
func (r *CanonicalRepository) EnsureCollisionGroup(ctx context.Context, tx *sql.Tx, organizationID, fingerprint string) (string, error) {
	var groupID string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO collision_groups (id, organization_id, fingerprint_v1, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (organization_id, fingerprint_v1) DO UPDATE SET fingerprint_v1 = EXCLUDED.fingerprint_v1
		RETURNING id
	`, uuid.New().String(), organizationID, fingerprint).Scan(&groupID)
	if err != nil {
		return "", fmt.Errorf("failed to ensure collision group: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE canonical_messages SET
			collision_group_id = $1,
			updated_at = NOW()
		WHERE organization_id = $2 AND fingerprint_v1 = $3 AND collision_group_id IS DISTINCT FROM $1
	`, groupID, organizationID, fingerprint)
	if err != nil {
		return "", fmt.Errorf("failed to stamp collision group: %w", err)
	}
	return groupID, nil
}

// ListCollisionGroups retrieves collision groups with their member counts
func (r *CanonicalRepository) ListCollisionGroups(ctx context.Context, organizationID string, limit int) ([]*domain.CollisionGroupSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id, g.organization_id, g.fingerprint_v1, g.created_at, COUNT(m.id)
		FROM collision_groups g
		LEFT JOIN canonical_messages m ON m.collision_group_id = g.id
		WHERE g.organization_id = $1
		GROUP BY g.id, g.organization_id, g.fingerprint_v1, g.created_at
		ORDER BY g.created_at DESC
		LIMIT $2
	`, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list collision groups: %w", err)
	}
	defer rows.Close()

	var summaries []*domain.CollisionGroupSummary
	for rows.Next() {
		var summary domain.CollisionGroupSummary
		if err := rows.Scan(
			&summary.Group.ID,
			&summary.Group.OrganizationID,
			&summary.Group.FingerprintV1,
			&summary.Group.CreatedAt,
			&summary.MessageCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan collision group: %w", err)
		}
		summaries = append(summaries, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return summaries, nil
}

// ListCollisionCandidates returns fingerprints with more than one distinct
// body hash whose rows still miss a collision group.
func (r *CanonicalRepository) ListCollisionCandidates(ctx context.Context, organizationID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT fingerprint_v1
		FROM canonical_messages
		WHERE organization_id = $1
		GROUP BY fingerprint_v1
		HAVING COUNT(DISTINCT body_hash) > 1
			AND COUNT(*) FILTER (WHERE collision_group_id IS NULL) > 0
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collision candidates: %w", err)
	}
	defer rows.Close()

	var fingerprints []string
	for rows.Next() {
		var fingerprint string
		if err := rows.Scan(&fingerprint); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fingerprints = append(fingerprints, fingerprint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return fingerprints, nil
}

// RegisterRFCMessageID adds an RFC Message-ID to the threading index. The same
// Message-ID may map to several canonical rows under a collision.
func (r *CanonicalRepository) RegisterRFCMessageID(ctx context.Context, tx *sql.Tx, organizationID, rfcMessageID, canonicalMessageID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO canonical_message_rfc_ids (organization_id, rfc_message_id, canonical_message_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (organization_id, rfc_message_id, canonical_message_id) DO NOTHING
	`, organizationID, rfcMessageID, canonicalMessageID)
	if err != nil {
		return fmt.Errorf("failed to register rfc message id: %w", err)
	}
	return nil
}

// ResolveRFCMessageID maps an RFC Message-ID to a canonical message id through
// the index, or "" when unknown. Under a collision the oldest mapping wins.
func (r *CanonicalRepository) ResolveRFCMessageID(ctx context.Context, tx *sql.Tx, organizationID, rfcMessageID string) (string, error) {
	var canonicalID string
	err := tx.QueryRowContext(ctx, `
		SELECT canonical_message_id
		FROM canonical_message_rfc_ids
		WHERE organization_id = $1 AND rfc_message_id = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, organizationID, rfcMessageID).Scan(&canonicalID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve rfc message id: %w", err)
	}
	return canonicalID, nil
}

// InsertAttachment records a decoded attachment, skipping content-hash
// duplicates within the same canonical message.
func (r *CanonicalRepository) InsertAttachment(ctx context.Context, tx *sql.Tx, attachment *domain.Attachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.New().String()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO attachments (
			id, organization_id, canonical_message_id, filename, content_type,
			size_bytes, is_inline, content_id, content_hash, blob_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (canonical_message_id, content_hash) DO NOTHING
	`, attachment.ID, attachment.OrganizationID, attachment.CanonicalMessageID,
		attachment.Filename, attachment.ContentType, attachment.SizeBytes,
		attachment.IsInline, attachment.ContentID, attachment.ContentHash, attachment.BlobID)
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// ListAttachments retrieves the attachments of a canonical message
func (r *CanonicalRepository) ListAttachments(ctx context.Context, organizationID, canonicalMessageID string) ([]*domain.Attachment, error) {
	query, args, err := psql.
		Select("id", "organization_id", "canonical_message_id", "filename",
			"content_type", "size_bytes", "is_inline", "content_id",
			"content_hash", "blob_id", "created_at").
		From("attachments").
		Where(sq.Eq{"organization_id": organizationID, "canonical_message_id": canonicalMessageID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		var blobID sql.NullString
		if err := rows.Scan(
			&a.ID, &a.OrganizationID, &a.CanonicalMessageID, &a.Filename,
			&a.ContentType, &a.SizeBytes, &a.IsInline, &a.ContentID,
			&a.ContentHash, &blobID, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		a.BlobID = blobID.String
		attachments = append(attachments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return attachments, nil
}

// SetTicketLink attaches the canonical message to a ticket with the stitch
// verdict that produced the link.
func (r *CanonicalRepository) SetTicketLink(ctx context.Context, tx *sql.Tx, organizationID, canonicalMessageID, ticketID string, reason domain.StitchReason, confidence domain.RecipientConfidence) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE canonical_messages SET
			ticket_id = $3,
			stitch_reason = $4,
			stitch_confidence = $5,
			stitched_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, canonicalMessageID, organizationID, ticketID, reason, confidence)
	if err != nil {
		return fmt.Errorf("failed to set ticket link: %w", err)
	}
	return requireRowUpdated(result, "canonical message", canonicalMessageID)
}

// ClearTicketLink detaches the canonical message from its ticket
func (r *CanonicalRepository) ClearTicketLink(ctx context.Context, tx *sql.Tx, organizationID, canonicalMessageID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE canonical_messages SET
			ticket_id = NULL,
			stitch_reason = NULL,
			stitch_confidence = NULL,
			stitched_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, canonicalMessageID, organizationID)
	if err != nil {
		return fmt.Errorf("failed to clear ticket link: %w", err)
	}
	return requireRowUpdated(result, "canonical message", canonicalMessageID)
}

// FirstMessageAt derives the earliest date header among the ticket's canonical
// messages, or nil when the ticket has none with a date.
func (r *CanonicalRepository) FirstMessageAt(ctx context.Context, organizationID, ticketID string) (*time.Time, error) {
	var first sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MIN(date_header)
		FROM canonical_messages
		WHERE organization_id = $1 AND ticket_id = $2
	`, organizationID, ticketID).Scan(&first)
	if err != nil {
		return nil, fmt.Errorf("failed to get first message date: %w", err)
	}
	if !first.Valid {
		return nil, nil
	}
	return &first.Time, nil
}

// nullableEnum maps an empty enum string to SQL NULL.
func nullableEnum(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func scanCanonicalMessage(row rowScanner) (*domain.CanonicalMessage, error) {
	var m domain.CanonicalMessage
	var stitchReason, stitchConfidence, sanitizerRevision sql.NullString
	err := row.Scan(
		&m.ID,
		&m.OrganizationID,
		&m.FingerprintV1,
		&m.BodyHash,
		&m.CollisionGroupID,
		&m.Subject,
		&m.SubjectNormalized,
		&m.FromEmail,
		&m.FromName,
		&m.To,
		&m.Cc,
		&m.ReplyTo,
		&m.DateHeader,
		&m.Snippet,
		&m.Headers,
		&m.BodyText,
		&m.BodyHTMLSanitized,
		&m.RFCMessageID,
		&m.InReplyTo,
		pq.Array(&m.References),
		&m.Direction,
		&m.ParserVersion,
		&sanitizerRevision,
		&m.XOSSTicketID,
		&m.XOSSMessageID,
		&m.TicketID,
		&stitchReason,
		&stitchConfidence,
		&m.StitchedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.SanitizerRevision = sanitizerRevision.String
	m.StitchReason = domain.StitchReason(stitchReason.String)
	m.StitchConfidence = domain.RecipientConfidence(stitchConfidence.String)
	return &m, nil
}
