package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/service/ingest"
	"github.com/ossdesk/ossdesk/pkg/blob"
)

// HandleParse is the occurrence_parse job handler: decode the stored RFC822
// bytes, compute the canonical identity, dedupe against existing canonicals
// and record the recipient evidence. Malformed MIME is terminal.
func (p *Pipeline) HandleParse(ctx context.Context, job *domain.Job) error {
	payload, err := decodePayload(job)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin parse transaction: %w", err)
	}
	defer tx.Rollback()

	occ, err := p.occRepo.GetForStage(ctx, tx, payload.OrganizationID, payload.OccurrenceID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.NewPermanentError(err)
		}
		return fmt.Errorf("failed to load occurrence: %w", err)
	}

	switch {
	case occ.State == domain.OccurrenceStateFailed:
		return nil
	case occ.State.AtLeast(domain.OccurrenceStateParsed) && occ.CanonicalMessageID != nil:
		tx.Rollback()
		return p.enqueueNext(ctx, domain.JobTypeOccurrenceStitch, occ, payload, domain.EnqueueOptions{})
	case occ.RawBlobID == nil:
		return domain.NewPermanentError(fmt.Errorf("occurrence %s has no raw blob", occ.ID))
	}

	blobRec, err := p.blobRepo.GetByID(ctx, occ.OrganizationID, *occ.RawBlobID)
	if err != nil {
		return fmt.Errorf("failed to load raw blob record: %w", err)
	}
	raw, err := p.blobs.Get(ctx, blobRec.StorageKey)
	if err != nil {
		return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateParsed,
			fmt.Errorf("failed to read raw message: %w", err))
	}

	parsed, err := ingest.Parse(raw)
	if err != nil {
		return p.terminalFailure(ctx, occ.ID, domain.OccurrenceStateParsed,
			fmt.Errorf("failed to parse message: %w", err))
	}

	org, err := p.orgRepo.GetByID(ctx, occ.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to load organization: %w", err)
	}
	mailbox, err := p.mailboxRepo.GetByID(ctx, occ.OrganizationID, occ.MailboxID)
	if err != nil {
		return fmt.Errorf("failed to load mailbox: %w", err)
	}

	fingerprint := ingest.FingerprintV1(parsed)
	bodyHash := ingest.BodyHash(parsed.BodyText)

	canonical, created, err := p.resolveCanonical(ctx, tx, occ, org, parsed, fingerprint, bodyHash)
	if err != nil {
		return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateParsed, err)
	}

	if parsed.RFCMessageID != "" {
		if err := p.canonicalRepo.RegisterRFCMessageID(ctx, tx, occ.OrganizationID, parsed.RFCMessageID, canonical.ID); err != nil {
			return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateParsed,
				fmt.Errorf("failed to register rfc message id: %w", err))
		}
	}

	if created {
		if err := p.storeAttachments(ctx, tx, canonical, parsed.Attachments); err != nil {
			return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateParsed, err)
		}
	}

	recipient := ingest.ResolveRecipient(parsed, org, mailbox.EmailAddress)
	if err := p.occRepo.MarkParsed(ctx, tx, occ.ID, canonical.ID, &recipient); err != nil {
		return fmt.Errorf("failed to mark occurrence parsed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit parse: %w", err)
	}

	return p.enqueueNext(ctx, domain.JobTypeOccurrenceStitch, occ, payload, domain.EnqueueOptions{})
}

// resolveCanonical walks the dedupe order: outbound marker, exact identity,
// insert (with collision grouping when the fingerprint is shared). Returns
// whether this parse created the canonical row.
func (p *Pipeline) resolveCanonical(ctx context.Context, tx *sql.Tx, occ *domain.MessageOccurrence, org *domain.Organization, parsed *ingest.ParsedEmail, fingerprint, bodyHash string) (*domain.CanonicalMessage, bool, error) {
	if ossMessageID := parsed.Headers.First("x-oss-message-id"); ossMessageID != "" {
		existing, err := p.canonicalRepo.GetByOSSMessageID(ctx, tx, occ.OrganizationID, ossMessageID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up outbound marker: %w", err)
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	existing, err := p.canonicalRepo.GetByFingerprint(ctx, tx, occ.OrganizationID, fingerprint, bodyHash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up canonical identity: %w", err)
	}
	if existing != nil {
		if existing.ParserVersion < ingest.ParserVersion {
			// Same identity under a newer parser: refresh content in place.
			refreshed := p.buildCanonical(occ, org, parsed, fingerprint, bodyHash)
			refreshed.ID = existing.ID
			if err := p.canonicalRepo.UpdateParsedContent(ctx, tx, refreshed); err != nil {
				return nil, false, fmt.Errorf("failed to refresh canonical content: %w", err)
			}
			return refreshed, false, nil
		}
		return existing, false, nil
	}

	message := p.buildCanonical(occ, org, parsed, fingerprint, bodyHash)
	if err := p.canonicalRepo.Insert(ctx, tx, message); err != nil {
		var dup *domain.ErrDuplicateCanonical
		if errors.As(err, &dup) {
			// Lost the insert race; the winner carries our identity.
			winner, readErr := p.canonicalRepo.GetByFingerprint(ctx, tx, occ.OrganizationID, fingerprint, bodyHash)
			if readErr != nil {
				return nil, false, fmt.Errorf("failed to re-read canonical after race: %w", readErr)
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to insert canonical message: %w", err)
	}

	siblings, err := p.canonicalRepo.ListByFingerprint(ctx, tx, occ.OrganizationID, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan fingerprint siblings: %w", err)
	}
	if distinctBodyHashes(siblings) > 1 {
		if _, err := p.canonicalRepo.EnsureCollisionGroup(ctx, tx, occ.OrganizationID, fingerprint); err != nil {
			return nil, false, fmt.Errorf("failed to stamp collision group: %w", err)
		}
	}
	return message, true, nil
}

func (p *Pipeline) buildCanonical(occ *domain.MessageOccurrence, org *domain.Organization, parsed *ingest.ParsedEmail, fingerprint, bodyHash string) *domain.CanonicalMessage {
	direction := domain.DirectionInbound
	switch {
	case parsed.Headers.First("x-oss-message-id") != "",
		parsed.Headers.First("x-oss-ticket-id") != "":
		direction = domain.DirectionOutbound
	case org.OwnsMailDomain(ingest.EmailDomain(parsed.FromEmail)):
		direction = domain.DirectionOutbound
	}

	return &domain.CanonicalMessage{
		ID:             uuid.New().String(),
		OrganizationID: occ.OrganizationID,
		FingerprintV1:  fingerprint,
		BodyHash:       bodyHash,

		Direction:    direction,
		RFCMessageID: optional(parsed.RFCMessageID),
		InReplyTo:    optional(parsed.InReplyTo),
		References:   parsed.References,

		Subject:           optional(parsed.Subject),
		SubjectNormalized: optional(parsed.SubjectNorm),
		FromEmail:         optional(ingest.NormalizeEmail(parsed.FromEmail)),
		FromName:          optional(parsed.FromName),
		To:                parsed.To,
		Cc:                parsed.Cc,
		ReplyTo:           parsed.ReplyTo,
		DateHeader:        parsed.Date,
		Snippet:           optional(parsed.Snippet),
		Headers:           parsed.Headers,

		BodyText:          optional(parsed.BodyText),
		BodyHTMLSanitized: optional(parsed.BodyHTMLSanitized),

		ParserVersion:     ingest.ParserVersion,
		SanitizerRevision: ingest.SanitizerRevision,

		XOSSTicketID:  optional(parsed.Headers.First("x-oss-ticket-id")),
		XOSSMessageID: optional(parsed.Headers.First("x-oss-message-id")),
	}
}

func (p *Pipeline) storeAttachments(ctx context.Context, tx *sql.Tx, canonical *domain.CanonicalMessage, attachments []ingest.ParsedAttachment) error {
	for _, att := range attachments {
		contentHash := ingest.ContentHash(att.Payload)
		storageKey := blob.Key(canonical.OrganizationID, contentHash)
		if err := p.blobs.Put(ctx, storageKey, att.Payload, att.ContentType); err != nil {
			return fmt.Errorf("failed to store attachment %s: %w", att.Filename, err)
		}

		blobID, err := p.blobRepo.Upsert(ctx, tx, &domain.BlobRecord{
			OrganizationID: canonical.OrganizationID,
			Kind:           domain.BlobKindAttachment,
			ContentHash:    contentHash,
			SizeBytes:      int64(len(att.Payload)),
			StorageKey:     storageKey,
			ContentType:    att.ContentType,
		})
		if err != nil {
			return fmt.Errorf("failed to catalog attachment blob: %w", err)
		}

		if err := p.canonicalRepo.InsertAttachment(ctx, tx, &domain.Attachment{
			OrganizationID:     canonical.OrganizationID,
			CanonicalMessageID: canonical.ID,
			ContentHash:        contentHash,
			BlobID:             blobID,
			Filename:           optional(att.Filename),
			ContentType:        optional(att.ContentType),
			SizeBytes:          int64(len(att.Payload)),
			IsInline:           att.IsInline,
			ContentID:          optional(att.ContentID),
		}); err != nil {
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
	}
	return nil
}

func distinctBodyHashes(messages []*domain.CanonicalMessage) int {
	seen := make(map[string]bool, len(messages))
	for _, m := range messages {
		seen[m.BodyHash] = true
	}
	return len(seen)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
