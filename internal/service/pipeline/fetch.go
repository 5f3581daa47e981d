package pipeline

import (
	"context"
	"fmt"

	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/service/ingest"
	"github.com/ossdesk/ossdesk/pkg/blob"
)

const rawMessageContentType = "message/rfc822"

// HandleFetchRaw is the occurrence_fetch_raw job handler: pull the RFC822
// bytes from the provider, store them content-addressed, advance the
// occurrence to fetched.
func (p *Pipeline) HandleFetchRaw(ctx context.Context, job *domain.Job) error {
	payload, err := decodePayload(job)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin fetch transaction: %w", err)
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
	case occ.State.AtLeast(domain.OccurrenceStateFetched) && occ.RawBlobID != nil:
		// Already fetched by a previous run; just make sure parse follows.
		tx.Rollback()
		return p.enqueueNext(ctx, domain.JobTypeOccurrenceParse, occ, payload, domain.EnqueueOptions{MaxAttempts: 1})
	}

	mailbox, err := p.mailboxRepo.GetByID(ctx, occ.OrganizationID, occ.MailboxID)
	if err != nil {
		return fmt.Errorf("failed to load mailbox: %w", err)
	}

	raw, err := p.provider.FetchRaw(ctx, mailbox, occ.ProviderMessageID)
	if err != nil {
		return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateFetched,
			fmt.Errorf("failed to fetch raw message %s: %w", occ.ProviderMessageID, err))
	}

	contentHash := ingest.ContentHash(raw)
	storageKey := blob.Key(occ.OrganizationID, contentHash)
	if err := p.blobs.Put(ctx, storageKey, raw, rawMessageContentType); err != nil {
		return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateFetched,
			fmt.Errorf("failed to store raw message: %w", err))
	}

	blobID, err := p.blobRepo.Upsert(ctx, tx, &domain.BlobRecord{
		OrganizationID: occ.OrganizationID,
		Kind:           domain.BlobKindRawEML,
		ContentHash:    contentHash,
		SizeBytes:      int64(len(raw)),
		StorageKey:     storageKey,
		ContentType:    rawMessageContentType,
	})
	if err != nil {
		return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateFetched,
			fmt.Errorf("failed to catalog raw blob: %w", err))
	}

	if err := p.occRepo.MarkFetched(ctx, tx, occ.ID, blobID, contentHash); err != nil {
		return fmt.Errorf("failed to mark occurrence fetched: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fetch: %w", err)
	}

	// Malformed MIME is terminal, so parse gets a single attempt.
	return p.enqueueNext(ctx, domain.JobTypeOccurrenceParse, occ, payload, domain.EnqueueOptions{MaxAttempts: 1})
}
