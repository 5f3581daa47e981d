// Package pipeline implements the occurrence stage handlers: fetch raw bytes,
// parse and canonicalize, stitch to a ticket, apply routing. Each stage runs
// as its own job type, advances the occurrence inside one transaction, and
// enqueues the next stage only after that transaction commits.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/pkg/blob"
	"github.com/ossdesk/ossdesk/pkg/logger"
)

// Pipeline carries the shared dependencies of the four stage handlers.
type Pipeline struct {
	db       *sql.DB
	blobs    blob.Store
	provider domain.MailProvider

	orgRepo       domain.OrganizationRepository
	mailboxRepo   domain.MailboxRepository
	blobRepo      domain.BlobRepository
	occRepo       domain.OccurrenceRepository
	canonicalRepo domain.CanonicalRepository
	ticketRepo    domain.TicketRepository
	routingRepo   domain.RoutingRepository
	jobRepo       domain.JobRepository

	logger logger.Logger
}

// Config bundles the pipeline dependencies.
type Config struct {
	DB       *sql.DB
	Blobs    blob.Store
	Provider domain.MailProvider

	OrganizationRepo domain.OrganizationRepository
	MailboxRepo      domain.MailboxRepository
	BlobRepo         domain.BlobRepository
	OccurrenceRepo   domain.OccurrenceRepository
	CanonicalRepo    domain.CanonicalRepository
	TicketRepo       domain.TicketRepository
	RoutingRepo      domain.RoutingRepository
	JobRepo          domain.JobRepository

	Logger logger.Logger
}

// New creates the pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		db:            cfg.DB,
		blobs:         cfg.Blobs,
		provider:      cfg.Provider,
		orgRepo:       cfg.OrganizationRepo,
		mailboxRepo:   cfg.MailboxRepo,
		blobRepo:      cfg.BlobRepo,
		occRepo:       cfg.OccurrenceRepo,
		canonicalRepo: cfg.CanonicalRepo,
		ticketRepo:    cfg.TicketRepo,
		routingRepo:   cfg.RoutingRepo,
		jobRepo:       cfg.JobRepo,
		logger:        cfg.Logger,
	}
}

// decodePayload unmarshals and validates the stage payload carried by a job.
func decodePayload(job *domain.Job) (*domain.OccurrencePayload, error) {
	var payload domain.OccurrencePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, domain.NewPermanentError(fmt.Errorf("failed to decode occurrence payload: %w", err))
	}
	if payload.OrganizationID == "" {
		payload.OrganizationID = job.OrganizationID
	}
	if err := payload.Validate(); err != nil {
		return nil, domain.NewPermanentError(err)
	}
	return &payload, nil
}

// enqueueNext schedules the following stage with the standard
// <type>:<occurrence_id> idempotency key.
func (p *Pipeline) enqueueNext(ctx context.Context, jobType domain.JobType, occ *domain.MessageOccurrence, payload *domain.OccurrencePayload, opts domain.EnqueueOptions) error {
	next := domain.OccurrencePayload{
		OrganizationID: payload.OrganizationID,
		OccurrenceID:   payload.OccurrenceID,
		TicketCreated:  payload.TicketCreated,
	}
	opts.IdempotencyKey = fmt.Sprintf("%s:%s", jobType, payload.OccurrenceID)
	if opts.MailboxID == "" {
		opts.MailboxID = occ.MailboxID
	}
	if _, err := p.jobRepo.Enqueue(ctx, jobType, payload.OrganizationID, &next, opts); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", jobType, err)
	}
	return nil
}

// stageFailure records err on the occurrence's per-stage error column before
// the job retries. Recording failures must not mask the stage error.
func (p *Pipeline) stageFailure(ctx context.Context, occurrenceID string, stage domain.OccurrenceState, stageErr error) error {
	if recErr := p.occRepo.RecordStageError(ctx, occurrenceID, stage, stageErr.Error()); recErr != nil {
		p.logger.WithField("occurrence_id", occurrenceID).Error(fmt.Sprintf("Failed to record stage error: %v", recErr))
	}
	return stageErr
}

// terminalFailure moves the occurrence to failed and marks the job error
// permanent (malformed MIME).
func (p *Pipeline) terminalFailure(ctx context.Context, occurrenceID string, stage domain.OccurrenceState, stageErr error) error {
	if markErr := p.occRepo.MarkFailed(ctx, occurrenceID, stage, stageErr.Error()); markErr != nil {
		p.logger.WithField("occurrence_id", occurrenceID).Error(fmt.Sprintf("Failed to mark occurrence failed: %v", markErr))
	}
	return domain.NewPermanentError(stageErr)
}
