package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/pkg/logger"
)

const defaultDeadJobLimit = 100

// OpsService is the admin control surface consumed by the external API
// layer: dead-letter introspection, per-mailbox sync summaries, the org-wide
// metrics overview and collision-group maintenance.
type OpsService struct {
	db            *sql.DB
	jobRepo       domain.JobRepository
	mailboxRepo   domain.MailboxRepository
	occRepo       domain.OccurrenceRepository
	canonicalRepo domain.CanonicalRepository
	logger        logger.Logger
}

// NewOpsService creates the ops service.
func NewOpsService(
	db *sql.DB,
	jobRepo domain.JobRepository,
	mailboxRepo domain.MailboxRepository,
	occRepo domain.OccurrenceRepository,
	canonicalRepo domain.CanonicalRepository,
	log logger.Logger,
) *OpsService {
	return &OpsService{
		db:            db,
		jobRepo:       jobRepo,
		mailboxRepo:   mailboxRepo,
		occRepo:       occRepo,
		canonicalRepo: canonicalRepo,
		logger:        log,
	}
}

// ListDeadJobs returns the dead-letter queue for the organization.
func (s *OpsService) ListDeadJobs(ctx context.Context, organizationID string, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = defaultDeadJobLimit
	}
	return s.jobRepo.ListDead(ctx, organizationID, limit)
}

// ReplayJob resets a dead job for another run.
func (s *OpsService) ReplayJob(ctx context.Context, organizationID, jobID string) error {
	if err := s.jobRepo.Replay(ctx, organizationID, jobID); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"organization_id": organizationID,
		"job_id":          jobID,
	}).Info("Dead job replayed")
	return nil
}

// MailboxSyncSummary assembles the per-mailbox ops view.
func (s *OpsService) MailboxSyncSummary(ctx context.Context, organizationID, mailboxID string) (*domain.MailboxSyncSummary, error) {
	mailbox, err := s.mailboxRepo.GetByID(ctx, organizationID, mailboxID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	summary := &domain.MailboxSyncSummary{
		MailboxID:             mailbox.ID,
		EmailAddress:          mailbox.EmailAddress,
		Purpose:               mailbox.Purpose,
		LagSeconds:            -1,
		Paused:                mailbox.IsPaused(now),
		PausedUntil:           mailbox.PausedUntil,
		PauseReason:           mailbox.PauseReason,
		Degraded:              mailbox.Degraded,
		LastSyncError:         mailbox.LastSyncError,
		LastFullSyncAt:        mailbox.LastFullSyncAt,
		LastIncrementalSyncAt: mailbox.LastIncrementalSyncAt,
	}
	if lag, ok := mailbox.SyncLag(now); ok {
		summary.LagSeconds = lag.Seconds()
	}

	stats, err := s.jobRepo.GetMailboxStats(ctx, organizationID, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mailbox job stats: %w", err)
	}
	summary.QueuedByType = stats.Queued
	summary.RunningByType = stats.Running

	counts, err := s.occRepo.CountByMailbox(ctx, organizationID, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to count occurrences: %w", err)
	}
	summary.OccurrencesByState = counts

	failed, err := s.jobRepo.CountFailedSince(ctx, organizationID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}
	summary.FailedJobs24h = failed

	return summary, nil
}

// MetricsOverview assembles the org-wide dashboard numbers.
func (s *OpsService) MetricsOverview(ctx context.Context, organizationID string) (*domain.MetricsOverview, error) {
	now := time.Now().UTC()
	overview := &domain.MetricsOverview{}

	stats, err := s.jobRepo.GetStats(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job stats: %w", err)
	}
	for _, n := range stats.Queued {
		overview.QueuedJobs += n
	}
	for _, n := range stats.Running {
		overview.RunningJobs += n
	}

	overview.FailedJobs24h, err = s.jobRepo.CountFailedSince(ctx, organizationID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}
	overview.DeadJobs, err = s.jobRepo.CountDead(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to count dead jobs: %w", err)
	}

	mailboxes, err := s.mailboxRepo.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	overview.MailboxCount = len(mailboxes)

	var lagSum float64
	for _, mb := range mailboxes {
		if mb.IsPaused(now) {
			overview.PausedCount++
		}
		if mb.Degraded {
			overview.DegradedCount++
		}
		if lag, ok := mb.SyncLag(now); ok {
			lagSum += lag.Seconds()
			overview.MailboxesInLag++
		}
	}
	if overview.MailboxesInLag > 0 {
		overview.AvgLagSeconds = lagSum / float64(overview.MailboxesInLag)
	}

	return overview, nil
}

// ListCollisionGroups returns collision groups with member counts and
// samples for admin review.
func (s *OpsService) ListCollisionGroups(ctx context.Context, organizationID string, limit int) ([]*domain.CollisionGroupSummary, error) {
	return s.canonicalRepo.ListCollisionGroups(ctx, organizationID, limit)
}

// CollisionBackfill rescans canonicals sharing a fingerprint with differing
// body hashes and stamps the missing collision groups. Returns the number of
// fingerprints grouped.
func (s *OpsService) CollisionBackfill(ctx context.Context, organizationID string) (int, error) {
	fingerprints, err := s.canonicalRepo.ListCollisionCandidates(ctx, organizationID)
	if err != nil {
		return 0, fmt.Errorf("failed to list collision candidates: %w", err)
	}
	if len(fingerprints) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin collision backfill: %w", err)
	}
	defer tx.Rollback()

	for _, fingerprint := range fingerprints {
		if _, err := s.canonicalRepo.EnsureCollisionGroup(ctx, tx, organizationID, fingerprint); err != nil {
			return 0, fmt.Errorf("failed to group fingerprint %s: %w", fingerprint, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit collision backfill: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"organization_id": organizationID,
		"fingerprints":    len(fingerprints),
	}).Info("Collision backfill completed")
	return len(fingerprints), nil
}
