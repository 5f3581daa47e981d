package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ossdesk/ossdesk/config"
	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/pkg/logger"
)

// MailboxSyncService drives full backfills and incremental history syncs for
// journal mailboxes, and owns the per-mailbox circuit breaker. Handlers are
// registered on the worker host for the mailbox_backfill and
// mailbox_history_sync job types.
type MailboxSyncService struct {
	db          *sql.DB
	cfg         *config.SyncConfig
	provider    domain.MailProvider
	mailboxRepo domain.MailboxRepository
	occRepo     domain.OccurrenceRepository
	jobRepo     domain.JobRepository
	logger      logger.Logger
}

// NewMailboxSyncService creates the sync controller.
func NewMailboxSyncService(
	db *sql.DB,
	cfg *config.SyncConfig,
	provider domain.MailProvider,
	mailboxRepo domain.MailboxRepository,
	occRepo domain.OccurrenceRepository,
	jobRepo domain.JobRepository,
	log logger.Logger,
) *MailboxSyncService {
	return &MailboxSyncService{
		db:          db,
		cfg:         cfg,
		provider:    provider,
		mailboxRepo: mailboxRepo,
		occRepo:     occRepo,
		jobRepo:     jobRepo,
		logger:      log,
	}
}

// HandleBackfill is the mailbox_backfill job handler.
func (s *MailboxSyncService) HandleBackfill(ctx context.Context, job *domain.Job) error {
	payload, err := decodeSyncPayload(job)
	if err != nil {
		return domain.NewPermanentError(err)
	}

	outcome, err := s.backfill(ctx, payload)
	if err != nil {
		return s.recordFailure(ctx, job, payload, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"mailbox_id": payload.MailboxID,
		"outcome":    string(outcome),
	}).Info("Mailbox backfill finished")
	return nil
}

// HandleHistorySync is the mailbox_history_sync job handler.
func (s *MailboxSyncService) HandleHistorySync(ctx context.Context, job *domain.Job) error {
	payload, err := decodeSyncPayload(job)
	if err != nil {
		return domain.NewPermanentError(err)
	}

	outcome, err := s.historySync(ctx, payload)
	if err != nil {
		return s.recordFailure(ctx, job, payload, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"mailbox_id": payload.MailboxID,
		"outcome":    string(outcome),
	}).Info("Mailbox history sync finished")
	return nil
}

func (s *MailboxSyncService) backfill(ctx context.Context, payload *domain.MailboxSyncPayload) (domain.SyncOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin backfill transaction: %w", err)
	}
	defer tx.Rollback()

	mailbox, outcome, err := s.loadForSync(ctx, tx, payload)
	if err != nil {
		return "", err
	}
	if outcome != "" {
		return outcome, nil
	}

	var (
		seen     int
		created  int
		fetchIDs []string
		highest  uint64
	)
	pageToken := ""
	for {
		metas, next, listErr := s.provider.ListMessages(ctx, mailbox, pageToken)
		if listErr != nil {
			if errors.Is(listErr, domain.ErrProviderAuth) {
				return s.markDegraded(ctx, payload, listErr)
			}
			return "", fmt.Errorf("failed to list messages: %w", listErr)
		}

		for _, meta := range metas {
			occurrenceID, isNew, upsertErr := s.occRepo.Upsert(ctx, tx, occurrenceFromMeta(payload, meta))
			if upsertErr != nil {
				return "", fmt.Errorf("failed to upsert occurrence %s: %w", meta.ProviderMessageID, upsertErr)
			}
			seen++
			if isNew {
				created++
			}
			fetchIDs = append(fetchIDs, occurrenceID)
			if meta.HistoryID > highest {
				highest = meta.HistoryID
			}
		}

		if next == "" {
			break
		}
		pageToken = next
	}

	now := time.Now().UTC()
	update := domain.MailboxSyncUpdate{LastFullSyncAt: &now, ClearSyncError: true}
	if highest > 0 {
		cursor := strconv.FormatUint(highest, 10)
		update.HistoryCursor = &cursor
	}
	if err := s.mailboxRepo.ApplySyncUpdate(ctx, tx, payload.OrganizationID, payload.MailboxID, update); err != nil {
		return "", fmt.Errorf("failed to record backfill completion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit backfill: %w", err)
	}

	s.enqueueFetches(ctx, payload, fetchIDs)
	s.enqueueHistorySync(ctx, payload, "post_backfill", time.Time{}, historySyncKey(payload.MailboxID))
	s.insertSyncEvent(ctx, payload, domain.SyncEventBackfillCompleted, map[string]interface{}{
		"messages":        seen,
		"new_occurrences": created,
	})
	return domain.SyncOutcomeSynced, nil
}

func (s *MailboxSyncService) historySync(ctx context.Context, payload *domain.MailboxSyncPayload) (domain.SyncOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin history sync transaction: %w", err)
	}
	defer tx.Rollback()

	mailbox, outcome, err := s.loadForSync(ctx, tx, payload)
	if err != nil {
		return "", err
	}
	if outcome != "" {
		return outcome, nil
	}

	if mailbox.HistoryCursor == nil || *mailbox.HistoryCursor == "" {
		tx.Rollback()
		return s.enqueueRecovery(ctx, payload, "missing history cursor")
	}

	events, newCursor, err := s.provider.HistoryDelta(ctx, mailbox, *mailbox.HistoryCursor)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, domain.ErrInvalidCursor) {
			return s.enqueueRecovery(ctx, payload, err.Error())
		}
		if errors.Is(err, domain.ErrProviderAuth) {
			return s.markDegraded(ctx, payload, err)
		}
		return "", fmt.Errorf("failed to fetch history delta: %w", err)
	}

	var fetchIDs []string
	for _, event := range events {
		switch event.Kind {
		case domain.HistoryEventMessageAdded:
			occurrenceID, _, upsertErr := s.occRepo.Upsert(ctx, tx, occurrenceFromMeta(payload, event.Message))
			if upsertErr != nil {
				return "", fmt.Errorf("failed to upsert occurrence %s: %w", event.Message.ProviderMessageID, upsertErr)
			}
			fetchIDs = append(fetchIDs, occurrenceID)
		case domain.HistoryEventMessageDeleted:
			if delErr := s.occRepo.MarkProviderDeleted(ctx, tx, payload.OrganizationID, payload.MailboxID, event.Message.ProviderMessageID); delErr != nil {
				return "", fmt.Errorf("failed to record provider deletion of %s: %w", event.Message.ProviderMessageID, delErr)
			}
		}
	}

	now := time.Now().UTC()
	update := domain.MailboxSyncUpdate{
		HistoryCursor:         &newCursor,
		LastIncrementalSyncAt: &now,
		ClearSyncError:        true,
	}
	if err := s.mailboxRepo.ApplySyncUpdate(ctx, tx, payload.OrganizationID, payload.MailboxID, update); err != nil {
		return "", fmt.Errorf("failed to record history sync completion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit history sync: %w", err)
	}

	s.enqueueFetches(ctx, payload, fetchIDs)
	s.insertSyncEvent(ctx, payload, domain.SyncEventHistoryCompleted, map[string]interface{}{
		"events": len(events),
		"cursor": newCursor,
	})

	// Cadence chain: the next run keys on the new cursor because this job
	// still holds the plain key until the host completes it.
	s.enqueueHistorySync(ctx, payload, "cadence", now.Add(s.cfg.HistoryInterval),
		fmt.Sprintf("%s:%s", historySyncKey(payload.MailboxID), newCursor))
	return domain.SyncOutcomeSynced, nil
}

// loadForSync locks the mailbox row and classifies the early-return outcomes.
// An empty outcome means the sync should proceed.
func (s *MailboxSyncService) loadForSync(ctx context.Context, tx *sql.Tx, payload *domain.MailboxSyncPayload) (*domain.Mailbox, domain.SyncOutcome, error) {
	mailbox, err := s.mailboxRepo.GetForSync(ctx, tx, payload.OrganizationID, payload.MailboxID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, "", domain.NewPermanentError(err)
		}
		return nil, "", fmt.Errorf("failed to load mailbox for sync: %w", err)
	}

	switch {
	case !mailbox.Enabled:
		return mailbox, domain.SyncOutcomeDisabled, nil
	case mailbox.IsPaused(time.Now().UTC()):
		return mailbox, domain.SyncOutcomePaused, nil
	case mailbox.Degraded:
		return mailbox, domain.SyncOutcomeDegraded, nil
	}
	return mailbox, "", nil
}

// enqueueRecovery handles an unusable history cursor: the backfill is the
// outcome, not a retry of this job.
func (s *MailboxSyncService) enqueueRecovery(ctx context.Context, payload *domain.MailboxSyncPayload, reason string) (domain.SyncOutcome, error) {
	if _, err := s.mailboxRepo.RecordSyncFailure(ctx, payload.OrganizationID, payload.MailboxID, reason); err != nil {
		return "", fmt.Errorf("failed to record cursor failure: %w", err)
	}

	recovery := domain.MailboxSyncPayload{
		OrganizationID: payload.OrganizationID,
		MailboxID:      payload.MailboxID,
		Reason:         "recovery",
	}
	if _, err := s.jobRepo.Enqueue(ctx, domain.JobTypeMailboxBackfill, payload.OrganizationID, &recovery, domain.EnqueueOptions{
		IdempotencyKey: "recovery",
		MailboxID:      payload.MailboxID,
	}); err != nil {
		return "", fmt.Errorf("failed to enqueue recovery backfill: %w", err)
	}

	s.insertSyncEvent(ctx, payload, domain.SyncEventCursorRecovery, map[string]interface{}{"error": reason})
	s.logger.WithField("mailbox_id", payload.MailboxID).Warn("History cursor unusable, recovery backfill enqueued")
	return domain.SyncOutcomeRecoveryEnqueued, nil
}

func (s *MailboxSyncService) markDegraded(ctx context.Context, payload *domain.MailboxSyncPayload, authErr error) (domain.SyncOutcome, error) {
	if err := s.mailboxRepo.SetDegraded(ctx, payload.OrganizationID, payload.MailboxID, true, authErr.Error()); err != nil {
		return "", fmt.Errorf("failed to mark mailbox degraded: %w", err)
	}
	s.insertSyncEvent(ctx, payload, domain.SyncEventDegraded, map[string]interface{}{"error": authErr.Error()})
	s.logger.WithField("mailbox_id", payload.MailboxID).Error("Mailbox degraded by provider auth error")
	return domain.SyncOutcomeDegraded, nil
}

// recordFailure counts a failed sync run against the circuit breaker. Below
// the threshold the job error propagates for normal backoff; at the threshold
// the mailbox is paused and the job abandoned.
func (s *MailboxSyncService) recordFailure(ctx context.Context, job *domain.Job, payload *domain.MailboxSyncPayload, syncErr error) error {
	failures, err := s.mailboxRepo.RecordSyncFailure(ctx, payload.OrganizationID, payload.MailboxID, syncErr.Error())
	if err != nil {
		s.logger.WithField("mailbox_id", payload.MailboxID).Error(fmt.Sprintf("Failed to record sync failure: %v", err))
		return syncErr
	}
	if failures < s.cfg.BreakerThreshold {
		return syncErr
	}

	until := time.Now().UTC().Add(s.cfg.PauseWindow)
	if err := s.mailboxRepo.Pause(ctx, payload.OrganizationID, payload.MailboxID, until, "auto: repeated sync failures"); err != nil {
		s.logger.WithField("mailbox_id", payload.MailboxID).Error(fmt.Sprintf("Failed to pause mailbox: %v", err))
		return syncErr
	}

	s.insertSyncEvent(ctx, payload, domain.SyncEventBreakerTripped, map[string]interface{}{
		"consecutive_failures": failures,
		"error":                syncErr.Error(),
	})
	s.insertSyncEvent(ctx, payload, domain.SyncEventPaused, map[string]interface{}{
		"until":  until,
		"reason": "auto: repeated sync failures",
	})

	if err := s.jobRepo.Abandon(ctx, job.ID, syncErr.Error()); err != nil {
		s.logger.WithField("job_id", job.ID).Error(fmt.Sprintf("Failed to abandon job after breaker trip: %v", err))
	}
	s.logger.WithFields(map[string]interface{}{
		"mailbox_id":   payload.MailboxID,
		"failures":     failures,
		"paused_until": until,
	}).Warn("Mailbox circuit breaker tripped")
	return fmt.Errorf("mailbox %s breaker tripped after %d failures: %v: %w",
		payload.MailboxID, failures, syncErr, domain.ErrJobAbandoned)
}

// EnqueueBackfill schedules a full backfill for the mailbox.
func (s *MailboxSyncService) EnqueueBackfill(ctx context.Context, organizationID, mailboxID string) (string, error) {
	payload := domain.MailboxSyncPayload{OrganizationID: organizationID, MailboxID: mailboxID, Reason: "manual"}
	if err := payload.Validate(); err != nil {
		return "", err
	}
	return s.jobRepo.Enqueue(ctx, domain.JobTypeMailboxBackfill, organizationID, &payload, domain.EnqueueOptions{
		IdempotencyKey: fmt.Sprintf("%s:%s", domain.JobTypeMailboxBackfill, mailboxID),
		MailboxID:      mailboxID,
	})
}

// EnqueueHistorySync schedules an incremental sync for the mailbox.
func (s *MailboxSyncService) EnqueueHistorySync(ctx context.Context, organizationID, mailboxID string) (string, error) {
	payload := domain.MailboxSyncPayload{OrganizationID: organizationID, MailboxID: mailboxID, Reason: "manual"}
	if err := payload.Validate(); err != nil {
		return "", err
	}
	return s.jobRepo.Enqueue(ctx, domain.JobTypeMailboxHistorySync, organizationID, &payload, domain.EnqueueOptions{
		IdempotencyKey: historySyncKey(mailboxID),
		MailboxID:      mailboxID,
	})
}

// PauseMailbox applies a manual pause window.
func (s *MailboxSyncService) PauseMailbox(ctx context.Context, req *domain.PauseMailboxRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual pause"
	}
	until := time.Now().UTC().Add(time.Duration(req.Minutes) * time.Minute)
	if err := s.mailboxRepo.Pause(ctx, req.OrganizationID, req.MailboxID, until, reason); err != nil {
		return fmt.Errorf("failed to pause mailbox: %w", err)
	}
	payload := &domain.MailboxSyncPayload{OrganizationID: req.OrganizationID, MailboxID: req.MailboxID}
	s.insertSyncEvent(ctx, payload, domain.SyncEventPaused, map[string]interface{}{
		"until":  until,
		"reason": reason,
	})
	return nil
}

// ResumeMailbox clears the pause window, failure counter and degraded flag,
// then schedules exactly one history sync.
func (s *MailboxSyncService) ResumeMailbox(ctx context.Context, organizationID, mailboxID string) error {
	if err := s.mailboxRepo.Resume(ctx, organizationID, mailboxID); err != nil {
		return fmt.Errorf("failed to resume mailbox: %w", err)
	}
	payload := &domain.MailboxSyncPayload{OrganizationID: organizationID, MailboxID: mailboxID}
	s.insertSyncEvent(ctx, payload, domain.SyncEventResumed, nil)
	s.enqueueHistorySync(ctx, payload, "resume", time.Time{}, historySyncKey(mailboxID))
	return nil
}

func (s *MailboxSyncService) enqueueFetches(ctx context.Context, payload *domain.MailboxSyncPayload, occurrenceIDs []string) {
	for _, occurrenceID := range occurrenceIDs {
		fetch := domain.OccurrencePayload{OrganizationID: payload.OrganizationID, OccurrenceID: occurrenceID}
		_, err := s.jobRepo.Enqueue(ctx, domain.JobTypeOccurrenceFetchRaw, payload.OrganizationID, &fetch, domain.EnqueueOptions{
			IdempotencyKey: fmt.Sprintf("%s:%s", domain.JobTypeOccurrenceFetchRaw, occurrenceID),
			MailboxID:      payload.MailboxID,
		})
		if err != nil {
			s.logger.WithField("occurrence_id", occurrenceID).Error(fmt.Sprintf("Failed to enqueue fetch: %v", err))
		}
	}
}

func (s *MailboxSyncService) enqueueHistorySync(ctx context.Context, payload *domain.MailboxSyncPayload, reason string, runAt time.Time, idempotencyKey string) {
	next := domain.MailboxSyncPayload{
		OrganizationID: payload.OrganizationID,
		MailboxID:      payload.MailboxID,
		Reason:         reason,
	}
	_, err := s.jobRepo.Enqueue(ctx, domain.JobTypeMailboxHistorySync, payload.OrganizationID, &next, domain.EnqueueOptions{
		RunAt:          runAt,
		IdempotencyKey: idempotencyKey,
		MailboxID:      payload.MailboxID,
	})
	if err != nil {
		s.logger.WithField("mailbox_id", payload.MailboxID).Error(fmt.Sprintf("Failed to enqueue history sync: %v", err))
	}
}

func (s *MailboxSyncService) insertSyncEvent(ctx context.Context, payload *domain.MailboxSyncPayload, kind domain.SyncEventKind, detail map[string]interface{}) {
	event := &domain.SyncEvent{
		OrganizationID: payload.OrganizationID,
		MailboxID:      payload.MailboxID,
		Kind:           kind,
	}
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err == nil {
			event.Detail = raw
		}
	}
	if err := s.mailboxRepo.InsertSyncEvent(ctx, event); err != nil {
		s.logger.WithFields(map[string]interface{}{
			"mailbox_id": payload.MailboxID,
			"kind":       string(kind),
		}).Error(fmt.Sprintf("Failed to insert sync event: %v", err))
	}
}

func occurrenceFromMeta(payload *domain.MailboxSyncPayload, meta domain.ProviderMessageMeta) domain.OccurrenceUpsert {
	return domain.OccurrenceUpsert{
		OrganizationID:    payload.OrganizationID,
		MailboxID:         payload.MailboxID,
		ProviderMessageID: meta.ProviderMessageID,
		ProviderThreadID:  meta.ThreadID,
		ProviderHistoryID: meta.HistoryID,
		InternalDate:      meta.InternalDate,
		LabelIDs:          meta.LabelIDs,
		Direction:         domain.DirectionInbound,
	}
}

func historySyncKey(mailboxID string) string {
	return fmt.Sprintf("%s:%s", domain.JobTypeMailboxHistorySync, mailboxID)
}

func decodeSyncPayload(job *domain.Job) (*domain.MailboxSyncPayload, error) {
	var payload domain.MailboxSyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode sync payload: %w", err)
	}
	if payload.OrganizationID == "" {
		payload.OrganizationID = job.OrganizationID
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}
