package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossdesk/ossdesk/config"
	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/domain/mocks"
	"github.com/ossdesk/ossdesk/pkg/logger"
)

type syncServiceFixture struct {
	db          *sql.DB
	sqlMock     sqlmock.Sqlmock
	provider    *mocks.MockMailProvider
	mailboxRepo *mocks.MockMailboxRepository
	occRepo     *mocks.MockOccurrenceRepository
	jobRepo     *mocks.MockJobRepository
	service     *MailboxSyncService
}

func newSyncServiceFixture(t *testing.T, ctrl *gomock.Controller) *syncServiceFixture {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &syncServiceFixture{
		db:          db,
		sqlMock:     sqlMock,
		provider:    mocks.NewMockMailProvider(ctrl),
		mailboxRepo: mocks.NewMockMailboxRepository(ctrl),
		occRepo:     mocks.NewMockOccurrenceRepository(ctrl),
		jobRepo:     mocks.NewMockJobRepository(ctrl),
	}
	cfg := &config.SyncConfig{
		HistoryInterval:  5 * time.Minute,
		BreakerThreshold: 5,
		PauseWindow:      30 * time.Minute,
	}
	f.service = NewMailboxSyncService(db, cfg, f.provider, f.mailboxRepo, f.occRepo, f.jobRepo, logger.NewLoggerWithLevel("disabled"))
	return f
}

func syncJob(t *testing.T, jobType domain.JobType, organizationID, mailboxID string) *domain.Job {
	payload, err := json.Marshal(domain.MailboxSyncPayload{OrganizationID: organizationID, MailboxID: mailboxID, Reason: "test"})
	require.NoError(t, err)
	return &domain.Job{
		ID:             "job-1",
		OrganizationID: organizationID,
		Type:           jobType,
		Payload:        payload,
		Attempts:       1,
	}
}

func enabledMailbox(organizationID, mailboxID, cursor string) *domain.Mailbox {
	mb := &domain.Mailbox{
		ID:             mailboxID,
		OrganizationID: organizationID,
		Purpose:        domain.MailboxPurposeJournal,
		EmailAddress:   "journal@acme.test",
		Enabled:        true,
	}
	if cursor != "" {
		mb.HistoryCursor = &cursor
	}
	return mb
}

func TestMailboxSyncService_HandleBackfill(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)
	ctx := context.Background()

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	mailbox := enabledMailbox("org-1", "mb-1", "")
	f.mailboxRepo.EXPECT().GetForSync(gomock.Any(), gomock.Any(), "org-1", "mb-1").Return(mailbox, nil)

	t1 := time.Now().UTC()
	pageOne := []domain.ProviderMessageMeta{
		{ProviderMessageID: "p-1", ThreadID: "t-1", HistoryID: 5, InternalDate: &t1},
		{ProviderMessageID: "p-2", ThreadID: "t-1", HistoryID: 9, InternalDate: &t1},
	}
	pageTwo := []domain.ProviderMessageMeta{
		{ProviderMessageID: "p-3", ThreadID: "t-2", HistoryID: 7, InternalDate: &t1},
	}
	f.provider.EXPECT().ListMessages(gomock.Any(), mailbox, "").Return(pageOne, "token", nil)
	f.provider.EXPECT().ListMessages(gomock.Any(), mailbox, "token").Return(pageTwo, "", nil)

	f.occRepo.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, upsert domain.OccurrenceUpsert) (string, bool, error) {
			assert.Equal(t, "org-1", upsert.OrganizationID)
			assert.Equal(t, domain.DirectionInbound, upsert.Direction)
			return "occ-" + upsert.ProviderMessageID, upsert.ProviderMessageID != "p-3", nil
		}).Times(3)

	f.mailboxRepo.EXPECT().ApplySyncUpdate(gomock.Any(), gomock.Any(), "org-1", "mb-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, _, _ string, update domain.MailboxSyncUpdate) error {
			require.NotNil(t, update.HistoryCursor)
			assert.Equal(t, "9", *update.HistoryCursor)
			assert.NotNil(t, update.LastFullSyncAt)
			assert.True(t, update.ClearSyncError)
			return nil
		})

	var fetchKeys []string
	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeOccurrenceFetchRaw, "org-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.JobType, _ string, _ interface{}, opts domain.EnqueueOptions) (string, error) {
			fetchKeys = append(fetchKeys, opts.IdempotencyKey)
			return "fetch-job", nil
		}).Times(3)
	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeMailboxHistorySync, "org-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.JobType, _ string, payload interface{}, opts domain.EnqueueOptions) (string, error) {
			assert.Equal(t, "mailbox_history_sync:mb-1", opts.IdempotencyKey)
			assert.True(t, opts.RunAt.IsZero())
			next, ok := payload.(*domain.MailboxSyncPayload)
			require.True(t, ok)
			assert.Equal(t, "post_backfill", next.Reason)
			return "history-job", nil
		})
	f.mailboxRepo.EXPECT().InsertSyncEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *domain.SyncEvent) error {
			assert.Equal(t, domain.SyncEventBackfillCompleted, event.Kind)
			return nil
		})

	err := f.service.HandleBackfill(ctx, syncJob(t, domain.JobTypeMailboxBackfill, "org-1", "mb-1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"occurrence_fetch_raw:occ-p-1",
		"occurrence_fetch_raw:occ-p-2",
		"occurrence_fetch_raw:occ-p-3",
	}, fetchKeys)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestMailboxSyncService_HandleBackfill_PausedMailbox(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()

	until := time.Now().UTC().Add(time.Hour)
	mailbox := enabledMailbox("org-1", "mb-1", "")
	mailbox.PausedUntil = &until
	f.mailboxRepo.EXPECT().GetForSync(gomock.Any(), gomock.Any(), "org-1", "mb-1").Return(mailbox, nil)

	err := f.service.HandleBackfill(context.Background(), syncJob(t, domain.JobTypeMailboxBackfill, "org-1", "mb-1"))
	require.NoError(t, err)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestMailboxSyncService_HandleHistorySync_Delta(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	mailbox := enabledMailbox("org-1", "mb-1", "100")
	f.mailboxRepo.EXPECT().GetForSync(gomock.Any(), gomock.Any(), "org-1", "mb-1").Return(mailbox, nil)

	events := []domain.HistoryEvent{
		{Kind: domain.HistoryEventMessageAdded, Message: domain.ProviderMessageMeta{ProviderMessageID: "p-9", HistoryID: 140}},
		{Kind: domain.HistoryEventMessageDeleted, Message: domain.ProviderMessageMeta{ProviderMessageID: "p-4"}},
	}
	f.provider.EXPECT().HistoryDelta(gomock.Any(), mailbox, "100").Return(events, "150", nil)

	f.occRepo.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return("occ-9", true, nil)
	f.occRepo.EXPECT().MarkProviderDeleted(gomock.Any(), gomock.Any(), "org-1", "mb-1", "p-4").Return(nil)

	f.mailboxRepo.EXPECT().ApplySyncUpdate(gomock.Any(), gomock.Any(), "org-1", "mb-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sql.Tx, _, _ string, update domain.MailboxSyncUpdate) error {
			require.NotNil(t, update.HistoryCursor)
			assert.Equal(t, "150", *update.HistoryCursor)
			assert.NotNil(t, update.LastIncrementalSyncAt)
			return nil
		})

	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeOccurrenceFetchRaw, "org-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.JobType, _ string, _ interface{}, opts domain.EnqueueOptions) (string, error) {
			assert.Equal(t, "occurrence_fetch_raw:occ-9", opts.IdempotencyKey)
			return "fetch-job", nil
		})
	f.mailboxRepo.EXPECT().InsertSyncEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *domain.SyncEvent) error {
			assert.Equal(t, domain.SyncEventHistoryCompleted, event.Kind)
			return nil
		})
	// The cadence re-enqueue keys on the new cursor so it never collides
	// with the running job's own idempotency key.
	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeMailboxHistorySync, "org-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.JobType, _ string, _ interface{}, opts domain.EnqueueOptions) (string, error) {
			assert.Equal(t, "mailbox_history_sync:mb-1:150", opts.IdempotencyKey)
			assert.False(t, opts.RunAt.IsZero())
			return "next-job", nil
		})

	err := f.service.HandleHistorySync(context.Background(), syncJob(t, domain.JobTypeMailboxHistorySync, "org-1", "mb-1"))
	require.NoError(t, err)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestMailboxSyncService_HandleHistorySync_InvalidCursor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()

	mailbox := enabledMailbox("org-1", "mb-1", "100")
	f.mailboxRepo.EXPECT().GetForSync(gomock.Any(), gomock.Any(), "org-1", "mb-1").Return(mailbox, nil)
	f.provider.EXPECT().HistoryDelta(gomock.Any(), mailbox, "100").Return(nil, "", domain.ErrInvalidCursor)

	// One failure is recorded but the breaker is not consulted: the job
	// completes with a recovery backfill instead of erroring.
	f.mailboxRepo.EXPECT().RecordSyncFailure(gomock.Any(), "org-1", "mb-1", gomock.Any()).Return(1, nil)
	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeMailboxBackfill, "org-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.JobType, _ string, payload interface{}, opts domain.EnqueueOptions) (string, error) {
			assert.Equal(t, "recovery", opts.IdempotencyKey)
			recovery, ok := payload.(*domain.MailboxSyncPayload)
			require.True(t, ok)
			assert.Equal(t, "recovery", recovery.Reason)
			return "recovery-job", nil
		})
	f.mailboxRepo.EXPECT().InsertSyncEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *domain.SyncEvent) error {
			assert.Equal(t, domain.SyncEventCursorRecovery, event.Kind)
			return nil
		})

	err := f.service.HandleHistorySync(context.Background(), syncJob(t, domain.JobTypeMailboxHistorySync, "org-1", "mb-1"))
	require.NoError(t, err)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestMailboxSyncService_HandleHistorySync_FailureBelowThreshold(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()

	mailbox := enabledMailbox("org-1", "mb-1", "100")
	f.mailboxRepo.EXPECT().GetForSync(gomock.Any(), gomock.Any(), "org-1", "mb-1").Return(mailbox, nil)
	f.provider.EXPECT().HistoryDelta(gomock.Any(), mailbox, "100").Return(nil, "", errors.New("gmail: 503"))
	f.mailboxRepo.EXPECT().RecordSyncFailure(gomock.Any(), "org-1", "mb-1", gomock.Any()).Return(2, nil)

	err := f.service.HandleHistorySync(context.Background(), syncJob(t, domain.JobTypeMailboxHistorySync, "org-1", "mb-1"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrJobAbandoned))
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestMailboxSyncService_HandleHistorySync_BreakerTrips(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()

	mailbox := enabledMailbox("org-1", "mb-1", "100")
	f.mailboxRepo.EXPECT().GetForSync(gomock.Any(), gomock.Any(), "org-1", "mb-1").Return(mailbox, nil)
	f.provider.EXPECT().HistoryDelta(gomock.Any(), mailbox, "100").Return(nil, "", errors.New("gmail: 503"))

	f.mailboxRepo.EXPECT().RecordSyncFailure(gomock.Any(), "org-1", "mb-1", gomock.Any()).Return(5, nil)
	f.mailboxRepo.EXPECT().Pause(gomock.Any(), "org-1", "mb-1", gomock.Any(), "auto: repeated sync failures").Return(nil)

	var eventKinds []domain.SyncEventKind
	f.mailboxRepo.EXPECT().InsertSyncEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *domain.SyncEvent) error {
			eventKinds = append(eventKinds, event.Kind)
			return nil
		}).Times(2)
	f.jobRepo.EXPECT().Abandon(gomock.Any(), "job-1", gomock.Any()).Return(nil)

	err := f.service.HandleHistorySync(context.Background(), syncJob(t, domain.JobTypeMailboxHistorySync, "org-1", "mb-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrJobAbandoned))
	assert.Equal(t, []domain.SyncEventKind{domain.SyncEventBreakerTripped, domain.SyncEventPaused}, eventKinds)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestMailboxSyncService_HandleBackfill_AuthErrorDegrades(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()

	mailbox := enabledMailbox("org-1", "mb-1", "")
	f.mailboxRepo.EXPECT().GetForSync(gomock.Any(), gomock.Any(), "org-1", "mb-1").Return(mailbox, nil)
	f.provider.EXPECT().ListMessages(gomock.Any(), mailbox, "").Return(nil, "", domain.ErrProviderAuth)

	f.mailboxRepo.EXPECT().SetDegraded(gomock.Any(), "org-1", "mb-1", true, gomock.Any()).Return(nil)
	f.mailboxRepo.EXPECT().InsertSyncEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *domain.SyncEvent) error {
			assert.Equal(t, domain.SyncEventDegraded, event.Kind)
			return nil
		})

	err := f.service.HandleBackfill(context.Background(), syncJob(t, domain.JobTypeMailboxBackfill, "org-1", "mb-1"))
	require.NoError(t, err)
	require.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestMailboxSyncService_PauseMailbox(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)

	f.mailboxRepo.EXPECT().Pause(gomock.Any(), "org-1", "mb-1", gomock.Any(), "maintenance").Return(nil)
	f.mailboxRepo.EXPECT().InsertSyncEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *domain.SyncEvent) error {
			assert.Equal(t, domain.SyncEventPaused, event.Kind)
			return nil
		})

	err := f.service.PauseMailbox(context.Background(), &domain.PauseMailboxRequest{
		OrganizationID: "org-1",
		MailboxID:      "mb-1",
		Minutes:        45,
		Reason:         "maintenance",
	})
	require.NoError(t, err)
}

func TestMailboxSyncService_PauseMailbox_Invalid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)

	err := f.service.PauseMailbox(context.Background(), &domain.PauseMailboxRequest{
		OrganizationID: "org-1",
		MailboxID:      "mb-1",
	})
	require.Error(t, err)
}

func TestMailboxSyncService_ResumeMailbox(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)

	f.mailboxRepo.EXPECT().Resume(gomock.Any(), "org-1", "mb-1").Return(nil)
	f.mailboxRepo.EXPECT().InsertSyncEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *domain.SyncEvent) error {
			assert.Equal(t, domain.SyncEventResumed, event.Kind)
			return nil
		})
	// Exactly one follow-up history sync, on the plain per-mailbox key.
	f.jobRepo.EXPECT().Enqueue(gomock.Any(), domain.JobTypeMailboxHistorySync, "org-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.JobType, _ string, _ interface{}, opts domain.EnqueueOptions) (string, error) {
			assert.Equal(t, "mailbox_history_sync:mb-1", opts.IdempotencyKey)
			return "resume-job", nil
		}).Times(1)

	require.NoError(t, f.service.ResumeMailbox(context.Background(), "org-1", "mb-1"))
}

func TestMailboxSyncService_HandleBackfill_BadPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newSyncServiceFixture(t, ctrl)

	job := &domain.Job{ID: "job-1", OrganizationID: "org-1", Type: domain.JobTypeMailboxBackfill, Payload: json.RawMessage(`{"mailbox_id":""}`)}
	err := f.service.HandleBackfill(context.Background(), job)
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}
