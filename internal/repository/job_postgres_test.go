package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/repository/testutil"
)

func jobRows(id, jobType, status string, attempts int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(jobColumns).
		AddRow(id, "org-1", nil, jobType, []byte(`{}`), status,
			attempts, 5, now, nil, nil, nil, nil, now, now)
}

func TestNewJobRepository(t *testing.T) {
	repo := NewJobRepository(nil)
	require.NotNil(t, repo)
}

func TestJobRepository_Enqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts a new job", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectQuery(`INSERT INTO jobs`).
			WithArgs(
				sqlmock.AnyArg(), "org-1", nil, "mailbox_backfill", sqlmock.AnyArg(),
				5, sqlmock.AnyArg(), nil, sqlmock.AnyArg(),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-1"))

		id, err := repo.Enqueue(ctx, domain.JobTypeMailboxBackfill, "org-1",
			domain.MailboxSyncPayload{OrganizationID: "org-1", MailboxID: "mb-1"},
			domain.EnqueueOptions{})
		require.NoError(t, err)
		assert.Equal(t, "job-1", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns the live duplicate on idempotency conflict", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectQuery(`INSERT INTO jobs`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(`SELECT id FROM jobs`).
			WithArgs("org-1", "mailbox_history_sync", "mb-1:history").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-existing"))

		id, err := repo.Enqueue(ctx, domain.JobTypeMailboxHistorySync, "org-1",
			domain.MailboxSyncPayload{OrganizationID: "org-1", MailboxID: "mb-1"},
			domain.EnqueueOptions{IdempotencyKey: "mb-1:history"})
		require.NoError(t, err)
		assert.Equal(t, "job-existing", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns error on insert failure", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectQuery(`INSERT INTO jobs`).
			WillReturnError(errors.New("connection error"))

		_, err := repo.Enqueue(ctx, domain.JobTypeOccurrenceParse, "org-1", nil, domain.EnqueueOptions{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to enqueue job")
	})
}

func TestJobRepository_Lease(t *testing.T) {
	ctx := context.Background()

	t.Run("claims the oldest runnable job", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectQuery(`WITH next_job AS`).
			WithArgs(sqlmock.AnyArg(), "worker-1", int64(120)).
			WillReturnRows(jobRows("job-1", "occurrence_fetch_raw", "running", 1))

		job, err := repo.Lease(ctx, []domain.JobType{domain.JobTypeOccurrenceFetchRaw}, "worker-1", 2*time.Minute)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, "job-1", job.ID)
		assert.Equal(t, domain.JobTypeOccurrenceFetchRaw, job.Type)
		assert.Equal(t, 1, job.Attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil when the queue is empty", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectQuery(`WITH next_job AS`).
			WillReturnRows(sqlmock.NewRows(jobColumns))

		job, err := repo.Lease(ctx, []domain.JobType{domain.JobTypeOccurrenceParse}, "worker-1", time.Minute)
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("returns nil for an empty type list", func(t *testing.T) {
		db, _, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		job, err := repo.Lease(ctx, nil, "worker-1", time.Minute)
		require.NoError(t, err)
		assert.Nil(t, job)
	})
}

func TestJobRepository_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("marks a running job done", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectExec(`UPDATE jobs SET`).
			WithArgs("job-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Complete(ctx, "job-1")
		assert.NoError(t, err)
	})

	t.Run("returns not found when the job is not running", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectExec(`UPDATE jobs SET`).
			WithArgs("job-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Complete(ctx, "job-1")
		var notFound *domain.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestJobRepository_Fail(t *testing.T) {
	ctx := context.Background()

	t.Run("permanent failure goes straight to dead", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectExec(`UPDATE jobs SET`).
			WithArgs("job-1", "bad payload").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Fail(ctx, "job-1", "bad payload", true)
		assert.NoError(t, err)
	})

	t.Run("transient failure requeues with backoff", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectQuery(`SELECT attempts FROM jobs`).
			WithArgs("job-1").
			WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(2))
		mock.ExpectExec(`UPDATE jobs SET`).
			WithArgs("job-1", "provider timeout", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Fail(ctx, "job-1", "provider timeout", false)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for an unknown job", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectQuery(`SELECT attempts FROM jobs`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"attempts"}))

		err := repo.Fail(ctx, "missing", "boom", false)
		var notFound *domain.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestJobRepository_Abandon(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewJobRepository(db)

	mock.ExpectExec(`UPDATE jobs SET`).
		WithArgs("job-1", "mailbox paused").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Abandon(context.Background(), "job-1", "mailbox paused")
	assert.NoError(t, err)
}

func TestJobRepository_ReapExpired(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewJobRepository(db)

	// Requeued leases back off like a failure: cap and base ride along as
	// parameters for the in-SQL jitter.
	mock.ExpectExec(`UPDATE jobs SET`).
		WithArgs(int64(domain.BackoffCap.Seconds()), int64(domain.BackoffBase.Seconds())).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.ReapExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_Replay(t *testing.T) {
	ctx := context.Background()

	t.Run("requeues a dead job", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectExec(`UPDATE jobs SET`).
			WithArgs("job-1", "org-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Replay(ctx, "org-1", "job-1")
		assert.NoError(t, err)
	})

	t.Run("refuses jobs that are not dead", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectExec(`UPDATE jobs SET`).
			WithArgs("job-1", "org-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Replay(ctx, "org-1", "job-1")
		var notFound *domain.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestJobRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("retrieves a job", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectQuery(`SELECT .+ FROM jobs`).
			WithArgs("job-1", "org-1").
			WillReturnRows(jobRows("job-1", "occurrence_stitch", "queued", 0))

		job, err := repo.GetByID(ctx, "org-1", "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobTypeOccurrenceStitch, job.Type)
	})

	t.Run("returns not found", func(t *testing.T) {
		db, mock, cleanup := testutil.SetupMockDB(t)
		defer cleanup()

		repo := NewJobRepository(db)

		mock.ExpectQuery(`SELECT .+ FROM jobs`).
			WillReturnRows(sqlmock.NewRows(jobColumns))

		_, err := repo.GetByID(ctx, "org-1", "missing")
		var notFound *domain.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestJobRepository_ListDead(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewJobRepository(db)

	rows := jobRows("job-1", "occurrence_parse", "dead", 5)
	now := time.Now().UTC()
	rows.AddRow("job-2", "org-1", nil, "occurrence_fetch_raw", []byte(`{}`), "dead",
		5, 5, now, nil, nil, nil, "exhausted", now, now)

	mock.ExpectQuery(`SELECT .+ FROM jobs`).
		WillReturnRows(rows)

	jobs, err := repo.ListDead(context.Background(), "org-1", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[1].ID)
	require.NotNil(t, jobs[1].LastError)
	assert.Equal(t, "exhausted", *jobs[1].LastError)
}

func TestJobRepository_CountFailedSince(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewJobRepository(db)

	since := time.Now().Add(-time.Hour)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM jobs`).
		WithArgs("org-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountFailedSince(context.Background(), "org-1", since)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestJobRepository_CountDead(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewJobRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM jobs`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountDead(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestJobRepository_GetStats(t *testing.T) {
	db, mock, cleanup := testutil.SetupMockDB(t)
	defer cleanup()

	repo := NewJobRepository(db)

	mock.ExpectQuery(`SELECT type, status, COUNT\(\*\) FROM jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"type", "status", "count"}).
			AddRow("occurrence_parse", "queued", 7).
			AddRow("occurrence_parse", "running", 2).
			AddRow("mailbox_history_sync", "queued", 1))

	stats, err := repo.GetStats(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.Queued[domain.JobTypeOccurrenceParse])
	assert.Equal(t, int64(2), stats.Running[domain.JobTypeOccurrenceParse])
	assert.Equal(t, int64(1), stats.Queued[domain.JobTypeMailboxHistorySync])
}
