package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// psql is a Squirrel StatementBuilder configured for PostgreSQL
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// JobRepository implements domain.JobRepository on Postgres. Claiming uses
// FOR UPDATE SKIP LOCKED so any number of workers can poll the same table.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new JobRepository
func NewJobRepository(db *sql.DB) domain.JobRepository {
	return &JobRepository{db: db}
}

// Enqueue inserts a job row. With an idempotency key, a concurrent or prior
// still-pending job with the same (organization, type, key) wins: the insert
// hits the partial unique index, does nothing, and the existing id is
// returned.
func (r *JobRepository) Enqueue(ctx context.Context, jobType domain.JobType, organizationID string, payload interface{}, opts domain.EnqueueOptions) (string, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	runAt := opts.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	var idempotencyKey *string
	if opts.IdempotencyKey != "" {
		idempotencyKey = &opts.IdempotencyKey
	}
	var mailboxID *string
	if opts.MailboxID != "" {
		mailboxID = &opts.MailboxID
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	query := `
		INSERT INTO jobs (id, organization_id, mailbox_id, type, payload, status,
			attempts, max_attempts, run_at, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'queued', 0, $6, $7, $8, $9, $9)
		ON CONFLICT (organization_id, type, idempotency_key)
			WHERE status IN ('queued', 'running') AND idempotency_key IS NOT NULL
			DO NOTHING
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		id, organizationID, mailboxID, jobType, payloadJSON,
		maxAttempts, runAt, idempotencyKey, now,
	).Scan(&id)
	if err == sql.ErrNoRows {
		// The insert was suppressed; hand back the live duplicate.
		var existingID string
		err = r.db.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE organization_id = $1 AND type = $2 AND idempotency_key = $3
				AND status IN ('queued', 'running')
		`, organizationID, jobType, opts.IdempotencyKey).Scan(&existingID)
		if err != nil {
			return "", fmt.Errorf("failed to resolve deduplicated job: %w", err)
		}
		return existingID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	return id, nil
}

// Lease claims the oldest runnable job of the given types
func (r *JobRepository) Lease(ctx context.Context, types []domain.JobType, workerID string, visibility time.Duration) (*domain.Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	query := `
		WITH next_job AS (
			SELECT id FROM jobs
			WHERE status = 'queued' AND type = ANY($1) AND run_at <= NOW()
			ORDER BY run_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs SET
			status = 'running',
			attempts = attempts + 1,
			lock_owner = $2,
			lock_expires_at = NOW() + $3 * INTERVAL '1 second',
			updated_at = NOW()
		WHERE id IN (SELECT id FROM next_job)
		RETURNING id, organization_id, mailbox_id, type, payload, status, attempts,
			max_attempts, run_at, idempotency_key, lock_owner, lock_expires_at,
			last_error, created_at, updated_at
	`

	row := r.db.QueryRowContext(ctx, query, pq.Array(typeNames), workerID, int64(visibility.Seconds()))
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}
	return job, nil
}

// Complete marks a running job done and releases its lock
func (r *JobRepository) Complete(ctx context.Context, jobID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = 'done',
			lock_owner = NULL,
			lock_expires_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`, jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return requireRowUpdated(result, "job", jobID)
}

// Fail increments nothing (attempts were counted at lease time) and either
// requeues the job with backoff or marks it dead.
func (r *JobRepository) Fail(ctx context.Context, jobID string, jobError string, permanent bool) error {
	if permanent {
		result, err := r.db.ExecContext(ctx, `
			UPDATE jobs SET
				status = 'dead',
				last_error = $2,
				lock_owner = NULL,
				lock_expires_at = NULL,
				updated_at = NOW()
			WHERE id = $1 AND status = 'running'
		`, jobID, jobError)
		if err != nil {
			return fmt.Errorf("failed to mark job dead: %w", err)
		}
		return requireRowUpdated(result, "job", jobID)
	}

	var attempts int
	err := r.db.QueryRowContext(ctx, `SELECT attempts FROM jobs WHERE id = $1`, jobID).Scan(&attempts)
	if err == sql.ErrNoRows {
		return &domain.ErrNotFound{Entity: "job", ID: jobID}
	}
	if err != nil {
		return fmt.Errorf("failed to read job attempts: %w", err)
	}

	delay := domain.NextRetryDelay(attempts)

	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = CASE WHEN attempts >= max_attempts THEN 'dead' ELSE 'queued' END,
			run_at = CASE WHEN attempts >= max_attempts THEN run_at ELSE NOW() + $3 * INTERVAL '1 second' END,
			last_error = $2,
			lock_owner = NULL,
			lock_expires_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`, jobID, jobError, int64(delay.Seconds()))
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return requireRowUpdated(result, "job", jobID)
}

// Abandon marks a job failed with no retry path. Only the mailbox circuit
// breaker uses this status.
func (r *JobRepository) Abandon(ctx context.Context, jobID string, jobError string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = 'failed',
			last_error = $2,
			lock_owner = NULL,
			lock_expires_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('running', 'queued')
	`, jobID, jobError)
	if err != nil {
		return fmt.Errorf("failed to abandon job: %w", err)
	}
	return requireRowUpdated(result, "job", jobID)
}

// ReapExpired requeues running jobs whose lock has expired. An expired lease
// counts as a failed attempt, so the requeue carries the same full-jitter
// backoff Fail applies instead of making the job immediately leasable again.
func (r *JobRepository) ReapExpired(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = CASE WHEN attempts >= max_attempts THEN 'dead' ELSE 'queued' END,
			run_at = CASE WHEN attempts >= max_attempts THEN run_at
				ELSE NOW() + (random() * LEAST($1, $2 * POWER(2, GREATEST(attempts - 1, 0)))) * INTERVAL '1 second' END,
			last_error = 'lease expired',
			lock_owner = NULL,
			lock_expires_at = NULL,
			updated_at = NOW()
		WHERE status = 'running' AND lock_expires_at < NOW()
	`, int64(domain.BackoffCap.Seconds()), int64(domain.BackoffBase.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reaped jobs: %w", err)
	}
	return int(affected), nil
}

// Replay resets a dead job for another full set of attempts
func (r *JobRepository) Replay(ctx context.Context, organizationID, jobID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = 'queued',
			attempts = 0,
			run_at = NOW(),
			last_error = NULL,
			lock_owner = NULL,
			lock_expires_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND status = 'dead'
	`, jobID, organizationID)
	if err != nil {
		return fmt.Errorf("failed to replay job: %w", err)
	}
	return requireRowUpdated(result, "job", jobID)
}

// GetByID retrieves a job scoped to an organization
func (r *JobRepository) GetByID(ctx context.Context, organizationID, jobID string) (*domain.Job, error) {
	query, args, err := psql.
		Select(jobColumns...).
		From("jobs").
		Where(sq.Eq{"id": jobID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	job, err := scanJob(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "job", ID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListDead retrieves dead jobs, most recent first
func (r *JobRepository) ListDead(ctx context.Context, organizationID string, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query, args, err := psql.
		Select(jobColumns...).
		From("jobs").
		Where(sq.Eq{"organization_id": organizationID, "status": domain.JobStatusDead}).
		OrderBy("updated_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return jobs, nil
}

// CountFailedSince counts breaker-abandoned jobs since a point in time
func (r *JobRepository) CountFailedSince(ctx context.Context, organizationID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE organization_id = $1 AND status = 'failed' AND updated_at >= $2
	`, organizationID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed jobs: %w", err)
	}
	return count, nil
}

// CountDead counts replayable dead-letter jobs
func (r *JobRepository) CountDead(ctx context.Context, organizationID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE organization_id = $1 AND status = 'dead'
	`, organizationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dead jobs: %w", err)
	}
	return count, nil
}

// GetStats returns queued/running counts by type
func (r *JobRepository) GetStats(ctx context.Context, organizationID string) (*domain.JobStats, error) {
	return r.stats(ctx, sq.Eq{"organization_id": organizationID})
}

// GetMailboxStats returns queued/running counts by type for one mailbox
func (r *JobRepository) GetMailboxStats(ctx context.Context, organizationID, mailboxID string) (*domain.JobStats, error) {
	return r.stats(ctx, sq.Eq{"organization_id": organizationID, "mailbox_id": mailboxID})
}

func (r *JobRepository) stats(ctx context.Context, where sq.Eq) (*domain.JobStats, error) {
	query, args, err := psql.
		Select("type", "status", "COUNT(*)").
		From("jobs").
		Where(where).
		Where(sq.Eq{"status": []string{string(domain.JobStatusQueued), string(domain.JobStatusRunning)}}).
		GroupBy("type", "status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.JobStats{
		Queued:  make(map[domain.JobType]int64),
		Running: make(map[domain.JobType]int64),
	}
	for rows.Next() {
		var jobType domain.JobType
		var status domain.JobStatus
		var count int64
		if err := rows.Scan(&jobType, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job stats: %w", err)
		}
		switch status {
		case domain.JobStatusQueued:
			stats.Queued[jobType] = count
		case domain.JobStatusRunning:
			stats.Running[jobType] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return stats, nil
}

var jobColumns = []string{
	"id", "organization_id", "mailbox_id", "type", "payload", "status",
	"attempts", "max_attempts", "run_at", "idempotency_key", "lock_owner",
	"lock_expires_at", "last_error", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	err := row.Scan(
		&job.ID,
		&job.OrganizationID,
		&job.MailboxID,
		&job.Type,
		&job.Payload,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.RunAt,
		&job.IdempotencyKey,
		&job.LockOwner,
		&job.LockExpiresAt,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// requireRowUpdated converts a zero-row UPDATE into ErrNotFound.
func requireRowUpdated(result sql.Result, entity, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.ErrNotFound{Entity: entity, ID: id}
	}
	return nil
}
