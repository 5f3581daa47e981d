package domain

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"
)

//go:generate mockgen -destination mocks/mock_job_repository.go -package mocks github.com/ossdesk/ossdesk/internal/domain JobRepository

// JobType enumerates the work the queue carries.
type JobType string

const (
	JobTypeMailboxBackfill    JobType = "mailbox_backfill"
	JobTypeMailboxHistorySync JobType = "mailbox_history_sync"
	JobTypeOccurrenceFetchRaw JobType = "occurrence_fetch_raw"
	JobTypeOccurrenceParse    JobType = "occurrence_parse"
	JobTypeOccurrenceStitch   JobType = "occurrence_stitch"
	JobTypeTicketApplyRouting JobType = "ticket_apply_routing"
	// JobTypeOutboundSend is enqueued by the core but leased by the external
	// send subsystem; the worker host registers no handler for it.
	JobTypeOutboundSend JobType = "outbound_send"
)

// JobStatus is the queue row lifecycle.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	// JobStatusFailed marks a job abandoned by the mailbox circuit breaker.
	// Not retried, not replayable.
	JobStatusFailed JobStatus = "failed"
	// JobStatusDead marks exhausted or permanent failures. Replayable by an
	// admin only.
	JobStatusDead JobStatus = "dead"
	JobStatusDone JobStatus = "done"
)

// DefaultMaxAttempts applies when enqueue options leave MaxAttempts zero.
const DefaultMaxAttempts = 5

// ErrJobAbandoned is returned by a handler that already moved its job to a
// terminal state (breaker trip); the host must neither complete nor fail it.
var ErrJobAbandoned = errors.New("job abandoned")

// Job is one durable queue row.
type Job struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	MailboxID      *string         `json:"mailbox_id,omitempty"`
	Type           JobType         `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	Status         JobStatus       `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	RunAt          time.Time       `json:"run_at"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	LockOwner      *string         `json:"lock_owner,omitempty"`
	LockExpiresAt  *time.Time      `json:"lock_expires_at,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EnqueueOptions tunes a single enqueue call. The zero value is valid.
type EnqueueOptions struct {
	RunAt          time.Time // zero means now
	MaxAttempts    int       // zero means DefaultMaxAttempts
	IdempotencyKey string
	MailboxID      string
}

// JobStats is a queued/running breakdown by job type.
type JobStats struct {
	Queued  map[JobType]int64 `json:"queued"`
	Running map[JobType]int64 `json:"running"`
}

// JobRepository defines data access for the durable queue.
type JobRepository interface {
	// Enqueue inserts a job. With an idempotency key set, a still-pending
	// job with the same (organization, type, key) short-circuits the insert
	// and its id is returned instead.
	Enqueue(ctx context.Context, jobType JobType, organizationID string, payload interface{}, opts EnqueueOptions) (string, error)

	// Lease claims the oldest runnable job of one of the given types for
	// workerID, locking it for the visibility window. Returns nil when no
	// job is runnable.
	Lease(ctx context.Context, types []JobType, workerID string, visibility time.Duration) (*Job, error)

	Complete(ctx context.Context, jobID string) error
	// Fail increments attempts and either requeues with backoff or marks the
	// job dead when attempts are exhausted or the error is permanent.
	Fail(ctx context.Context, jobID string, jobError string, permanent bool) error
	// Abandon marks a job failed without further retries. Used when the
	// mailbox circuit breaker trips.
	Abandon(ctx context.Context, jobID string, jobError string) error

	// ReapExpired requeues every running job whose lock has expired, as if
	// it had failed with "lease expired". Returns the number of jobs reaped.
	ReapExpired(ctx context.Context) (int, error)

	// Replay resets a dead job for another run. Replay of a non-dead job is
	// an error.
	Replay(ctx context.Context, organizationID, jobID string) error
	GetByID(ctx context.Context, organizationID, jobID string) (*Job, error)
	ListDead(ctx context.Context, organizationID string, limit int) ([]*Job, error)
	CountDead(ctx context.Context, organizationID string) (int64, error)
	CountFailedSince(ctx context.Context, organizationID string, since time.Time) (int64, error)
	GetStats(ctx context.Context, organizationID string) (*JobStats, error)
	GetMailboxStats(ctx context.Context, organizationID, mailboxID string) (*JobStats, error)
}

// Backoff settings: exponential with full jitter.
const (
	BackoffBase = 30 * time.Second
	BackoffCap  = 15 * time.Minute
)

// NextRetryDelay returns the full-jitter backoff delay for the given attempt
// count (1-based): uniform in [0, min(cap, base*2^(attempts-1))].
func NextRetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	ceiling := BackoffCap
	// Guard the shift; base<<40 already exceeds any practical cap.
	if attempts <= 40 {
		if d := BackoffBase << uint(attempts-1); d < ceiling {
			ceiling = d
		}
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// Per-job-type payloads. Payloads are schemaless JSON at rest; each type
// validates its own shape at the boundary.

// MailboxSyncPayload drives mailbox_backfill and mailbox_history_sync.
type MailboxSyncPayload struct {
	OrganizationID string `json:"organization_id"`
	MailboxID      string `json:"mailbox_id"`
	Reason         string `json:"reason,omitempty"`
}

func (p *MailboxSyncPayload) Validate() error {
	if p.OrganizationID == "" {
		return NewValidationError("organization_id is required")
	}
	if p.MailboxID == "" {
		return NewValidationError("mailbox_id is required")
	}
	return nil
}

// OccurrencePayload drives the occurrence pipeline stages.
type OccurrencePayload struct {
	OrganizationID string `json:"organization_id"`
	OccurrenceID   string `json:"occurrence_id"`
	// TicketCreated records the stitch verdict for observability. Routing
	// derives the actual decision from the canonical record, not from this
	// flag, so a retried job cannot carry a stale value into the evaluator.
	TicketCreated bool `json:"ticket_created,omitempty"`
}

func (p *OccurrencePayload) Validate() error {
	if p.OrganizationID == "" {
		return NewValidationError("organization_id is required")
	}
	if p.OccurrenceID == "" {
		return NewValidationError("occurrence_id is required")
	}
	return nil
}

// OutboundSendPayload is consumed by the external send subsystem.
type OutboundSendPayload struct {
	OrganizationID     string `json:"organization_id"`
	TicketID           string `json:"ticket_id"`
	CanonicalMessageID string `json:"canonical_message_id"`
}

func (p *OutboundSendPayload) Validate() error {
	if p.OrganizationID == "" {
		return NewValidationError("organization_id is required")
	}
	if p.TicketID == "" {
		return NewValidationError("ticket_id is required")
	}
	if p.CanonicalMessageID == "" {
		return NewValidationError("canonical_message_id is required")
	}
	return nil
}
