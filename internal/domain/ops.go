package domain

import "time"

// MailboxSyncSummary is the per-mailbox ops view.
type MailboxSyncSummary struct {
	MailboxID    string         `json:"mailbox_id"`
	EmailAddress string         `json:"email_address"`
	Purpose      MailboxPurpose `json:"purpose"`

	// LagSeconds is negative when the mailbox has never synced.
	LagSeconds float64 `json:"lag_seconds"`

	QueuedByType  map[JobType]int64 `json:"queued_by_type"`
	RunningByType map[JobType]int64 `json:"running_by_type"`

	Paused      bool       `json:"paused"`
	PausedUntil *time.Time `json:"paused_until,omitempty"`
	PauseReason *string    `json:"pause_reason,omitempty"`
	Degraded    bool       `json:"degraded"`

	LastSyncError         *string    `json:"last_sync_error,omitempty"`
	LastFullSyncAt        *time.Time `json:"last_full_sync_at,omitempty"`
	LastIncrementalSyncAt *time.Time `json:"last_incremental_sync_at,omitempty"`

	OccurrencesByState map[OccurrenceState]int64 `json:"occurrences_by_state"`
	FailedJobs24h      int64                     `json:"failed_jobs_24h"`
}

// MetricsOverview is the org-wide ops dashboard shape.
type MetricsOverview struct {
	QueuedJobs     int64   `json:"queued_jobs"`
	RunningJobs    int64   `json:"running_jobs"`
	FailedJobs24h  int64   `json:"failed_jobs_24h"`
	DeadJobs       int64   `json:"dead_jobs"`
	MailboxCount   int     `json:"mailbox_count"`
	PausedCount    int     `json:"paused_count"`
	DegradedCount  int     `json:"degraded_count"`
	AvgLagSeconds  float64 `json:"avg_lag_seconds"`
	MailboxesInLag int     `json:"mailboxes_reporting_lag"`
}
