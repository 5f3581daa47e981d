package domain

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

//go:generate mockgen -destination mocks/mock_mailbox_repository.go -package mocks github.com/ossdesk/ossdesk/internal/domain MailboxRepository

// MailboxPurpose describes what a mailbox is for within an organization.
type MailboxPurpose string

const (
	// MailboxPurposeJournal is the Workspace journal mailbox every org mail
	// is mirrored into. At most one per organization.
	MailboxPurposeJournal MailboxPurpose = "journal"
	// MailboxPurposeOutbound is the mailbox replies are sent from.
	MailboxPurposeOutbound MailboxPurpose = "outbound"
)

// MailboxProviderKind identifies the mail provider backing a mailbox.
type MailboxProviderKind string

const (
	MailboxProviderGmail MailboxProviderKind = "gmail"
)

// Mailbox is one synced mailbox of an organization.
type Mailbox struct {
	ID             string              `json:"id"`
	OrganizationID string              `json:"organization_id"`
	Purpose        MailboxPurpose      `json:"purpose"`
	ProviderKind   MailboxProviderKind `json:"provider_kind"`
	EmailAddress   string              `json:"email_address"`
	CredentialID   *string             `json:"credential_id,omitempty"`

	Enabled  bool `json:"enabled"`
	Degraded bool `json:"degraded"`

	// Sync state.
	HistoryCursor         *string    `json:"history_cursor,omitempty"`
	LastFullSyncAt        *time.Time `json:"last_full_sync_at,omitempty"`
	LastIncrementalSyncAt *time.Time `json:"last_incremental_sync_at,omitempty"`
	LastSyncError         *string    `json:"last_sync_error,omitempty"`

	// Circuit breaker state.
	ConsecutiveSyncFailures int        `json:"consecutive_sync_failures"`
	PausedUntil             *time.Time `json:"paused_until,omitempty"`
	PauseReason             *string    `json:"pause_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPaused reports whether the pause window covers now.
func (m *Mailbox) IsPaused(now time.Time) bool {
	return m.PausedUntil != nil && m.PausedUntil.After(now)
}

// SyncLag returns the age of the freshest completed sync, or false when the
// mailbox has never synced.
func (m *Mailbox) SyncLag(now time.Time) (time.Duration, bool) {
	if m.LastIncrementalSyncAt != nil {
		return now.Sub(*m.LastIncrementalSyncAt), true
	}
	if m.LastFullSyncAt != nil {
		return now.Sub(*m.LastFullSyncAt), true
	}
	return 0, false
}

// SyncOutcome is the result classification of one sync run. Everything but
// SyncOutcomeSynced is an early return, not an error.
type SyncOutcome string

const (
	SyncOutcomeSynced           SyncOutcome = "synced"
	SyncOutcomePaused           SyncOutcome = "paused"
	SyncOutcomeDegraded         SyncOutcome = "degraded"
	SyncOutcomeDisabled         SyncOutcome = "disabled"
	SyncOutcomeRecoveryEnqueued SyncOutcome = "recovery_enqueued"
)

// SyncEventKind classifies a per-mailbox sync audit entry.
type SyncEventKind string

const (
	SyncEventBackfillCompleted SyncEventKind = "backfill_completed"
	SyncEventHistoryCompleted  SyncEventKind = "history_completed"
	SyncEventCursorRecovery    SyncEventKind = "cursor_recovery"
	SyncEventBreakerTripped    SyncEventKind = "breaker_tripped"
	SyncEventPaused            SyncEventKind = "paused"
	SyncEventResumed           SyncEventKind = "resumed"
	SyncEventDegraded          SyncEventKind = "degraded"
)

// SyncEvent is an append-only audit row recording a sync state change.
type SyncEvent struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	MailboxID      string          `json:"mailbox_id"`
	Kind           SyncEventKind   `json:"kind"`
	Detail         json.RawMessage `json:"detail,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MailboxSyncUpdate carries the fields a completed sync run writes back.
// Nil pointers leave the stored value untouched.
type MailboxSyncUpdate struct {
	HistoryCursor         *string
	LastFullSyncAt        *time.Time
	LastIncrementalSyncAt *time.Time
	// ClearSyncError resets last_sync_error and the failure counter.
	ClearSyncError bool
}

// MailboxRepository defines data access for mailboxes and their sync audit.
type MailboxRepository interface {
	GetByID(ctx context.Context, organizationID, mailboxID string) (*Mailbox, error)
	// GetForSync loads the mailbox with a row lock inside tx so that two
	// workers never run overlapping syncs for the same mailbox.
	GetForSync(ctx context.Context, tx *sql.Tx, organizationID, mailboxID string) (*Mailbox, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]*Mailbox, error)

	ApplySyncUpdate(ctx context.Context, tx *sql.Tx, organizationID, mailboxID string, update MailboxSyncUpdate) error
	// RecordSyncFailure stores the error and increments the consecutive
	// failure counter, returning the new counter value.
	RecordSyncFailure(ctx context.Context, organizationID, mailboxID, syncError string) (int, error)
	SetDegraded(ctx context.Context, organizationID, mailboxID string, degraded bool, syncError string) error

	Pause(ctx context.Context, organizationID, mailboxID string, until time.Time, reason string) error
	// Resume clears the pause window, the failure counter and the degraded
	// flag in one statement.
	Resume(ctx context.Context, organizationID, mailboxID string) error

	InsertSyncEvent(ctx context.Context, event *SyncEvent) error
	ListSyncEvents(ctx context.Context, organizationID, mailboxID string, limit int) ([]*SyncEvent, error)
}

// PauseMailboxRequest is the admin pause payload.
type PauseMailboxRequest struct {
	OrganizationID string `json:"organization_id"`
	MailboxID      string `json:"mailbox_id"`
	Minutes        int    `json:"minutes"`
	Reason         string `json:"reason"`
}

func (r *PauseMailboxRequest) Validate() error {
	if r.OrganizationID == "" {
		return NewValidationError("organization_id is required")
	}
	if r.MailboxID == "" {
		return NewValidationError("mailbox_id is required")
	}
	if r.Minutes <= 0 {
		return NewValidationError(fmt.Sprintf("minutes must be positive, got %d", r.Minutes))
	}
	return nil
}
