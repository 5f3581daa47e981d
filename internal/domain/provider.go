package domain

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination mocks/mock_mail_provider.go -package mocks github.com/ossdesk/ossdesk/internal/domain MailProvider

// ErrInvalidCursor is the typed provider error for an expired or unknown
// history cursor. Never retried in place; it deterministically triggers
// backfill recovery.
var ErrInvalidCursor = errors.New("history cursor is invalid or expired")

// ErrProviderAuth marks authentication or scope failures. The mailbox
// transitions to degraded and sync returns early until credentials are
// refreshed.
var ErrProviderAuth = errors.New("provider authentication failed")

// ProviderMessageMeta is the listing-level metadata of one provider message.
type ProviderMessageMeta struct {
	ProviderMessageID string
	ThreadID          string
	HistoryID         uint64
	InternalDate      *time.Time
	LabelIDs          []string
}

// HistoryEventKind classifies a provider delta event.
type HistoryEventKind string

const (
	HistoryEventMessageAdded   HistoryEventKind = "message_added"
	HistoryEventMessageDeleted HistoryEventKind = "message_deleted"
)

// HistoryEvent is one provider delta entry.
type HistoryEvent struct {
	Kind    HistoryEventKind
	Message ProviderMessageMeta
}

// ProviderProfile is the connectivity check result.
type ProviderProfile struct {
	Email  string
	Scopes []string
}

// MailProvider is the consumed provider contract. Every call is retryable
// except HistoryDelta returning ErrInvalidCursor, and any call returning
// ErrProviderAuth.
type MailProvider interface {
	// ListMessages pages the full mailbox for backfill. An empty pageToken
	// starts from the beginning; an empty next token ends pagination.
	ListMessages(ctx context.Context, mailbox *Mailbox, pageToken string) ([]ProviderMessageMeta, string, error)

	// HistoryDelta returns the delta events recorded after cursor together
	// with the new cursor to store.
	HistoryDelta(ctx context.Context, mailbox *Mailbox, cursor string) ([]HistoryEvent, string, error)

	// FetchRaw retrieves the full RFC822 bytes of one message.
	FetchRaw(ctx context.Context, mailbox *Mailbox, providerMessageID string) ([]byte, error)

	Profile(ctx context.Context, mailbox *Mailbox) (*ProviderProfile, error)
}
