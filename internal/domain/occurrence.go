package domain

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

//go:generate mockgen -destination mocks/mock_occurrence_repository.go -package mocks github.com/ossdesk/ossdesk/internal/domain OccurrenceRepository

// OccurrenceState is the pipeline position of a message occurrence.
type OccurrenceState string

const (
	OccurrenceStateDiscovered OccurrenceState = "discovered"
	OccurrenceStateFetched    OccurrenceState = "fetched"
	OccurrenceStateParsed     OccurrenceState = "parsed"
	OccurrenceStateStitched   OccurrenceState = "stitched"
	OccurrenceStateRouted     OccurrenceState = "routed"
	OccurrenceStateFailed     OccurrenceState = "failed"
)

// AtLeast reports whether s has reached want in the pipeline order. Failed
// occurrences compare below every non-failed state.
func (s OccurrenceState) AtLeast(want OccurrenceState) bool {
	order := map[OccurrenceState]int{
		OccurrenceStateDiscovered: 0,
		OccurrenceStateFetched:    1,
		OccurrenceStateParsed:     2,
		OccurrenceStateStitched:   3,
		OccurrenceStateRouted:     4,
		OccurrenceStateFailed:     -1,
	}
	return order[s] >= order[want]
}

// MessageDirection tells inbound from outbound mirrored mail.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// RecipientSource names where the original-recipient evidence came from.
type RecipientSource string

const (
	RecipientSourceWorkspaceHeader RecipientSource = "workspace_header"
	RecipientSourceDeliveredTo     RecipientSource = "delivered_to"
	RecipientSourceXOriginalTo     RecipientSource = "x_original_to"
	RecipientSourceToCcScan        RecipientSource = "to_cc_scan"
	RecipientSourceUnknown         RecipientSource = "unknown"
)

// RecipientConfidence grades how trustworthy the recipient evidence is.
type RecipientConfidence string

const (
	ConfidenceHigh   RecipientConfidence = "high"
	ConfidenceMedium RecipientConfidence = "medium"
	ConfidenceLow    RecipientConfidence = "low"
)

// RecipientEvidence keeps every candidate recipient seen during resolution,
// stored as JSONB next to the selected value.
type RecipientEvidence struct {
	SelectedFrom          string   `json:"selected_from,omitempty"`
	SelectedValue         string   `json:"selected_value,omitempty"`
	WorkspaceHeaderValues []string `json:"x_gm_original_to_candidates,omitempty"`
	DeliveredToValues     []string `json:"delivered_to_candidates,omitempty"`
	XOriginalToValues     []string `json:"x_original_to_candidates,omitempty"`
	ToValues              []string `json:"to_candidates,omitempty"`
	CcValues              []string `json:"cc_candidates,omitempty"`
}

// Value implements driver.Valuer for RecipientEvidence.
func (e RecipientEvidence) Value() (driver.Value, error) {
	return json.Marshal(e)
}

// Scan implements sql.Scanner for RecipientEvidence.
func (e *RecipientEvidence) Scan(value interface{}) error {
	if value == nil {
		*e = RecipientEvidence{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte, got %T", value)
	}
	return json.Unmarshal(bytes.Clone(b), e)
}

// MessageOccurrence is a single appearance of a message in one mailbox.
// Identity is (mailbox_id, provider_message_id); it is never a logical
// message identity.
type MessageOccurrence struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	MailboxID      string `json:"mailbox_id"`

	ProviderMessageID string           `json:"provider_message_id"`
	ProviderThreadID  *string          `json:"provider_thread_id,omitempty"`
	ProviderHistoryID *uint64          `json:"provider_history_id,omitempty"`
	InternalDate      *time.Time       `json:"internal_date,omitempty"`
	LabelIDs          pq.StringArray   `json:"label_ids,omitempty"`
	Direction         MessageDirection `json:"direction"`

	State              OccurrenceState `json:"state"`
	RawBlobID          *string         `json:"raw_blob_id,omitempty"`
	RawContentHash     *string         `json:"raw_content_hash,omitempty"`
	CanonicalMessageID *string         `json:"canonical_message_id,omitempty"`
	TicketID           *string         `json:"ticket_id,omitempty"`

	OriginalRecipient   *string             `json:"original_recipient,omitempty"`
	RecipientSource     RecipientSource     `json:"recipient_source"`
	RecipientConfidence RecipientConfidence `json:"recipient_confidence"`
	Evidence            RecipientEvidence   `json:"recipient_evidence"`

	FetchError  *string `json:"fetch_error,omitempty"`
	ParseError  *string `json:"parse_error,omitempty"`
	StitchError *string `json:"stitch_error,omitempty"`
	RouteError  *string `json:"route_error,omitempty"`

	FetchedAt         *time.Time `json:"fetched_at,omitempty"`
	ParsedAt          *time.Time `json:"parsed_at,omitempty"`
	StitchedAt        *time.Time `json:"stitched_at,omitempty"`
	RoutedAt          *time.Time `json:"routed_at,omitempty"`
	ProviderDeletedAt *time.Time `json:"provider_deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OccurrenceUpsert carries the provider metadata refreshed on every sync.
type OccurrenceUpsert struct {
	OrganizationID    string
	MailboxID         string
	ProviderMessageID string
	ProviderThreadID  string
	ProviderHistoryID uint64
	InternalDate      *time.Time
	LabelIDs          []string
	Direction         MessageDirection
}

// OccurrenceRepository defines data access for message occurrences.
type OccurrenceRepository interface {
	// Upsert inserts the occurrence in state discovered or refreshes the
	// provider metadata of an existing one. Returns the occurrence id and
	// whether the row was newly created.
	Upsert(ctx context.Context, tx *sql.Tx, upsert OccurrenceUpsert) (string, bool, error)

	GetByID(ctx context.Context, organizationID, occurrenceID string) (*MessageOccurrence, error)
	// GetForStage loads the occurrence with a row lock inside tx so a stage
	// handler can re-check state before mutating.
	GetForStage(ctx context.Context, tx *sql.Tx, organizationID, occurrenceID string) (*MessageOccurrence, error)

	MarkFetched(ctx context.Context, tx *sql.Tx, occurrenceID, rawBlobID, contentHash string) error
	MarkParsed(ctx context.Context, tx *sql.Tx, occurrenceID, canonicalMessageID string, recipient *ResolvedRecipient) error
	MarkStitched(ctx context.Context, tx *sql.Tx, occurrenceID, ticketID string) error
	MarkRouted(ctx context.Context, tx *sql.Tx, occurrenceID string) error
	// ClearTicketLink detaches a dropped ticket from the occurrence while
	// still advancing it to routed.
	ClearTicketLink(ctx context.Context, tx *sql.Tx, occurrenceID string) error
	MarkFailed(ctx context.Context, occurrenceID string, stage OccurrenceState, stageError string) error
	RecordStageError(ctx context.Context, occurrenceID string, stage OccurrenceState, stageError string) error
	MarkProviderDeleted(ctx context.Context, tx *sql.Tx, organizationID, mailboxID, providerMessageID string) error

	// HasRoutedSibling reports whether another occurrence of the same ticket
	// already reached routed. The routing stage uses it to decide, from
	// durable state alone, whether this delivery is the one that created the
	// ticket.
	HasRoutedSibling(ctx context.Context, tx *sql.Tx, organizationID, ticketID, excludeOccurrenceID string) (bool, error)

	CountByMailbox(ctx context.Context, organizationID, mailboxID string) (map[OccurrenceState]int64, error)
}

// ResolvedRecipient is the recipient evidence tuple produced by parsing.
type ResolvedRecipient struct {
	Recipient  string
	Source     RecipientSource
	Confidence RecipientConfidence
	Evidence   RecipientEvidence
}
