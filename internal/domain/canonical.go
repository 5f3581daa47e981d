package domain

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

//go:generate mockgen -destination mocks/mock_canonical_repository.go -package mocks github.com/ossdesk/ossdesk/internal/domain CanonicalRepository

// EmailAddress is one parsed address with its optional display name.
type EmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// AddressList is a JSONB-stored list of addresses.
type AddressList []EmailAddress

// Emails returns just the address strings, in order.
func (l AddressList) Emails() []string {
	out := make([]string, 0, len(l))
	for _, a := range l {
		out = append(out, a.Email)
	}
	return out
}

// Value implements driver.Valuer for AddressList.
func (l AddressList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(AddressList{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for AddressList.
func (l *AddressList) Scan(value interface{}) error {
	if value == nil {
		*l = AddressList{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte, got %T", value)
	}
	return json.Unmarshal(bytes.Clone(b), l)
}

// HeaderMap stores decoded header values keyed by lowercased header name.
// Multi-valued headers keep every value in order.
type HeaderMap map[string][]string

// First returns the first value of the (lowercased) header name, or "".
func (h HeaderMap) First(name string) string {
	values := h[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Value implements driver.Valuer for HeaderMap.
func (h HeaderMap) Value() (driver.Value, error) {
	if h == nil {
		return json.Marshal(HeaderMap{})
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner for HeaderMap.
func (h *HeaderMap) Scan(value interface{}) error {
	if value == nil {
		*h = HeaderMap{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte, got %T", value)
	}
	return json.Unmarshal(bytes.Clone(b), h)
}

// CanonicalMessage is the deduped logical email. Identity is
// (organization_id, fingerprint_v1, body_hash): rows sharing a fingerprint
// with differing body hashes coexist under a collision group.
type CanonicalMessage struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`

	FingerprintV1    string  `json:"fingerprint_v1"`
	BodyHash         string  `json:"body_hash"`
	CollisionGroupID *string `json:"collision_group_id,omitempty"`

	Direction    MessageDirection `json:"direction"`
	RFCMessageID *string          `json:"rfc_message_id,omitempty"`
	InReplyTo    *string          `json:"in_reply_to,omitempty"`
	References   []string         `json:"references,omitempty"`

	Subject           *string     `json:"subject,omitempty"`
	SubjectNormalized *string     `json:"subject_normalized,omitempty"`
	FromEmail         *string     `json:"from_email,omitempty"`
	FromName          *string     `json:"from_name,omitempty"`
	To                AddressList `json:"to"`
	Cc                AddressList `json:"cc"`
	ReplyTo           AddressList `json:"reply_to"`
	DateHeader        *time.Time  `json:"date_header,omitempty"`
	Snippet           *string     `json:"snippet,omitempty"`
	Headers           HeaderMap   `json:"headers"`

	BodyText          *string `json:"body_text,omitempty"`
	BodyHTMLSanitized *string `json:"body_html_sanitized,omitempty"`

	ParserVersion     int    `json:"parser_version"`
	SanitizerRevision string `json:"sanitizer_revision"`

	// Outbound marker fields, authoritative stitch keys when the mirrored
	// copy returns through the journal.
	XOSSTicketID  *string `json:"x_oss_ticket_id,omitempty"`
	XOSSMessageID *string `json:"x_oss_message_id,omitempty"`

	TicketID         *string             `json:"ticket_id,omitempty"`
	StitchReason     StitchReason        `json:"stitch_reason,omitempty"`
	StitchConfidence RecipientConfidence `json:"stitch_confidence,omitempty"`
	StitchedAt       *time.Time          `json:"stitched_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasThreadingHeaders reports whether the message carries In-Reply-To or
// References; the subject_match stitch fallback is disabled when it does.
func (m *CanonicalMessage) HasThreadingHeaders() bool {
	return (m.InReplyTo != nil && *m.InReplyTo != "") || len(m.References) > 0
}

// Attachment is one decoded MIME part payload, content-addressed per
// canonical message.
type Attachment struct {
	ID                 string    `json:"id"`
	OrganizationID     string    `json:"organization_id"`
	CanonicalMessageID string    `json:"canonical_message_id"`
	ContentHash        string    `json:"content_hash"`
	BlobID             string    `json:"blob_id"`
	Filename           *string   `json:"filename,omitempty"`
	ContentType        *string   `json:"content_type,omitempty"`
	SizeBytes          int64     `json:"size_bytes"`
	IsInline           bool      `json:"is_inline"`
	ContentID          *string   `json:"content_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// CollisionGroup marks fingerprint-colliding canonical messages awaiting
// admin review.
type CollisionGroup struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	FingerprintV1  string    `json:"fingerprint_v1"`
	CreatedAt      time.Time `json:"created_at"`
}

// CollisionGroupSummary is the admin listing shape.
type CollisionGroupSummary struct {
	Group        CollisionGroup      `json:"group"`
	MessageCount int                 `json:"message_count"`
	Samples      []*CanonicalMessage `json:"samples,omitempty"`
}

// CanonicalRepository defines data access for canonical messages, their
// RFC-ID index, attachments and collision groups.
type CanonicalRepository interface {
	GetByID(ctx context.Context, organizationID, messageID string) (*CanonicalMessage, error)
	GetByOSSMessageID(ctx context.Context, tx *sql.Tx, organizationID, ossMessageID string) (*CanonicalMessage, error)
	GetByFingerprint(ctx context.Context, tx *sql.Tx, organizationID, fingerprint, bodyHash string) (*CanonicalMessage, error)
	ListByFingerprint(ctx context.Context, tx *sql.Tx, organizationID, fingerprint string) ([]*CanonicalMessage, error)
	// Insert writes a new canonical row. A unique violation on
	// (organization_id, fingerprint_v1, body_hash) surfaces as
	// ErrDuplicateCanonical so racing parsers can re-read.
	Insert(ctx context.Context, tx *sql.Tx, message *CanonicalMessage) error
	UpdateParsedContent(ctx context.Context, tx *sql.Tx, message *CanonicalMessage) error

	// EnsureCollisionGroup stamps a shared collision group onto every
	// canonical row with the fingerprint, creating the group when absent.
	// Returns the group id.
	EnsureCollisionGroup(ctx context.Context, tx *sql.Tx, organizationID, fingerprint string) (string, error)
	ListCollisionGroups(ctx context.Context, organizationID string, limit int) ([]*CollisionGroupSummary, error)
	// ListCollisionCandidates returns fingerprints with more than one
	// distinct body hash whose rows still miss a collision group.
	ListCollisionCandidates(ctx context.Context, organizationID string) ([]string, error)

	RegisterRFCMessageID(ctx context.Context, tx *sql.Tx, organizationID, rfcMessageID, canonicalMessageID string) error
	// ResolveRFCMessageID maps an RFC Message-ID to a canonical message id
	// through the index, or "" when unknown.
	ResolveRFCMessageID(ctx context.Context, tx *sql.Tx, organizationID, rfcMessageID string) (string, error)

	InsertAttachment(ctx context.Context, tx *sql.Tx, attachment *Attachment) error
	ListAttachments(ctx context.Context, organizationID, canonicalMessageID string) ([]*Attachment, error)

	SetTicketLink(ctx context.Context, tx *sql.Tx, organizationID, canonicalMessageID, ticketID string, reason StitchReason, confidence RecipientConfidence) error
	ClearTicketLink(ctx context.Context, tx *sql.Tx, organizationID, canonicalMessageID string) error
	// FirstMessageAt derives the earliest date header among the ticket's
	// canonical messages; tickets never store it.
	FirstMessageAt(ctx context.Context, organizationID, ticketID string) (*time.Time, error)
}

// ErrDuplicateCanonical signals a lost insert race on the canonical unique
// index; the caller re-reads and links to the winner.
type ErrDuplicateCanonical struct {
	Fingerprint string
}

func (e *ErrDuplicateCanonical) Error() string {
	return fmt.Sprintf("canonical message already exists for fingerprint %s", e.Fingerprint)
}
