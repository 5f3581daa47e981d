package domain

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

//go:generate mockgen -destination mocks/mock_ticket_repository.go -package mocks github.com/ossdesk/ossdesk/internal/domain TicketRepository

// TicketStatus is the operator-facing ticket lifecycle.
type TicketStatus string

const (
	TicketStatusNew      TicketStatus = "new"
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
	TicketStatusSpam     TicketStatus = "spam"
)

// ValidTicketStatus reports whether s is one of the known statuses.
func ValidTicketStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusPending,
		TicketStatusResolved, TicketStatusClosed, TicketStatusSpam:
		return true
	}
	return false
}

// TicketPriority orders operator attention.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityNormal TicketPriority = "normal"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// StitchReason records which rule attached a canonical message to a ticket.
type StitchReason string

const (
	StitchReasonNewTicket       StitchReason = "new_ticket"
	StitchReasonXOSSMarker      StitchReason = "x_oss_marker"
	StitchReasonReplyToToken    StitchReason = "reply_to_token"
	StitchReasonReferencesGraph StitchReason = "references_graph"
	StitchReasonSubjectMatch    StitchReason = "subject_match"
)

// SubjectMatchWindow bounds how stale an open ticket may be for the
// subject_match stitch fallback.
const SubjectMatchWindow = 14 * 24 * time.Hour

// Ticket groups one or more canonical messages.
type Ticket struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Code           string `json:"code"`

	Status   TicketStatus   `json:"status"`
	Priority TicketPriority `json:"priority"`

	Subject           *string `json:"subject,omitempty"`
	SubjectNormalized *string `json:"subject_normalized,omitempty"`
	RequesterEmail    *string `json:"requester_email,omitempty"`
	RequesterName     *string `json:"requester_name,omitempty"`

	// Assignee is a user or a queue, never both.
	AssigneeUserID  *string `json:"assignee_user_id,omitempty"`
	AssigneeQueueID *string `json:"assignee_queue_id,omitempty"`

	StitchReason     StitchReason        `json:"stitch_reason"`
	StitchConfidence RecipientConfidence `json:"stitch_confidence"`

	LastActivityAt time.Time  `json:"last_activity_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewTicketCode mints a ticket code: "tkt-" plus lowercase unpadded base32
// of 10 random bytes. Codes double as the reply alias token.
func NewTicketCode() string {
	raw := make([]byte, 10)
	if _, err := rand.Read(raw); err != nil {
		panic(fmt.Sprintf("ticket code entropy unavailable: %v", err))
	}
	token := strings.ToLower(strings.TrimRight(base32.StdEncoding.EncodeToString(raw), "="))
	return "tkt-" + token
}

// TicketEventKind classifies an audit event.
type TicketEventKind string

const (
	TicketEventStitched       TicketEventKind = "stitched"
	TicketEventRoutingApplied TicketEventKind = "routing_applied"
	TicketEventAutoSpam       TicketEventKind = "auto_spam"
	TicketEventAutoClosed     TicketEventKind = "auto_closed"
	TicketEventDropped        TicketEventKind = "dropped"
	TicketEventOutboundQueued TicketEventKind = "outbound_queued"
	TicketEventStatusChanged  TicketEventKind = "status_changed"
	TicketEventReplayed       TicketEventKind = "replayed"
)

// TicketEvent is one append-only audit row.
type TicketEvent struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	TicketID       string          `json:"ticket_id"`
	Kind           TicketEventKind `json:"kind"`
	ActorUserID    *string         `json:"actor_user_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TicketQueue is a named assignment target.
type TicketQueue struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ErrQueueReferenced refuses queue deletion while routing rules point at it.
type ErrQueueReferenced struct {
	QueueID string
}

func (e *ErrQueueReferenced) Error() string {
	return fmt.Sprintf("queue %s is referenced by routing rules", e.QueueID)
}

// TicketAssignment is a routing outcome applied to a ticket.
type TicketAssignment struct {
	UserID  *string
	QueueID *string
}

// TicketRepository defines data access for tickets, events and queues.
type TicketRepository interface {
	Create(ctx context.Context, tx *sql.Tx, ticket *Ticket) error
	GetByID(ctx context.Context, organizationID, ticketID string) (*Ticket, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, organizationID, ticketID string) (*Ticket, error)
	GetByCode(ctx context.Context, tx *sql.Tx, organizationID, code string) (*Ticket, error)
	// Exists avoids loading the row when only identity matters (marker
	// stitch).
	Exists(ctx context.Context, tx *sql.Tx, organizationID, ticketID string) (bool, error)

	// FindSubjectMatch returns the freshest non-closed ticket with the same
	// normalized subject and requester whose last activity falls inside the
	// window, or nil.
	FindSubjectMatch(ctx context.Context, tx *sql.Tx, organizationID, subjectNormalized, requesterEmail string, since time.Time) (*Ticket, error)

	UpdateStatus(ctx context.Context, tx *sql.Tx, organizationID, ticketID string, status TicketStatus, closedAt *time.Time) error
	UpdateAssignment(ctx context.Context, tx *sql.Tx, organizationID, ticketID string, assignment TicketAssignment) error
	TouchActivity(ctx context.Context, tx *sql.Tx, organizationID, ticketID string, at time.Time) error
	// Delete hard-deletes a ticket (the routing drop action).
	Delete(ctx context.Context, tx *sql.Tx, organizationID, ticketID string) error

	InsertEvent(ctx context.Context, tx *sql.Tx, event *TicketEvent) error
	ListEvents(ctx context.Context, organizationID, ticketID string, limit int) ([]*TicketEvent, error)

	GetQueue(ctx context.Context, tx *sql.Tx, organizationID, queueID string) (*TicketQueue, error)
	DeleteQueue(ctx context.Context, organizationID, queueID string) error
}
