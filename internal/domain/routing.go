package domain

import (
	"context"
	"time"

	"github.com/asaskevich/govalidator"
)

//go:generate mockgen -destination mocks/mock_routing_repository.go -package mocks github.com/ossdesk/ossdesk/internal/domain RoutingRepository

// AllowlistEntry is one glob pattern of recipients the organization accepts
// tickets for. Recipients matching no enabled entry are marked spam.
type AllowlistEntry struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Pattern        string    `json:"pattern"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RoutingRule is one priority-ordered match/action row. Empty predicates
// match everything; non-empty predicates glob-match lowercased values.
type RoutingRule struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Priority       int    `json:"priority"`
	Enabled        bool   `json:"enabled"`

	// Match predicates.
	RecipientPattern    string           `json:"recipient_pattern,omitempty"`
	SenderDomainPattern string           `json:"sender_domain_pattern,omitempty"`
	SenderEmailPattern  string           `json:"sender_email_pattern,omitempty"`
	Direction           MessageDirection `json:"direction,omitempty"`

	// Actions. AssignQueueID and AssignUserID are mutually exclusive.
	AssignQueueID *string      `json:"assign_queue_id,omitempty"`
	AssignUserID  *string      `json:"assign_user_id,omitempty"`
	SetStatus     TicketStatus `json:"set_status,omitempty"`
	Drop          bool         `json:"drop,omitempty"`
	AutoClose     bool         `json:"auto_close,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoutingRepository defines read access to the routing tables. Rule CRUD
// lives in the external admin API layer.
type RoutingRepository interface {
	ListAllowlist(ctx context.Context, organizationID string) ([]*AllowlistEntry, error)
	// ListRules returns enabled rules ordered by ascending priority with id
	// as tiebreaker.
	ListRules(ctx context.Context, organizationID string) ([]*RoutingRule, error)
}

// SimulateRoutingRequest drives the admin routing simulator.
type SimulateRoutingRequest struct {
	OrganizationID string           `json:"organization_id"`
	Recipient      string           `json:"recipient"`
	SenderEmail    string           `json:"sender_email"`
	Direction      MessageDirection `json:"direction"`
}

func (r *SimulateRoutingRequest) Validate() error {
	if r.OrganizationID == "" {
		return NewValidationError("organization_id is required")
	}
	if r.Recipient != "" && !govalidator.IsEmail(r.Recipient) {
		return NewValidationError("recipient must be an email address")
	}
	if r.SenderEmail != "" && !govalidator.IsEmail(r.SenderEmail) {
		return NewValidationError("sender_email must be an email address")
	}
	switch r.Direction {
	case "", DirectionInbound, DirectionOutbound:
	default:
		return NewValidationError("direction must be inbound or outbound")
	}
	return nil
}

// AppliedAction describes one action a matched rule would take.
type AppliedAction struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// SimulateRoutingResult is the simulator verdict; the evaluator is the same
// one the route stage commits with.
type SimulateRoutingResult struct {
	Allowlisted    bool            `json:"allowlisted"`
	WouldMarkSpam  bool            `json:"would_mark_spam"`
	MatchedRule    *RoutingRule    `json:"matched_rule,omitempty"`
	AppliedActions []AppliedAction `json:"applied_actions"`
	Explanation    string          `json:"explanation"`
}
