package domain

// QueueTicketReplyRequest creates an outbound reply intent on a ticket. The
// core records the canonical message and enqueues the send; the external
// send subsystem performs the SMTP handoff.
type QueueTicketReplyRequest struct {
	OrganizationID string  `json:"organization_id"`
	TicketID       string  `json:"ticket_id"`
	AuthorUserID   *string `json:"author_user_id,omitempty"`
	Subject        string  `json:"subject,omitempty"`
	BodyText       string  `json:"body_text"`
	BodyHTML       string  `json:"body_html,omitempty"`
}

func (r *QueueTicketReplyRequest) Validate() error {
	if r.OrganizationID == "" {
		return NewValidationError("organization_id is required")
	}
	if r.TicketID == "" {
		return NewValidationError("ticket_id is required")
	}
	if r.BodyText == "" && r.BodyHTML == "" {
		return NewValidationError("reply body is required")
	}
	return nil
}
