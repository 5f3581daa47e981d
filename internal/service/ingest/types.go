// Package ingest turns raw RFC822 bytes into the normalized shapes the
// pipeline persists: decoded headers and bodies, attachments, recipient
// evidence, and the canonical fingerprint.
package ingest

import (
	"time"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// ParserVersion is recorded on every canonical message a parse produces.
// Bump it whenever parsing output changes shape or semantics.
const ParserVersion = 1

// ParsedAttachment is one decoded non-body MIME part.
type ParsedAttachment struct {
	Filename    string
	ContentType string
	Payload     []byte
	IsInline    bool
	ContentID   string
}

// ParsedEmail is the full decoded form of one raw message.
type ParsedEmail struct {
	RFCMessageID string
	Date         *time.Time
	Subject      string
	SubjectNorm  string

	FromEmail string
	FromName  string
	To        domain.AddressList
	Cc        domain.AddressList
	ReplyTo   domain.AddressList

	// Headers keeps every decoded header value keyed by lowercased name.
	Headers domain.HeaderMap

	BodyText          string
	BodyHTMLSanitized string
	Snippet           string

	InReplyTo  string
	References []string

	Attachments []ParsedAttachment
}

// HasThreadingHeaders reports whether the message references other messages.
func (p *ParsedEmail) HasThreadingHeaders() bool {
	return p.InReplyTo != "" || len(p.References) > 0
}
