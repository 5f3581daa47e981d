package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/ossdesk/ossdesk/config"
	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/service/ingest"
	"github.com/ossdesk/ossdesk/pkg/logger"
)

const outboundSnippetLength = 160

// OutboundService creates outbound reply intents. It writes the canonical
// message with the stitch markers baked in, so the mirrored copy returning
// through the journal dedupes against it, and enqueues an outbound_send job
// for the external sender.
type OutboundService struct {
	db            *sql.DB
	smtp          *config.SMTPConfig
	orgRepo       domain.OrganizationRepository
	mailboxRepo   domain.MailboxRepository
	ticketRepo    domain.TicketRepository
	canonicalRepo domain.CanonicalRepository
	jobRepo       domain.JobRepository
	logger        logger.Logger
}

// NewOutboundService creates the outbound reply service.
func NewOutboundService(
	db *sql.DB,
	smtp *config.SMTPConfig,
	orgRepo domain.OrganizationRepository,
	mailboxRepo domain.MailboxRepository,
	ticketRepo domain.TicketRepository,
	canonicalRepo domain.CanonicalRepository,
	jobRepo domain.JobRepository,
	log logger.Logger,
) *OutboundService {
	return &OutboundService{
		db:            db,
		smtp:          smtp,
		orgRepo:       orgRepo,
		mailboxRepo:   mailboxRepo,
		ticketRepo:    ticketRepo,
		canonicalRepo: canonicalRepo,
		jobRepo:       jobRepo,
		logger:        log,
	}
}

// QueueTicketReply records the reply as an outbound canonical message linked
// to the ticket and enqueues the send.
func (s *OutboundService) QueueTicketReply(ctx context.Context, req *domain.QueueTicketReplyRequest) (*domain.CanonicalMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	org, err := s.orgRepo.GetByID(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	fromEmail, fromName, err := s.senderIdentity(ctx, org)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reply transaction: %w", err)
	}
	defer tx.Rollback()

	ticket, err := s.ticketRepo.GetForUpdate(ctx, tx, req.OrganizationID, req.TicketID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock ticket: %w", err)
	}

	message := s.buildReply(org, ticket, req, fromEmail, fromName)
	if err := s.canonicalRepo.Insert(ctx, tx, message); err != nil {
		return nil, fmt.Errorf("failed to insert outbound canonical: %w", err)
	}
	if message.RFCMessageID != nil {
		if err := s.canonicalRepo.RegisterRFCMessageID(ctx, tx, org.ID, *message.RFCMessageID, message.ID); err != nil {
			return nil, fmt.Errorf("failed to register outbound message id: %w", err)
		}
	}

	eventPayload, _ := json.Marshal(map[string]interface{}{
		"canonical_message_id": message.ID,
		"x_oss_message_id":     message.XOSSMessageID,
	})
	if err := s.ticketRepo.InsertEvent(ctx, tx, &domain.TicketEvent{
		OrganizationID: org.ID,
		TicketID:       ticket.ID,
		Kind:           domain.TicketEventOutboundQueued,
		ActorUserID:    req.AuthorUserID,
		Payload:        eventPayload,
	}); err != nil {
		return nil, fmt.Errorf("failed to insert outbound_queued event: %w", err)
	}
	if err := s.ticketRepo.TouchActivity(ctx, tx, org.ID, ticket.ID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to bump ticket activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reply: %w", err)
	}

	sendPayload := domain.OutboundSendPayload{
		OrganizationID:     org.ID,
		TicketID:           ticket.ID,
		CanonicalMessageID: message.ID,
	}
	if _, err := s.jobRepo.Enqueue(ctx, domain.JobTypeOutboundSend, org.ID, &sendPayload, domain.EnqueueOptions{
		IdempotencyKey: fmt.Sprintf("%s:%s", domain.JobTypeOutboundSend, message.ID),
	}); err != nil {
		return nil, fmt.Errorf("failed to enqueue outbound send: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"ticket_id":            ticket.ID,
		"canonical_message_id": message.ID,
	}).Info("Outbound reply queued")
	return message, nil
}

// BuildRFC822 renders the full wire form of an outbound canonical message
// for the SMTP handoff.
func (s *OutboundService) BuildRFC822(message *domain.CanonicalMessage) ([]byte, error) {
	msg := mail.NewMsg()

	fromEmail := ""
	if message.FromEmail != nil {
		fromEmail = *message.FromEmail
	}
	fromName := ""
	if message.FromName != nil {
		fromName = *message.FromName
	}
	if fromName != "" {
		if err := msg.FromFormat(fromName, fromEmail); err != nil {
			return nil, fmt.Errorf("invalid from address: %w", err)
		}
	} else if err := msg.From(fromEmail); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(message.To.Emails()...); err != nil {
		return nil, fmt.Errorf("invalid to addresses: %w", err)
	}
	if len(message.ReplyTo) > 0 {
		if err := msg.ReplyTo(message.ReplyTo[0].Email); err != nil {
			return nil, fmt.Errorf("invalid reply-to address: %w", err)
		}
	}
	if message.Subject != nil {
		msg.Subject(*message.Subject)
	}
	if message.RFCMessageID != nil {
		msg.SetMessageIDWithValue(strings.Trim(*message.RFCMessageID, "<>"))
	}
	if message.XOSSTicketID != nil {
		msg.SetGenHeader(mail.Header("X-OSS-Ticket-ID"), *message.XOSSTicketID)
	}
	if message.XOSSMessageID != nil {
		msg.SetGenHeader(mail.Header("X-OSS-Message-ID"), *message.XOSSMessageID)
	}

	bodyText := ""
	if message.BodyText != nil {
		bodyText = *message.BodyText
	}
	msg.SetBodyString(mail.TypeTextPlain, bodyText)
	if message.BodyHTMLSanitized != nil && *message.BodyHTMLSanitized != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, *message.BodyHTMLSanitized)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *OutboundService) buildReply(org *domain.Organization, ticket *domain.Ticket, req *domain.QueueTicketReplyRequest, fromEmail, fromName string) *domain.CanonicalMessage {
	now := time.Now().UTC()
	messageUUID := uuid.New().String()
	replyDomain := org.ReplyDomain
	if replyDomain == "" && len(org.MailDomains) > 0 {
		replyDomain = org.MailDomains[0]
	}
	replyTo := fmt.Sprintf("ticket+%s@%s", ticket.Code, replyDomain)
	rfcMessageID := fmt.Sprintf("<oss-%s@outbound.%s>", uuid.New().String(), replyDomain)

	subject := req.Subject
	if subject == "" && ticket.Subject != nil {
		subject = *ticket.Subject
		if !strings.HasPrefix(strings.ToLower(subject), "re:") {
			subject = "Re: " + subject
		}
	}

	var to domain.AddressList
	if ticket.RequesterEmail != nil {
		addr := domain.EmailAddress{Email: *ticket.RequesterEmail}
		if ticket.RequesterName != nil {
			addr.Name = *ticket.RequesterName
		}
		to = domain.AddressList{addr}
	}

	bodyHTML := ""
	if req.BodyHTML != "" {
		bodyHTML = ingest.SanitizeHTML(req.BodyHTML)
	}
	bodyText := req.BodyText
	if bodyText == "" {
		bodyText = ingest.HTMLToText(req.BodyHTML)
	}

	subjectNorm := ingest.NormalizeSubject(subject)
	parsed := &ingest.ParsedEmail{
		RFCMessageID: rfcMessageID,
		Date:         &now,
		Subject:      subject,
		SubjectNorm:  subjectNorm,
		FromEmail:    fromEmail,
		FromName:     fromName,
		To:           to,
		BodyText:     bodyText,
	}

	headers := domain.HeaderMap{
		"message-id":       {rfcMessageID},
		"reply-to":         {replyTo},
		"x-oss-ticket-id":  {ticket.ID},
		"x-oss-message-id": {messageUUID},
	}

	return &domain.CanonicalMessage{
		ID:             uuid.New().String(),
		OrganizationID: org.ID,
		FingerprintV1:  ingest.FingerprintV1(parsed),
		BodyHash:       ingest.BodyHash(bodyText),

		Direction:    domain.DirectionOutbound,
		RFCMessageID: &rfcMessageID,

		Subject:           strPtr(subject),
		SubjectNormalized: strPtr(subjectNorm),
		FromEmail:         strPtr(ingest.NormalizeEmail(fromEmail)),
		FromName:          strPtr(fromName),
		To:                to,
		ReplyTo:           domain.AddressList{{Email: replyTo}},
		DateHeader:        &now,
		Snippet:           strPtr(ingest.Snippet(bodyText, outboundSnippetLength)),
		Headers:           headers,

		BodyText:          strPtr(bodyText),
		BodyHTMLSanitized: strPtr(bodyHTML),

		ParserVersion:     ingest.ParserVersion,
		SanitizerRevision: ingest.SanitizerRevision,

		XOSSTicketID:  &ticket.ID,
		XOSSMessageID: &messageUUID,

		TicketID:         &ticket.ID,
		StitchReason:     domain.StitchReasonXOSSMarker,
		StitchConfidence: domain.ConfidenceHigh,
		StitchedAt:       &now,
	}
}

// senderIdentity prefers the organization's outbound mailbox; the configured
// SMTP identity is the fallback.
func (s *OutboundService) senderIdentity(ctx context.Context, org *domain.Organization) (string, string, error) {
	mailboxes, err := s.mailboxRepo.ListByOrganization(ctx, org.ID)
	if err != nil {
		return "", "", fmt.Errorf("failed to list mailboxes: %w", err)
	}
	for _, mb := range mailboxes {
		if mb.Purpose == domain.MailboxPurposeOutbound && mb.Enabled {
			return mb.EmailAddress, s.smtp.FromName, nil
		}
	}
	if s.smtp.FromEmail != "" {
		return s.smtp.FromEmail, s.smtp.FromName, nil
	}
	return "", "", domain.NewValidationError("organization has no outbound mailbox and no SMTP sender is configured")
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
