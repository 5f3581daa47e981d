package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// stitchVerdict is the ticket a canonical message attaches to and why.
type stitchVerdict struct {
	ticketID      string
	reason        domain.StitchReason
	confidence    domain.RecipientConfidence
	ticketCreated bool
}

// HandleStitch is the occurrence_stitch job handler: attach the occurrence's
// canonical message to a ticket, first match wins, marker before threading
// before subject, new ticket as the floor.
func (p *Pipeline) HandleStitch(ctx context.Context, job *domain.Job) error {
	payload, err := decodePayload(job)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin stitch transaction: %w", err)
	}
	defer tx.Rollback()

	occ, err := p.occRepo.GetForStage(ctx, tx, payload.OrganizationID, payload.OccurrenceID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.NewPermanentError(err)
		}
		return fmt.Errorf("failed to load occurrence: %w", err)
	}

	switch {
	case occ.State == domain.OccurrenceStateFailed:
		return nil
	case occ.State.AtLeast(domain.OccurrenceStateStitched) && occ.TicketID != nil:
		tx.Rollback()
		return p.enqueueNext(ctx, domain.JobTypeTicketApplyRouting, occ, payload, domain.EnqueueOptions{})
	case occ.CanonicalMessageID == nil:
		return domain.NewPermanentError(fmt.Errorf("occurrence %s has no canonical message", occ.ID))
	}

	canonical, err := p.canonicalRepo.GetByID(ctx, occ.OrganizationID, *occ.CanonicalMessageID)
	if err != nil {
		return fmt.Errorf("failed to load canonical message: %w", err)
	}

	now := time.Now().UTC()
	verdict, err := p.stitch(ctx, tx, canonical, now)
	if err != nil {
		return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateStitched, err)
	}

	if canonical.TicketID == nil || *canonical.TicketID != verdict.ticketID {
		if err := p.canonicalRepo.SetTicketLink(ctx, tx, canonical.OrganizationID, canonical.ID, verdict.ticketID, verdict.reason, verdict.confidence); err != nil {
			return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateStitched,
				fmt.Errorf("failed to link canonical to ticket: %w", err))
		}
	}
	if err := p.occRepo.MarkStitched(ctx, tx, occ.ID, verdict.ticketID); err != nil {
		return fmt.Errorf("failed to mark occurrence stitched: %w", err)
	}
	if !verdict.ticketCreated {
		if err := p.ticketRepo.TouchActivity(ctx, tx, canonical.OrganizationID, verdict.ticketID, now); err != nil {
			return fmt.Errorf("failed to bump ticket activity: %w", err)
		}
	}

	eventPayload, _ := json.Marshal(map[string]interface{}{
		"canonical_message_id": canonical.ID,
		"occurrence_id":        occ.ID,
		"reason":               string(verdict.reason),
		"confidence":           string(verdict.confidence),
		"ticket_created":       verdict.ticketCreated,
	})
	if err := p.ticketRepo.InsertEvent(ctx, tx, &domain.TicketEvent{
		OrganizationID: canonical.OrganizationID,
		TicketID:       verdict.ticketID,
		Kind:           domain.TicketEventStitched,
		Payload:        eventPayload,
	}); err != nil {
		return fmt.Errorf("failed to insert stitched event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stitch: %w", err)
	}

	payload.TicketCreated = verdict.ticketCreated
	return p.enqueueNext(ctx, domain.JobTypeTicketApplyRouting, occ, payload, domain.EnqueueOptions{})
}

// stitch decides the ticket for a canonical message. A canonical already
// linked (a sibling occurrence won) short-circuits without rule evaluation.
func (p *Pipeline) stitch(ctx context.Context, tx *sql.Tx, canonical *domain.CanonicalMessage, now time.Time) (*stitchVerdict, error) {
	if canonical.TicketID != nil {
		return &stitchVerdict{
			ticketID:   *canonical.TicketID,
			reason:     canonical.StitchReason,
			confidence: canonical.StitchConfidence,
		}, nil
	}

	orgID := canonical.OrganizationID

	// 1. Outbound marker names the ticket outright.
	if canonical.XOSSTicketID != nil && *canonical.XOSSTicketID != "" {
		exists, err := p.ticketRepo.Exists(ctx, tx, orgID, *canonical.XOSSTicketID)
		if err != nil {
			return nil, fmt.Errorf("failed to check marker ticket: %w", err)
		}
		if exists {
			return &stitchVerdict{
				ticketID:   *canonical.XOSSTicketID,
				reason:     domain.StitchReasonXOSSMarker,
				confidence: domain.ConfidenceHigh,
			}, nil
		}
	}

	// 2. Reply alias token in any Reply-To address.
	for _, addr := range canonical.ReplyTo.Emails() {
		code, ok := replyAliasCode(addr)
		if !ok {
			continue
		}
		ticket, err := p.ticketRepo.GetByCode(ctx, tx, orgID, code)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve reply alias: %w", err)
		}
		if ticket != nil {
			return &stitchVerdict{
				ticketID:   ticket.ID,
				reason:     domain.StitchReasonReplyToToken,
				confidence: domain.ConfidenceHigh,
			}, nil
		}
	}

	// 3. Threading headers through the RFC-ID index.
	var threadIDs []string
	if canonical.InReplyTo != nil && *canonical.InReplyTo != "" {
		threadIDs = append(threadIDs, *canonical.InReplyTo)
	}
	threadIDs = append(threadIDs, canonical.References...)
	for _, rfcID := range threadIDs {
		canonicalID, err := p.canonicalRepo.ResolveRFCMessageID(ctx, tx, orgID, rfcID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve rfc message id: %w", err)
		}
		if canonicalID == "" {
			continue
		}
		referenced, err := p.canonicalRepo.GetByID(ctx, orgID, canonicalID)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("failed to load referenced canonical: %w", err)
		}
		if referenced.TicketID != nil {
			return &stitchVerdict{
				ticketID:   *referenced.TicketID,
				reason:     domain.StitchReasonReferencesGraph,
				confidence: domain.ConfidenceMedium,
			}, nil
		}
	}

	// 4. Subject fallback, only for messages with no threading headers.
	if !canonical.HasThreadingHeaders() && canonical.SubjectNormalized != nil && canonical.FromEmail != nil {
		ticket, err := p.ticketRepo.FindSubjectMatch(ctx, tx, orgID,
			*canonical.SubjectNormalized, *canonical.FromEmail, now.Add(-domain.SubjectMatchWindow))
		if err != nil {
			return nil, fmt.Errorf("failed to match subject: %w", err)
		}
		if ticket != nil {
			return &stitchVerdict{
				ticketID:   ticket.ID,
				reason:     domain.StitchReasonSubjectMatch,
				confidence: domain.ConfidenceLow,
			}, nil
		}
	}

	// 5. New ticket.
	ticket := &domain.Ticket{
		OrganizationID:    orgID,
		Subject:           canonical.Subject,
		SubjectNormalized: canonical.SubjectNormalized,
		RequesterEmail:    canonical.FromEmail,
		RequesterName:     canonical.FromName,
		StitchReason:      domain.StitchReasonNewTicket,
		StitchConfidence:  domain.ConfidenceLow,
	}
	if err := p.ticketRepo.Create(ctx, tx, ticket); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return &stitchVerdict{
		ticketID:      ticket.ID,
		reason:        domain.StitchReasonNewTicket,
		confidence:    domain.ConfidenceLow,
		ticketCreated: true,
	}, nil
}

// replyAliasCode extracts the ticket code from a ticket+<code>@domain
// address, or reports false.
func replyAliasCode(address string) (string, bool) {
	local, _, found := strings.Cut(strings.ToLower(strings.TrimSpace(address)), "@")
	if !found {
		return "", false
	}
	code, ok := strings.CutPrefix(local, "ticket+")
	if !ok || code == "" {
		return "", false
	}
	return code, true
}
