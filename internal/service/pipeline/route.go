package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// HandleRoute is the ticket_apply_routing job handler. Only inbound
// occurrences whose stitch created the ticket run the evaluator; everything
// else advances straight to routed.
func (p *Pipeline) HandleRoute(ctx context.Context, job *domain.Job) error {
	payload, err := decodePayload(job)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin routing transaction: %w", err)
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
	case occ.State.AtLeast(domain.OccurrenceStateRouted):
		return nil
	case occ.TicketID == nil:
		return domain.NewPermanentError(fmt.Errorf("occurrence %s has no ticket", occ.ID))
	}

	evaluate := false
	if occ.Direction == domain.DirectionInbound {
		created, err := p.createdThisTicket(ctx, tx, occ)
		if err != nil {
			return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateRouted, err)
		}
		evaluate = created
	}
	if !evaluate {
		if err := p.occRepo.MarkRouted(ctx, tx, occ.ID); err != nil {
			return fmt.Errorf("failed to mark occurrence routed: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit routing: %w", err)
		}
		return nil
	}

	ticket, err := p.ticketRepo.GetForUpdate(ctx, tx, occ.OrganizationID, *occ.TicketID)
	if err != nil {
		return fmt.Errorf("failed to lock ticket: %w", err)
	}

	allowlist, err := p.routingRepo.ListAllowlist(ctx, occ.OrganizationID)
	if err != nil {
		return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateRouted,
			fmt.Errorf("failed to load allowlist: %w", err))
	}

	recipient := ""
	if occ.OriginalRecipient != nil {
		recipient = *occ.OriginalRecipient
	}
	now := time.Now().UTC()

	if occ.RecipientSource == domain.RecipientSourceUnknown || !recipientAllowed(allowlist, recipient) {
		if err := p.markSpam(ctx, tx, occ, ticket, recipient, now); err != nil {
			return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateRouted, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit spam verdict: %w", err)
		}
		return nil
	}

	senderEmail := ""
	if ticket.RequesterEmail != nil {
		senderEmail = *ticket.RequesterEmail
	}
	rules, err := p.routingRepo.ListRules(ctx, occ.OrganizationID)
	if err != nil {
		return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateRouted,
			fmt.Errorf("failed to load routing rules: %w", err))
	}

	rule := firstMatchingRule(rules, recipient, senderEmail, occ.Direction)
	if rule == nil {
		if err := p.occRepo.MarkRouted(ctx, tx, occ.ID); err != nil {
			return fmt.Errorf("failed to mark occurrence routed: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit routing: %w", err)
		}
		return nil
	}

	if rule.Drop {
		if err := p.dropTicket(ctx, tx, occ, ticket); err != nil {
			return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateRouted, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit drop: %w", err)
		}
		p.logger.WithFields(map[string]interface{}{
			"ticket_id": ticket.ID,
			"rule_id":   rule.ID,
		}).Info("Routing rule dropped ticket")
		return nil
	}

	if err := p.applyRule(ctx, tx, occ, ticket, rule, now); err != nil {
		return p.stageFailure(ctx, occ.ID, domain.OccurrenceStateRouted, err)
	}
	if err := p.occRepo.MarkRouted(ctx, tx, occ.ID); err != nil {
		return fmt.Errorf("failed to mark occurrence routed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit routing: %w", err)
	}
	return nil
}

// createdThisTicket reports, from durable state, whether this occurrence's
// stitch created the ticket it points at. A retried routing job carries a
// fresh payload, so the decision rests on the canonical stitch reason and on
// whether a sibling occurrence of the ticket already routed.
func (p *Pipeline) createdThisTicket(ctx context.Context, tx *sql.Tx, occ *domain.MessageOccurrence) (bool, error) {
	if occ.CanonicalMessageID == nil {
		return false, nil
	}
	canonical, err := p.canonicalRepo.GetByID(ctx, occ.OrganizationID, *occ.CanonicalMessageID)
	if err != nil {
		return false, fmt.Errorf("failed to load canonical message: %w", err)
	}
	if canonical.StitchReason != domain.StitchReasonNewTicket ||
		canonical.TicketID == nil || *canonical.TicketID != *occ.TicketID {
		return false, nil
	}
	routed, err := p.occRepo.HasRoutedSibling(ctx, tx, occ.OrganizationID, *occ.TicketID, occ.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check routed siblings: %w", err)
	}
	return !routed, nil
}

func (p *Pipeline) markSpam(ctx context.Context, tx *sql.Tx, occ *domain.MessageOccurrence, ticket *domain.Ticket, recipient string, now time.Time) error {
	if err := p.ticketRepo.UpdateStatus(ctx, tx, ticket.OrganizationID, ticket.ID, domain.TicketStatusSpam, &now); err != nil {
		return fmt.Errorf("failed to mark ticket spam: %w", err)
	}
	eventPayload, _ := json.Marshal(map[string]interface{}{
		"recipient":        recipient,
		"recipient_source": string(occ.RecipientSource),
	})
	if err := p.ticketRepo.InsertEvent(ctx, tx, &domain.TicketEvent{
		OrganizationID: ticket.OrganizationID,
		TicketID:       ticket.ID,
		Kind:           domain.TicketEventAutoSpam,
		Payload:        eventPayload,
	}); err != nil {
		return fmt.Errorf("failed to insert auto_spam event: %w", err)
	}
	if err := p.occRepo.MarkRouted(ctx, tx, occ.ID); err != nil {
		return fmt.Errorf("failed to mark occurrence routed: %w", err)
	}
	return nil
}

// dropTicket hard-deletes the ticket and detaches its links. The occurrence
// still advances to routed.
func (p *Pipeline) dropTicket(ctx context.Context, tx *sql.Tx, occ *domain.MessageOccurrence, ticket *domain.Ticket) error {
	if occ.CanonicalMessageID != nil {
		if err := p.canonicalRepo.ClearTicketLink(ctx, tx, ticket.OrganizationID, *occ.CanonicalMessageID); err != nil {
			return fmt.Errorf("failed to clear canonical ticket link: %w", err)
		}
	}
	if err := p.occRepo.ClearTicketLink(ctx, tx, occ.ID); err != nil {
		return fmt.Errorf("failed to clear occurrence ticket link: %w", err)
	}
	if err := p.ticketRepo.Delete(ctx, tx, ticket.OrganizationID, ticket.ID); err != nil {
		return fmt.Errorf("failed to delete dropped ticket: %w", err)
	}
	return nil
}

// applyRule commits the first matching rule's actions atomically. A rule
// assigning a missing queue fails closed and retries.
func (p *Pipeline) applyRule(ctx context.Context, tx *sql.Tx, occ *domain.MessageOccurrence, ticket *domain.Ticket, rule *domain.RoutingRule, now time.Time) error {
	before := ticketSnapshot(ticket)

	if rule.AssignQueueID != nil {
		if _, err := p.ticketRepo.GetQueue(ctx, tx, ticket.OrganizationID, *rule.AssignQueueID); err != nil {
			return fmt.Errorf("rule %s assigns queue %s: %w", rule.ID, *rule.AssignQueueID, err)
		}
	}
	if rule.AssignQueueID != nil || rule.AssignUserID != nil {
		assignment := domain.TicketAssignment{QueueID: rule.AssignQueueID, UserID: rule.AssignUserID}
		if rule.AssignQueueID != nil {
			// Queue and user are mutually exclusive; queue wins a
			// misconfigured rule carrying both.
			assignment.UserID = nil
		}
		if err := p.ticketRepo.UpdateAssignment(ctx, tx, ticket.OrganizationID, ticket.ID, assignment); err != nil {
			return fmt.Errorf("failed to assign ticket: %w", err)
		}
		ticket.AssigneeQueueID = assignment.QueueID
		ticket.AssigneeUserID = assignment.UserID
	}

	newStatus := ticket.Status
	var closedAt *time.Time
	if rule.SetStatus != "" {
		if !domain.ValidTicketStatus(rule.SetStatus) {
			return fmt.Errorf("rule %s sets unknown status %q", rule.ID, rule.SetStatus)
		}
		newStatus = rule.SetStatus
	}
	if rule.AutoClose {
		newStatus = domain.TicketStatusClosed
	}
	if newStatus != ticket.Status {
		if newStatus == domain.TicketStatusClosed {
			closedAt = &now
		}
		if err := p.ticketRepo.UpdateStatus(ctx, tx, ticket.OrganizationID, ticket.ID, newStatus, closedAt); err != nil {
			return fmt.Errorf("failed to set ticket status: %w", err)
		}
		ticket.Status = newStatus
		ticket.ClosedAt = closedAt
	}

	if rule.AutoClose {
		if err := p.ticketRepo.InsertEvent(ctx, tx, &domain.TicketEvent{
			OrganizationID: ticket.OrganizationID,
			TicketID:       ticket.ID,
			Kind:           domain.TicketEventAutoClosed,
			Payload:        json.RawMessage(fmt.Sprintf(`{"rule_id":%q}`, rule.ID)),
		}); err != nil {
			return fmt.Errorf("failed to insert auto_closed event: %w", err)
		}
	}

	eventPayload, _ := json.Marshal(map[string]interface{}{
		"rule_id":   rule.ID,
		"rule_name": rule.Name,
		"actions":   ruleActions(rule),
		"before":    before,
		"after":     ticketSnapshot(ticket),
	})
	if err := p.ticketRepo.InsertEvent(ctx, tx, &domain.TicketEvent{
		OrganizationID: ticket.OrganizationID,
		TicketID:       ticket.ID,
		Kind:           domain.TicketEventRoutingApplied,
		Payload:        eventPayload,
	}); err != nil {
		return fmt.Errorf("failed to insert routing_applied event: %w", err)
	}
	return nil
}

func ticketSnapshot(ticket *domain.Ticket) map[string]interface{} {
	return map[string]interface{}{
		"status":            string(ticket.Status),
		"assignee_user_id":  ticket.AssigneeUserID,
		"assignee_queue_id": ticket.AssigneeQueueID,
	}
}
