package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/ossdesk/ossdesk/internal/domain"
	"github.com/ossdesk/ossdesk/internal/service/ingest"
)

// recipientAllowed reports whether the recipient matches any enabled
// allowlist pattern. Patterns glob-match the lowercased address.
func recipientAllowed(entries []*domain.AllowlistEntry, recipient string) bool {
	candidate := strings.ToLower(strings.TrimSpace(recipient))
	if candidate == "" {
		return false
	}
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if globMatch(entry.Pattern, candidate) {
			return true
		}
	}
	return false
}

// firstMatchingRule walks rules in the repository's priority order and
// returns the first whose predicates all hold, or nil.
func firstMatchingRule(rules []*domain.RoutingRule, recipient, senderEmail string, direction domain.MessageDirection) *domain.RoutingRule {
	for _, rule := range rules {
		if ruleMatches(rule, recipient, senderEmail, direction) {
			return rule
		}
	}
	return nil
}

// ruleMatches applies the rule predicates: empty predicates match, non-empty
// ones glob-match lowercased values.
func ruleMatches(rule *domain.RoutingRule, recipient, senderEmail string, direction domain.MessageDirection) bool {
	if rule.RecipientPattern != "" && !globMatch(rule.RecipientPattern, recipient) {
		return false
	}
	if rule.SenderDomainPattern != "" && !globMatch(rule.SenderDomainPattern, ingest.EmailDomain(senderEmail)) {
		return false
	}
	if rule.SenderEmailPattern != "" && !globMatch(rule.SenderEmailPattern, senderEmail) {
		return false
	}
	if rule.Direction != "" && rule.Direction != direction {
		return false
	}
	return true
}

func globMatch(pattern, value string) bool {
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(strings.TrimSpace(value)))
	return err == nil && ok
}

// ruleActions describes what a rule does, for events and the simulator.
func ruleActions(rule *domain.RoutingRule) []domain.AppliedAction {
	var actions []domain.AppliedAction
	if rule.Drop {
		return append(actions, domain.AppliedAction{Kind: "drop"})
	}
	if rule.AssignQueueID != nil {
		actions = append(actions, domain.AppliedAction{Kind: "assign_queue", Value: *rule.AssignQueueID})
	}
	if rule.AssignUserID != nil {
		actions = append(actions, domain.AppliedAction{Kind: "assign_user", Value: *rule.AssignUserID})
	}
	if rule.SetStatus != "" {
		actions = append(actions, domain.AppliedAction{Kind: "set_status", Value: string(rule.SetStatus)})
	}
	if rule.AutoClose {
		actions = append(actions, domain.AppliedAction{Kind: "auto_close"})
	}
	return actions
}

// SimulateRouting runs the routing evaluator without committing anything.
// The route stage and the simulator share the same matching code, so the
// verdict here is the verdict a real occurrence would get.
func (p *Pipeline) SimulateRouting(ctx context.Context, req *domain.SimulateRoutingRequest) (*domain.SimulateRoutingResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	direction := req.Direction
	if direction == "" {
		direction = domain.DirectionInbound
	}

	allowlist, err := p.routingRepo.ListAllowlist(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allowlist: %w", err)
	}

	result := &domain.SimulateRoutingResult{
		Allowlisted:    recipientAllowed(allowlist, req.Recipient),
		AppliedActions: []domain.AppliedAction{},
	}
	if !result.Allowlisted {
		result.WouldMarkSpam = true
		result.Explanation = "recipient matches no enabled allowlist pattern; ticket would be marked spam"
		return result, nil
	}

	rules, err := p.routingRepo.ListRules(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load routing rules: %w", err)
	}

	matched := firstMatchingRule(rules, req.Recipient, req.SenderEmail, direction)
	if matched == nil {
		result.Explanation = "allowlisted; no routing rule matches, ticket stays unassigned"
		return result, nil
	}

	result.MatchedRule = matched
	result.AppliedActions = ruleActions(matched)
	result.Explanation = fmt.Sprintf("allowlisted; rule %q (priority %d) matches first", matched.Name, matched.Priority)
	return result, nil
}
