package ingest

import (
	"strings"

	"github.com/ossdesk/ossdesk/internal/domain"
)

// ResolveRecipient determines which mailbox address a journaled message was
// originally addressed to. Journal delivery rewrites the envelope, so the
// answer comes from trace headers in strict precedence order:
//
//	X-Gm-Original-To   high   Workspace's own record of the original envelope
//	Delivered-To       medium skips the journal address itself
//	X-Original-To      medium set by some relay hops
//	To/Cc domain scan  low    first address in an org-owned domain
//
// When nothing matches, the recipient is unknown at low confidence and the
// router treats the message as spam.
func ResolveRecipient(parsed *ParsedEmail, org *domain.Organization, journalAddress string) domain.ResolvedRecipient {
	journal := NormalizeEmail(journalAddress)

	evidence := domain.RecipientEvidence{
		WorkspaceHeaderValues: headerEmails(parsed.Headers, "x-gm-original-to"),
		DeliveredToValues:     headerEmails(parsed.Headers, "delivered-to"),
		XOriginalToValues:     headerEmails(parsed.Headers, "x-original-to"),
		ToValues:              parsed.To.Emails(),
		CcValues:              parsed.Cc.Emails(),
	}

	pick := func(value string, source domain.RecipientSource, confidence domain.RecipientConfidence) domain.ResolvedRecipient {
		evidence.SelectedFrom = string(source)
		evidence.SelectedValue = value
		return domain.ResolvedRecipient{
			Recipient:  value,
			Source:     source,
			Confidence: confidence,
			Evidence:   evidence,
		}
	}

	for _, v := range evidence.WorkspaceHeaderValues {
		if v != journal {
			return pick(v, domain.RecipientSourceWorkspaceHeader, domain.ConfidenceHigh)
		}
	}
	for _, v := range evidence.DeliveredToValues {
		// Delivered-To accumulates one entry per hop; the journal mailbox's
		// own entry is the delivery we are processing, not the original.
		if v != journal {
			return pick(v, domain.RecipientSourceDeliveredTo, domain.ConfidenceMedium)
		}
	}
	for _, v := range evidence.XOriginalToValues {
		if v != journal {
			return pick(v, domain.RecipientSourceXOriginalTo, domain.ConfidenceMedium)
		}
	}

	if org != nil {
		for _, list := range []domain.AddressList{parsed.To, parsed.Cc} {
			for _, addr := range list {
				if addr.Email == journal {
					continue
				}
				if org.OwnsMailDomain(EmailDomain(addr.Email)) {
					return pick(addr.Email, domain.RecipientSourceToCcScan, domain.ConfidenceLow)
				}
			}
		}
	}

	evidence.SelectedFrom = string(domain.RecipientSourceUnknown)
	return domain.ResolvedRecipient{
		Source:     domain.RecipientSourceUnknown,
		Confidence: domain.ConfidenceLow,
		Evidence:   evidence,
	}
}

// headerEmails extracts normalized addresses from every instance of a trace
// header. Values are plain addresses, not RFC address lists, but some agents
// wrap them in angle brackets anyway.
func headerEmails(headers domain.HeaderMap, name string) []string {
	var out []string
	for _, raw := range headers[name] {
		v := strings.Trim(strings.TrimSpace(raw), "<>")
		if v = NormalizeEmail(v); v != "" && strings.Contains(v, "@") {
			out = append(out, v)
		}
	}
	return out
}
