package ingest

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/ossdesk/ossdesk/internal/domain"
)

const journalAddr = "journal@acme.test"

func testOrg() *domain.Organization {
	return &domain.Organization{
		ID:          "org-1",
		Name:        "Acme",
		MailDomains: pq.StringArray{"acme.test", "acme.example"},
	}
}

func parsedWithHeaders(headers domain.HeaderMap) *ParsedEmail {
	return &ParsedEmail{
		Headers: headers,
		To:      ParseAddressList("outsider@elsewhere.test"),
	}
}

func TestResolveRecipientWorkspaceHeader(t *testing.T) {
	parsed := parsedWithHeaders(domain.HeaderMap{
		"x-gm-original-to": {"<Support@Acme.test>"},
		"delivered-to":     {"journal@acme.test"},
	})

	r := ResolveRecipient(parsed, testOrg(), journalAddr)
	assert.Equal(t, "support@acme.test", r.Recipient)
	assert.Equal(t, domain.RecipientSourceWorkspaceHeader, r.Source)
	assert.Equal(t, domain.ConfidenceHigh, r.Confidence)
	assert.Equal(t, "workspace_header", r.Evidence.SelectedFrom)
	assert.Equal(t, "support@acme.test", r.Evidence.SelectedValue)
}

func TestResolveRecipientDeliveredToSkipsJournal(t *testing.T) {
	parsed := parsedWithHeaders(domain.HeaderMap{
		"delivered-to": {"journal@acme.test", "billing@acme.test"},
	})

	r := ResolveRecipient(parsed, testOrg(), journalAddr)
	assert.Equal(t, "billing@acme.test", r.Recipient)
	assert.Equal(t, domain.RecipientSourceDeliveredTo, r.Source)
	assert.Equal(t, domain.ConfidenceMedium, r.Confidence)
}

func TestResolveRecipientXOriginalTo(t *testing.T) {
	parsed := parsedWithHeaders(domain.HeaderMap{
		"x-original-to": {"help@acme.test"},
	})

	r := ResolveRecipient(parsed, testOrg(), journalAddr)
	assert.Equal(t, "help@acme.test", r.Recipient)
	assert.Equal(t, domain.RecipientSourceXOriginalTo, r.Source)
	assert.Equal(t, domain.ConfidenceMedium, r.Confidence)
}

func TestResolveRecipientToCcScan(t *testing.T) {
	parsed := &ParsedEmail{
		Headers: domain.HeaderMap{},
		To:      ParseAddressList("outsider@elsewhere.test, support@acme.test"),
		Cc:      ParseAddressList("cc@acme.example"),
	}

	r := ResolveRecipient(parsed, testOrg(), journalAddr)
	assert.Equal(t, "support@acme.test", r.Recipient)
	assert.Equal(t, domain.RecipientSourceToCcScan, r.Source)
	assert.Equal(t, domain.ConfidenceLow, r.Confidence)
}

func TestResolveRecipientToCcScanSkipsJournal(t *testing.T) {
	parsed := &ParsedEmail{
		Headers: domain.HeaderMap{},
		To:      ParseAddressList("journal@acme.test"),
		Cc:      ParseAddressList("other@acme.example"),
	}

	r := ResolveRecipient(parsed, testOrg(), journalAddr)
	assert.Equal(t, "other@acme.example", r.Recipient)
	assert.Equal(t, domain.RecipientSourceToCcScan, r.Source)
}

func TestResolveRecipientUnknown(t *testing.T) {
	parsed := parsedWithHeaders(domain.HeaderMap{})

	r := ResolveRecipient(parsed, testOrg(), journalAddr)
	assert.Empty(t, r.Recipient)
	assert.Equal(t, domain.RecipientSourceUnknown, r.Source)
	assert.Equal(t, domain.ConfidenceLow, r.Confidence)
	assert.Equal(t, "unknown", r.Evidence.SelectedFrom)
	// Candidates are still recorded for later inspection.
	assert.Equal(t, []string{"outsider@elsewhere.test"}, r.Evidence.ToValues)
}

func TestResolveRecipientPrecedence(t *testing.T) {
	parsed := &ParsedEmail{
		Headers: domain.HeaderMap{
			"x-gm-original-to": {"high@acme.test"},
			"delivered-to":     {"medium@acme.test"},
			"x-original-to":    {"alsomedium@acme.test"},
		},
		To: ParseAddressList("low@acme.test"),
	}

	r := ResolveRecipient(parsed, testOrg(), journalAddr)
	assert.Equal(t, "high@acme.test", r.Recipient)
	assert.Equal(t, domain.RecipientSourceWorkspaceHeader, r.Source)
}
