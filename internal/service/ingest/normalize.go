package ingest

import (
	"net/mail"
	"regexp"
	"sort"
	"strings"

	"github.com/ossdesk/ossdesk/internal/domain"
)

var subjectPrefixRe = regexp.MustCompile(`(?i)^\s*(re|fw|fwd)\s*:\s*`)

// NormalizeSubject strips reply/forward prefixes repeatedly and collapses
// internal whitespace. Normalization feeds both the fingerprint and the
// subject_match stitch rule, so it must be deterministic.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := subjectPrefixRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the lowercased domain part of an address, or "".
func EmailDomain(email string) string {
	e := NormalizeEmail(email)
	if i := strings.LastIndex(e, "@"); i >= 0 && i < len(e)-1 {
		return e[i+1:]
	}
	return ""
}

// ParseAddressList decodes a raw header value into normalized addresses.
// Unparseable input yields an empty list rather than an error: journal mail
// routinely carries malformed address headers.
func ParseAddressList(raw string) domain.AddressList {
	if strings.TrimSpace(raw) == "" {
		return domain.AddressList{}
	}
	addrs, err := mail.ParseAddressList(raw)
	if err != nil {
		return domain.AddressList{}
	}
	out := make(domain.AddressList, 0, len(addrs))
	for _, a := range addrs {
		email := NormalizeEmail(a.Address)
		if email == "" {
			continue
		}
		out = append(out, domain.EmailAddress{Email: email, Name: strings.TrimSpace(a.Name)})
	}
	return out
}

// SortedRecipientEmails merges to and cc into one deduplicated, sorted list
// of normalized addresses. Fingerprint input: order and duplicates on the
// wire must not change identity.
func SortedRecipientEmails(to, cc domain.AddressList) []string {
	seen := make(map[string]struct{}, len(to)+len(cc))
	var out []string
	for _, list := range []domain.AddressList{to, cc} {
		for _, a := range list {
			if _, ok := seen[a.Email]; ok {
				continue
			}
			seen[a.Email] = struct{}{}
			out = append(out, a.Email)
		}
	}
	sort.Strings(out)
	return out
}

// NormalizeMessageIDs splits a References-style header into bare
// <id> tokens, keeping the angle brackets as they appear in indexes.
func NormalizeMessageIDs(raw string) []string {
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if strings.HasPrefix(f, "<") && strings.HasSuffix(f, ">") && len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// Snippet returns the first n runes of body text collapsed to single
// spaces.
func Snippet(bodyText string, n int) string {
	s := strings.Join(strings.Fields(bodyText), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
