package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// fingerprintBodyPrefix bounds how much body text feeds the fingerprint.
// The full body hash is stored separately and disambiguates collisions.
const fingerprintBodyPrefix = 64 * 1024

// fingerprintInput is serialized as canonical JSON (fixed field order, no
// indirection) and hashed. Message-ID is deliberately absent: Workspace
// rewrites it across delivery paths.
type fingerprintInput struct {
	Subject    string   `json:"subject"`
	From       string   `json:"from"`
	Date       string   `json:"date"`
	Recipients []string `json:"recipients"`
	BodyHash   string   `json:"body_hash_64k"`
}

// FingerprintV1 computes the canonical message identity hash over the
// normalized tuple ⟨subject, from, date at second precision UTC, sorted
// to+cc, sha256 of the first 64 KiB of body text⟩.
func FingerprintV1(parsed *ParsedEmail) string {
	input := fingerprintInput{
		Subject:    parsed.SubjectNorm,
		From:       NormalizeEmail(parsed.FromEmail),
		Recipients: SortedRecipientEmails(parsed.To, parsed.Cc),
		BodyHash:   bodyPrefixHash(parsed.BodyText),
	}
	if parsed.Date != nil {
		input.Date = parsed.Date.UTC().Truncate(time.Second).Format(time.RFC3339)
	}

	// encoding/json marshals struct fields in declaration order, which
	// keeps the byte stream stable across runs.
	payload, err := json.Marshal(input)
	if err != nil {
		// Marshalling a flat struct of strings cannot fail.
		panic(fmt.Sprintf("fingerprint marshal: %v", err))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// BodyHash is the sha256 of the full trimmed body text. Stored next to the
// fingerprint; rows sharing a fingerprint with different body hashes form a
// collision group.
func BodyHash(bodyText string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(bodyText)))
	return hex.EncodeToString(sum[:])
}

func bodyPrefixHash(bodyText string) string {
	b := []byte(strings.TrimSpace(bodyText))
	if len(b) > fingerprintBodyPrefix {
		b = b[:fingerprintBodyPrefix]
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ContentHash is the sha256 hex of arbitrary payload bytes; used for raw
// messages and attachment payloads alike.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
