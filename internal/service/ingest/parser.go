package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/ossdesk/ossdesk/internal/domain"
)

const snippetLength = 160

// nesting bound for multipart walks; real mail rarely exceeds 4-5 levels.
const maxPartDepth = 16

// Parse decodes raw RFC822 bytes into a ParsedEmail. Errors are malformed
// MIME and are terminal for the occurrence: the caller records them and
// never retries.
func Parse(raw []byte) (*ParsedEmail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	parsed := &ParsedEmail{
		Headers: collectHeaders(msg.Header),
	}

	parsed.Subject = decodeHeader(msg.Header.Get("Subject"))
	parsed.SubjectNorm = NormalizeSubject(parsed.Subject)

	if from := ParseAddressList(msg.Header.Get("From")); len(from) > 0 {
		parsed.FromEmail = from[0].Email
		parsed.FromName = from[0].Name
	}
	parsed.To = ParseAddressList(msg.Header.Get("To"))
	parsed.Cc = ParseAddressList(msg.Header.Get("Cc"))
	parsed.ReplyTo = ParseAddressList(msg.Header.Get("Reply-To"))

	if dateStr := msg.Header.Get("Date"); dateStr != "" {
		if t, err := mail.ParseDate(dateStr); err == nil {
			utc := t.UTC()
			parsed.Date = &utc
		}
	}

	if ids := NormalizeMessageIDs(msg.Header.Get("Message-Id")); len(ids) > 0 {
		parsed.RFCMessageID = ids[0]
	}
	if ids := NormalizeMessageIDs(msg.Header.Get("In-Reply-To")); len(ids) > 0 {
		parsed.InReplyTo = ids[0]
	}
	parsed.References = NormalizeMessageIDs(msg.Header.Get("References"))

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	var bodyText, bodyHTML strings.Builder
	if err := walkPart(parsed, &bodyText, &bodyHTML, partHeader{
		contentType:      contentType,
		transferEncoding: msg.Header.Get("Content-Transfer-Encoding"),
	}, body, 0); err != nil {
		return nil, err
	}

	parsed.BodyText = strings.TrimSpace(bodyText.String())
	rawHTML := strings.TrimSpace(bodyHTML.String())
	if rawHTML != "" {
		parsed.BodyHTMLSanitized = SanitizeHTML(rawHTML)
		if parsed.BodyText == "" {
			parsed.BodyText = HTMLToText(rawHTML)
		}
	}
	parsed.Snippet = Snippet(parsed.BodyText, snippetLength)

	return parsed, nil
}

// collectHeaders lowercases header names and decodes every value; multi
// valued headers keep their order.
func collectHeaders(header mail.Header) domain.HeaderMap {
	out := make(domain.HeaderMap, len(header))
	for name, values := range header {
		key := strings.ToLower(name)
		decoded := make([]string, 0, len(values))
		for _, v := range values {
			decoded = append(decoded, decodeHeader(v))
		}
		out[key] = decoded
	}
	return out
}

type partHeader struct {
	contentType      string
	transferEncoding string
	disposition      string
	dispositionParam map[string]string
	contentID        string
}

func walkPart(parsed *ParsedEmail, bodyText, bodyHTML *strings.Builder, hdr partHeader, content []byte, depth int) error {
	if depth > maxPartDepth {
		return fmt.Errorf("multipart nesting exceeds %d levels", maxPartDepth)
	}

	mediaType, params, err := mime.ParseMediaType(hdr.contentType)
	if err != nil {
		mediaType = "text/plain"
		params = nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart part without boundary")
		}
		reader := multipart.NewReader(bytes.NewReader(content), boundary)
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading multipart: %w", err)
			}
			partBody, err := io.ReadAll(part)
			if err != nil {
				return fmt.Errorf("reading part body: %w", err)
			}
			disposition, dispositionParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
			child := partHeader{
				contentType:      part.Header.Get("Content-Type"),
				transferEncoding: part.Header.Get("Content-Transfer-Encoding"),
				disposition:      disposition,
				dispositionParam: dispositionParams,
				contentID:        strings.Trim(part.Header.Get("Content-Id"), "<>"),
			}
			if child.contentType == "" {
				child.contentType = "text/plain"
			}
			if err := walkPart(parsed, bodyText, bodyHTML, child, partBody, depth+1); err != nil {
				return err
			}
		}
	}

	decoded, err := decodeTransfer(content, hdr.transferEncoding)
	if err != nil {
		return fmt.Errorf("decoding %s part: %w", hdr.transferEncoding, err)
	}

	isAttachment := hdr.disposition == "attachment"
	isInline := hdr.disposition == "inline" && hdr.contentID != ""

	if !isAttachment && !isInline && strings.HasPrefix(mediaType, "text/") {
		text := string(decodeCharset(decoded, params["charset"]))
		switch mediaType {
		case "text/plain":
			bodyText.WriteString(text)
		case "text/html":
			bodyHTML.WriteString(text)
		}
		return nil
	}

	filename := ""
	if hdr.dispositionParam != nil {
		filename = hdr.dispositionParam["filename"]
	}
	if filename == "" {
		filename = params["name"]
	}
	parsed.Attachments = append(parsed.Attachments, ParsedAttachment{
		Filename:    decodeHeader(filename),
		ContentType: mediaType,
		Payload:     decoded,
		IsInline:    isInline,
		ContentID:   hdr.contentID,
	})
	return nil
}

func decodeTransfer(content []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		cleaned := strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, string(content))
		return base64.StdEncoding.DecodeString(cleaned)
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(bytes.NewReader(content)))
	default:
		// 7bit, 8bit, binary and absent all mean identity.
		return content, nil
	}
}
