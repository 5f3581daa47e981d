package ingest

import (
	"strings"

	"golang.org/x/net/html"
)

// SanitizerRevision is recorded on canonical messages together with the
// parser version so a stored body can always be traced to the allowlist
// that produced it.
const SanitizerRevision = "allowlist-v1"

// allowedTags is the sanitizer tag allowlist. Anything else is stripped,
// keeping its text content except for the drop list below.
var allowedTags = map[string]bool{
	"a": true, "p": true, "br": true, "div": true, "span": true,
	"strong": true, "em": true, "b": true, "i": true,
	"ul": true, "ol": true, "li": true, "blockquote": true,
	"code": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "thead": true, "tbody": true, "tr": true, "td": true, "th": true,
	"hr": true, "img": true,
}

// droppedContent lists elements whose inner content must vanish entirely,
// not just their tags.
var droppedContent = map[string]bool{
	"script": true, "style": true, "head": true, "title": true,
	"iframe": true, "frame": true, "frameset": true, "object": true,
	"embed": true, "noscript": true, "svg": true, "math": true,
}

var voidTags = map[string]bool{"br": true, "hr": true, "img": true}

// SanitizeHTML renders an HTML body through the allowlist: scripts, event
// handlers, styles, remote loads and frames are removed; anchors keep only
// http/https/mailto hrefs; images keep only cid: sources. The output is
// deterministic for a given input and revision.
func SanitizeHTML(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var out strings.Builder
	dropDepth := 0

	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			// Truncated markup ends the walk; whatever was emitted so
			// far is already safe.
			break
		}
		token := tokenizer.Token()

		switch tokenType {
		case html.StartTagToken, html.SelfClosingTagToken:
			if droppedContent[token.Data] {
				if tokenType == html.StartTagToken && !voidTags[token.Data] {
					dropDepth++
				}
				continue
			}
			if dropDepth > 0 || !allowedTags[token.Data] {
				continue
			}
			writeTag(&out, token, tokenType == html.SelfClosingTagToken)
		case html.EndTagToken:
			if droppedContent[token.Data] {
				if dropDepth > 0 {
					dropDepth--
				}
				continue
			}
			if dropDepth > 0 || !allowedTags[token.Data] || voidTags[token.Data] {
				continue
			}
			out.WriteString("</" + token.Data + ">")
		case html.TextToken:
			if dropDepth > 0 {
				continue
			}
			out.WriteString(html.EscapeString(token.Data))
		}
		// Comments and doctypes fall through and are dropped.
	}

	return strings.TrimSpace(out.String())
}

func writeTag(out *strings.Builder, token html.Token, selfClosing bool) {
	out.WriteString("<" + token.Data)
	for _, attr := range token.Attr {
		value, ok := sanitizeAttr(token.Data, attr.Key, attr.Val)
		if !ok {
			continue
		}
		out.WriteString(" " + attr.Key + `="` + html.EscapeString(value) + `"`)
	}
	if selfClosing || voidTags[token.Data] {
		out.WriteString("/>")
		return
	}
	out.WriteString(">")
}

func sanitizeAttr(tag, name, value string) (string, bool) {
	name = strings.ToLower(name)
	trimmed := strings.TrimSpace(value)
	switch {
	case tag == "a" && name == "href":
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:") {
			return trimmed, true
		}
		return "", false
	case tag == "img" && name == "src":
		// Only inline cid: references; remote image loads are tracking
		// vectors.
		if strings.HasPrefix(strings.ToLower(trimmed), "cid:") {
			return trimmed, true
		}
		return "", false
	case name == "title" || name == "alt":
		return value, true
	case tag == "a" && (name == "rel" || name == "target"):
		return value, true
	}
	return "", false
}

// HTMLToText extracts readable text from an HTML body for fingerprinting
// and snippets when no text/plain part exists.
func HTMLToText(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var parts []string
	dropDepth := 0

	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			break
		}
		token := tokenizer.Token()
		switch tokenType {
		case html.StartTagToken:
			if droppedContent[token.Data] && !voidTags[token.Data] {
				dropDepth++
			}
		case html.EndTagToken:
			if droppedContent[token.Data] && dropDepth > 0 {
				dropDepth--
			}
		case html.TextToken:
			if dropDepth > 0 {
				continue
			}
			if text := strings.TrimSpace(token.Data); text != "" {
				parts = append(parts, text)
			}
		}
	}

	return strings.Join(parts, " ")
}
