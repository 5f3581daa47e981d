package ingest

import (
	"bytes"
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// decodeCharset converts part bytes to UTF-8 using the declared charset.
// Unknown or broken charsets fall back to the raw bytes: a best-effort body
// beats a failed parse for journal mail.
func decodeCharset(data []byte, charset string) []byte {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" || charset == "ascii" {
		return data
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return data
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return data
	}
	return decoded
}

// decodeHeader resolves RFC 2047 encoded words, converting any declared
// charset through the same html index.
func decodeHeader(raw string) string {
	dec := &mime.WordDecoder{
		CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(charset)
			if err != nil {
				return input, nil
			}
			return transform.NewReader(input, enc.NewDecoder()), nil
		},
	}
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}
