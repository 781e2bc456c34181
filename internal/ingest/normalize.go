// Package ingest turns raw CSV conversation exports into embedded corpus
// messages: normalization, PII redaction, thread/turn assignment, rolling
// context windows, and the batch embedding pipeline that writes to the
// vector store.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

var (
	zeroWidthRe   = regexp.MustCompile("[​-‍\uFEFF]")
	whitespaceRe  = regexp.MustCompile(`\s+`)
	repeatPunctRe = regexp.MustCompile(`([!?.]){2,}`)

	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
)

// NormalizeText collapses whitespace, strips zero-width characters, and
// squashes repeated terminal punctuation ("!!!" → "!").
func NormalizeText(text string) string {
	t := strings.ReplaceAll(text, "\r\n", "\n")
	t = strings.ReplaceAll(t, "\r", "\n")
	t = strings.TrimSpace(t)
	t = zeroWidthRe.ReplaceAllString(t, "")
	t = whitespaceRe.ReplaceAllString(t, " ")
	t = repeatPunctRe.ReplaceAllString(t, "$1")
	return t
}

// PIIHashes records which kinds of PII were redacted from a message, keyed
// by kind ("emails", "phones") with the SHA-256 of the first occurrence.
// The hash lets two messages be linked to the same contact without storing
// the contact itself.
type PIIHashes map[string]string

// RedactPII replaces emails and phone numbers with hash tags
// ("[EMAIL_HASH:<sha256>]") and returns the redacted text plus the hashes.
func RedactPII(text string) (string, PIIHashes) {
	pii := PIIHashes{}

	redacted := emailRe.ReplaceAllStringFunc(text, func(v string) string {
		h := sha256Hex(v)
		if _, ok := pii["emails"]; !ok {
			pii["emails"] = h
		}
		return "[EMAIL_HASH:" + h + "]"
	})
	redacted = phoneRe.ReplaceAllStringFunc(redacted, func(v string) string {
		h := sha256Hex(v)
		if _, ok := pii["phones"]; !ok {
			pii["phones"] = h
		}
		return "[PHONE_HASH:" + h + "]"
	})

	return redacted, pii
}

func sha256Hex(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// timestampLayouts are the date formats CRM exports have been seen to use.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"01/02/06",
}

// ParseTimestamp parses an export timestamp in any known layout, returning
// the zero time when the value is empty or unparseable. Unparseable dates
// are tolerated — a message without a timestamp just gets no recency signal.
func ParseTimestamp(value string) time.Time {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
