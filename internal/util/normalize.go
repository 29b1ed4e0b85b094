package util

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ParseSenderHeader splits a From-style header into a lowercased address and
// a display name.
// - "Jane Doe <Jane.Doe@Strathmore.edu>" -> ("jane.doe@strathmore.edu", "Jane Doe")
// - `"Jane" <j@x.com>` -> ("j@x.com", "Jane")
// - "j@x.com" -> ("j@x.com", "j@x.com")
// Without angle brackets the whole header is the address. The display name is
// whatever precedes '<' with surrounding quotes stripped.
func ParseSenderHeader(header string) (email, name string) {
	if header == "" {
		return "", ""
	}
	email = header
	if lt := strings.IndexByte(header, '<'); lt >= 0 {
		if gt := strings.IndexByte(header[lt+1:], '>'); gt > 0 {
			email = header[lt+1 : lt+1+gt]
		}
	}
	email = strings.ToLower(strings.TrimSpace(email))

	name = header
	if lt := strings.IndexByte(header, '<'); lt >= 0 {
		name = header[:lt]
	}
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, `"`)
	name = strings.TrimSuffix(name, `"`)
	return email, name
}

// PrettyNameFromEmail turns the local part of an address into a display name:
// "jane.doe_k@x.com" -> "Jane Doe K".
func PrettyNameFromEmail(email string) string {
	if email == "" {
		return ""
	}
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	tokens := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, t := range tokens {
		r, size := utf8.DecodeRuneInString(t)
		tokens[i] = string(unicode.ToUpper(r)) + t[size:]
	}
	return strings.Join(tokens, " ")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts the RFC 3339 timestamps the feed emits as well as the
// RFC 5322 Date header formats mail clients use. ok is false when nothing
// matched.
func ParseTimestamp(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
