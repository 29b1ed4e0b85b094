package gmail

import (
	"encoding/base64"
	"fmt"
	"mime"
	"regexp"
	"strings"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// header returns the first value of the named header, case-insensitively.
func header(part *gmailv1.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// messageBody returns the readable text of a message: text/plain when
// present, otherwise stripped text/html, otherwise the snippet.
func messageBody(msg *gmailv1.Message) string {
	if msg == nil {
		return ""
	}
	if text := findPart(msg.Payload, "text/plain"); text != "" {
		return strings.TrimSpace(text)
	}
	if html := findPart(msg.Payload, "text/html"); html != "" {
		if text := stripHTMLTags(html); text != "" {
			return text
		}
	}
	return strings.TrimSpace(msg.Snippet)
}

// findPart walks the MIME tree depth first, checking direct children before
// descending so multipart/alternative yields its own text/plain first.
func findPart(part *gmailv1.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}
	for _, sub := range part.Parts {
		if strings.EqualFold(sub.MimeType, mimeType) && sub.Body != nil && sub.Body.Data != "" {
			return decodeBase64URL(sub.Body.Data)
		}
	}
	for _, sub := range part.Parts {
		if body := findPart(sub, mimeType); body != "" {
			return body
		}
	}
	return ""
}

var (
	blockTag   = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|tr|li|h[1-6])>`)
	anyTag     = regexp.MustCompile(`<[^>]*>`)
	extraBlank = regexp.MustCompile(`\n{3,}`)

	entities = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&apos;", "'",
		"&nbsp;", " ",
	)
)

// stripHTMLTags reduces an HTML body to plain text with paragraph breaks.
func stripHTMLTags(html string) string {
	text := blockTag.ReplaceAllString(html, "\n")
	text = anyTag.ReplaceAllString(text, "")
	text = entities.Replace(text)
	text = extraBlank.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Gmail returns unpadded base64url, but padded data shows up in older mail.
func decodeBase64URL(data string) string {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(b)
}

// replySubject prefixes "Re: " unless the subject already carries it.
func replySubject(subject string) string {
	s := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(s), "re:") {
		return s
	}
	if s == "" {
		return "Re: (no subject)"
	}
	return "Re: " + s
}

// stripReplyPrefix undoes replySubject so a sent reply can be matched to its
// thread by subject.
func stripReplyPrefix(subject string) string {
	s := strings.TrimSpace(subject)
	for strings.HasPrefix(strings.ToLower(s), "re:") {
		s = strings.TrimSpace(s[3:])
	}
	return s
}

// replyMessage is the RFC 5322 message sent in reply to a student.
type replyMessage struct {
	To         string
	Subject    string
	InReplyTo  string
	References string
	Body       string
	Date       time.Time
}

// build renders the message with CRLF line endings and base64url encodes it
// for the Gmail send API.
func (r replyMessage) build() string {
	refs := strings.TrimSpace(r.References)
	if r.InReplyTo != "" && !strings.Contains(refs, r.InReplyTo) {
		refs = strings.TrimSpace(refs + " " + r.InReplyTo)
	}
	date := r.Date
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", r.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", replySubject(r.Subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	if r.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", r.InReplyTo)
	}
	if refs != "" {
		fmt.Fprintf(&b, "References: %s\r\n", refs)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(r.Body, "\r\n", "\n"), "\n", "\r\n"))
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}
