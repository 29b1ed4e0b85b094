package inbox

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"strathyterm/internal/model"
	"strathyterm/internal/util"
)

// ReplyEvent converts a last-reply response into an event. ok is false when
// the provider reported no reply or the reply text is blank.
func ReplyEvent(raw model.RawAutomatedReply) (model.AutomatedReply, bool) {
	text := strings.TrimSpace(firstNonEmpty(raw.ReplyText, raw.AIReply))
	if !raw.OK || text == "" {
		return model.AutomatedReply{}, false
	}
	ev := model.AutomatedReply{
		ThreadID:  strings.TrimSpace(firstNonEmpty(raw.ThreadID, raw.ThreadKey)),
		Subject:   strings.TrimSpace(raw.Subject),
		ReplyBody: text,
	}
	if ts, ok := util.ParseTimestamp(raw.SentAt); ok {
		ev.SentAt = ts
	}
	return ev, true
}

// MatchesReply reports whether ev refers to t, by thread id or, failing that,
// by trimmed subject.
func MatchesReply(t model.Thread, ev model.AutomatedReply) bool {
	if ev.ThreadID != "" && t.ID == ev.ThreadID {
		return true
	}
	subject := strings.TrimSpace(ev.Subject)
	return subject != "" && strings.TrimSpace(t.Subject) == subject
}

// ApplyAutomatedReply records an automated reply on every matching thread:
// the reply is appended to the history once (an Assistant message with the
// same trimmed body is never duplicated) and AIReply, AIRepliedAt and
// Status=Replied are set unconditionally. A zero ev.SentAt uses now. The
// input slice is not modified; with no match it is returned as is.
func ApplyAutomatedReply(threads []model.Thread, ev model.AutomatedReply, now time.Time) []model.Thread {
	body := strings.TrimSpace(ev.ReplyBody)
	if body == "" {
		return threads
	}
	sentAt := ev.SentAt
	if sentAt.IsZero() {
		sentAt = now.UTC()
	}

	var out []model.Thread
	for i, t := range threads {
		if !MatchesReply(t, ev) {
			continue
		}
		if out == nil {
			out = slices.Clone(threads)
		}
		if !hasAssistantReply(t.Messages, body) {
			id := ev.ThreadID
			if id == "" {
				id = t.ID
			}
			msgs := make([]model.Message, len(t.Messages), len(t.Messages)+1)
			copy(msgs, t.Messages)
			t.Messages = append(msgs, model.Message{
				ID:   fmt.Sprintf("assistant-%s-%d", id, sentAt.UnixMilli()),
				Role: model.RoleAssistant,
				Body: body,
				Date: sentAt,
			})
		}
		t.AIReply = body
		t.AIRepliedAt = sentAt
		t.Status = model.StatusReplied
		out[i] = t
	}
	if out == nil {
		return threads
	}
	return out
}

func hasAssistantReply(msgs []model.Message, body string) bool {
	for _, m := range msgs {
		if m.Role == model.RoleAssistant && strings.TrimSpace(m.Body) == body {
			return true
		}
	}
	return false
}
