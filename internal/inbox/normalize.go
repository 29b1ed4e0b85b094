package inbox

import (
	"log/slog"
	"strings"
	"time"

	"strathyterm/internal/extract"
	"strathyterm/internal/model"
	"strathyterm/internal/util"
)

// Warning describes a raw value the normalizer could not use as given.
type Warning struct {
	ThreadID string
	Field    string
	Value    string
}

// Normalize converts one provider record into a canonical Thread. now is used
// when the record carries no usable received timestamp.
func Normalize(rec model.RawThreadRecord, now time.Time) (model.Thread, []Warning) {
	var warnings []Warning

	header := firstNonEmpty(rec.From, rec.Sender)
	email, displayName := util.ParseSenderHeader(header)
	body := firstNonEmpty(rec.StudentQuery, rec.Body, rec.BodyText)
	parsed := extract.ExtractAdmissionAndGroup(body)

	status, ok := normalizeStatus(rec.Status, rec.AIReply)
	if !ok {
		warnings = append(warnings, Warning{ThreadID: rec.ThreadID, Field: "status", Value: rec.Status})
	}

	msgs := normalizeMessages(rec.ThreadMessages)

	t := model.Thread{
		ID:           rec.ThreadID,
		Subject:      firstNonEmpty(rec.Subject, "(no subject)"),
		SenderHeader: header,
		StudentEmail: email,
		StudentName: firstNonEmpty(
			rec.StudentName,
			rec.Name,
			util.PrettyNameFromEmail(email),
			displayName,
		),
		Body: body,

		AdmissionNumber:   firstNonEmpty(rec.AdmissionNumber.String(), parsed.Admission),
		Course:            rec.Course.String(),
		Year:              rec.Year.String(),
		Semester:          rec.Semester.String(),
		Group:             rec.Group.String(),
		CourseGroup:       firstNonEmpty(rec.CourseGroup.String(), parsed.CourseGroup),
		FullThreadSummary: rec.FullThreadSummary,

		AIReply:       rec.AIReply,
		Status:        status,
		ReplyTargetID: replyTarget(msgs, firstNonEmpty(rec.ID, rec.MessageID)),
		Messages:      msgs,
		DetailsStatus: normalizeDetails(rec.DetailsStatus),
	}
	if ts, ok := util.ParseTimestamp(rec.AIRepliedAt); ok {
		t.AIRepliedAt = ts
	}

	t.ReceivedAt = now.UTC()
	for _, raw := range []string{rec.ReceivedAt, rec.Date} {
		if ts, ok := util.ParseTimestamp(raw); ok {
			t.ReceivedAt = ts
			break
		}
	}
	return t, warnings
}

// NormalizeBatch normalizes a polled snapshot. Records without a thread id
// cannot be keyed and are dropped; all warnings are logged.
func NormalizeBatch(recs []model.RawThreadRecord, now time.Time, log *slog.Logger) []model.Thread {
	out := make([]model.Thread, 0, len(recs))
	for _, rec := range recs {
		if strings.TrimSpace(rec.ThreadID) == "" {
			if log != nil {
				log.Warn("dropping record without thread id", "message_id", firstNonEmpty(rec.ID, rec.MessageID), "subject", rec.Subject)
			}
			continue
		}
		t, warnings := Normalize(rec, now)
		if log != nil {
			for _, w := range warnings {
				log.Warn("normalization warning", "thread_id", w.ThreadID, "field", w.Field, "value", w.Value)
			}
		}
		out = append(out, t)
	}
	return out
}

// normalizeStatus lowercases an explicit status. Without one, a thread with an
// automated reply is Replied and anything else is New. ok is false when an
// explicit value was not one of the five known statuses; it becomes New.
func normalizeStatus(raw, aiReply string) (model.Status, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		if aiReply != "" {
			return model.StatusReplied, true
		}
		return model.StatusNew, true
	}
	if st := model.Status(s); st.Valid() {
		return st, true
	}
	return model.StatusNew, false
}

func normalizeMessages(raw []model.RawMessage) []model.Message {
	if len(raw) == 0 {
		return nil
	}
	msgs := make([]model.Message, 0, len(raw))
	for _, r := range raw {
		m := model.Message{
			ID:   r.ID,
			Role: normalizeRole(r.Role),
			Body: r.Body,
		}
		if ts, ok := util.ParseTimestamp(r.Date); ok {
			m.Date = ts
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// The automated assistant signs its messages as ADAM.
func normalizeRole(role string) model.Role {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case "ADAM", "ASSISTANT":
		return model.RoleAssistant
	default:
		return model.RoleStudent
	}
}

// replyTarget picks the newest non-assistant message with an id, falling back
// to the record's own message id.
func replyTarget(msgs []model.Message, fallback string) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != model.RoleAssistant && msgs[i].ID != "" {
			return msgs[i].ID
		}
	}
	return fallback
}

func normalizeDetails(raw string) model.DetailsStatus {
	switch d := model.DetailsStatus(strings.ToLower(strings.TrimSpace(raw))); d {
	case model.DetailsComplete, model.DetailsPartial, model.DetailsEmpty:
		return d
	}
	return model.DetailsEmpty
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
