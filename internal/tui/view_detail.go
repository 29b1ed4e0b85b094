package tui

import (
	"fmt"
	"strings"
	"time"

	"strathyterm/internal/extract"
	"strathyterm/internal/model"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true).
			MarginTop(1)
)

const noAdmission = "No admission number available"

// renderDetail lays out everything known about a thread for the detail
// viewport.
func renderDetail(t model.Thread, now time.Time) string {
	var b strings.Builder

	subject := t.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	b.WriteString(headerStyle.Render(subject))
	b.WriteString("\n")

	field := func(label, value string) {
		if value == "" {
			value = "n/a"
		}
		b.WriteString(labelStyle.Render(label+": ") + value + "\n")
	}

	from := t.StudentName
	if from == "" {
		from = "(Unknown Student)"
	}
	if t.StudentEmail != "" {
		from = fmt.Sprintf("%s <%s>", from, t.StudentEmail)
	}
	field("From", from)
	field("Received", when(t.ReceivedAt, now))
	b.WriteString(labelStyle.Render("Status: ") + statusBadge(t.Status))
	if t.DetailsStatus != "" {
		b.WriteString("  " + labelStyle.Render("Details: ") + string(t.DetailsStatus))
	}
	b.WriteString("\n\n")

	if t.AdmissionNumber != "" {
		field("Admission", t.AdmissionNumber)
	} else {
		b.WriteString(labelStyle.Render(noAdmission) + "\n")
	}
	field("Course", t.Course)
	field("Year", t.Year)
	field("Semester", t.Semester)
	field("Group", t.Group)
	field("Course group", t.CourseGroup)

	if t.FullThreadSummary != "" {
		b.WriteString(sectionStyle.Render("Summary") + "\n")
		b.WriteString(extract.NormalizeTextForDisplay(t.FullThreadSummary) + "\n")
	}

	b.WriteString(sectionStyle.Render("Conversation") + "\n")
	if len(t.Messages) == 0 {
		b.WriteString(extract.NormalizeTextForDisplay(t.Body) + "\n")
	}
	for _, m := range t.Messages {
		who := "Student"
		if m.Role == model.RoleAssistant {
			who = "Assistant"
		}
		b.WriteString(labelStyle.Render(fmt.Sprintf("-- %s · %s", who, when(m.Date, now))) + "\n")
		b.WriteString(extract.NormalizeTextForDisplay(m.Body) + "\n\n")
	}

	if t.AIReply != "" {
		b.WriteString(sectionStyle.Render("Automated reply · "+when(t.AIRepliedAt, now)) + "\n")
		b.WriteString(extract.NormalizeTextForDisplay(t.AIReply) + "\n")
	}
	return b.String()
}

func when(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format("Jan 2, 2006 15:04"), humanize.RelTime(t, now, "ago", "from now"))
}

func detailFooter() string {
	return footerStyle.Render(
		"r: reply • e: escalate • b: block • c: copy admission • g: copy course group • esc: back • q: quit",
	)
}

func replyFooter(sending bool) string {
	if sending {
		return footerStyle.Render("sending…")
	}
	return footerStyle.Render("ctrl+s: send • esc: back to thread")
}
