package tui

import (
	"fmt"
	"strings"
	"time"

	"strathyterm/internal/model"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingTop(1)

	statusColors = map[model.Status]lipgloss.Color{
		model.StatusNew:       lipgloss.Color("39"),
		model.StatusPending:   lipgloss.Color("214"),
		model.StatusBlocked:   lipgloss.Color("196"),
		model.StatusEscalated: lipgloss.Color("205"),
		model.StatusReplied:   lipgloss.Color("42"),
	}
)

func statusBadge(s model.Status) string {
	color, ok := statusColors[s]
	if !ok {
		color = statusColors[model.StatusNew]
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render("[" + s.Label() + "]")
}

// threadItem wraps a Thread to implement list.Item.
type threadItem struct {
	model.Thread
	now time.Time
}

func (i threadItem) FilterValue() string {
	return i.StudentName + " " + i.Subject
}

func (i threadItem) Title() string {
	name := i.StudentName
	if name == "" {
		name = i.StudentEmail
	}
	subject := i.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	return fmt.Sprintf("%s %s · %s", statusBadge(i.Status), name, subject)
}

func (i threadItem) Description() string {
	parts := []string{i.StudentEmail}
	if !i.ReceivedAt.IsZero() {
		parts = append(parts, humanize.RelTime(i.ReceivedAt, i.now, "ago", "from now"))
	}
	if i.AdmissionNumber != "" {
		parts = append(parts, "adm "+i.AdmissionNumber)
	}
	if i.AIReply != "" {
		parts = append(parts, "auto-replied")
	}
	return strings.Join(parts, " · ")
}

func threadsToItems(threads []model.Thread, now time.Time) []list.Item {
	items := make([]list.Item, len(threads))
	for i, t := range threads {
		items[i] = threadItem{Thread: t, now: now}
	}
	return items
}

func threadsTitle(total, page, pages int, query string) string {
	title := fmt.Sprintf("Inbox (%d threads) page %d/%d", total, page, pages)
	if query != "" {
		title += fmt.Sprintf(" filter %q", query)
	}
	return title
}

func threadsFooter() string {
	return footerStyle.Render(
		"enter: open • /: filter • [/]: page • e: escalate • b: block • R: refresh • q: quit",
	)
}
