package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"strathyterm/internal/feed"
	"strathyterm/internal/gmail"
	"strathyterm/internal/inbox"
	"strathyterm/internal/model"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeFeed struct {
	records []model.RawThreadRecord
	err     error
	sent    []model.ReplyRequest
}

func (f *fakeFeed) UnreadThreads(context.Context) ([]model.RawThreadRecord, error) {
	return f.records, f.err
}

func (f *fakeFeed) LastAutomatedReply(context.Context) (model.RawAutomatedReply, error) {
	return model.RawAutomatedReply{}, nil
}

func (f *fakeFeed) SendReply(_ context.Context, req model.ReplyRequest) error {
	f.sent = append(f.sent, req)
	return nil
}

func record(id, from string, minutesAgo int) model.RawThreadRecord {
	return model.RawThreadRecord{
		ThreadID:   id,
		ID:         "msg-" + id,
		From:       from,
		Subject:    "subject " + id,
		ReceivedAt: now.Add(-time.Duration(minutesAgo) * time.Minute).Format(time.RFC3339),
	}
}

type harness struct {
	m      *AppModel
	f      *fakeFeed
	opened []string
}

func newHarness(t *testing.T, records ...model.RawThreadRecord) *harness {
	t.Helper()
	h := &harness{f: &fakeFeed{records: records}}
	h.m = NewAppModel(Options{
		Connect: func(context.Context, *gmail.Prompt) (inbox.Feed, error) { return h.f, nil },
		NewConsole: func(f inbox.Feed) *inbox.Console {
			return inbox.NewConsole(f, inbox.Options{Now: func() time.Time { return now }})
		},
		LoginURL: "http://localhost:8000/login",
	})
	h.m.now = func() time.Time { return now }
	h.m.openBrowser = func(url string) error {
		h.opened = append(h.opened, url)
		return nil
	}
	t.Cleanup(func() { h.m.quit() })

	h.m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	h.m.Update(connectedMsg{feed: h.f})
	h.poll()
	return h
}

// poll runs one refresh the way the tick command does.
func (h *harness) poll() {
	h.m.console.PollOnce(context.Background())
	h.m.Update(refreshDoneMsg{})
}

func (h *harness) key(k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+s":
		msg = tea.KeyMsg{Type: tea.KeyCtrlS}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := h.m.Update(msg)
	return cmd
}

// run executes a command and feeds its message back. Batches are unpacked
// one level; commands returned by Update are not followed.
func (h *harness) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			h.run(c)
		}
	default:
		h.m.Update(msg)
	}
}

func TestListShowsRefreshedThreads(t *testing.T) {
	h := newHarness(t,
		record("t1", "Jane Doe <jane.doe@strathmore.edu>", 30),
		record("t2", "john@strathmore.edu", 5),
	)

	assert.Equal(t, viewThreads, h.m.view)
	assert.Empty(t, h.m.status)
	items := h.m.threadsList.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "t2", items[0].(threadItem).ID, "newest first")
	assert.Contains(t, h.m.threadsList.Title, "page 1/1")
}

func TestOpenThreadAndEscalate(t *testing.T) {
	h := newHarness(t, record("t1", "jane@strathmore.edu", 1))

	h.key("enter")
	require.Equal(t, viewDetail, h.m.view)
	assert.Equal(t, "t1", h.m.console.State().SelectedID)

	h.run(h.key("e"))
	sel, ok := h.m.console.State().Selected()
	require.True(t, ok)
	assert.Equal(t, model.StatusEscalated, sel.Status)
	assert.Equal(t, "Escalate complete", h.m.status)

	h.key("esc")
	assert.Equal(t, viewThreads, h.m.view)
}

func TestBlockFromList(t *testing.T) {
	h := newHarness(t, record("t1", "jane@strathmore.edu", 1))

	h.run(h.key("b"))
	sel, ok := h.m.console.State().Selected()
	require.True(t, ok)
	assert.Equal(t, model.StatusBlocked, sel.Status)
}

func TestFilterKeys(t *testing.T) {
	h := newHarness(t,
		record("t1", "Jane Doe <jane@strathmore.edu>", 1),
		record("t2", "John Roe <john@strathmore.edu>", 2),
	)

	h.key("/")
	require.True(t, h.m.filtering)
	assert.NotContains(t, h.m.filter.Placeholder, "admission", "the filter does not search admission numbers")
	h.key("jane")
	h.key("enter")

	assert.False(t, h.m.filtering)
	assert.Equal(t, "jane", h.m.console.State().Query)
	assert.Len(t, h.m.threadsList.Items(), 1)

	h.key("esc")
	assert.Empty(t, h.m.console.State().Query)
	assert.Len(t, h.m.threadsList.Items(), 2)
}

func TestPageKeys(t *testing.T) {
	var records []model.RawThreadRecord
	for i := range 120 {
		records = append(records, record(fmt.Sprintf("t%03d", i), "s@strathmore.edu", i))
	}
	h := newHarness(t, records...)

	assert.Len(t, h.m.threadsList.Items(), 50)
	h.key("]")
	h.key("]")
	assert.Equal(t, 3, h.m.console.State().Page)
	assert.Len(t, h.m.threadsList.Items(), 20)
	h.key("]")
	assert.Equal(t, 3, h.m.console.State().Page, "clamped to the last page")
	h.key("[")
	assert.Equal(t, 2, h.m.console.State().Page)
}

func TestReplySent(t *testing.T) {
	h := newHarness(t, record("t1", "jane@strathmore.edu", 1))

	h.key("enter")
	h.key("r")
	require.Equal(t, viewReply, h.m.view)
	h.key("Thanks, sorted.")
	h.run(h.key("ctrl+s"))

	require.Len(t, h.f.sent, 1)
	assert.Equal(t, "msg-t1", h.f.sent[0].MessageID)
	assert.Equal(t, "Thanks, sorted.", h.f.sent[0].BodyText)
	assert.Equal(t, viewDetail, h.m.view)
	assert.Equal(t, "Reply sent", h.m.status)
	assert.Empty(t, h.m.editor.Value())
}

func TestReplyGoesToDraftThread(t *testing.T) {
	h := newHarness(t,
		record("t1", "first@strathmore.edu", 10),
		record("t2", "second@strathmore.edu", 1),
	)

	h.key("enter")
	require.Equal(t, "t2", h.m.console.State().SelectedID)
	h.key("r")
	h.key("for the second student")

	// The selection moves while the draft is open.
	_, err := h.m.console.Update(func(s inbox.State) inbox.State { return s.WithSelection("t1") })
	require.NoError(t, err)
	h.m.sync()
	assert.Contains(t, h.m.detail.View(), "second@strathmore.edu", "the pane keeps showing the draft's thread")

	h.run(h.key("ctrl+s"))
	require.Len(t, h.f.sent, 1)
	assert.Equal(t, "msg-t2", h.f.sent[0].MessageID)
}

func TestReplyBlockedByPolicy(t *testing.T) {
	h := newHarness(t, record("t1", "someone@gmail.com", 1))

	h.key("enter")
	h.key("r")
	h.key("hello")
	h.run(h.key("ctrl+s"))

	assert.Empty(t, h.f.sent)
	assert.Equal(t, viewDetail, h.m.view)
	assert.True(t, strings.HasPrefix(h.m.status, "Blocked: "), h.m.status)
	sel, _ := h.m.console.State().Selected()
	assert.Equal(t, model.StatusBlocked, sel.Status)
}

func TestAuthRequiredShowsLogin(t *testing.T) {
	h := newHarness(t, record("t1", "jane@strathmore.edu", 1))

	h.f.err = fmt.Errorf("unread threads: %w", feed.ErrAuthRequired)
	h.poll()
	assert.Equal(t, viewLogin, h.m.view)
	assert.Equal(t, []string{"http://localhost:8000/login"}, h.opened)
	assert.Contains(t, h.m.View(), "Sign-in required")

	h.f.err = nil
	h.run(h.key("enter"))
	assert.Equal(t, viewThreads, h.m.view)
	assert.Len(t, h.m.threadsList.Items(), 1)
}

func TestQuitClosesConsole(t *testing.T) {
	h := newHarness(t, record("t1", "jane@strathmore.edu", 1))

	h.key("q")
	_, err := h.m.console.Update(func(s inbox.State) inbox.State { return s })
	assert.ErrorIs(t, err, inbox.ErrClosed)
	assert.Error(t, h.m.ctx.Err())
}

func TestRenderDetail(t *testing.T) {
	th := model.Thread{
		ID:           "t1",
		Subject:      "Exam card",
		StudentName:  "Jane Doe",
		StudentEmail: "jane@strathmore.edu",
		Status:       model.StatusPending,
		ReceivedAt:   now.Add(-2 * time.Hour),
		Course:       "BBIT",
		Messages: []model.Message{
			{Role: model.RoleStudent, Body: "I cannot print my exam card", Date: now.Add(-2 * time.Hour)},
			{Role: model.RoleAssistant, Body: "Please clear fees first", Date: now.Add(-time.Hour)},
		},
	}

	out := renderDetail(th, now)
	assert.Contains(t, out, "Exam card")
	assert.Contains(t, out, "Jane Doe <jane@strathmore.edu>")
	assert.Contains(t, out, noAdmission)
	assert.Contains(t, out, "BBIT")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "Assistant")
	assert.Contains(t, out, "Please clear fees first")

	th.AdmissionNumber = "123456"
	th.Messages = nil
	th.Body = "fallback body"
	out = renderDetail(th, now)
	assert.NotContains(t, out, noAdmission)
	assert.Contains(t, out, "123456")
	assert.Contains(t, out, "fallback body")
}

func TestThreadItem(t *testing.T) {
	item := threadItem{Thread: model.Thread{
		StudentEmail:    "jane@strathmore.edu",
		Subject:         "Fees",
		Status:          model.StatusReplied,
		ReceivedAt:      now.Add(-3 * time.Minute),
		AdmissionNumber: "99887",
		AIReply:         "done",
	}, now: now}

	assert.Contains(t, item.Title(), "Replied")
	assert.Contains(t, item.Title(), "jane@strathmore.edu · Fees")
	assert.Equal(t, "jane@strathmore.edu · 3 minutes ago · adm 99887 · auto-replied", item.Description())
}
