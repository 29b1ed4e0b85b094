package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"strathyterm/internal/gmail"
	"strathyterm/internal/inbox"
	"strathyterm/internal/util"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

type viewState int

const (
	viewLoading viewState = iota
	viewAuth              // waiting for the Gmail consent code
	viewLogin             // backend session expired
	viewThreads           // paginated thread list
	viewDetail            // one thread
	viewReply             // reply editor for the selected thread
)

// Options wires the UI to a provider.
type Options struct {
	// Connect returns the feed to poll. It may block on an interactive
	// login, sending the consent URL on prompt.AuthURLs and reading pasted
	// codes from prompt.Codes.
	Connect func(ctx context.Context, prompt *gmail.Prompt) (inbox.Feed, error)
	// NewConsole builds the console around a connected feed.
	NewConsole func(f inbox.Feed) *inbox.Console
	// LoginURL is the backend sign-in page. When empty an expired session
	// is handled by calling Reauthorize and connecting again.
	LoginURL    string
	Reauthorize func() error

	PollInterval time.Duration
	Logger       *slog.Logger
}

type AppModel struct {
	// Core state
	opts    Options
	ctx     context.Context
	cancel  context.CancelFunc
	console *inbox.Console
	log     *slog.Logger
	Err     error
	status  string
	now     func() time.Time
	polling bool

	openBrowser func(url string) error

	// Auth flow
	authURLs  chan string
	codes     chan string
	connected chan connectedMsg
	codeInput textinput.Model
	authURL   string

	// View state machine
	view      viewState
	filtering bool
	sending   bool
	// replyTo is the thread the open draft was started for.
	replyTo string

	// Sub-models
	threadsList list.Model
	detail      viewport.Model
	editor      textarea.Model
	filter      textinput.Model
	spinner     spinner.Model

	// Layout
	width, height int
}

func NewAppModel(opts Options) *AppModel {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ci := textinput.New()
	ci.Placeholder = "Paste auth code here"
	ci.Focus()

	fi := textinput.New()
	fi.Placeholder = "name, email, subject or message text"
	fi.Prompt = "/ "

	tl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	// Filtering goes through the console so it applies across pages.
	tl.SetFilteringEnabled(false)
	tl.KeyMap.Quit.SetKeys("q")
	tl.Title = "Inbox"

	ta := textarea.New()
	ta.Placeholder = "Write a reply…"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ctx, cancel := context.WithCancel(context.Background())
	return &AppModel{
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
		status:      "Connecting...",
		now:         time.Now,
		openBrowser: util.OpenBrowser,
		view:        viewLoading,
		authURLs:    make(chan string),
		codes:       make(chan string, 1),
		connected:   make(chan connectedMsg, 1),
		codeInput:   ci,
		threadsList: tl,
		detail:      viewport.New(0, 0),
		editor:      ta,
		filter:      fi,
		spinner:     sp,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.connectCmd(), m.spinner.Tick, textinput.Blink)
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.threadsList.SetSize(msg.Width, msg.Height-4) // room for footer
		m.detail.Width = msg.Width
		m.detail.Height = msg.Height - 4
		m.editor.SetWidth(msg.Width)
		m.editor.SetHeight(max(msg.Height/3, 3))
		if m.view == viewReply {
			m.detail.Height = msg.Height - m.editor.Height() - 4
		}
		m.filter.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case authURLMsg:
		m.authURL = string(msg)
		m.view = viewAuth
		m.codeInput.Focus()
		m.openURL(m.authURL)
		return m, m.awaitConnect()

	case connectedMsg:
		if msg.err != nil {
			if m.ctx.Err() != nil {
				return m, nil
			}
			m.Err = msg.err
			m.status = "Authentication failed!"
			return m, tea.Quit
		}
		return m.attach(msg.feed)

	case tickMsg:
		if m.console == nil {
			return m, nil
		}
		return m, tea.Batch(m.pollCmd(), m.checkReplyCmd(), m.tickCmd())

	case refreshDoneMsg:
		return m.afterRefresh()

	case replyCheckedMsg:
		m.sync()
		return m, nil

	case sendDoneMsg:
		return m.afterSend(msg)

	case actionResultMsg:
		m.sync()
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = fmt.Sprintf("%s complete", msg.action)
		}
		return m, clearStatusAfter(2 * time.Second)

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	// Delegate to active sub-model
	var cmd tea.Cmd
	switch m.view {
	case viewAuth:
		m.codeInput, cmd = m.codeInput.Update(msg)
	case viewThreads:
		if m.filtering {
			m.filter, cmd = m.filter.Update(msg)
		} else {
			m.threadsList, cmd = m.threadsList.Update(msg)
		}
	case viewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case viewReply:
		m.editor, cmd = m.editor.Update(msg)
	}
	return m, cmd
}

// attach builds a console around a freshly connected feed. On reconnect the
// previous console's threads carry over.
func (m *AppModel) attach(f inbox.Feed) (tea.Model, tea.Cmd) {
	prev := m.console
	m.console = m.opts.NewConsole(f)
	if prev != nil {
		threads := prev.State().Threads
		prev.Close()
		_, _ = m.console.Update(func(s inbox.State) inbox.State { return s.WithThreads(threads) })
	} else {
		m.console.WarmStart(m.ctx)
	}

	m.view = viewThreads
	m.status = "Refreshing..."
	m.sync()

	cmds := []tea.Cmd{m.pollCmd(), m.checkReplyCmd()}
	if !m.polling {
		m.polling = true
		cmds = append(cmds, m.tickCmd())
	}
	return m, tea.Batch(cmds...)
}

func (m *AppModel) afterRefresh() (tea.Model, tea.Cmd) {
	m.sync()
	st := m.console.State()
	switch {
	case st.AuthRequired:
		return m.requireLogin()
	case st.LastError != "":
		m.status = "Refresh failed: " + st.LastError
		return m, clearStatusAfter(5 * time.Second)
	}
	if m.view == viewLogin {
		m.view = viewThreads
	}
	if m.status == "Refreshing..." || m.status == "Checking sign-in..." {
		m.status = ""
	}
	return m, nil
}

func (m *AppModel) requireLogin() (tea.Model, tea.Cmd) {
	if m.opts.LoginURL != "" {
		if m.view != viewLogin {
			m.view = viewLogin
			m.status = "Session expired"
			m.openURL(m.opts.LoginURL)
		}
		return m, nil
	}
	if m.opts.Reauthorize != nil && m.view != viewLoading && m.view != viewAuth {
		if err := m.opts.Reauthorize(); err != nil {
			m.log.Warn("forget token failed", "err", err)
		}
		m.view = viewLoading
		m.status = "Re-authorizing..."
		return m, m.connectCmd()
	}
	m.status = "Authorization required"
	return m, nil
}

func (m *AppModel) afterSend(msg sendDoneMsg) (tea.Model, tea.Cmd) {
	m.sending = false
	m.sync()
	switch {
	case msg.err == nil:
		m.editor.Reset()
		m.editor.Blur()
		m.setView(viewDetail)
		m.status = "Reply sent"
	case errors.Is(msg.err, inbox.ErrSendBlocked):
		m.editor.Blur()
		m.setView(viewDetail)
		m.status = "Blocked: " + msg.err.Error()
	default:
		// Keep the draft so the user can retry.
		m.status = "Send failed: " + msg.err.Error()
	}
	return m, clearStatusAfter(4 * time.Second)
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	switch key {
	case "ctrl+c":
		return m.quit()
	}

	switch m.view {
	case viewLoading:
		if key == "q" {
			return m.quit()
		}
		return m, nil

	case viewAuth:
		switch key {
		case "enter":
			val := strings.TrimSpace(m.codeInput.Value())
			m.codeInput.Reset()
			if val == "" {
				return m, nil
			}
			select {
			case m.codes <- val:
			default:
			}
			m.view = viewLoading
			m.status = "Exchanging code..."
			return m, nil
		}
		var cmd tea.Cmd
		m.codeInput, cmd = m.codeInput.Update(msg)
		return m, cmd

	case viewLogin:
		switch key {
		case "q":
			return m.quit()
		case "o":
			m.openURL(m.opts.LoginURL)
			return m, nil
		case "enter", "r":
			m.status = "Checking sign-in..."
			return m, m.pollCmd()
		}
		return m, nil

	case viewThreads:
		if m.filtering {
			return m.handleFilterKey(msg)
		}
		switch key {
		case "q":
			return m.quit()
		case "/":
			m.filtering = true
			m.filter.SetValue(m.console.State().Query)
			m.filter.CursorEnd()
			m.filter.Focus()
			return m, textinput.Blink
		case "esc":
			if m.console.State().Query != "" {
				m.applyQuery("")
			}
			return m, nil
		case "enter":
			if m.selectHighlighted() {
				m.setView(viewDetail)
			}
			return m, nil
		case "]":
			m.turnPage(1)
			return m, nil
		case "[":
			m.turnPage(-1)
			return m, nil
		case "R", "ctrl+r":
			m.status = "Refreshing..."
			return m, m.pollCmd()
		case "e":
			if m.selectHighlighted() {
				return m, m.escalateCmd()
			}
			return m, nil
		case "b":
			if m.selectHighlighted() {
				return m, m.blockCmd()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.threadsList, cmd = m.threadsList.Update(msg)
		return m, cmd

	case viewDetail:
		switch key {
		case "q":
			return m.quit()
		case "esc":
			m.setView(viewThreads)
			return m, nil
		case "r":
			m.replyTo = m.console.State().SelectedID
			m.setView(viewReply)
			m.editor.Focus()
			return m, textarea.Blink
		case "e":
			return m, m.escalateCmd()
		case "b":
			return m, m.blockCmd()
		case "c":
			return m, m.copyCmd("Copy admission number", func() string {
				t, _ := m.console.State().Selected()
				return t.AdmissionNumber
			})
		case "g":
			return m, m.copyCmd("Copy course group", func() string {
				t, _ := m.console.State().Selected()
				return t.CourseGroup
			})
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd

	case viewReply:
		switch key {
		case "esc":
			m.editor.Blur()
			m.setView(viewDetail)
			return m, nil
		case "ctrl+s":
			if m.sending {
				return m, nil
			}
			m.sending = true
			m.status = "Sending..."
			return m, tea.Batch(m.sendCmd(m.replyTo, m.editor.Value()), m.spinner.Tick)
		}
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *AppModel) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filtering = false
		m.filter.Blur()
		m.applyQuery(m.filter.Value())
		return m, nil
	case "esc":
		m.filtering = false
		m.filter.Blur()
		m.filter.Reset()
		m.applyQuery("")
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	return m, cmd
}

func (m *AppModel) applyQuery(q string) {
	_, _ = m.console.Update(func(s inbox.State) inbox.State { return s.WithQuery(strings.TrimSpace(q)) })
	m.threadsList.Select(0)
	m.sync()
}

func (m *AppModel) turnPage(delta int) {
	_, _ = m.console.Update(func(s inbox.State) inbox.State { return s.WithPage(s.Page + delta) })
	m.threadsList.Select(0)
	m.sync()
}

// selectHighlighted makes the thread under the list cursor the console
// selection.
func (m *AppModel) selectHighlighted() bool {
	item, ok := m.threadsList.SelectedItem().(threadItem)
	if !ok {
		return false
	}
	st, err := m.console.Update(func(s inbox.State) inbox.State { return s.WithSelection(item.ID) })
	return err == nil && st.SelectedID == item.ID
}

func (m *AppModel) setView(v viewState) {
	m.view = v
	m.detail.Height = m.height - 4
	if v == viewReply {
		m.detail.Height = m.height - m.editor.Height() - 4
	}
	if v == viewDetail || v == viewReply {
		m.renderSelected()
		m.detail.GotoTop()
	}
}

// sync copies the console state into the sub-models.
func (m *AppModel) sync() {
	if m.console == nil {
		return
	}
	st := m.console.State()
	idx := m.threadsList.Index()
	m.threadsList.SetItems(threadsToItems(st.Visible(), m.now()))
	m.threadsList.Title = threadsTitle(len(st.Filtered()), st.Page, st.TotalPages(), st.Query)
	if n := len(m.threadsList.Items()); idx >= n && n > 0 {
		idx = n - 1
	}
	m.threadsList.Select(idx)

	if m.view == viewDetail || m.view == viewReply {
		m.renderSelected()
	}
}

func (m *AppModel) renderSelected() {
	st := m.console.State()
	id := st.SelectedID
	if m.view == viewReply {
		id = m.replyTo
	}
	t, ok := st.Thread(id)
	if !ok {
		m.detail.SetContent("No thread selected.")
		return
	}
	m.detail.SetContent(renderDetail(t, m.now()))
}

func (m *AppModel) openURL(url string) {
	if err := m.openBrowser(url); err != nil {
		m.log.Debug("open browser failed", "err", err)
	}
}

func (m *AppModel) quit() (tea.Model, tea.Cmd) {
	if m.console != nil {
		m.console.Close()
	}
	m.cancel()
	return m, tea.Quit
}

// Commands

func (m *AppModel) connectCmd() tea.Cmd {
	return func() tea.Msg {
		go func() {
			prompt := &gmail.Prompt{AuthURLs: m.authURLs, Codes: m.codes}
			f, err := m.opts.Connect(m.ctx, prompt)
			m.connected <- connectedMsg{feed: f, err: err}
		}()
		return m.awaitConnect()()
	}
}

// awaitConnect waits for whichever comes first: a consent URL to show or
// the connect result.
func (m *AppModel) awaitConnect() tea.Cmd {
	return func() tea.Msg {
		select {
		case url := <-m.authURLs:
			return authURLMsg(url)
		case res := <-m.connected:
			return res
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *AppModel) tickCmd() tea.Cmd {
	return tea.Tick(m.opts.PollInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *AppModel) pollCmd() tea.Cmd {
	c := m.console
	return func() tea.Msg {
		c.PollOnce(m.ctx)
		return refreshDoneMsg{}
	}
}

func (m *AppModel) checkReplyCmd() tea.Cmd {
	c := m.console
	return func() tea.Msg {
		c.CheckOnce(m.ctx)
		return replyCheckedMsg{}
	}
}

func (m *AppModel) sendCmd(id, body string) tea.Cmd {
	c := m.console
	return func() tea.Msg {
		return sendDoneMsg{threadID: id, err: c.Send(m.ctx, id, body)}
	}
}

func (m *AppModel) escalateCmd() tea.Cmd {
	c := m.console
	id := c.State().SelectedID
	return func() tea.Msg {
		return actionResultMsg{action: "Escalate", err: c.Escalate(id)}
	}
}

func (m *AppModel) blockCmd() tea.Cmd {
	c := m.console
	id := c.State().SelectedID
	return func() tea.Msg {
		return actionResultMsg{action: "Block", err: c.Block(id)}
	}
}

func (m *AppModel) copyCmd(action string, value func() string) tea.Cmd {
	text := value()
	return func() tea.Msg {
		if text == "" {
			return actionResultMsg{action: action, err: errors.New("nothing to copy")}
		}
		return actionResultMsg{action: action, err: clipboard.WriteAll(text)}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	// Auth code input
	if m.view == viewAuth {
		return authView(m.authURL, m.codeInput)
	}

	// Error state
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	if m.view == viewLoading {
		status := m.status
		if status == "" {
			status = "Loading..."
		}
		return m.spinner.View() + " " + status + "\n"
	}

	var b strings.Builder

	switch m.view {
	case viewLogin:
		b.WriteString(loginView(m.opts.LoginURL))
	case viewThreads:
		b.WriteString(m.threadsList.View())
		b.WriteString("\n")
		if m.filtering {
			b.WriteString(m.filter.View())
		} else {
			b.WriteString(threadsFooter())
		}
	case viewDetail:
		b.WriteString(m.detail.View())
		b.WriteString("\n")
		b.WriteString(detailFooter())
	case viewReply:
		b.WriteString(m.detail.View())
		b.WriteString("\n")
		b.WriteString(m.editor.View())
		b.WriteString("\n")
		b.WriteString(replyFooter(m.sending))
	}

	if m.status != "" {
		b.WriteString("\n")
		if m.sending {
			b.WriteString(m.spinner.View() + " ")
		}
		b.WriteString(m.status)
	}

	return b.String()
}
