package tui

import "strathyterm/internal/inbox"

// Async message types for Bubble Tea commands.

type connectedMsg struct {
	feed inbox.Feed
	err  error
}

type authURLMsg string

// tickMsg drives the poll loop.
type tickMsg struct{}

// refreshDoneMsg and replyCheckedMsg carry no payload; the outcome is read
// back from the console state.
type refreshDoneMsg struct{}

type replyCheckedMsg struct{}

type sendDoneMsg struct {
	threadID string
	err      error
}

type actionResultMsg struct {
	action string
	err    error
}

type statusMsg string
