package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Status is the triage state of a thread.
type Status string

const (
	StatusNew       Status = "new"
	StatusPending   Status = "pending"
	StatusBlocked   Status = "blocked"
	StatusEscalated Status = "escalated"
	StatusReplied   Status = "replied"
)

// Rank orders statuses for merge conflicts only. Unknown values rank as New.
func (s Status) Rank() int {
	switch s {
	case StatusReplied:
		return 4
	case StatusEscalated:
		return 3
	case StatusBlocked:
		return 2
	case StatusPending:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the five known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPending, StatusBlocked, StatusEscalated, StatusReplied:
		return true
	}
	return false
}

func (s Status) Label() string {
	if s == "" {
		return "New"
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Role identifies who wrote a message in a thread.
type Role string

const (
	RoleStudent   Role = "student"
	RoleAssistant Role = "assistant"
)

// DetailsStatus is informational only.
type DetailsStatus string

const (
	DetailsComplete DetailsStatus = "complete"
	DetailsPartial  DetailsStatus = "partial"
	DetailsEmpty    DetailsStatus = "empty"
)

// Message is one entry of a thread's history, in chronological order.
type Message struct {
	ID   string    `json:"id"`
	Role Role      `json:"role"`
	Body string    `json:"body"`
	Date time.Time `json:"date"`
}

// Thread is the canonical record for one conversation, keyed by ID (the
// provider thread id). Empty AIReply and zero AIRepliedAt mean "none".
type Thread struct {
	ID                string        `json:"thread_id"`
	Subject           string        `json:"subject"`
	SenderHeader      string        `json:"sender_header"`
	StudentEmail      string        `json:"student_email"`
	StudentName       string        `json:"student_name"`
	Body              string        `json:"body"`
	AdmissionNumber   string        `json:"admission_number"`
	Course            string        `json:"course"`
	Year              string        `json:"year"`
	Semester          string        `json:"semester"`
	Group             string        `json:"group"`
	CourseGroup       string        `json:"course_group"`
	FullThreadSummary string        `json:"full_thread_summary"`
	AIReply           string        `json:"ai_reply,omitempty"`
	AIRepliedAt       time.Time     `json:"ai_replied_at,omitempty"`
	Status            Status        `json:"status"`
	ReceivedAt        time.Time     `json:"received_at"`
	ReplyTargetID     string        `json:"reply_target_id,omitempty"`
	Messages          []Message     `json:"thread_messages"`
	DetailsStatus     DetailsStatus `json:"details_status"`

	// StalePolls counts consecutive refreshes that did not return this thread.
	StalePolls int `json:"stale_polls,omitempty"`
}

// FlexString decodes a JSON string, number or null into a string. The feed
// is not consistent about how it encodes years and groups.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// RawMessage is one element of a provider's thread_messages array.
type RawMessage struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Body string `json:"body"`
	Date string `json:"date"`
}

// RawThreadRecord is the provider's unread-thread shape. Every field is
// optional; the normalizer defines the fallback chain for each.
type RawThreadRecord struct {
	ThreadID  string `json:"threadId"`
	ID        string `json:"id"`
	MessageID string `json:"message_id"`

	From   string `json:"from"`
	Sender string `json:"sender"`

	Subject      string `json:"subject"`
	StudentQuery string `json:"student_query"`
	Body         string `json:"body"`
	BodyText     string `json:"body_text"`

	StudentName string `json:"student_name"`
	Name        string `json:"name"`

	Status      string `json:"status"`
	AIReply     string `json:"ai_reply"`
	AIRepliedAt string `json:"ai_replied_at"`

	ThreadMessages []RawMessage `json:"thread_messages"`

	AdmissionNumber   FlexString `json:"admission_number"`
	Course            FlexString `json:"course"`
	Year              FlexString `json:"year"`
	Semester          FlexString `json:"semester"`
	Group             FlexString `json:"group"`
	CourseGroup       FlexString `json:"course_group"`
	FullThreadSummary string     `json:"full_thread_summary"`

	ReceivedAt    string `json:"received_at"`
	Date          string `json:"date"`
	RelativeTime  string `json:"relative_time"`
	DetailsStatus string `json:"details_status"`
}

// RawAutomatedReply is the last-reply endpoint response. Older backends use
// ai_reply/threadId, newer ones reply_text/thread_id.
type RawAutomatedReply struct {
	OK        bool   `json:"ok"`
	ReplyText string `json:"reply_text"`
	AIReply   string `json:"ai_reply"`
	ThreadID  string `json:"thread_id"`
	ThreadKey string `json:"threadId"`
	Subject   string `json:"subject"`
	SentAt    string `json:"sent_at"`
	Message   string `json:"message"`
}

// AutomatedReply is the event "the automated system replied to a thread".
// ThreadID and Subject may both be set; either can match.
type AutomatedReply struct {
	ThreadID  string
	Subject   string
	ReplyBody string
	SentAt    time.Time
}

// ReplyRequest is the send-reply command body.
type ReplyRequest struct {
	MessageID string `json:"message_id"`
	BodyText  string `json:"body_text"`
}

// ReplyResult is the send-reply response body.
type ReplyResult struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Detail   string `json:"detail,omitempty"`
	SentID   string `json:"sent_id,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
}
