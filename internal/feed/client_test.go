package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strathyterm/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithRateLimit(0, 0))
	require.NoError(t, err)
	return c
}

func TestUnreadThreads(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, unreadPath, r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		io.WriteString(w, `[{"threadId":"t1","id":"m1","from":"Jane <jane@strathmore.edu>","year":4,"group":"B",
			"thread_messages":[{"id":"m1","role":"student","body":"hi","date":"2025-01-02T03:04:05Z"}]}]`)
	})

	recs, err := c.UnreadThreads(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "t1", recs[0].ThreadID)
	assert.Equal(t, model.FlexString("4"), recs[0].Year)
	assert.Equal(t, model.FlexString("B"), recs[0].Group)
	require.Len(t, recs[0].ThreadMessages, 1)
}

func TestUnreadThreadsNonArrayIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok": false, "message": "Failed to connect"}`)
	})
	recs, err := c.UnreadThreads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUnreadThreadsAuthRequired(t *testing.T) {
	for _, code := range []int{http.StatusTemporaryRedirect, http.StatusFound, http.StatusUnauthorized} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if code == http.StatusUnauthorized {
				w.WriteHeader(code)
				return
			}
			http.Redirect(w, r, "/oauth2/login", code)
		})
		_, err := c.UnreadThreads(context.Background())
		assert.ErrorIs(t, err, ErrAuthRequired, "status %d", code)
	}
}

func TestUnreadThreadsServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.UnreadThreads(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "boom", se.Body)
}

func TestLastAutomatedReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, lastReplyPath, r.URL.Path)
		io.WriteString(w, `{"ok":true,"ai_reply":"Hello","threadId":"t9","subject":"Fees","sent_at":"2025-01-02T03:04:05Z"}`)
	})
	got, err := c.LastAutomatedReply(context.Background())
	require.NoError(t, err)
	assert.True(t, got.OK)
	assert.Equal(t, "Hello", got.AIReply)
	assert.Equal(t, "t9", got.ThreadKey)
	assert.Equal(t, "Fees", got.Subject)
}

func TestSendReply(t *testing.T) {
	var got model.ReplyRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"ok":true,"sent_id":"s1","threadId":"t1"}`)
	})
	err := c.SendReply(context.Background(), model.ReplyRequest{MessageID: "m1", BodyText: "Thanks"})
	require.NoError(t, err)
	assert.Equal(t, model.ReplyRequest{MessageID: "m1", BodyText: "Thanks"}, got)
}

func TestSendReplyPolicyBlocked(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{"forbidden", http.StatusForbidden, `{"detail":"forbidden"}`},
		{"forbidden no body", http.StatusForbidden, ``},
		{"not allowed message", http.StatusOK, `{"ok":false,"error":"Sending NOT ALLOWED to broadcast lists"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				io.WriteString(w, tc.body)
			})
			err := c.SendReply(context.Background(), model.ReplyRequest{MessageID: "m1", BodyText: "x"})
			assert.ErrorIs(t, err, ErrPolicyBlocked)
		})
	}
}

func TestSendReplyFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":false,"error":"quota exceeded"}`)
	})
	err := c.SendReply(context.Background(), model.ReplyRequest{MessageID: "m1", BodyText: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPolicyBlocked)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)
}

func TestLoginURL(t *testing.T) {
	c, err := New("http://localhost:8000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/oauth2/login", c.LoginURL())
}
