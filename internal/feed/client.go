// Package feed talks to the inbox backend that polls Gmail on our behalf:
// GET /gmail/unread, GET /gmail/last-reply and POST /gmail/reply.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"strathyterm/internal/model"
)

var (
	// ErrAuthRequired means the backend wants the user to log in again. It
	// answers with a redirect to its OAuth entry point or a 401.
	ErrAuthRequired = errors.New("authentication required")
	// ErrPolicyBlocked means the backend refused to send a reply.
	ErrPolicyBlocked = errors.New("message blocked by policy")
)

// StatusError is a non-2xx response that is neither an auth nor a policy
// signal.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Code, e.Body)
}

const (
	unreadPath    = "/gmail/unread"
	lastReplyPath = "/gmail/last-reply"
	replyPath     = "/gmail/reply"
	loginPath     = "/oauth2/login"

	maxBodyBytes = 8 << 20
)

var notAllowed = regexp.MustCompile(`(?i)not allowed`)

// Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its redirect policy is
// overridden so redirects can be reported as ErrAuthRequired.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.http = &cp
	}
}

// WithRateLimit caps outbound requests per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse feed url: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	c.http.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c, nil
}

// LoginURL is where the user is sent when ErrAuthRequired is returned.
func (c *Client) LoginURL() string {
	return c.base.String() + loginPath
}

// UnreadThreads lists the backend's current unread threads. A response that
// is not a JSON array is treated as an empty list.
func (c *Client) UnreadThreads(ctx context.Context) ([]model.RawThreadRecord, error) {
	code, body, err := c.do(ctx, http.MethodGet, unreadPath, nil)
	if err != nil {
		return nil, fmt.Errorf("list unread threads: %w", err)
	}
	if err := checkStatus("list unread threads", code, body); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, nil
	}
	var recs []model.RawThreadRecord
	if err := json.Unmarshal(trimmed, &recs); err != nil {
		return nil, fmt.Errorf("decode unread threads: %w", err)
	}
	return recs, nil
}

// LastAutomatedReply fetches the most recent automated reply, if any.
func (c *Client) LastAutomatedReply(ctx context.Context) (model.RawAutomatedReply, error) {
	var out model.RawAutomatedReply
	code, body, err := c.do(ctx, http.MethodGet, lastReplyPath, nil)
	if err != nil {
		return out, fmt.Errorf("get last reply: %w", err)
	}
	if err := checkStatus("get last reply", code, body); err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode last reply: %w", err)
	}
	return out, nil
}

// SendReply posts a reply to the message req.MessageID. A 403 or an error
// mentioning "not allowed" is reported as ErrPolicyBlocked.
func (c *Client) SendReply(ctx context.Context, req model.ReplyRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	code, body, err := c.do(ctx, http.MethodPost, replyPath, payload)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	// Error bodies are not always JSON.
	var res model.ReplyResult
	_ = json.Unmarshal(body, &res)
	msg := res.Error
	if msg == "" {
		msg = res.Detail
	}

	if code == http.StatusForbidden || notAllowed.MatchString(msg) {
		if msg == "" {
			return ErrPolicyBlocked
		}
		return fmt.Errorf("%w: %s", ErrPolicyBlocked, msg)
	}
	if err := checkStatus("send reply", code, body); err != nil {
		return err
	}
	if !res.OK {
		if msg == "" {
			msg = "send failed"
		}
		return fmt.Errorf("send reply: %s", msg)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return 0, nil, err
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("feed request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"elapsed", time.Since(start),
	)
	return resp.StatusCode, body, nil
}

func checkStatus(op string, code int, body []byte) error {
	switch {
	case code == http.StatusUnauthorized, code >= 300 && code < 400:
		return ErrAuthRequired
	case code < 200 || code >= 300:
		return &StatusError{Op: op, Code: code, Body: snippet(body)}
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
