package gmail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"strathyterm/internal/feed"
	"strathyterm/internal/model"
	"strathyterm/internal/util"
)

const me = "me"

// Role names as they appear on the wire. The backend signs automated
// replies as ADAM; this provider does the same so both feeds normalize alike.
const (
	wireAssistant = "ADAM"
	wireStudent   = "student"
)

type Options struct {
	// AssistantAddress marks messages from this address as assistant
	// messages. Messages carrying the SENT label always are.
	AssistantAddress string
	// Workers bounds concurrent thread fetches.
	Workers int
	// MaxThreads caps how many unread threads one poll fetches.
	MaxThreads int
	// RequestRate limits Gmail API calls per second; <= 0 disables it.
	RequestRate float64
	Logger      *slog.Logger
}

// Provider reads unread threads straight from a Gmail mailbox and sends
// replies into them. It serves the same contract as the HTTP feed.
type Provider struct {
	svc        *gmailv1.Service
	assistant  string
	workers    int
	maxThreads int
	limiter    *rate.Limiter
	log        *slog.Logger
	now        func() time.Time
}

func NewProvider(svc *gmailv1.Service, opts Options) *Provider {
	p := &Provider{
		svc:        svc,
		assistant:  strings.ToLower(strings.TrimSpace(opts.AssistantAddress)),
		workers:    opts.Workers,
		maxThreads: opts.MaxThreads,
		log:        opts.Logger,
		now:        time.Now,
	}
	if p.workers <= 0 {
		p.workers = 8
	}
	if p.maxThreads <= 0 {
		p.maxThreads = 200
	}
	if opts.RequestRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RequestRate), p.workers)
	}
	if p.log == nil {
		p.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

func (p *Provider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// UnreadThreads lists unread INBOX messages, groups them by thread and
// fetches each thread in full. Threads are returned newest first. A thread
// that fails to load is skipped; the call fails only when every fetch failed.
func (p *Provider) UnreadThreads(ctx context.Context) ([]model.RawThreadRecord, error) {
	ids, err := p.unreadThreadIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	type job struct {
		idx int
		id  string
	}
	type result struct {
		idx int
		rec model.RawThreadRecord
		err error
	}

	jobs := make(chan job)
	results := make(chan result, len(ids))

	var wg sync.WaitGroup
	for range min(p.workers, len(ids)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				th, err := p.getThread(ctx, j.id)
				if err != nil {
					results <- result{idx: j.idx, err: fmt.Errorf("get thread %s: %w", j.id, err)}
					continue
				}
				results <- result{idx: j.idx, rec: threadRecord(th, p.assistant)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, id := range ids {
			select {
			case <-ctx.Done():
				return
			case jobs <- job{idx: i, id: id}:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	slots := make([]*model.RawThreadRecord, len(ids))
	var firstErr error
	failed := 0
	for r := range results {
		if r.err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.err
			}
			p.log.Warn("skipping thread", "err", r.err)
			continue
		}
		rec := r.rec
		slots[r.idx] = &rec
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == len(ids) {
		return nil, classify(firstErr)
	}

	out := make([]model.RawThreadRecord, 0, len(ids)-failed)
	for _, rec := range slots {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// unreadThreadIDs pages through unread INBOX messages and returns the
// distinct thread ids in list order (newest first), capped at maxThreads.
func (p *Provider) unreadThreadIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	pageToken := ""
	for {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		call := p.svc.Users.Messages.List(me).
			LabelIds("INBOX", "UNREAD").
			MaxResults(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list unread messages: %w", classify(err))
		}
		for _, m := range resp.Messages {
			if _, ok := seen[m.ThreadId]; ok || m.ThreadId == "" {
				continue
			}
			seen[m.ThreadId] = struct{}{}
			ids = append(ids, m.ThreadId)
			if len(ids) >= p.maxThreads {
				return ids, nil
			}
		}
		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (p *Provider) getThread(ctx context.Context, id string) (*gmailv1.Thread, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.svc.Users.Threads.Get(me, id).Format("full").Context(ctx).Do()
}

// LastAutomatedReply reports the most recent SENT message as the latest
// automated reply.
func (p *Provider) LastAutomatedReply(ctx context.Context) (model.RawAutomatedReply, error) {
	if err := p.wait(ctx); err != nil {
		return model.RawAutomatedReply{}, err
	}
	resp, err := p.svc.Users.Messages.List(me).LabelIds("SENT").MaxResults(1).Context(ctx).Do()
	if err != nil {
		return model.RawAutomatedReply{}, fmt.Errorf("list sent messages: %w", classify(err))
	}
	if len(resp.Messages) == 0 {
		return model.RawAutomatedReply{OK: false, Message: "no sent messages"}, nil
	}

	if err := p.wait(ctx); err != nil {
		return model.RawAutomatedReply{}, err
	}
	msg, err := p.svc.Users.Messages.Get(me, resp.Messages[0].Id).Format("full").Context(ctx).Do()
	if err != nil {
		return model.RawAutomatedReply{}, fmt.Errorf("get sent message: %w", classify(err))
	}
	return model.RawAutomatedReply{
		OK:        true,
		ReplyText: messageBody(msg),
		ThreadID:  msg.ThreadId,
		Subject:   stripReplyPrefix(header(msg.Payload, "Subject")),
		SentAt:    internalDate(msg).Format(time.RFC3339),
	}, nil
}

// SendReply answers req.MessageID in its own thread. The recipient is the
// message's Reply-To, falling back to From.
func (p *Provider) SendReply(ctx context.Context, req model.ReplyRequest) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	orig, err := p.svc.Users.Messages.Get(me, req.MessageID).
		Format("metadata").
		MetadataHeaders("From", "Reply-To", "Subject", "Message-ID", "References").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("get message %s: %w", req.MessageID, classify(err))
	}

	to := header(orig.Payload, "Reply-To")
	if to == "" {
		to = header(orig.Payload, "From")
	}
	raw := replyMessage{
		To:         to,
		Subject:    header(orig.Payload, "Subject"),
		InReplyTo:  header(orig.Payload, "Message-ID"),
		References: header(orig.Payload, "References"),
		Body:       req.BodyText,
		Date:       p.now(),
	}.build()

	if err := p.wait(ctx); err != nil {
		return err
	}
	sent, err := p.svc.Users.Messages.Send(me, &gmailv1.Message{Raw: raw, ThreadId: orig.ThreadId}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send reply: %w", classifySend(err))
	}
	p.log.Info("gmail reply sent", "thread_id", orig.ThreadId, "sent_id", sent.Id)
	return nil
}

// threadRecord flattens a Gmail thread into the feed's record shape. The
// record describes the newest student message; history covers the whole
// thread in chronological order.
func threadRecord(th *gmailv1.Thread, assistant string) model.RawThreadRecord {
	msgs := append([]*gmailv1.Message(nil), th.Messages...)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].InternalDate < msgs[j].InternalDate })

	rec := model.RawThreadRecord{ThreadID: th.Id}
	var latest *gmailv1.Message
	for _, m := range msgs {
		role := wireStudent
		if isAssistant(m, assistant) {
			role = wireAssistant
		} else {
			latest = m
		}
		rec.ThreadMessages = append(rec.ThreadMessages, model.RawMessage{
			ID:   m.Id,
			Role: role,
			Body: messageBody(m),
			Date: internalDate(m).Format(time.RFC3339),
		})
	}
	if len(msgs) > 0 {
		rec.Subject = header(msgs[0].Payload, "Subject")
	}
	if latest != nil {
		rec.ID = latest.Id
		rec.From = header(latest.Payload, "From")
		rec.Body = messageBody(latest)
		rec.Date = internalDate(latest).Format(time.RFC3339)
	}

	// A thread whose last word came from the assistant has been answered.
	if n := len(msgs); n > 0 && isAssistant(msgs[n-1], assistant) {
		last := rec.ThreadMessages[n-1]
		rec.AIReply = last.Body
		rec.AIRepliedAt = last.Date
	}
	return rec
}

func isAssistant(m *gmailv1.Message, assistant string) bool {
	for _, l := range m.LabelIds {
		if l == "SENT" {
			return true
		}
	}
	if assistant == "" {
		return false
	}
	email, _ := util.ParseSenderHeader(header(m.Payload, "From"))
	return email == assistant
}

func internalDate(m *gmailv1.Message) time.Time {
	return time.UnixMilli(m.InternalDate).UTC()
}

// classify maps Gmail auth failures onto feed.ErrAuthRequired so the console
// treats both providers alike.
func classify(err error) error {
	var gerr *googleapi.Error
	var rerr *oauth2.RetrieveError
	switch {
	case errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized,
		errors.As(err, &rerr):
		return fmt.Errorf("%w: %v", feed.ErrAuthRequired, err)
	}
	return err
}

// classifySend also maps a 403 refusal to feed.ErrPolicyBlocked, as the
// backend does. A 403 for rate limits stays a plain error and one for missing
// scopes asks for a new consent.
func classifySend(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusForbidden {
		return classify(err)
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded":
			return err
		case "insufficientPermissions":
			return fmt.Errorf("%w: %v", feed.ErrAuthRequired, err)
		}
	}
	return fmt.Errorf("%w: %v", feed.ErrPolicyBlocked, err)
}
