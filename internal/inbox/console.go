package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"strathyterm/internal/feed"
	"strathyterm/internal/model"
)

// Feed is the provider the console polls and sends through. Both the HTTP
// backend client and the direct Gmail provider satisfy it.
type Feed interface {
	UnreadThreads(ctx context.Context) ([]model.RawThreadRecord, error)
	LastAutomatedReply(ctx context.Context) (model.RawAutomatedReply, error)
	SendReply(ctx context.Context, req model.ReplyRequest) error
}

// SnapshotStore persists the thread store between runs.
type SnapshotStore interface {
	LoadThreads(ctx context.Context) ([]model.Thread, error)
	SaveThreads(ctx context.Context, threads []model.Thread) error
}

type Options struct {
	Policy     SendPolicy
	EvictAfter int
	PageSize   int
	Logger     *slog.Logger
	// Cache is optional.
	Cache SnapshotStore
	// Now defaults to time.Now.
	Now func() time.Time
	// OnChange is called with the new state after every applied update.
	OnChange func(State)
}

// Console ties a Feed to a Container. Network calls run without holding
// the container lock; their results are applied to whatever state is current
// when they complete.
type Console struct {
	feed       Feed
	state      *Container
	policy     SendPolicy
	evictAfter int
	cache      SnapshotStore
	now        func() time.Time
	log        *slog.Logger
	onChange   func(State)

	refreshing sync.Mutex
	polling    sync.Mutex

	// effects orders OnChange calls and cache saves by state generation.
	effects  sync.Mutex
	notified uint64
	saved    uint64
}

func NewConsole(f Feed, opts Options) *Console {
	c := &Console{
		feed:       f,
		state:      NewContainer(NewState(opts.PageSize)),
		policy:     opts.Policy,
		evictAfter: opts.EvictAfter,
		cache:      opts.Cache,
		now:        opts.Now,
		log:        opts.Logger,
		onChange:   opts.OnChange,
	}
	if c.policy.DomainSuffix == "" {
		c.policy = DefaultSendPolicy()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// State returns the current console state.
func (c *Console) State() State {
	return c.state.Snapshot()
}

// Update applies a UI-driven transform such as a selection, filter or page
// change. It is not persisted.
func (c *Console) Update(fn func(State) State) (State, error) {
	return c.apply(context.Background(), fn, false)
}

// apply updates the state, then reports it to OnChange and, when persist is
// set, saves it. Side effects run outside the container lock; a result whose
// generation is older than one already reported or saved is dropped, so
// neither the cache nor OnChange ever goes back to an earlier state.
func (c *Console) apply(ctx context.Context, fn func(State) State, persist bool) (State, error) {
	st, gen, err := c.state.update(fn)
	if err != nil {
		return st, err
	}
	if c.onChange == nil && (!persist || c.cache == nil) {
		return st, nil
	}

	c.effects.Lock()
	defer c.effects.Unlock()
	if c.onChange != nil && gen > c.notified {
		c.notified = gen
		c.onChange(st)
	}
	if persist && c.cache != nil && gen > c.saved {
		c.saved = gen
		c.save(ctx, st.Threads)
	}
	return st, nil
}

// WarmStart loads the cached store, if any. An unreadable cache is treated
// as empty.
func (c *Console) WarmStart(ctx context.Context) {
	if c.cache == nil {
		return
	}
	threads, err := c.cache.LoadThreads(ctx)
	if err != nil {
		c.log.Warn("discarding cached threads", "err", err)
		return
	}
	if len(threads) == 0 {
		return
	}
	_, _ = c.apply(ctx, func(s State) State { return s.WithThreads(threads) }, false)
	c.log.Info("loaded cached threads", "count", len(threads))
}

// Refresh fetches the unread snapshot and reconciles it into the store. On
// failure the store is left untouched and the error is recorded in the
// state; ErrAuthRequired additionally sets AuthRequired.
func (c *Console) Refresh(ctx context.Context) error {
	recs, err := c.feed.UnreadThreads(ctx)
	if err != nil {
		auth := errors.Is(err, feed.ErrAuthRequired)
		if auth {
			c.log.Warn("refresh needs login")
		} else {
			c.log.Error("refresh failed", "err", err)
		}
		if _, uerr := c.apply(ctx, func(s State) State { return s.WithError(err, auth) }, false); uerr != nil {
			return uerr
		}
		return fmt.Errorf("refresh threads: %w", err)
	}

	now := c.now()
	incoming := NormalizeBatch(recs, now, c.log)
	st, err := c.apply(ctx, func(s State) State {
		return s.WithBatch(incoming, c.evictAfter, now)
	}, true)
	if err != nil {
		return err
	}
	c.log.Debug("refreshed threads", "incoming", len(incoming), "stored", len(st.Threads))
	return nil
}

// CheckAutomatedReply polls for the latest automated reply and records it on
// the matching threads. It reports whether a reply event was applied.
func (c *Console) CheckAutomatedReply(ctx context.Context) (bool, error) {
	raw, err := c.feed.LastAutomatedReply(ctx)
	if err != nil {
		c.log.Warn("last reply poll failed", "err", err)
		return false, fmt.Errorf("check automated reply: %w", err)
	}
	ev, ok := ReplyEvent(raw)
	if !ok {
		return false, nil
	}
	now := c.now()
	if _, err := c.apply(ctx, func(s State) State { return s.WithAutomatedReply(ev, now) }, true); err != nil {
		return false, err
	}
	return true, nil
}

// Send replies to thread id, which is looked up again so the reply goes to
// the thread it was written for even if the selection moved since. A thread
// no longer in the store returns ErrThreadGone. The send policy is checked
// before the network: a disallowed recipient marks the thread Blocked and
// nothing is sent. A provider-side refusal has the same outcome. Both return
// an error wrapping ErrSendBlocked. On success the store is refreshed.
func (c *Console) Send(ctx context.Context, id, body string) error {
	if id == "" {
		return ErrNoSelection
	}
	t, ok := c.state.Snapshot().Thread(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrThreadGone, id)
	}
	text := strings.TrimSpace(body)
	if text == "" {
		return ErrEmptyReply
	}
	if err := c.policy.Check(t.StudentEmail); err != nil {
		return c.blocked(t.ID, err)
	}
	if t.ReplyTargetID == "" {
		return ErrNoReplyTarget
	}

	err := c.feed.SendReply(ctx, model.ReplyRequest{MessageID: t.ReplyTargetID, BodyText: text})
	switch {
	case errors.Is(err, feed.ErrPolicyBlocked):
		return c.blocked(t.ID, err)
	case err != nil:
		c.log.Error("send failed", "thread_id", t.ID, "err", err)
		return fmt.Errorf("send reply: %w", err)
	}
	c.log.Info("reply sent", "thread_id", t.ID, "to", t.StudentEmail)

	if err := c.Refresh(ctx); err != nil {
		c.log.Warn("refresh after send failed", "err", err)
	}
	return nil
}

func (c *Console) blocked(id string, cause error) error {
	c.log.Warn("send blocked", "thread_id", id, "reason", cause)
	if _, err := c.apply(context.Background(), func(s State) State { return s.WithStatus(id, model.StatusBlocked) }, true); err != nil {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSendBlocked, cause)
}

// Escalate marks a thread Escalated.
func (c *Console) Escalate(id string) error {
	return c.setStatus(id, model.StatusEscalated)
}

// Block marks a thread Blocked.
func (c *Console) Block(id string) error {
	return c.setStatus(id, model.StatusBlocked)
}

func (c *Console) setStatus(id string, status model.Status) error {
	if id == "" {
		return ErrNoSelection
	}
	_, err := c.apply(context.Background(), func(s State) State { return s.WithStatus(id, status) }, true)
	return err
}

// Run polls until ctx is done. Each tick starts a refresh and an automated
// reply check concurrently; a tick is skipped for an operation still running
// from the previous one. Run does not close the console.
func (c *Console) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	tick := func() {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.PollOnce(ctx)
		}()
		go func() {
			defer wg.Done()
			c.CheckOnce(ctx)
		}()
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.state.Closed() {
				return
			}
			tick()
		}
	}
}

// PollOnce runs a refresh unless one is already in flight.
func (c *Console) PollOnce(ctx context.Context) {
	if !c.refreshing.TryLock() {
		c.log.Debug("refresh still running, skipping tick")
		return
	}
	defer c.refreshing.Unlock()
	_ = c.Refresh(ctx)
}

// CheckOnce runs an automated reply check unless one is already in flight.
func (c *Console) CheckOnce(ctx context.Context) {
	if !c.polling.TryLock() {
		return
	}
	defer c.polling.Unlock()
	_, _ = c.CheckAutomatedReply(ctx)
}

// Close stops all further state updates. Requests still in flight complete
// without effect.
func (c *Console) Close() {
	c.state.Close()
}

func (c *Console) save(ctx context.Context, threads []model.Thread) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SaveThreads(ctx, threads); err != nil {
		c.log.Warn("saving thread cache failed", "err", err)
	}
}
