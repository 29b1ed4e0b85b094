package inbox

import (
	"sync"
	"time"

	"strathyterm/internal/model"
)

// DefaultPageSize is the number of threads shown per page.
const DefaultPageSize = 50

// State is one immutable view of the console: the thread store plus the
// selection, filter and page the user is looking at. Threads is never
// modified in place; every With* method returns a new State.
type State struct {
	Threads    []model.Thread
	SelectedID string
	Query      string
	Page       int
	PageSize   int

	// LastError is the most recent refresh failure, cleared on success.
	LastError    string
	AuthRequired bool
	LastRefresh  time.Time
}

func NewState(pageSize int) State {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return State{Page: 1, PageSize: pageSize}
}

// Filtered returns the threads matching the current query.
func (s State) Filtered() []model.Thread {
	return Filter(s.Threads, s.Query)
}

// Visible returns the current page of filtered threads.
func (s State) Visible() []model.Thread {
	return Paginate(s.Filtered(), s.PageSize, s.Page)
}

func (s State) TotalPages() int {
	return TotalPages(len(s.Filtered()), s.PageSize)
}

// Selected returns the active thread as it currently exists in the store.
func (s State) Selected() (model.Thread, bool) {
	return s.Thread(s.SelectedID)
}

// Thread looks up id in the store.
func (s State) Thread(id string) (model.Thread, bool) {
	if id == "" {
		return model.Thread{}, false
	}
	for _, t := range s.Threads {
		if t.ID == id {
			return t, true
		}
	}
	return model.Thread{}, false
}

// WithBatch reconciles a full refresh into the store, keeps the selection on
// the same thread id when it survived, and resets to page 1.
func (s State) WithBatch(incoming []model.Thread, evictAfter int, at time.Time) State {
	s.Threads = Reconcile(s.Threads, incoming, evictAfter)
	s = s.reselect()
	s.Page = 1
	s.LastError = ""
	s.AuthRequired = false
	s.LastRefresh = at
	return s
}

// WithThreads replaces the store wholesale (warm start from cache).
func (s State) WithThreads(threads []model.Thread) State {
	sorted := make([]model.Thread, len(threads))
	copy(sorted, threads)
	SortByReceived(sorted)
	s.Threads = sorted
	return s.reselect()
}

func (s State) WithAutomatedReply(ev model.AutomatedReply, now time.Time) State {
	s.Threads = ApplyAutomatedReply(s.Threads, ev, now)
	return s
}

func (s State) WithStatus(id string, status model.Status) State {
	s.Threads = SetStatus(s.Threads, id, status)
	return s
}

// WithQuery changes the filter and resets to page 1.
func (s State) WithQuery(q string) State {
	s.Query = q
	s.Page = 1
	return s
}

// WithPage moves to page p, clamped to the available pages.
func (s State) WithPage(p int) State {
	total := s.TotalPages()
	if p > total {
		p = total
	}
	if p < 1 {
		p = 1
	}
	s.Page = p
	return s
}

// WithSelection selects id if it is in the store.
func (s State) WithSelection(id string) State {
	for _, t := range s.Threads {
		if t.ID == id {
			s.SelectedID = id
			return s
		}
	}
	return s
}

func (s State) WithError(err error, authRequired bool) State {
	if err != nil {
		s.LastError = err.Error()
	}
	s.AuthRequired = authRequired
	return s
}

func (s State) reselect() State {
	if t, ok := Reselect(s.Threads, s.SelectedID); ok {
		s.SelectedID = t.ID
	} else {
		s.SelectedID = ""
	}
	return s
}

// Container owns the console State. Updates are applied to whatever state is
// current when they run, so an asynchronous completion never overwrites a
// mutation that happened while it was in flight. After Close every Update is
// a no-op.
type Container struct {
	mu     sync.Mutex
	state  State
	gen    uint64
	closed bool
}

func NewContainer(initial State) *Container {
	return &Container{state: initial}
}

// Snapshot returns the current state.
func (c *Container) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Update replaces the state with fn(current) and returns the new state. fn
// must be a pure transform; it runs under the container lock.
func (c *Container) Update(fn func(State) State) (State, error) {
	st, _, err := c.update(fn)
	return st, err
}

// update also returns the generation of the new state. Generations increase
// by one per applied update, so callers can order side effects that run
// after the lock is released.
func (c *Container) update(fn func(State) State) (State, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.state, c.gen, ErrClosed
	}
	c.state = fn(c.state)
	c.gen++
	return c.state, c.gen, nil
}

// Close stops accepting updates. Results of requests still in flight are
// dropped.
func (c *Container) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Container) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
