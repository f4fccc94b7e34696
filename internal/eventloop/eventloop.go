package eventloop

import (
	"fmt"
	"sync"
	"time"

	"github.com/cryguy/edgefn/internal/core"
)

// minInterval is the shortest delay a setInterval may repeat at.
const minInterval = 10 * time.Millisecond

// fetchPoll is how often pending fetches are polled while nothing else is due.
const fetchPoll = time.Millisecond

// FetchResult is a finished fetch, already reduced to strings so the loop
// only has to splice them into a script.
type FetchResult struct {
	Status      int
	StatusText  string
	HeadersJSON string
	BodyB64     string
	Redirected  bool
	FinalURL    string
	Err         error
}

// PendingFetch is an outbound request the loop is waiting on.
type PendingFetch struct {
	ResultCh <-chan FetchResult
	FetchID  string
}

// timerEntry schedules a setTimeout or setInterval; its callback is kept
// on the JS side under the same id.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout
	id       int
}

// EventLoop drives Go-backed timers and pending fetches for a single
// isolation unit. All methods that take a Runtime must be called on the
// unit's goroutine. Stop may be called from anywhere and aborts any wait.
type EventLoop struct {
	mu             sync.Mutex
	timers         map[int]*timerEntry
	nextID         int
	pendingFetches []*PendingFetch

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a new EventLoop.
func New() *EventLoop {
	return &EventLoop{
		timers: make(map[int]*timerEntry),
		stop:   make(chan struct{}),
	}
}

// RegisterTimer creates a timer entry and returns its ID.
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	el.nextID++
	t := &timerEntry{id: el.nextID, deadline: time.Now().Add(delay)}
	if isInterval {
		t.interval = max(delay, minInterval)
	}
	el.timers[t.id] = t
	return t.id
}

// ClearTimer cancels a timer by ID.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	delete(el.timers, id)
}

// AddPendingFetch queues pf for delivery by DrainPendingFetches.
func (el *EventLoop) AddPendingFetch(pf *PendingFetch) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.pendingFetches = append(el.pendingFetches, pf)
}

// settleScript is the JS that resolves or rejects the fetch promise for r.
func settleScript(fetchID string, r FetchResult) string {
	if r.Err != nil {
		return fmt.Sprintf(`globalThis.__fetchReject(%s, %s)`, core.JsEscape(fetchID), core.JsEscape(r.Err.Error()))
	}
	return fmt.Sprintf(`globalThis.__fetchResolve(%s, %d, %s, %s, %s, %v, %s)`,
		core.JsEscape(fetchID), r.Status, core.JsEscape(r.StatusText),
		core.JsEscape(r.HeadersJSON), core.JsEscape(r.BodyB64),
		r.Redirected, core.JsEscape(r.FinalURL))
}

// DrainPendingFetches settles every fetch whose result has arrived, without
// blocking, and reports whether any did.
func (el *EventLoop) DrainPendingFetches(rt core.Runtime) bool {
	el.mu.Lock()
	pending := el.pendingFetches
	el.pendingFetches = nil
	el.mu.Unlock()
	if len(pending) == 0 {
		return false
	}

	var waiting []*PendingFetch
	for _, pf := range pending {
		select {
		case r := <-pf.ResultCh:
			_ = rt.Exec(settleScript(pf.FetchID, r))
			rt.RunMicrotasks()
		default:
			waiting = append(waiting, pf)
		}
	}

	el.mu.Lock()
	// settled callbacks may have started more fetches
	el.pendingFetches = append(waiting, el.pendingFetches...)
	el.mu.Unlock()
	return len(waiting) < len(pending)
}

// earliest returns the id and deadline of the next timer to fire, and
// whether any fetch is still in flight.
func (el *EventLoop) earliest() (id int, due time.Time, fetching bool) {
	el.mu.Lock()
	defer el.mu.Unlock()
	for _, t := range el.timers {
		if id == 0 || t.deadline.Before(due) {
			id, due = t.id, t.deadline
		}
	}
	return id, due, len(el.pendingFetches) > 0
}

// take removes a one-shot timer or rearms an interval, reporting whether id
// is still live.
func (el *EventLoop) take(id int) bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	t, ok := el.timers[id]
	switch {
	case !ok:
	case t.interval > 0:
		t.deadline = time.Now().Add(t.interval)
	default:
		delete(el.timers, id)
	}
	return ok
}

// RunOnce waits for the next unit of work, runs it and pumps microtasks.
// It returns false once the loop is idle or stopped.
func (el *EventLoop) RunOnce(rt core.Runtime) bool {
	if el.Stopped() {
		return false
	}
	if el.DrainPendingFetches(rt) {
		return true
	}

	id, due, fetching := el.earliest()
	if id == 0 && !fetching {
		return false
	}
	wait := time.Until(due)
	if id == 0 || (fetching && wait > fetchPoll) {
		return el.sleep(fetchPoll)
	}
	if wait > 0 && !el.sleep(wait) {
		return false
	}
	if el.take(id) {
		_ = rt.Exec(fmt.Sprintf(`globalThis.__timerFire(%d)`, id))
		rt.RunMicrotasks()
	}
	return true
}

// Wait blocks until d elapses or the loop is stopped. It reports whether the
// full duration elapsed.
func (el *EventLoop) Wait(d time.Duration) bool {
	return el.sleep(d)
}

func (el *EventLoop) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-el.stop:
		return false
	}
}

// Done returns a channel closed when the loop is stopped.
func (el *EventLoop) Done() <-chan struct{} {
	return el.stop
}

// HasPending returns true if there are any active timers or pending fetches.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0 || len(el.pendingFetches) > 0
}

// Stop aborts any wait in progress and makes RunOnce return false from now
// on. Safe to call from any goroutine, more than once.
func (el *EventLoop) Stop() {
	el.stopOnce.Do(func() { close(el.stop) })
	el.mu.Lock()
	el.timers = make(map[int]*timerEntry)
	el.pendingFetches = nil
	el.mu.Unlock()
}

// Stopped reports whether Stop has been called.
func (el *EventLoop) Stopped() bool {
	select {
	case <-el.stop:
		return true
	default:
		return false
	}
}
