package coordinator

import (
	"sync"
	"sync/atomic"

	"github.com/cryguy/edgefn/internal/core"
)

// State is a position in a unit's lifecycle.
type State int32

const (
	StateCreated State = iota
	StateDispatched
	StateCompleted
	StateTimedOut
	StateCrashed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateDispatched:
		return "dispatched"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateCrashed:
		return "crashed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// lifecycle tracks one isolation unit from creation to release. The result
// path and the deadline path race to finish it; only the first transition
// out of Dispatched wins. Killing and releasing are each done once no matter
// how many paths ask for them.
type lifecycle struct {
	state atomic.Int32

	mu     sync.Mutex
	iso    core.Isolate
	killed bool

	releaseOnce sync.Once
	release     func()
}

func newLifecycle(release func()) *lifecycle {
	return &lifecycle{release: release}
}

func (l *lifecycle) State() State {
	return State(l.state.Load())
}

// dispatch moves Created to Dispatched.
func (l *lifecycle) dispatch() bool {
	return l.state.CompareAndSwap(int32(StateCreated), int32(StateDispatched))
}

// finish moves Dispatched to a terminal state. It returns false if another
// path already finished the unit.
func (l *lifecycle) finish(to State) bool {
	return l.state.CompareAndSwap(int32(StateDispatched), int32(to))
}

// attach binds the live isolate. If the unit was killed before the isolate
// existed, the isolate is terminated on the spot and attach returns false.
func (l *lifecycle) attach(iso core.Isolate) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.killed {
		iso.Terminate()
		return false
	}
	l.iso = iso
	return true
}

// detach drops the isolate reference before it is closed.
func (l *lifecycle) detach() {
	l.mu.Lock()
	l.iso = nil
	l.mu.Unlock()
}

// kill terminates the isolate from outside its goroutine.
func (l *lifecycle) kill() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.killed {
		return
	}
	l.killed = true
	if l.iso != nil {
		l.iso.Terminate()
	}
}

// logs returns what the unit has captured so far, if it is still attached.
func (l *lifecycle) logs() []core.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.iso == nil {
		return nil
	}
	return l.iso.Logs()
}

// done releases the unit's admission slot.
func (l *lifecycle) done() {
	l.releaseOnce.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}
