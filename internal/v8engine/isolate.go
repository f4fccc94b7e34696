//go:build v8

// Package v8engine implements isolation units on V8 via tommie/v8go.
package v8engine

import (
	"sync"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/eventloop"
	"github.com/cryguy/edgefn/internal/sandbox"
	v8 "github.com/tommie/v8go"
)

// Backend creates V8 isolation units.
type Backend struct{}

var _ core.IsolateBackend = Backend{}

// Name returns "v8".
func (Backend) Name() string { return "v8" }

// NewIsolate creates a fresh isolate with the capability surface installed.
func (Backend) NewIsolate(cfg core.EngineConfig) (core.Isolate, error) {
	return NewIsolate(cfg)
}

// Isolate is a single-use V8 isolate and context.
type Isolate struct {
	iso   *v8.Isolate
	ctx   *v8.Context
	rt    *v8Runtime
	loop  *eventloop.EventLoop
	state *core.UnitState

	mu         sync.Mutex
	closed     bool
	terminated bool
}

var _ core.Isolate = (*Isolate)(nil)

// NewIsolate creates an isolate bounded by cfg.MemoryLimitMB and installs
// the bootstrap artifact into a new context.
func NewIsolate(cfg core.EngineConfig) (*Isolate, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)

	i := &Isolate{
		iso:   iso,
		ctx:   ctx,
		rt:    &v8Runtime{iso: iso, ctx: ctx},
		loop:  eventloop.New(),
		state: core.NewUnitState(cfg.MaxFetchRequests),
	}
	if err := sandbox.Install(i.rt, i.loop, i.state, cfg); err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, err
	}
	return i, nil
}

// Run executes one message. A unit runs at most one message.
func (i *Isolate) Run(msg *core.Message) (*core.Reply, error) {
	i.mu.Lock()
	dead := i.terminated || i.closed
	i.mu.Unlock()
	if dead {
		return nil, core.ErrUnitTerminated
	}
	return sandbox.Run(i.rt, i.loop, msg)
}

// Terminate stops running JS. TerminateExecution is the one V8 call that
// is safe from another goroutine.
func (i *Isolate) Terminate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.terminated {
		return
	}
	i.terminated = true
	i.loop.Stop()
	i.state.Clear()
	if !i.closed {
		i.iso.TerminateExecution()
	}
}

// Logs returns the console output captured so far.
func (i *Isolate) Logs() []core.LogEntry {
	return i.state.Logs()
}

// Close releases the context and the isolate.
func (i *Isolate) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	i.mu.Unlock()

	i.loop.Stop()
	i.state.Clear()
	i.ctx.Close()
	i.iso.Dispose()
}
