//go:build !v8

// Package quickjs implements isolation units on the modernc.org/quickjs
// engine. It is the default backend; build with -tags v8 for V8.
package quickjs

import (
	"fmt"
	"sync"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/eventloop"
	"github.com/cryguy/edgefn/internal/sandbox"
	"modernc.org/quickjs"
)

// Backend creates QuickJS isolation units.
type Backend struct{}

var _ core.IsolateBackend = Backend{}

// Name returns "quickjs".
func (Backend) Name() string { return "quickjs" }

// NewIsolate creates a fresh VM with the capability surface installed.
func (Backend) NewIsolate(cfg core.EngineConfig) (core.Isolate, error) {
	return NewIsolate(cfg)
}

// Isolate is a single-use QuickJS VM.
type Isolate struct {
	vm    *quickjs.VM
	rt    *vmRuntime
	loop  *eventloop.EventLoop
	state *core.UnitState

	mu         sync.Mutex
	closed     bool
	terminated bool
}

var _ core.Isolate = (*Isolate)(nil)

// NewIsolate creates a VM, applies the memory limit and installs the
// bootstrap artifact.
func NewIsolate(cfg core.EngineConfig) (*Isolate, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) * 1024 * 1024)
	}

	iso := &Isolate{
		vm:    vm,
		rt:    &vmRuntime{vm: vm},
		loop:  eventloop.New(),
		state: core.NewUnitState(cfg.MaxFetchRequests),
	}
	if err := sandbox.Install(iso.rt, iso.loop, iso.state, cfg); err != nil {
		vm.Close()
		return nil, err
	}
	return iso, nil
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

// Terminate interrupts running JS, aborts event loop waits and cancels
// in-flight fetches.
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
		i.vm.Interrupt()
	}
}

// Logs returns the console output captured so far.
func (i *Isolate) Logs() []core.LogEntry {
	return i.state.Logs()
}

// Close releases the VM.
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
	i.vm.Close()
}
