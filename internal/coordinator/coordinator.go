// Package coordinator owns the lifecycle of isolation units: admission,
// dispatch of the single inbound message, the deadline race, forced
// termination and result collection.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/metrics"
	"github.com/cryguy/edgefn/internal/sandbox"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"
)

// Coordinator runs function definitions in fresh isolation units.
type Coordinator struct {
	backend core.IsolateBackend
	cfg     core.EngineConfig
	slots   *semaphore.Weighted

	// mu orders units.Add against Shutdown's Wait.
	mu       sync.Mutex
	draining bool
	units    sync.WaitGroup

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records executions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New creates a Coordinator. cfg.MaxConcurrent bounds the number of live
// units; zero leaves it unbounded.
func New(backend core.IsolateBackend, cfg core.EngineConfig, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend: backend,
		cfg:     cfg,
		logger:  slog.Default(),
		tracer:  noop.NewTracerProvider().Tracer("edgefn"),
	}
	if cfg.MaxConcurrent > 0 {
		c.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the limits the coordinator applies.
func (c *Coordinator) Config() core.EngineConfig {
	return c.cfg
}

// Backend returns the name of the engine backing the units.
func (c *Coordinator) Backend() string {
	return c.backend.Name()
}

// unitOutcome is what a unit goroutine posts back. It is sent exactly once.
type unitOutcome struct {
	reply *core.Reply
	err   error
	logs  []core.LogEntry
}

// Run executes def against req with secrets, racing the unit against the
// configured deadline and ctx. It never returns a nil Execution, and every
// failure is reported as a core.Failure result rather than an error.
func (c *Coordinator) Run(ctx context.Context, def *core.FunctionDefinition, req *core.ExecutionRequest, secrets core.SecretMap) *core.Execution {
	exec := &core.Execution{ID: uuid.NewString(), Identifier: def.Identifier}
	ctx, span := c.tracer.Start(ctx, "edgefn.execute", trace.WithAttributes(
		attribute.String("edgefn.function", def.Identifier),
		attribute.String("edgefn.execution_id", exec.ID),
		attribute.String("edgefn.backend", c.backend.Name()),
	))
	defer span.End()

	redact := newRedactor(secrets)
	start := time.Now()
	c.run(ctx, exec, def, req, secrets, redact)
	exec.Duration = time.Since(start)
	if exec.Result == nil {
		exec.Outcome = core.OutcomeCrashed
		exec.Result = core.Failure(core.MsgWorkerError, 500)
	}

	span.SetAttributes(
		attribute.String("edgefn.outcome", string(exec.Outcome)),
		attribute.Int("http.response.status_code", exec.Result.Status),
	)
	if exec.Result.IsFailure() {
		span.SetStatus(codes.Error, redact.String(exec.Result.Message))
	}
	c.report(exec, redact)
	return exec
}

func (c *Coordinator) run(ctx context.Context, exec *core.Execution, def *core.FunctionDefinition, req *core.ExecutionRequest, secrets core.SecretMap, redact *redactor) {
	if limit := c.cfg.MaxSourceKB * 1024; limit > 0 && len(def.SourceCode) > limit {
		exec.Outcome = core.OutcomeCompleted
		exec.Result = core.Failure(fmt.Sprintf("Function source exceeds %d KB", c.cfg.MaxSourceKB), 500)
		return
	}
	compiled, err := sandbox.CompileModule(def.SourceCode)
	if err != nil {
		exec.Outcome = core.OutcomeCompleted
		exec.Result = core.Failure(err.Error(), 500)
		return
	}

	if c.isDraining() {
		exec.Outcome = core.OutcomeOverloaded
		exec.Result = core.Failure(core.MsgShuttingDown, 503)
		return
	}
	if err := c.admit(ctx); err != nil {
		if errors.Is(err, core.ErrOverloaded) {
			exec.Outcome = core.OutcomeOverloaded
			exec.Result = core.Failure(core.MsgOverloaded, 503)
		} else {
			exec.Outcome = core.OutcomeCancelled
			exec.Result = core.Failure(core.MsgCancelled, core.StatusClientClosedRequest)
		}
		return
	}
	if !c.enter() {
		c.releaseSlot()
		exec.Outcome = core.OutcomeOverloaded
		exec.Result = core.Failure(core.MsgShuttingDown, 503)
		return
	}

	msg := sandbox.NewMessage(def, req, secrets)
	msg.Compiled = compiled

	l := newLifecycle(c.releaseSlot)
	results := make(chan unitOutcome, 1)
	l.dispatch()
	go c.unit(l, msg, results)

	var deadline <-chan time.Time
	if c.cfg.ExecutionTimeout > 0 {
		timer := time.NewTimer(c.cfg.ExecutionTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case out := <-results:
		c.complete(exec, l, out, redact)
	case <-deadline:
		c.abort(exec, l, StateTimedOut)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.abort(exec, l, StateTimedOut)
		} else {
			c.abort(exec, l, StateCancelled)
		}
	}
}

// admit waits up to cfg.QueueTimeout for an execution slot.
func (c *Coordinator) admit(ctx context.Context) error {
	if c.slots == nil {
		return nil
	}
	start := time.Now()
	defer func() { c.metrics.ObserveAdmission(time.Since(start)) }()

	if c.slots.TryAcquire(1) {
		return nil
	}
	wait := c.cfg.QueueTimeout
	if wait <= 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.ErrOverloaded
	}
	qctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := c.slots.Acquire(qctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.ErrOverloaded
	}
	return nil
}

// Shutdown refuses new executions and waits until every live unit has
// released its engine, or ctx is done.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()
	done := make(chan struct{})
	go func() {
		c.units.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) isDraining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draining
}

// enter counts a new unit unless Shutdown has started.
func (c *Coordinator) enter() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining {
		return false
	}
	c.units.Add(1)
	return true
}

func (c *Coordinator) releaseSlot() {
	if c.slots != nil {
		c.slots.Release(1)
	}
}

// unit is the body of an isolation unit's goroutine. The engine is created,
// used and closed on one locked OS thread. The admission slot is held until
// the engine is gone, including after the caller has given up on it.
func (c *Coordinator) unit(l *lifecycle, msg *core.Message, results chan<- unitOutcome) {
	sent := false
	defer c.units.Done()
	defer l.done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("coordinator: isolation unit panicked", "panic", r)
			if !sent {
				results <- unitOutcome{err: fmt.Errorf("isolation unit panic: %v", r)}
			}
		}
	}()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c.metrics.UnitStarted()
	defer c.metrics.UnitStopped()

	iso, err := c.backend.NewIsolate(c.cfg)
	if err != nil {
		sent = true
		results <- unitOutcome{err: fmt.Errorf("creating isolation unit: %w", err)}
		return
	}
	defer iso.Close()
	defer l.detach()

	if !l.attach(iso) {
		sent = true
		results <- unitOutcome{err: core.ErrUnitTerminated}
		return
	}

	reply, err := iso.Run(msg)
	sent = true
	results <- unitOutcome{reply: reply, err: err, logs: iso.Logs()}
}

// complete handles a unit that answered before the deadline.
func (c *Coordinator) complete(exec *core.Execution, l *lifecycle, out unitOutcome, redact *redactor) {
	exec.Logs = out.logs
	if out.err != nil {
		if !l.finish(StateCrashed) {
			return
		}
		l.kill()
		c.logger.Error("coordinator: worker execution error",
			"function", exec.Identifier, "id", exec.ID, "error", redact.String(out.err.Error()))
		exec.Outcome = core.OutcomeCrashed
		exec.Result = core.Failure(core.MsgWorkerError, 500)
		return
	}
	if !l.finish(StateCompleted) {
		return
	}
	l.kill()
	exec.Outcome = core.OutcomeCompleted
	exec.Result = sandbox.ResultFromReply(out.reply, c.cfg.MaxResponseBytes)
	if exec.Result.IsFailure() && exec.Result.Status >= 500 {
		c.logger.Warn("coordinator: execution error",
			"function", exec.Identifier, "id", exec.ID, "status", exec.Result.Status, "error", redact.String(exec.Result.Message))
	}
}

// abort kills a unit that lost the race. Whatever it posts afterwards stays
// in the buffered channel and is dropped with it.
func (c *Coordinator) abort(exec *core.Execution, l *lifecycle, to State) {
	if !l.finish(to) {
		return
	}
	exec.Logs = l.logs()
	l.kill()
	switch to {
	case StateTimedOut:
		exec.Outcome = core.OutcomeTimedOut
		exec.Result = core.Failure(core.MsgTimeout, 504)
		c.logger.Warn("coordinator: function timed out",
			"function", exec.Identifier, "id", exec.ID, "timeout", c.cfg.ExecutionTimeout)
	default:
		exec.Outcome = core.OutcomeCancelled
		exec.Result = core.Failure(core.MsgCancelled, core.StatusClientClosedRequest)
		c.logger.Info("coordinator: request cancelled", "function", exec.Identifier, "id", exec.ID)
	}
}

func (c *Coordinator) report(exec *core.Execution, redact *redactor) {
	c.metrics.ObserveExecution(string(exec.Outcome), exec.Result.Kind.String(), exec.Duration, len(exec.Logs))
	for _, entry := range exec.Logs {
		c.logger.Debug("coordinator: console",
			"function", exec.Identifier, "id", exec.ID, "level", entry.Level, "message", redact.String(entry.Message))
	}
}
