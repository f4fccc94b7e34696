// Package edgefn runs untrusted JavaScript functions, one fresh isolation
// unit per request, under a hard wall-clock deadline. QuickJS is the default
// engine; build with -tags v8 for V8.
package edgefn

import (
	"context"
	"log/slog"

	"github.com/cryguy/edgefn/internal/coordinator"
	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/marshal"
	"go.opentelemetry.io/otel/trace"
)

type (
	FunctionDefinition = core.FunctionDefinition
	Status             = core.Status
	SecretMap          = core.SecretMap
	Header             = core.Header
	Headers            = core.Headers
	ExecutionRequest   = core.ExecutionRequest
	ExecutionResult    = core.ExecutionResult
	ResultKind         = core.ResultKind
	Execution          = core.Execution
	Outcome            = core.Outcome
	LogEntry           = core.LogEntry
	EngineConfig       = core.EngineConfig
	Registry           = core.Registry
	SecretResolver     = core.SecretResolver
)

const (
	StatusActive   = core.StatusActive
	StatusInactive = core.StatusInactive
	StatusDraft    = core.StatusDraft

	KindSuccess        = core.KindSuccess
	KindThrownResponse = core.KindThrownResponse
	KindFailure        = core.KindFailure
)

// DefaultEngineConfig returns the limits used when nothing is configured.
func DefaultEngineConfig() EngineConfig {
	return core.DefaultEngineConfig()
}

// Option configures an Engine.
type Option = coordinator.Option

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return coordinator.WithLogger(l)
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(t trace.Tracer) Option {
	return coordinator.WithTracer(t)
}

// Engine executes function definitions.
type Engine struct {
	coord *coordinator.Coordinator
}

// NewEngine creates an Engine on the backend selected at build time.
func NewEngine(cfg EngineConfig, opts ...Option) *Engine {
	return &Engine{coord: coordinator.New(NewBackend(), cfg, opts...)}
}

// Run executes def against req with secrets. Every outcome, including
// timeouts and crashes, is reported in the returned Execution's Result.
func (e *Engine) Run(ctx context.Context, def *FunctionDefinition, req *ExecutionRequest, secrets SecretMap) *Execution {
	return e.coord.Run(ctx, def, req, secrets)
}

// Backend returns the engine name, "quickjs" or "v8".
func (e *Engine) Backend() string {
	return e.coord.Backend()
}

// Shutdown refuses new executions and waits for live ones to be released.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.coord.Shutdown(ctx)
}

// Response is a wire-ready HTTP response.
type Response = marshal.Response

// Marshal converts an execution result into a wire response.
func Marshal(r *ExecutionResult) *Response {
	return marshal.Marshal(r)
}
