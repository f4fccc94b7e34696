// Package dispatcher resolves inbound HTTP requests to stored functions and
// hands them to the execution coordinator.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/marshal"
	"github.com/cryguy/edgefn/internal/metrics"
	"github.com/cryguy/edgefn/internal/registry"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ExecutionIDHeader carries the execution ID on every executed response.
const ExecutionIDHeader = "X-Edgefn-Execution-Id"

// Runner executes a resolved function. *coordinator.Coordinator implements it.
type Runner interface {
	Run(ctx context.Context, def *core.FunctionDefinition, req *core.ExecutionRequest, secrets core.SecretMap) *core.Execution
}

// Dispatcher is the top-level entry point for function requests.
type Dispatcher struct {
	registry core.Registry
	secrets  core.SecretResolver
	runner   Runner

	maxBodyBytes int64
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics records dispatch statuses on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithMaxBodyBytes bounds inbound request bodies. Zero disables the bound.
func WithMaxBodyBytes(n int64) Option {
	return func(d *Dispatcher) { d.maxBodyBytes = n }
}

// New creates a Dispatcher. A nil secrets resolver gives every function an
// empty secret map.
func New(reg core.Registry, secrets core.SecretResolver, runner Runner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:     reg,
		secrets:      secrets,
		runner:       runner,
		maxBodyBytes: 6 << 20,
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer("edgefn"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle resolves identifier and runs the function against req. The
// returned Execution is nil when no function ran.
func (d *Dispatcher) Handle(ctx context.Context, identifier string, req *core.ExecutionRequest) (*marshal.Response, *core.Execution) {
	ctx, span := d.tracer.Start(ctx, "edgefn.dispatch", trace.WithAttributes(
		attribute.String("edgefn.function", identifier),
		attribute.String("http.request.method", req.Method),
	))
	defer span.End()

	resp, exec := d.handle(ctx, identifier, req)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	d.metrics.ObserveDispatch(resp.Status)
	return resp, exec
}

func (d *Dispatcher) handle(ctx context.Context, identifier string, req *core.ExecutionRequest) (*marshal.Response, *core.Execution) {
	if !registry.ValidIdentifier(identifier) {
		return marshal.Error(core.MsgFunctionNotFound, http.StatusNotFound), nil
	}

	def, err := d.registry.Lookup(ctx, identifier)
	switch {
	case errors.Is(err, core.ErrFunctionNotFound):
		return marshal.Error(core.MsgFunctionNotFound, http.StatusNotFound), nil
	case err != nil:
		d.logger.Error("dispatcher: registry lookup failed", "function", identifier, "error", err)
		return marshal.Error("Function registry unavailable", http.StatusServiceUnavailable), nil
	case !def.Active():
		return marshal.Error(core.MsgFunctionNotFound, http.StatusNotFound), nil
	}

	secrets, err := d.resolveSecrets(ctx, def.Tenant)
	if err != nil {
		d.logger.Error("dispatcher: resolving secrets failed", "function", identifier, "tenant", def.Tenant, "error", err)
		return marshal.Error("Secret store unavailable", http.StatusServiceUnavailable), nil
	}

	exec := d.runner.Run(ctx, def, req, secrets)
	resp := marshal.Marshal(exec.Result)
	resp.Header.Set(ExecutionIDHeader, exec.ID)
	return resp, exec
}

func (d *Dispatcher) resolveSecrets(ctx context.Context, tenant string) (core.SecretMap, error) {
	if d.secrets == nil || tenant == "" {
		return core.SecretMap{}, nil
	}
	m, err := d.secrets.Resolve(ctx, tenant)
	if errors.Is(err, core.ErrTenantNotFound) {
		return core.SecretMap{}, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ServeFunction is the echo handler for <prefix>/:id and <prefix>/:id/*.
// Any method is accepted and forwarded unchanged.
func (d *Dispatcher) ServeFunction(c echo.Context) error {
	req, err := d.buildRequest(c)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return marshal.Error("Request body too large", http.StatusRequestEntityTooLarge).Write(c.Response())
		}
		return marshal.Error("Could not read request body", http.StatusBadRequest).Write(c.Response())
	}

	resp, exec := d.Handle(c.Request().Context(), c.Param("id"), req)
	if exec != nil {
		d.logger.Info("dispatcher: executed",
			"function", exec.Identifier,
			"id", exec.ID,
			"outcome", exec.Outcome,
			"status", resp.Status,
			"duration", exec.Duration,
		)
	}
	return resp.Write(c.Response())
}

// buildRequest copies the inbound request into an ExecutionRequest. Header
// names are emitted in sorted order with their values in arrival order.
func (d *Dispatcher) buildRequest(c echo.Context) (*core.ExecutionRequest, error) {
	r := c.Request()
	req := &core.ExecutionRequest{
		URL:    fmt.Sprintf("%s://%s%s", c.Scheme(), r.Host, r.URL.RequestURI()),
		Method: r.Method,
	}

	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range r.Header[name] {
			req.Headers.Add(name, v)
		}
	}

	if r.Body == nil || r.Body == http.NoBody {
		return req, nil
	}
	body := io.Reader(r.Body)
	if d.maxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Response(), r.Body, d.maxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		req.Body = data
	}
	return req, nil
}

// Health is the liveness handler. It does not touch the registry.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
