package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cryguy/edgefn/internal/core"
)

// fakeBackend hands out isolates whose Run is scripted by the test. The stop
// channel passed to run is closed when the isolate is terminated.
type fakeBackend struct {
	run     func(msg *core.Message, stop <-chan struct{}) (*core.Reply, error)
	newErr  error
	logs    []core.LogEntry
	created atomic.Int32
	closed  atomic.Int32
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) NewIsolate(core.EngineConfig) (core.Isolate, error) {
	if b.newErr != nil {
		return nil, b.newErr
	}
	b.created.Add(1)
	return &fakeIsolate{backend: b, stop: make(chan struct{})}, nil
}

type fakeIsolate struct {
	backend *fakeBackend
	stop    chan struct{}
	once    sync.Once
}

func (i *fakeIsolate) Run(msg *core.Message) (*core.Reply, error) {
	return i.backend.run(msg, i.stop)
}

func (i *fakeIsolate) Terminate() { i.once.Do(func() { close(i.stop) }) }

func (i *fakeIsolate) Logs() []core.LogEntry {
	if i.backend.logs != nil {
		return i.backend.logs
	}
	return []core.LogEntry{{Level: "log", Message: "hello", Time: time.Now()}}
}

func (i *fakeIsolate) Close() { i.backend.closed.Add(1) }

func okReply(body string) *core.Reply {
	return &core.Reply{Success: true, Response: &core.ReplyResponse{Status: 200, Headers: [][2]string{}, Body: &body}}
}

func blockUntilStopped(_ *core.Message, stop <-chan struct{}) (*core.Reply, error) {
	<-stop
	return okReply("late"), nil
}

func testConfig() core.EngineConfig {
	cfg := core.DefaultEngineConfig()
	cfg.ExecutionTimeout = time.Second
	return cfg
}

func testDef() *core.FunctionDefinition {
	return &core.FunctionDefinition{Identifier: "fn", SourceCode: "export function handler() {}", Status: core.StatusActive}
}

func testReq() *core.ExecutionRequest {
	return &core.ExecutionRequest{URL: "http://localhost/fn", Method: "GET"}
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRun_Success(t *testing.T) {
	var got *core.Message
	b := &fakeBackend{run: func(msg *core.Message, _ <-chan struct{}) (*core.Reply, error) {
		got = msg
		return okReply("ok"), nil
	}}
	c := New(b, testConfig())

	exec := c.Run(context.Background(), testDef(), testReq(), core.SecretMap{"K": "v"})
	if exec.Outcome != core.OutcomeCompleted {
		t.Errorf("outcome = %q, want completed", exec.Outcome)
	}
	if exec.Result.Kind != core.KindSuccess || string(exec.Result.Body) != "ok" {
		t.Errorf("result = %+v", exec.Result)
	}
	if exec.ID == "" || exec.Identifier != "fn" {
		t.Errorf("id = %q identifier = %q", exec.ID, exec.Identifier)
	}
	if len(exec.Logs) != 1 {
		t.Errorf("logs = %d, want 1", len(exec.Logs))
	}
	if got.Compiled == "" {
		t.Error("message was not precompiled")
	}
	if got.Secrets["K"] != "v" {
		t.Errorf("secrets = %v", got.Secrets)
	}
	waitFor(t, "isolate close", func() bool { return b.closed.Load() == 1 })
}

func TestRun_Timeout(t *testing.T) {
	b := &fakeBackend{run: blockUntilStopped}
	cfg := testConfig()
	cfg.ExecutionTimeout = 30 * time.Millisecond
	c := New(b, cfg)

	start := time.Now()
	exec := c.Run(context.Background(), testDef(), testReq(), nil)
	elapsed := time.Since(start)

	if exec.Outcome != core.OutcomeTimedOut {
		t.Errorf("outcome = %q, want timed_out", exec.Outcome)
	}
	if exec.Result.Status != 504 || exec.Result.Message != core.MsgTimeout {
		t.Errorf("result = %d %q, want 504 %q", exec.Result.Status, exec.Result.Message, core.MsgTimeout)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("timeout returned after %v", elapsed)
	}
	waitFor(t, "isolate close", func() bool { return b.closed.Load() == 1 })
}

func TestRun_ContextDeadlineIsTimeout(t *testing.T) {
	c := New(&fakeBackend{run: blockUntilStopped}, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	exec := c.Run(ctx, testDef(), testReq(), nil)
	if exec.Result.Status != 504 {
		t.Errorf("status = %d, want 504", exec.Result.Status)
	}
}

func TestRun_Cancelled(t *testing.T) {
	b := &fakeBackend{run: blockUntilStopped}
	c := New(b, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	exec := c.Run(ctx, testDef(), testReq(), nil)
	if exec.Outcome != core.OutcomeCancelled {
		t.Errorf("outcome = %q, want cancelled", exec.Outcome)
	}
	if exec.Result.Status != core.StatusClientClosedRequest {
		t.Errorf("status = %d, want %d", exec.Result.Status, core.StatusClientClosedRequest)
	}
	waitFor(t, "isolate close", func() bool { return b.closed.Load() == 1 })
}

func TestRun_UnitError(t *testing.T) {
	c := New(&fakeBackend{run: func(*core.Message, <-chan struct{}) (*core.Reply, error) {
		return nil, errors.New("engine exploded")
	}}, testConfig())

	exec := c.Run(context.Background(), testDef(), testReq(), nil)
	if exec.Outcome != core.OutcomeCrashed {
		t.Errorf("outcome = %q, want crashed", exec.Outcome)
	}
	if exec.Result.Status != 500 || exec.Result.Message != core.MsgWorkerError {
		t.Errorf("result = %d %q", exec.Result.Status, exec.Result.Message)
	}
}

func TestRun_UnitPanic(t *testing.T) {
	c := New(&fakeBackend{run: func(*core.Message, <-chan struct{}) (*core.Reply, error) {
		panic("boom")
	}}, testConfig())

	exec := c.Run(context.Background(), testDef(), testReq(), nil)
	if exec.Outcome != core.OutcomeCrashed || exec.Result.Message != core.MsgWorkerError {
		t.Errorf("result = %q %q", exec.Outcome, exec.Result.Message)
	}
}

func TestRun_NewIsolateError(t *testing.T) {
	c := New(&fakeBackend{newErr: errors.New("out of memory")}, testConfig())
	exec := c.Run(context.Background(), testDef(), testReq(), nil)
	if exec.Result.Status != 500 || exec.Outcome != core.OutcomeCrashed {
		t.Errorf("result = %q %d", exec.Outcome, exec.Result.Status)
	}
}

func TestRun_UserFailurePassesThrough(t *testing.T) {
	c := New(&fakeBackend{run: func(*core.Message, <-chan struct{}) (*core.Reply, error) {
		return &core.Reply{Success: false, Error: "Error: nope", Status: 422}, nil
	}}, testConfig())

	exec := c.Run(context.Background(), testDef(), testReq(), nil)
	if exec.Outcome != core.OutcomeCompleted {
		t.Errorf("outcome = %q, want completed", exec.Outcome)
	}
	if exec.Result.Status != 422 || exec.Result.Message != "Error: nope" {
		t.Errorf("result = %d %q", exec.Result.Status, exec.Result.Message)
	}
}

func TestRun_SourceTooLarge(t *testing.T) {
	b := &fakeBackend{run: blockUntilStopped}
	cfg := testConfig()
	cfg.MaxSourceKB = 1
	c := New(b, cfg)

	def := testDef()
	def.SourceCode = "// " + strings.Repeat("x", 2048)
	exec := c.Run(context.Background(), def, testReq(), nil)
	if exec.Result.Status != 500 || !strings.Contains(exec.Result.Message, "exceeds 1 KB") {
		t.Errorf("result = %d %q", exec.Result.Status, exec.Result.Message)
	}
	if n := b.created.Load(); n != 0 {
		t.Errorf("created %d isolates, want 0", n)
	}
}

func TestRun_CompileErrorSkipsUnit(t *testing.T) {
	b := &fakeBackend{run: blockUntilStopped}
	c := New(b, testConfig())

	def := testDef()
	def.SourceCode = "export function handler( {"
	exec := c.Run(context.Background(), def, testReq(), nil)
	if exec.Result.Status != 500 || !strings.HasPrefix(exec.Result.Message, "compiling function:") {
		t.Errorf("result = %d %q", exec.Result.Status, exec.Result.Message)
	}
	if n := b.created.Load(); n != 0 {
		t.Errorf("created %d isolates, want 0", n)
	}
}

func TestRun_AdmissionRejects(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b := &fakeBackend{run: func(*core.Message, <-chan struct{}) (*core.Reply, error) {
		once.Do(func() { close(started) })
		<-release
		return okReply("first"), nil
	}}
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	cfg.QueueTimeout = 20 * time.Millisecond
	c := New(b, cfg)

	first := make(chan *core.Execution, 1)
	go func() { first <- c.Run(context.Background(), testDef(), testReq(), nil) }()
	<-started

	exec := c.Run(context.Background(), testDef(), testReq(), nil)
	if exec.Outcome != core.OutcomeOverloaded {
		t.Errorf("outcome = %q, want overloaded", exec.Outcome)
	}
	if exec.Result.Status != 503 || exec.Result.Message != core.MsgOverloaded {
		t.Errorf("result = %d %q", exec.Result.Status, exec.Result.Message)
	}

	close(release)
	if got := <-first; string(got.Result.Body) != "first" {
		t.Errorf("first body = %q", got.Result.Body)
	}
}

func TestRun_SlotReleasedAfterTimeout(t *testing.T) {
	b := &fakeBackend{run: blockUntilStopped}
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	cfg.QueueTimeout = time.Second
	cfg.ExecutionTimeout = 20 * time.Millisecond
	c := New(b, cfg)

	for i := 0; i < 3; i++ {
		exec := c.Run(context.Background(), testDef(), testReq(), nil)
		if exec.Outcome != core.OutcomeTimedOut {
			t.Fatalf("run %d outcome = %q, want timed_out", i, exec.Outcome)
		}
	}
}

func TestRun_ConcurrentUnitsAreIndependent(t *testing.T) {
	b := &fakeBackend{run: func(msg *core.Message, _ <-chan struct{}) (*core.Reply, error) {
		return okReply(msg.RequestData.URL), nil
	}}
	c := New(b, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := testReq()
			req.URL = "http://localhost/fn/" + string(rune('a'+i))
			exec := c.Run(context.Background(), testDef(), req, nil)
			if string(exec.Result.Body) != req.URL {
				t.Errorf("body = %q, want %q", exec.Result.Body, req.URL)
			}
		}(i)
	}
	wg.Wait()
	if n := b.created.Load(); n != 20 {
		t.Errorf("created %d isolates, want 20", n)
	}
}

func TestShutdown_WaitsAndRefuses(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := New(&fakeBackend{run: func(*core.Message, <-chan struct{}) (*core.Reply, error) {
		close(started)
		<-release
		return okReply("done"), nil
	}}, testConfig())

	go c.Run(context.Background(), testDef(), testReq(), nil)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown with a live unit = %v, want deadline exceeded", err)
	}

	exec := c.Run(context.Background(), testDef(), testReq(), nil)
	if exec.Result.Status != 503 || exec.Result.Message != core.MsgShuttingDown {
		t.Errorf("run while draining = %d %q", exec.Result.Status, exec.Result.Message)
	}

	close(release)
	if err := c.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestShutdown_ConcurrentWithRun(t *testing.T) {
	b := &fakeBackend{run: func(*core.Message, <-chan struct{}) (*core.Reply, error) {
		time.Sleep(time.Millisecond)
		return okReply("ok"), nil
	}}
	c := New(b, testConfig())

	var wg sync.WaitGroup
	statuses := make(chan int, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses <- c.Run(context.Background(), testDef(), testReq(), nil).Result.Status
		}()
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if created, closed := b.created.Load(), b.closed.Load(); created != closed {
		t.Errorf("Shutdown returned with %d of %d isolates still open", created-closed, created)
	}

	wg.Wait()
	close(statuses)
	for s := range statuses {
		if s != 200 && s != 503 {
			t.Errorf("status = %d, want 200 or 503", s)
		}
	}
}

func TestRun_RedactsSecretsFromLogs(t *testing.T) {
	const secret = "s3cr3t-value"
	tests := []struct {
		name string
		run  func(*core.Message, <-chan struct{}) (*core.Reply, error)
		line string
	}{
		{
			name: "user error",
			run: func(*core.Message, <-chan struct{}) (*core.Reply, error) {
				return &core.Reply{Error: "Error: bad key " + secret, Status: 500}, nil
			},
			line: "coordinator: execution error",
		},
		{
			name: "unit error",
			run: func(*core.Message, <-chan struct{}) (*core.Reply, error) {
				return nil, fmt.Errorf("uncaught %s", secret)
			},
			line: "coordinator: worker execution error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			b := &fakeBackend{
				run:  tt.run,
				logs: []core.LogEntry{{Level: "log", Message: "token=" + secret, Time: time.Now()}},
			}
			c := New(b, testConfig(), WithLogger(logger))

			exec := c.Run(context.Background(), testDef(), testReq(), core.SecretMap{"API_KEY": secret, "EMPTY": ""})
			if exec.Result.Status != 500 {
				t.Fatalf("status = %d, want 500", exec.Result.Status)
			}

			out := buf.String()
			if strings.Contains(out, secret) {
				t.Errorf("secret written to log:\n%s", out)
			}
			if !strings.Contains(out, tt.line) || !strings.Contains(out, "coordinator: console") {
				t.Errorf("expected log lines missing:\n%s", out)
			}
			if !strings.Contains(out, redacted) {
				t.Errorf("log has no %s marker:\n%s", redacted, out)
			}
		})
	}
}

func TestRedactor(t *testing.T) {
	r := newRedactor(core.SecretMap{"A": "abc", "B": "abcdef", "C": ""})
	if got := r.String("x abcdef y abc z"); got != "x [REDACTED] y [REDACTED] z" {
		t.Errorf("String = %q", got)
	}

	none := newRedactor(nil)
	if got := none.String("plain"); got != "plain" {
		t.Errorf("nil redactor String = %q, want plain", got)
	}
}
