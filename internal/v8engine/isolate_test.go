//go:build v8

package v8engine

import (
	"testing"
	"time"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/sandbox"
)

func runSource(t *testing.T, source string, req *core.ExecutionRequest, secrets core.SecretMap) *core.ExecutionResult {
	t.Helper()
	cfg := core.DefaultEngineConfig()
	iso, err := NewIsolate(cfg)
	if err != nil {
		t.Fatalf("NewIsolate: %v", err)
	}
	defer iso.Close()

	watchdog := time.AfterFunc(5*time.Second, iso.Terminate)
	defer watchdog.Stop()

	msg := sandbox.NewMessage(&core.FunctionDefinition{Identifier: "test", SourceCode: source}, req, secrets)
	reply, err := iso.Run(msg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return sandbox.ResultFromReply(reply, cfg.MaxResponseBytes)
}

func TestBackendName(t *testing.T) {
	if got := (Backend{}).Name(); got != "v8" {
		t.Errorf("Name() = %q, want v8", got)
	}
}

func TestIsolate_EchoHandler(t *testing.T) {
	source := `export async function handler(request) {
  return new Response(await request.text(), { status: 201 });
}`
	req := &core.ExecutionRequest{URL: "http://localhost/", Method: "POST", Body: []byte("ping")}
	r := runSource(t, source, req, nil)
	if r.Kind != core.KindSuccess || r.Status != 201 {
		t.Fatalf("result = %v/%d (%q), want success/201", r.Kind, r.Status, r.Message)
	}
	if string(r.Body) != "ping" {
		t.Errorf("body = %q, want ping", r.Body)
	}
}

func TestIsolate_ThrownResponse(t *testing.T) {
	r := runSource(t, `export function handler() { throw new Response("no", { status: 403 }); }`,
		&core.ExecutionRequest{URL: "http://localhost/", Method: "GET"}, nil)
	if r.Kind != core.KindThrownResponse || r.Status != 403 {
		t.Errorf("result = %v/%d, want thrown_response/403", r.Kind, r.Status)
	}
}

func TestIsolate_SecretReader(t *testing.T) {
	r := runSource(t, `export default (req, env) => new Response(env.get("TOKEN"));`,
		&core.ExecutionRequest{URL: "http://localhost/", Method: "GET"}, core.SecretMap{"TOKEN": "abc"})
	if string(r.Body) != "abc" {
		t.Errorf("body = %q, want abc", r.Body)
	}
}

func TestIsolate_TimersResolve(t *testing.T) {
	source := `export async function handler() {
  await new Promise((resolve) => setTimeout(resolve, 5));
  return new Response("late");
}`
	r := runSource(t, source, &core.ExecutionRequest{URL: "http://localhost/", Method: "GET"}, nil)
	if string(r.Body) != "late" {
		t.Errorf("body = %q, want late (message %q)", r.Body, r.Message)
	}
}

func TestIsolate_TerminateStopsInfiniteLoop(t *testing.T) {
	iso, err := NewIsolate(core.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("NewIsolate: %v", err)
	}
	defer iso.Close()

	time.AfterFunc(50*time.Millisecond, iso.Terminate)
	msg := sandbox.NewMessage(&core.FunctionDefinition{SourceCode: `export function handler() { for (;;) {} }`},
		&core.ExecutionRequest{URL: "http://localhost/", Method: "GET"}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := iso.Run(msg)
		done <- err
	}()
	select {
	case err := <-done:
		if !sandbox.IsTerminated(err) {
			t.Errorf("Run error = %v, want terminated", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Terminate did not stop the loop")
	}
}
