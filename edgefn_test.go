package edgefn

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEngine_Run(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	def := &FunctionDefinition{
		Identifier: "hello",
		SourceCode: `export default function (request) { return new Response("hi " + request.method); }`,
		Status:     StatusActive,
	}
	exec := e.Run(context.Background(), def, &ExecutionRequest{URL: "http://localhost/hello", Method: "POST"}, nil)

	if exec.Result.Kind != KindSuccess {
		t.Fatalf("kind = %v (%q)", exec.Result.Kind, exec.Result.Message)
	}
	if string(exec.Result.Body) != "hi POST" {
		t.Errorf("body = %q, want %q", exec.Result.Body, "hi POST")
	}
	if exec.ID == "" {
		t.Error("execution ID is empty")
	}
}

func TestEngine_Backend(t *testing.T) {
	name := NewEngine(DefaultEngineConfig()).Backend()
	if name != "quickjs" && name != "v8" {
		t.Errorf("Backend() = %q", name)
	}
}

func TestEngine_ShutdownRefusesWork(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	def := &FunctionDefinition{Identifier: "late", SourceCode: `export default () => new Response("x")`, Status: StatusActive}
	exec := e.Run(context.Background(), def, &ExecutionRequest{URL: "http://localhost/late", Method: "GET"}, nil)
	if exec.Result.Status != 503 {
		t.Errorf("status = %d, want 503", exec.Result.Status)
	}
}

func TestMarshal_Failure(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	def := &FunctionDefinition{Identifier: "broken", SourceCode: `export default function (`, Status: StatusActive}
	exec := e.Run(context.Background(), def, &ExecutionRequest{URL: "http://localhost/broken", Method: "GET"}, nil)

	rec := httptest.NewRecorder()
	if err := Marshal(exec.Result).Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rec.Code != 500 {
		t.Errorf("code = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
