package telemetry

import (
	"context"
	"testing"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	tr, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if tr != nil {
		t.Fatalf("Setup() = %v, want nil", tr)
	}
	_, span := tr.Tracer().Start(context.Background(), "noop")
	span.End()
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestSetup_WithEndpoint(t *testing.T) {
	tr, err := Setup(context.Background(), Config{Endpoint: "127.0.0.1:4318", Insecure: true})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if tr == nil {
		t.Fatal("Setup returned nil with an endpoint")
	}
	_, span := tr.Tracer().Start(context.Background(), "execute")
	if !span.SpanContext().IsValid() {
		t.Error("span context is not valid")
	}
	span.End()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tr.Shutdown(ctx)
}
