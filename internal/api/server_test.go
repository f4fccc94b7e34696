//go:build !v8

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cryguy/edgefn/internal/coordinator"
	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/dispatcher"
	"github.com/cryguy/edgefn/internal/metrics"
	"github.com/cryguy/edgefn/internal/quickjs"
	"github.com/cryguy/edgefn/internal/registry"
	"github.com/cryguy/edgefn/internal/secrets"
	"github.com/prometheus/client_golang/prometheus"
)

var testFunctions = map[string]string{
	"echo": `export function handler(request) {
  return { method: request.method, url: request.url };
}`,
	"teapot": `export function handler() {
  throw new Response("teapot", { status: 418 });
}`,
	"secret-reader": `export function handler(request, env) {
  return env.get("API_KEY");
}`,
	"no-content": `export function handler() {
  return new Response("body that must vanish", { status: 204, headers: { "content-type": "text/plain" } });
}`,
	"slow": `export async function handler() {
  await new Promise((resolve) => setTimeout(resolve, 60000));
  return new Response("too late");
}`,
	"broken": `export const nothing = 1;`,
}

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := registry.NewMemory()
	for id, src := range testFunctions {
		tenant := "acme"
		if id == "secret-reader" {
			tenant = "with-secrets"
		}
		if err := reg.Put(t.Context(), &core.FunctionDefinition{Identifier: id, Tenant: tenant, SourceCode: src, Status: core.StatusActive}); err != nil {
			t.Fatalf("Put(%s): %v", id, err)
		}
	}

	cfg := core.DefaultEngineConfig()
	cfg.ExecutionTimeout = 200 * time.Millisecond
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	coord := coordinator.New(quickjs.Backend{}, cfg, coordinator.WithMetrics(m))
	d := dispatcher.New(reg, secrets.Static{"with-secrets": {"API_KEY": "abc"}}, coord, dispatcher.WithMetrics(m))
	return NewServer(d, Options{Prefix: "/functions/v1", Gatherer: promReg}), promReg
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_Echo(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/functions/v1/echo")
	if rec.Code != 200 {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	if got["method"] != "GET" || got["url"] != "http://example.com/functions/v1/echo" {
		t.Errorf("body = %v", got)
	}
	if rec.Header().Get(dispatcher.ExecutionIDHeader) == "" {
		t.Error("missing execution id header")
	}
}

func TestServer_Teapot(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/functions/v1/teapot")
	if rec.Code != 418 || rec.Body.String() != "teapot" {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServer_SecretReader(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/functions/v1/secret-reader")
	if rec.Code != 200 || rec.Body.String() != `"abc"` {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServer_NoContent(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/functions/v1/no-content")
	if rec.Code != 204 || rec.Body.Len() != 0 {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "" || rec.Header().Get("Content-Length") != "" {
		t.Errorf("body headers = %v", rec.Header())
	}
}

func TestServer_Slow(t *testing.T) {
	s, _ := newTestServer(t)
	start := time.Now()
	rec := get(t, s, "/functions/v1/slow")
	if rec.Code != 504 || !strings.Contains(rec.Body.String(), core.MsgTimeout) {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("took %v", elapsed)
	}
}

func TestServer_MissingExport(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/functions/v1/broken")
	if rec.Code != 500 || !strings.Contains(rec.Body.String(), "No function exported") {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServer_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	for _, target := range []string{"/functions/v1/unknown", "/functions/v1/bad.name"} {
		rec := get(t, s, target)
		if rec.Code != 404 {
			t.Errorf("%s: status = %d", target, rec.Code)
		}
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := get(t, s, "/health"); rec.Code != 200 || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}

	get(t, s, "/functions/v1/echo")
	rec := get(t, s, "/metrics")
	if rec.Code != 200 {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	for _, name := range []string{"edgefn_execution_total", "edgefn_dispatch_total"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}
