package sandbox

import (
	"encoding/base64"
	"net/netip"
	"strings"
	"testing"

	"github.com/cryguy/edgefn/internal/core"
)

func TestCompileModule_ESM(t *testing.T) {
	code, err := CompileModule(`export async function handler(req) { return new Response("ok"); }`)
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	if !strings.Contains(code, moduleGlobal) {
		t.Errorf("compiled code does not bind %s:\n%s", moduleGlobal, code)
	}
}

func TestCompileModule_SyntaxErrorHasPosition(t *testing.T) {
	_, err := CompileModule("export function handler( {")
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if !strings.Contains(err.Error(), "1:") {
		t.Errorf("error lacks position: %v", err)
	}
}

func TestModuleScript_WrapsInLoader(t *testing.T) {
	s := moduleScript("var x = 1;")
	if !strings.HasPrefix(s, "__edgefn.load(function (module, exports, require, env) {") {
		t.Errorf("unexpected prefix: %q", s)
	}
	if !strings.Contains(s, "var x = 1;") {
		t.Error("compiled code missing from script")
	}
}

func TestBootstrap_BuiltOnce(t *testing.T) {
	a := Bootstrap()
	b := Bootstrap()
	if a != b {
		t.Error("bootstrap artifact changed between calls")
	}
	if strings.Contains(a, "{{NO_EXPORT}}") {
		t.Error("placeholder not substituted")
	}
	if !strings.Contains(a, core.MsgNoExport) {
		t.Error("missing-export message not embedded")
	}
}

func TestNewMessage_CopiesRequestAndSecrets(t *testing.T) {
	secrets := core.SecretMap{"API_KEY": "abc"}
	req := &core.ExecutionRequest{
		URL:     "http://localhost/functions/v1/echo",
		Method:  "POST",
		Headers: core.Headers{{Name: "Content-Type", Value: "text/plain"}},
		Body:    []byte("hello"),
	}
	msg := NewMessage(&core.FunctionDefinition{SourceCode: "src"}, req, secrets)

	secrets["API_KEY"] = "mutated"
	req.Headers[0].Value = "mutated"

	if msg.Secrets["API_KEY"] != "abc" {
		t.Errorf("secrets not copied: %v", msg.Secrets)
	}
	if msg.RequestData.Headers[0][1] != "text/plain" {
		t.Errorf("headers not copied: %v", msg.RequestData.Headers)
	}
	if msg.RequestData.Body == nil || *msg.RequestData.Body != "hello" {
		t.Errorf("body = %v, want hello", msg.RequestData.Body)
	}
	if msg.SourceCode != "src" {
		t.Errorf("source = %q", msg.SourceCode)
	}
}

func TestNewMessage_BinaryBodyIsBase64(t *testing.T) {
	req := &core.ExecutionRequest{URL: "http://x/", Method: "PUT", Body: []byte{0xff, 0x00, 0xfe}}
	msg := NewMessage(&core.FunctionDefinition{}, req, nil)
	if msg.RequestData.BodyEncoding != "base64" {
		t.Fatalf("encoding = %q, want base64", msg.RequestData.BodyEncoding)
	}
	got, _ := base64.StdEncoding.DecodeString(*msg.RequestData.Body)
	if string(got) != string(req.Body) {
		t.Errorf("decoded body = %v", got)
	}
}

func TestNewMessage_NoBody(t *testing.T) {
	msg := NewMessage(&core.FunctionDefinition{}, &core.ExecutionRequest{URL: "http://x/", Method: "GET"}, nil)
	if msg.RequestData.Body != nil {
		t.Error("absent body should stay nil")
	}
	if msg.Secrets == nil {
		t.Error("secrets should be an empty map, not nil")
	}
}

func strPtr(s string) *string { return &s }

func TestResultFromReply(t *testing.T) {
	tests := []struct {
		name    string
		reply   *core.Reply
		kind    core.ResultKind
		status  int
		body    string
		nilBody bool
		message string
	}{
		{
			name:   "success",
			reply:  &core.Reply{Success: true, Response: &core.ReplyResponse{Status: 200, Body: strPtr("hi")}},
			kind:   core.KindSuccess,
			status: 200,
			body:   "hi",
		},
		{
			name:   "thrown",
			reply:  &core.Reply{Success: true, Thrown: true, Response: &core.ReplyResponse{Status: 418, Body: strPtr("teapot")}},
			kind:   core.KindThrownResponse,
			status: 418,
			body:   "teapot",
		},
		{
			name:    "no content drops body",
			reply:   &core.Reply{Success: true, Response: &core.ReplyResponse{Status: 204, Body: strPtr("ignored")}},
			kind:    core.KindSuccess,
			status:  204,
			nilBody: true,
		},
		{
			name:   "base64 body",
			reply:  &core.Reply{Success: true, Response: &core.ReplyResponse{Status: 200, Body: strPtr("AAEC"), BodyEncoding: "base64"}},
			kind:   core.KindSuccess,
			status: 200,
			body:   "\x00\x01\x02",
		},
		{
			name:    "user error",
			reply:   &core.Reply{Success: false, Error: "Error: boom", Status: 500},
			kind:    core.KindFailure,
			status:  500,
			message: "Error: boom",
		},
		{
			name:    "missing response",
			reply:   &core.Reply{Success: true},
			kind:    core.KindFailure,
			status:  500,
			message: core.MsgWorkerError,
		},
		{
			name:    "nil reply",
			kind:    core.KindFailure,
			status:  500,
			message: core.MsgWorkerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ResultFromReply(tt.reply, 0)
			if r.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", r.Kind, tt.kind)
			}
			if r.Status != tt.status {
				t.Errorf("status = %d, want %d", r.Status, tt.status)
			}
			if tt.nilBody && r.Body != nil {
				t.Errorf("body = %q, want nil", r.Body)
			}
			if tt.body != "" && string(r.Body) != tt.body {
				t.Errorf("body = %q, want %q", r.Body, tt.body)
			}
			if r.Message != tt.message {
				t.Errorf("message = %q, want %q", r.Message, tt.message)
			}
		})
	}
}

func TestResultFromReply_BodyLimit(t *testing.T) {
	reply := &core.Reply{Success: true, Response: &core.ReplyResponse{Status: 200, Body: strPtr("0123456789")}}
	r := ResultFromReply(reply, 5)
	if !r.IsFailure() || r.Status != 500 {
		t.Errorf("oversized body result = %+v", r)
	}
}

func TestParseURL(t *testing.T) {
	p, err := ParseURL("/path?q=1#frag", "https://user:pw@example.com:8443/base")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if p.Href != "https://user:pw@example.com:8443/path?q=1#frag" {
		t.Errorf("href = %q", p.Href)
	}
	if p.Port != "8443" || p.Hostname != "example.com" || p.Search != "?q=1" || p.Hash != "#frag" {
		t.Errorf("parsed = %+v", p)
	}
	if _, err := ParseURL("not a url", ""); err == nil {
		t.Error("relative URL without base should fail")
	}
}

func TestPrivateURL(t *testing.T) {
	tests := map[string]bool{
		"http://localhost/":       true,
		"http://api.localhost/":   true,
		"http://127.0.0.1:8080/":  true,
		"http://10.1.2.3/":        true,
		"http://[::1]/":           true,
		"http://169.254.169.254/": true,
		"https://example.com/":    false,
		"http://93.184.216.34/":   false,
		"://bad":                  true,
	}
	for u, want := range tests {
		if got := PrivateURL(u); got != want {
			t.Errorf("PrivateURL(%q) = %v, want %v", u, got, want)
		}
	}
}

func TestPrivateAddr_MappedV4(t *testing.T) {
	if !PrivateAddr(netip.MustParseAddr("::ffff:192.168.1.1")) {
		t.Error("IPv4-mapped private address not detected")
	}
}
