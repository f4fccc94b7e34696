// Package marshal converts execution results into wire HTTP responses.
package marshal

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cryguy/edgefn/internal/core"
	"golang.org/x/net/http/httpguts"
)

// Response is a wire-ready HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// framingHeaders are computed by the HTTP server from the body actually sent.
var framingHeaders = []string{"Content-Length", "Transfer-Encoding"}

// BodylessStatus reports whether status forbids a response body.
func BodylessStatus(status int) bool {
	return status == http.StatusNoContent || status == http.StatusResetContent || status == http.StatusNotModified
}

type errorBody struct {
	Error string `json:"error"`
}

// Marshal converts r. Success and thrown responses keep their status,
// headers and body; failures become {"error": message} with their status.
func Marshal(r *core.ExecutionResult) *Response {
	if r == nil {
		r = core.Failure(core.MsgWorkerError, 500)
	}
	if r.IsFailure() {
		return failure(r.Message, r.Status)
	}

	resp := &Response{Status: r.Status, Header: make(http.Header, len(r.Headers))}
	for _, h := range r.Headers {
		if !httpguts.ValidHeaderFieldName(h.Name) || !httpguts.ValidHeaderFieldValue(h.Value) {
			continue
		}
		resp.Header.Add(h.Name, h.Value)
	}
	for _, name := range framingHeaders {
		resp.Header.Del(name)
	}
	if BodylessStatus(r.Status) {
		resp.Header.Del("Content-Type")
		return resp
	}
	if len(r.Body) > 0 {
		resp.Body = append([]byte(nil), r.Body...)
	}
	return resp
}

func failure(message string, status int) *Response {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body, _ := json.Marshal(errorBody{Error: message})
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &Response{Status: status, Header: h, Body: body}
}

// Error builds the structured error response used outside of executions,
// such as for unknown functions.
func Error(message string, status int) *Response {
	return failure(message, status)
}

// Write sends resp on w.
func (resp *Response) Write(w http.ResponseWriter) error {
	dst := w.Header()
	for name, values := range resp.Header {
		dst[name] = append([]string(nil), values...)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) == 0 || BodylessStatus(resp.Status) {
		return nil
	}
	_, err := w.Write(resp.Body)
	return err
}

// ContentType returns the response media type without parameters.
func (resp *Response) ContentType() string {
	ct := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}
