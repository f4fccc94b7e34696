package core

import (
	"strings"
	"time"
)

// Status is the lifecycle status of a stored function. Only active
// functions are dispatchable.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDraft    Status = "draft"
)

// FunctionDefinition is a stored, addressable unit of user code.
type FunctionDefinition struct {
	Identifier string `json:"identifier"`
	Tenant     string `json:"tenant"`
	SourceCode string `json:"source_code"`
	Status     Status `json:"status"`
}

// Active reports whether the function may be dispatched.
func (f *FunctionDefinition) Active() bool {
	return f != nil && f.Status == StatusActive
}

// SecretMap is the tenant's key/value secrets. Callers hand out copies, never
// the map they resolved.
type SecretMap map[string]string

// Clone returns an independent copy of m. A nil map clones to an empty one.
func (m SecretMap) Clone() SecretMap {
	out := make(SecretMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Header is a single header field. Order and duplicates are preserved by
// the Headers slice that holds it.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered multimap of header fields.
type Headers []Header

// Add appends a field.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Get returns the first value for name, matched case-insensitively.
func (h Headers) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name in insertion order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Del removes every field called name and returns the remainder.
func (h Headers) Del(name string) Headers {
	out := h[:0:0]
	for _, f := range h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a copy that shares no backing array with h.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Pairs converts the headers to [name, value] tuples for the isolation
// boundary.
func (h Headers) Pairs() [][2]string {
	out := make([][2]string, 0, len(h))
	for _, f := range h {
		out = append(out, [2]string{f.Name, f.Value})
	}
	return out
}

// HeadersFromPairs is the inverse of Headers.Pairs.
func HeadersFromPairs(pairs [][2]string) Headers {
	out := make(Headers, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Header{Name: p[0], Value: p[1]})
	}
	return out
}

// ExecutionRequest is the caller's HTTP request as seen by user code. A nil
// Body means the request carried no body.
type ExecutionRequest struct {
	URL     string
	Method  string
	Headers Headers
	Body    []byte
}

// ResultKind tags an ExecutionResult.
type ResultKind int

const (
	// KindSuccess means the handler returned a response.
	KindSuccess ResultKind = iota
	// KindThrownResponse means the handler threw a response-like value to
	// end the request early. It is written to the wire exactly like Success.
	KindThrownResponse
	// KindFailure covers everything else: timeouts, crashes, user errors.
	KindFailure
)

func (k ResultKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindThrownResponse:
		return "thrown_response"
	case KindFailure:
		return "failure"
	}
	return "unknown"
}

// Failure messages produced by the runtime itself.
const (
	MsgFunctionNotFound = "Function not found"
	MsgTimeout          = "Function timeout"
	MsgWorkerError      = "Worker execution error"
	MsgNoExport         = "No function exported from module"
	MsgOverloaded       = "Too many concurrent executions"
	MsgCancelled        = "Request cancelled"
	MsgShuttingDown     = "Engine is shutting down"
)

// StatusClientClosedRequest is reported when the caller goes away before the
// function settles.
const StatusClientClosedRequest = 499

// ExecutionResult is the outcome of one invocation. For Success and
// ThrownResponse, Status/StatusText/Headers/Body describe the response and a
// nil Body means "no body". For Failure, Message and Status are set.
type ExecutionResult struct {
	Kind       ResultKind
	Status     int
	StatusText string
	Headers    Headers
	Body       []byte
	Message    string
}

// Success builds a Success result.
func Success(status int, headers Headers, body []byte) *ExecutionResult {
	return &ExecutionResult{Kind: KindSuccess, Status: status, Headers: headers, Body: body}
}

// Thrown builds a ThrownResponse result.
func Thrown(status int, headers Headers, body []byte) *ExecutionResult {
	return &ExecutionResult{Kind: KindThrownResponse, Status: status, Headers: headers, Body: body}
}

// Failure builds a Failure result. A zero status becomes 500.
func Failure(message string, status int) *ExecutionResult {
	if status == 0 {
		status = 500
	}
	return &ExecutionResult{Kind: KindFailure, Status: status, Message: message}
}

// IsFailure reports whether r is a Failure.
func (r *ExecutionResult) IsFailure() bool { return r.Kind == KindFailure }

// LogEntry is a single console call captured from user code.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Outcome is how a coordinated execution ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeTimedOut   Outcome = "timed_out"
	OutcomeCrashed    Outcome = "crashed"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeOverloaded Outcome = "overloaded"
)

// Execution wraps a result with metadata about the run that produced it.
type Execution struct {
	ID         string
	Identifier string
	Result     *ExecutionResult
	Outcome    Outcome
	Logs       []LogEntry
	Duration   time.Duration
}
