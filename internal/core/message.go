package core

// Message is the single inbound message an isolation unit receives. It is
// encoded to JSON before it crosses into the engine, so the unit never holds
// a reference to caller-owned memory. Compiled, when set, is the output of
// the module compiler for SourceCode and saves the unit a second compile.
type Message struct {
	SourceCode  string            `json:"sourceCode"`
	Compiled    string            `json:"-"`
	RequestData RequestData       `json:"requestData"`
	Secrets     map[string]string `json:"secrets"`
}

// RequestData is the request as it is handed to user code. Body is nil when
// the request has none; BodyEncoding is "base64" for non-UTF-8 payloads.
type RequestData struct {
	URL          string      `json:"url"`
	Method       string      `json:"method"`
	Headers      [][2]string `json:"headers"`
	Body         *string     `json:"body"`
	BodyEncoding string      `json:"bodyEncoding,omitempty"`
}

// Reply is the single outbound message from an isolation unit.
type Reply struct {
	Success  bool           `json:"success"`
	Thrown   bool           `json:"thrown,omitempty"`
	Response *ReplyResponse `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
	Status   int            `json:"status,omitempty"`
}

// ReplyResponse is a serialized response value.
type ReplyResponse struct {
	Status       int         `json:"status"`
	StatusText   string      `json:"statusText,omitempty"`
	Headers      [][2]string `json:"headers"`
	Body         *string     `json:"body"`
	BodyEncoding string      `json:"bodyEncoding,omitempty"`
}
