package sandbox

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/cryguy/edgefn/internal/core"
)

// bodylessStatus reports whether a response with this status must not carry
// a body.
func bodylessStatus(status int) bool {
	return status == 204 || status == 205 || status == 304
}

// NewMessage builds the message for one invocation. Everything is copied:
// the unit must never share memory with the caller's request or secrets.
func NewMessage(def *core.FunctionDefinition, req *core.ExecutionRequest, secrets core.SecretMap) *core.Message {
	data := core.RequestData{
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.Headers.Pairs(),
	}
	if req.Body != nil {
		var body string
		if utf8.Valid(req.Body) {
			body = string(req.Body)
		} else {
			body = base64.StdEncoding.EncodeToString(req.Body)
			data.BodyEncoding = "base64"
		}
		data.Body = &body
	}
	return &core.Message{
		SourceCode:  def.SourceCode,
		RequestData: data,
		Secrets:     secrets.Clone(),
	}
}

// failureReply is the reply for an error detected before user code ran.
func failureReply(message string, status int) *core.Reply {
	return &core.Reply{Success: false, Error: message, Status: status}
}

// ResultFromReply converts a unit's reply into an ExecutionResult. A reply
// that cannot be interpreted is reported as a worker error. maxBody bounds
// the decoded response body; zero disables the check.
func ResultFromReply(r *core.Reply, maxBody int) *core.ExecutionResult {
	if r == nil {
		return core.Failure(core.MsgWorkerError, 500)
	}
	if !r.Success {
		return core.Failure(r.Error, r.Status)
	}
	if r.Response == nil {
		return core.Failure(core.MsgWorkerError, 500)
	}
	resp := r.Response

	var body []byte
	if resp.Body != nil && !bodylessStatus(resp.Status) {
		if resp.BodyEncoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(*resp.Body)
			if err != nil {
				return core.Failure(core.MsgWorkerError, 500)
			}
			body = decoded
		} else {
			body = []byte(*resp.Body)
		}
		if maxBody > 0 && len(body) > maxBody {
			return core.Failure(fmt.Sprintf("Response body exceeds %d bytes", maxBody), 500)
		}
	}

	headers := core.HeadersFromPairs(resp.Headers)
	var res *core.ExecutionResult
	if r.Thrown {
		res = core.Thrown(resp.Status, headers, body)
	} else {
		res = core.Success(resp.Status, headers, body)
	}
	res.StatusText = resp.StatusText
	return res
}
