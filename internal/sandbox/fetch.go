package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/http/httpguts"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/eventloop"
)

// ForbiddenFetchHeaders is the blocklist of headers user code cannot set on
// outbound requests.
var ForbiddenFetchHeaders = map[string]bool{
	"host":                true,
	"transfer-encoding":   true,
	"connection":          true,
	"keep-alive":          true,
	"upgrade":             true,
	"proxy-authorization": true,
	"proxy-connection":    true,
	"te":                  true,
	"trailer":             true,
	"x-forwarded-for":     true,
	"x-forwarded-host":    true,
	"x-forwarded-proto":   true,
	"x-real-ip":           true,
}

var (
	guardedTransport http.RoundTripper = &http.Transport{
		DialContext:         guardedDial,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}
	openTransport http.RoundTripper = &http.Transport{
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}
)

// fetchJS defines fetch() and the resolve/reject hooks the event loop calls.
// It is a no-op when the fetch capability was not registered.
const fetchJS = `
(function() {
	if (typeof __fetchStart !== 'function') return;
	var start = __fetchStart, abort = __fetchAbort;
	delete globalThis.__fetchStart;
	delete globalThis.__fetchAbort;
	var promises = {};

	function readHeaders(h, into) {
		if (!h) return;
		var src = h instanceof Headers ? h : new Headers(h);
		for (var k in src._map) {
			if (Object.prototype.hasOwnProperty.call(src._map, k)) into[k] = src._map[k].join(', ');
		}
	}

	function readBody(b) {
		if (b === null || b === undefined) return { body: '', b64: false };
		if (b instanceof ArrayBuffer || ArrayBuffer.isView(b)) return { body: __bufferSourceToB64(b), b64: true };
		return { body: String(b), b64: false };
	}

	globalThis.fetch = function(input, init) {
		var url, method = 'GET', headers = {}, body = { body: '', b64: false }, redirect = 'follow', signal = null;
		if (input instanceof Request) {
			url = input.url;
			method = input.method;
			readHeaders(input.headers, headers);
			body = readBody(input._body);
			redirect = input.redirect || 'follow';
			signal = input.signal;
		} else {
			url = String(input);
		}
		if (init && typeof init === 'object') {
			if (init.method !== undefined) method = String(init.method).toUpperCase();
			if (init.headers !== undefined) { headers = {}; readHeaders(init.headers, headers); }
			if (init.body !== undefined) body = readBody(init.body);
			if (init.redirect !== undefined) redirect = String(init.redirect);
			if (init.signal) signal = init.signal;
		}
		if (signal && signal.aborted) {
			return Promise.reject(new Error('The operation was aborted.'));
		}
		var args = JSON.stringify({
			url: url, method: method, headers: headers,
			body: body.body, bodyIsBase64: body.b64, redirect: redirect
		});
		return new Promise(function(resolve, reject) {
			var id;
			try {
				id = start(args);
			} catch (e) {
				reject(e);
				return;
			}
			promises[id] = { resolve: resolve, reject: reject };
			if (signal && typeof signal.addEventListener === 'function') {
				signal.addEventListener('abort', function() {
					abort(id);
					var p = promises[id];
					if (p) {
						delete promises[id];
						p.reject(new Error('The operation was aborted.'));
					}
				});
			}
		});
	};

	Object.defineProperty(globalThis, '__fetchResolve', {
		value: function(id, status, statusText, headersJSON, bodyB64, redirected, finalURL) {
			var p = promises[id];
			delete promises[id];
			if (!p) return;
			try {
				var body = bodyB64 ? __b64ToBuffer(bodyB64) : null;
				var r = new Response(null, { status: status, statusText: statusText, headers: JSON.parse(headersJSON) });
				r._body = body;
				r.redirected = redirected;
				r.url = finalURL;
				p.resolve(r);
			} catch (e) {
				p.reject(e);
			}
		},
	});

	Object.defineProperty(globalThis, '__fetchReject', {
		value: function(id, msg) {
			var p = promises[id];
			delete promises[id];
			if (p) p.reject(new TypeError(msg));
		},
	});
})();
`

// fetchArgs is the JSON payload passed from fetch() to __fetchStart.
type fetchArgs struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers"`
	Body         string            `json:"body"`
	BodyIsBase64 bool              `json:"bodyIsBase64"`
	Redirect     string            `json:"redirect"`
}

// registerFetch installs the outbound fetch capability. Each call consumes one
// unit of the state's fetch budget; responses are delivered to JS through
// the event loop.
func registerFetch(rt core.Runtime, cfg core.EngineConfig, state *core.UnitState, el *eventloop.EventLoop) error {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBytes := int64(cfg.MaxResponseBytes)
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	guard := !cfg.AllowPrivateFetch
	transport := guardedTransport
	if !guard {
		transport = openTransport
	}

	if err := rt.Bind("__fetchStart", func(argsJSON string) (string, error) {
		var args fetchArgs
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("fetch: parsing arguments: %s", err.Error())
		}
		if args.URL == "" {
			return "", fmt.Errorf("fetch requires a URL")
		}
		if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
			return "", fmt.Errorf("fetch: unsupported URL scheme: %s", args.URL)
		}
		if guard && PrivateURL(args.URL) {
			return "", errPrivateAddress
		}
		if err := state.ReserveFetch(); err != nil {
			return "", err
		}

		var bodyReader io.Reader
		if args.Body != "" {
			if args.BodyIsBase64 {
				decoded, err := base64.StdEncoding.DecodeString(args.Body)
				if err != nil {
					return "", fmt.Errorf("fetch: decoding binary body: %s", err.Error())
				}
				bodyReader = strings.NewReader(string(decoded))
			} else {
				bodyReader = strings.NewReader(args.Body)
			}
		}

		fetchCtx, fetchCancel := context.WithTimeout(context.Background(), timeout)
		fetchID := state.RegisterFetchCancel(fetchCancel)

		httpReq, err := http.NewRequestWithContext(fetchCtx, args.Method, args.URL, bodyReader)
		if err != nil {
			state.CallFetchCancel(fetchID)
			return "", fmt.Errorf("fetch: %s", err.Error())
		}
		for k, v := range args.Headers {
			if ForbiddenFetchHeaders[strings.ToLower(k)] {
				continue
			}
			if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
				continue
			}
			httpReq.Header.Set(k, v)
		}

		client := &http.Client{
			Transport:     transport,
			CheckRedirect: redirectPolicy(args.Redirect, guard),
		}

		resultCh := make(chan eventloop.FetchResult, 1)
		go func() {
			defer state.CallFetchCancel(fetchID)
			resultCh <- doFetch(client, httpReq, args.URL, maxBytes)
		}()

		el.AddPendingFetch(&eventloop.PendingFetch{ResultCh: resultCh, FetchID: fetchID})
		return fetchID, nil
	}); err != nil {
		return err
	}

	return rt.Bind("__fetchAbort", func(fetchID string) {
		state.CallFetchCancel(fetchID)
	})
}

func redirectPolicy(mode string, guard bool) func(*http.Request, []*http.Request) error {
	switch mode {
	case "manual":
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	case "error":
		return func(*http.Request, []*http.Request) error {
			return fmt.Errorf("redirect mode is 'error'")
		}
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= 20 {
			return fmt.Errorf("too many redirects")
		}
		if guard && PrivateURL(req.URL.String()) {
			return fmt.Errorf("redirect to private IP address is not allowed")
		}
		return nil
	}
}

// doFetch performs the request and packages the response for the event
// loop. Brotli-encoded bodies are decoded here since the transport only
// handles gzip transparently.
func doFetch(client *http.Client, req *http.Request, origURL string, maxBytes int64) eventloop.FetchResult {
	resp, err := client.Do(req)
	if err != nil {
		if req.Context().Err() == context.Canceled {
			return eventloop.FetchResult{Err: fmt.Errorf("The operation was aborted.")}
		}
		return eventloop.FetchResult{Err: fmt.Errorf("fetch: %s", err.Error())}
	}
	defer func() { _ = resp.Body.Close() }()

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		reader = brotli.NewReader(resp.Body)
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return eventloop.FetchResult{Err: fmt.Errorf("fetch: reading body: %s", err.Error())}
	}
	if int64(len(body)) > maxBytes {
		return eventloop.FetchResult{Err: fmt.Errorf("fetch: response body exceeds %d bytes", maxBytes)}
	}

	headers := make(map[string]string, len(resp.Header))
	for k, vals := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(vals, ", ")
	}
	headersJSON, _ := json.Marshal(headers)

	finalURL := origURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	statusText := resp.Status
	if i := strings.IndexByte(statusText, ' '); i >= 0 {
		statusText = statusText[i+1:]
	}

	return eventloop.FetchResult{
		Status:      resp.StatusCode,
		StatusText:  statusText,
		HeadersJSON: string(headersJSON),
		BodyB64:     base64.StdEncoding.EncodeToString(body),
		Redirected:  finalURL != origURL,
		FinalURL:    finalURL,
	}
}
