package core

import "fmt"

// Runtime is the slice of a JavaScript engine the sandbox needs. One
// Runtime belongs to one isolation unit and is only used from the goroutine
// that created it.
type Runtime interface {
	Exec(js string) error
	EvalString(js string) (string, error)
	EvalBool(js string) (bool, error)

	// Bind exposes fn to scripts as a global. A func returning (T, error)
	// throws a TypeError carrying the error text instead of returning.
	Bind(name string, fn any) error

	// SetGlobal assigns a Go value to a global. Values that are not
	// primitives are copied in through JSON.
	SetGlobal(name string, value any) error

	// RunMicrotasks drains pending promise reactions.
	RunMicrotasks()
}

// BindScript installs the JS side of Runtime.Bind: it moves the engine's raw
// callback from globalThis[raw] to a wrapper at globalThis[name]. With
// tupleResults the raw callback returns [value, error] pairs (QuickJS);
// otherwise it throws the error text as a string (V8). Either way callers
// see a TypeError.
func BindScript(raw, name string, tupleResults bool) string {
	body := `try {
				return raw.apply(this, arguments);
			} catch (e) {
				throw typeof e === 'string' ? new TypeError(e) : e;
			}`
	if tupleResults {
		body = `var out = raw.apply(this, arguments);
			if (Array.isArray(out) && out.length === 2) {
				if (out[1] != null) throw new TypeError(String(out[1]));
				return out[0];
			}
			return out;`
	}
	return fmt.Sprintf(`(function() {
		var raw = globalThis[%[1]s];
		globalThis[%[2]s] = function() {
			%[3]s
		};
		delete globalThis[%[1]s];
	})()`, JsEscape(raw), JsEscape(name), body)
}
