// Package sandbox holds the engine-independent half of an isolation unit:
// the bootstrap artifact that builds the capability surface inside a fresh
// JS context, the Go callbacks backing it, and the driver that runs one
// message through it.
package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/eventloop"
)

var (
	bootstrapOnce sync.Once
	bootstrapSrc  string
)

// Bootstrap returns the bootstrap artifact. It is assembled on first use and
// shared read-only by every unit in the process.
func Bootstrap() string {
	bootstrapOnce.Do(func() {
		runner := strings.ReplaceAll(runnerJS, "{{NO_EXPORT}}", core.JsEscape(core.MsgNoExport))
		bootstrapSrc = strings.Join([]string{
			encodingJS,
			webAPIsJS,
			cryptoJS,
			consoleJS,
			timersJS,
			fetchJS,
			runner,
		}, "\n")
	})
	return bootstrapSrc
}

// Install registers the Go side of the capability surface on rt and
// evaluates the bootstrap artifact. It must run before Run, once per unit.
func Install(rt core.Runtime, el *eventloop.EventLoop, state *core.UnitState, cfg core.EngineConfig) error {
	if err := registerWebAPIs(rt); err != nil {
		return fmt.Errorf("registering url parser: %w", err)
	}
	if err := registerCrypto(rt); err != nil {
		return fmt.Errorf("registering crypto: %w", err)
	}
	if err := registerConsole(rt, state); err != nil {
		return fmt.Errorf("registering console: %w", err)
	}
	if err := registerTimers(rt, el); err != nil {
		return fmt.Errorf("registering timers: %w", err)
	}
	if cfg.AllowFetch {
		if err := registerFetch(rt, cfg, state, el); err != nil {
			return fmt.Errorf("registering fetch: %w", err)
		}
	}
	if err := rt.Exec(Bootstrap()); err != nil {
		return fmt.Errorf("evaluating bootstrap: %w", err)
	}
	return nil
}

// inbound is the part of the message evaluated inside the engine. The
// source is compiled on the Go side and never travels as data.
type inbound struct {
	RequestData core.RequestData  `json:"requestData"`
	Secrets     map[string]string `json:"secrets"`
}

// Run executes msg on an installed runtime and returns the unit's reply.
// User-level problems (syntax errors, missing exports, thrown values) come
// back as a Reply; the error return is reserved for faults of the unit
// itself, and is core.ErrUnitTerminated when the event loop was stopped.
func Run(rt core.Runtime, el *eventloop.EventLoop, msg *core.Message) (*core.Reply, error) {
	compiled := msg.Compiled
	if compiled == "" {
		var err error
		if compiled, err = CompileModule(msg.SourceCode); err != nil {
			return failureReply(err.Error(), 500), nil
		}
	}

	payload, err := json.Marshal(inbound{RequestData: msg.RequestData, Secrets: msg.Secrets})
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	if err := rt.SetGlobal("__edgefn_message", string(payload)); err != nil {
		return nil, fmt.Errorf("delivering message: %w", err)
	}
	if err := rt.Exec("__edgefn.prepare()"); err != nil {
		return nil, unitError(el, "decoding message", err)
	}
	if err := rt.Exec(moduleScript(compiled)); err != nil {
		return nil, unitError(el, "loading module", err)
	}
	if err := rt.Exec("__edgefn.invoke()"); err != nil {
		return nil, unitError(el, "invoking handler", err)
	}

	for {
		rt.RunMicrotasks()
		settled, err := rt.EvalBool("__edgefn.settled()")
		if err != nil {
			return nil, unitError(el, "polling handler", err)
		}
		if settled {
			break
		}
		if !el.RunOnce(rt) {
			// Nothing left that could settle the handler. Park until the
			// owner terminates the unit.
			<-el.Done()
			return nil, core.ErrUnitTerminated
		}
	}

	raw, err := rt.EvalString("__edgefn.reply()")
	if err != nil {
		return nil, unitError(el, "reading reply", err)
	}
	var reply core.Reply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	return &reply, nil
}

func unitError(el *eventloop.EventLoop, step string, err error) error {
	if el.Stopped() {
		return core.ErrUnitTerminated
	}
	return fmt.Errorf("%s: %w", step, err)
}

// IsTerminated reports whether err means the unit was terminated by its owner.
func IsTerminated(err error) bool {
	return errors.Is(err, core.ErrUnitTerminated)
}
