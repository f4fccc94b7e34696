package sandbox

import (
	"time"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/eventloop"
)

// timersJS is the JavaScript side of setTimeout/setInterval. Callbacks stay
// in a closure-private table; the event loop fires them through __timerFire.
const timersJS = `
(function() {
	var callbacks = {};
	var register = __timerRegister, clear = __timerClear;
	delete globalThis.__timerRegister;
	delete globalThis.__timerClear;

	function schedule(fn, delay, args, interval) {
		if (typeof fn !== 'function') return 0;
		var id = register(Math.max(0, Math.floor(Number(delay) || 0)), interval);
		callbacks[id] = { fn: fn, args: args, interval: interval };
		return id;
	}
	globalThis.setTimeout = function(fn, delay) {
		return schedule(fn, delay, Array.prototype.slice.call(arguments, 2), false);
	};
	globalThis.setInterval = function(fn, interval) {
		return schedule(fn, interval, Array.prototype.slice.call(arguments, 2), true);
	};
	globalThis.clearTimeout = globalThis.clearInterval = function(id) {
		if (typeof id !== 'number') return;
		clear(id);
		delete callbacks[id];
	};
	globalThis.queueMicrotask = function(fn) {
		Promise.resolve().then(fn);
	};
	Object.defineProperty(globalThis, '__timerFire', {
		value: function(id) {
			var entry = callbacks[id];
			if (!entry) return;
			if (!entry.interval) delete callbacks[id];
			try {
				entry.fn.apply(null, entry.args);
			} catch (e) {
				console.error('Uncaught exception in timer callback:', e);
			}
		},
	});
})();
`

// registerTimers backs setTimeout/setInterval/clearTimeout/clearInterval
// with the unit's event loop.
func registerTimers(rt core.Runtime, el *eventloop.EventLoop) error {
	if err := rt.Bind("__timerRegister", func(delayMs int, isInterval bool) int {
		return el.RegisterTimer(time.Duration(delayMs)*time.Millisecond, isInterval)
	}); err != nil {
		return err
	}
	return rt.Bind("__timerClear", func(id int) {
		el.ClearTimer(id)
	})
}
