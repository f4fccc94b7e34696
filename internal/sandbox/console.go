package sandbox

import (
	"github.com/cryguy/edgefn/internal/core"
)

// consoleJS builds a console object whose methods forward to __console.
const consoleJS = `
(function() {
	function fmt(arg) {
		if (typeof arg === 'string') return arg;
		if (arg instanceof Error) return arg.stack ? String(arg) + '\n' + arg.stack : String(arg);
		if (typeof arg === 'object' && arg !== null) {
			try { return JSON.stringify(arg); } catch (e) { return '[object Object]'; }
		}
		return String(arg);
	}
	var emit = __console;
	var con = {};
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) parts.push(fmt(arguments[j]));
				emit(lvl, parts.join(' '));
			};
		})(levels[i]);
	}
	con.trace = con.debug;
	con.assert = function(cond) {
		if (cond) return;
		var parts = ['Assertion failed'];
		for (var j = 1; j < arguments.length; j++) parts.push(fmt(arguments[j]));
		emit('error', parts.join(' '));
	};
	var counters = {};
	con.count = function(label) {
		var l = label === undefined ? 'default' : String(label);
		counters[l] = (counters[l] || 0) + 1;
		emit('info', l + ': ' + counters[l]);
	};
	var started = {};
	con.time = function(label) { started[label === undefined ? 'default' : String(label)] = Date.now(); };
	con.timeEnd = function(label) {
		var l = label === undefined ? 'default' : String(label);
		if (started[l] === undefined) return;
		emit('info', l + ': ' + (Date.now() - started[l]) + 'ms');
		delete started[l];
	};
	globalThis.console = con;
	delete globalThis.__console;
})();
`

// registerConsole backs console output with the unit's log buffer.
func registerConsole(rt core.Runtime, state *core.UnitState) error {
	return rt.Bind("__console", func(level, message string) {
		state.AddLog(level, message)
	})
}
