package sandbox

// runnerJS is the bootstrap entry point. It owns the per-invocation state:
// the decoded message, the env capability, the resolved handler and the
// serialized reply. Go drives it through the frozen __edgefn object.
const runnerJS = `
(function() {
	'use strict';
	var hasOwn = Object.prototype.hasOwnProperty;
	var BODYLESS = { 204: true, 205: true, 304: true };
	var state = {
		message: null,
		env: null,
		handler: null,
		self: undefined,
		loadError: null,
		loaded: false,
		settled: false,
		reply: null,
	};

	function makeEnv(secrets) {
		var store = Object.create(null);
		for (var k in secrets) {
			if (hasOwn.call(secrets, k)) store[k] = String(secrets[k]);
		}
		return Object.freeze({
			get: function(key) {
				key = String(key);
				return key in store ? store[key] : undefined;
			},
		});
	}

	function decodeBody(body, encoding) {
		if (body === null || body === undefined) return null;
		if (encoding === 'base64') return __b64ToBuffer(body);
		return body;
	}

	function makeRequest(data) {
		var req = new Request(data.url, { method: data.method, headers: data.headers || [] });
		req._body = decodeBody(data.body, data.bodyEncoding);
		return req;
	}

	function pick(ns) {
		if (ns === null || ns === undefined) return null;
		if (typeof ns === 'function') return { fn: ns, self: undefined };
		if (typeof ns !== 'object') return null;
		if (typeof ns.handler === 'function') return { fn: ns.handler, self: ns };
		var d = ns['default'];
		if (typeof d === 'function') return { fn: d, self: undefined };
		if (d && typeof d === 'object') {
			if (typeof d.handler === 'function') return { fn: d.handler, self: d };
			if (typeof d.fetch === 'function') return { fn: d.fetch, self: d };
		}
		if (typeof ns.fetch === 'function') return { fn: ns.fetch, self: ns };
		return null;
	}

	function isResponseLike(v) {
		if (v instanceof Response) return true;
		if (v instanceof Error) return false;
		return v !== null && typeof v === 'object' && typeof v.status === 'number' &&
			('body' in v || 'headers' in v);
	}

	function headerPairs(h) {
		var out = [];
		if (!h) return out;
		if (h instanceof Headers) {
			for (var k in h._map) {
				if (!hasOwn.call(h._map, k)) continue;
				for (var i = 0; i < h._map[k].length; i++) out.push([k, h._map[k][i]]);
			}
			return out;
		}
		if (Array.isArray(h)) {
			for (var j = 0; j < h.length; j++) out.push([String(h[j][0]), String(h[j][1])]);
			return out;
		}
		if (typeof h.forEach === 'function' && Object.getPrototypeOf(h) !== Object.prototype) {
			h.forEach(function(v, k) { out.push([String(k), String(v)]); });
			return out;
		}
		var keys = Object.keys(h);
		for (var n = 0; n < keys.length; n++) out.push([keys[n], String(h[keys[n]])]);
		return out;
	}

	function encodeBody(b) {
		if (b === null || b === undefined) return { body: null };
		if (typeof b === 'string') return { body: b };
		if (b instanceof ArrayBuffer || ArrayBuffer.isView(b)) {
			return { body: __bufferSourceToB64(b), bodyEncoding: 'base64' };
		}
		return { body: String(b) };
	}

	function serialize(v) {
		var status = v.status;
		if (!Number.isInteger(status) || status < 200 || status > 599) {
			throw new RangeError('Invalid response status: ' + status);
		}
		var raw = v instanceof Response ? v._body : v.body;
		var enc = BODYLESS[status] ? { body: null } : encodeBody(raw);
		var out = {
			status: status,
			headers: headerPairs(v.headers),
			body: enc.body,
		};
		if (typeof v.statusText === 'string' && v.statusText) out.statusText = v.statusText;
		if (enc.bodyEncoding) out.bodyEncoding = enc.bodyEncoding;
		return out;
	}

	function finish(reply) {
		if (state.settled) return;
		state.reply = JSON.stringify(reply);
		state.settled = true;
	}

	function errorMessage(e) {
		if (e instanceof Error) return String(e);
		if (e !== null && typeof e === 'object' && typeof e.message === 'string') return e.message;
		try { return String(e); } catch (x) { return 'Unknown error'; }
	}

	function errorStatus(e) {
		if (e !== null && (typeof e === 'object' || typeof e === 'function')) {
			var s = e.status;
			if (Number.isInteger(s) && s >= 200 && s <= 599) return s;
		}
		return 500;
	}

	function settleReturn(v) {
		try {
			if (isResponseLike(v)) {
				finish({ success: true, response: serialize(v) });
				return;
			}
			var json = JSON.stringify(v);
			finish({ success: true, response: {
				status: 200,
				headers: [['content-type', 'application/json']],
				body: json === undefined ? 'null' : json,
			} });
		} catch (e) {
			settleThrow(e);
		}
	}

	function settleThrow(e) {
		if (isResponseLike(e)) {
			try {
				finish({ success: true, thrown: true, response: serialize(e) });
				return;
			} catch (x) {
				e = x;
			}
		}
		finish({ success: false, error: errorMessage(e), status: errorStatus(e) });
	}

	var api = {
		prepare: function() {
			var raw = globalThis.__edgefn_message;
			delete globalThis.__edgefn_message;
			var msg = JSON.parse(raw);
			state.env = makeEnv(msg.secrets || {});
			msg.secrets = null;
			state.message = msg;
		},
		load: function(factory) {
			var module = { exports: {} };
			var ns;
			try {
				ns = factory(module, module.exports, function(name) {
					throw new Error('require is not supported: ' + name);
				}, state.env);
			} catch (e) {
				state.loadError = { error: e };
				return;
			}
			var picked = pick(ns) || pick(module.exports);
			state.loaded = true;
			if (picked) {
				state.handler = picked.fn;
				state.self = picked.self;
			}
		},
		invoke: function() {
			if (state.loadError) {
				settleThrow(state.loadError.error);
				return;
			}
			if (!state.handler) {
				finish({ success: false, error: {{NO_EXPORT}}, status: 500 });
				return;
			}
			var result;
			try {
				result = state.handler.call(state.self, makeRequest(state.message.requestData), state.env);
			} catch (e) {
				settleThrow(e);
				return;
			}
			Promise.resolve(result).then(settleReturn, settleThrow);
		},
		settled: function() { return state.settled; },
		reply: function() { return state.reply; },
	};

	Object.defineProperty(globalThis, '__edgefn', { value: Object.freeze(api) });
})();
`
