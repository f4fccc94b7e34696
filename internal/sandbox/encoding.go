package sandbox

// encodingJS implements btoa/atob, a UTF-8 TextEncoder/TextDecoder pair and
// the base64 helpers the runner uses to move binary bodies across the
// isolation boundary.
const encodingJS = `
(function() {
	const _e = 'ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/';
	const _d = new Uint8Array(128);
	const _v = new Uint8Array(128);
	for (let i = 0; i < _e.length; i++) { _d[_e.charCodeAt(i)] = i; _v[_e.charCodeAt(i)] = 1; }

	globalThis.btoa = function(data) {
		if (arguments.length < 1) throw new TypeError("btoa requires at least 1 argument(s)");
		const s = String(data);
		const len = s.length;
		const out = [];
		for (let i = 0; i < len; i += 3) {
			const a = s.charCodeAt(i);
			const b = i + 1 < len ? s.charCodeAt(i + 1) : 0;
			const c = i + 2 < len ? s.charCodeAt(i + 2) : 0;
			if (a > 255 || b > 255 || c > 255) throw new Error("btoa: string contains characters outside of the Latin1 range");
			out.push(
				_e[a >> 2],
				_e[((a & 3) << 4) | (b >> 4)],
				i + 1 < len ? _e[((b & 15) << 2) | (c >> 6)] : '=',
				i + 2 < len ? _e[c & 63] : '='
			);
		}
		return out.join('');
	};

	globalThis.atob = function(data) {
		if (arguments.length < 1) throw new TypeError("atob requires at least 1 argument(s)");
		let b64 = String(data).replace(/[\t\n\f\r ]/g, '');
		if (b64.length % 4 === 0 && b64.endsWith('=')) {
			b64 = b64.slice(0, b64.endsWith('==') ? -2 : -1);
		}
		if (b64.length % 4 === 1) throw new Error("atob: invalid base64 string");
		for (let i = 0; i < b64.length; i++) {
			const ch = b64.charCodeAt(i);
			if (ch >= 128 || !_v[ch]) throw new Error("atob: invalid base64 string");
		}
		const outLen = Math.floor(b64.length * 3 / 4);
		const bytes = new Uint8Array(outLen);
		let j = 0;
		for (let i = 0; i < b64.length; i += 4) {
			const a = _d[b64.charCodeAt(i)];
			const b = _d[b64.charCodeAt(i + 1)] || 0;
			const c = i + 2 < b64.length ? _d[b64.charCodeAt(i + 2)] : 0;
			const d = i + 3 < b64.length ? _d[b64.charCodeAt(i + 3)] : 0;
			bytes[j++] = (a << 2) | (b >> 4);
			if (j < outLen) bytes[j++] = ((b & 15) << 4) | (c >> 2);
			if (j < outLen) bytes[j++] = ((c & 3) << 6) | d;
		}
		let result = '';
		for (let i = 0; i < outLen; i += 4096) {
			result += String.fromCharCode.apply(null, bytes.subarray(i, Math.min(i + 4096, outLen)));
		}
		return result;
	};

	class TextEncoder {
		get encoding() { return 'utf-8'; }
		encode(str) {
			str = str === undefined ? '' : String(str);
			const buf = [];
			for (let i = 0; i < str.length; i++) {
				let c = str.charCodeAt(i);
				if (c < 0x80) {
					buf.push(c);
				} else if (c < 0x800) {
					buf.push(0xc0 | (c >> 6), 0x80 | (c & 0x3f));
				} else if (c >= 0xd800 && c <= 0xdbff && i + 1 < str.length) {
					const next = str.charCodeAt(++i);
					const cp = ((c - 0xd800) << 10) + (next - 0xdc00) + 0x10000;
					buf.push(0xf0 | (cp >> 18), 0x80 | ((cp >> 12) & 0x3f), 0x80 | ((cp >> 6) & 0x3f), 0x80 | (cp & 0x3f));
				} else {
					buf.push(0xe0 | (c >> 12), 0x80 | ((c >> 6) & 0x3f), 0x80 | (c & 0x3f));
				}
			}
			return new Uint8Array(buf);
		}
		get [Symbol.toStringTag]() { return 'TextEncoder'; }
	}

	class TextDecoder {
		constructor(label, options) {
			label = (label || 'utf-8').toLowerCase().trim();
			if (label !== 'utf-8' && label !== 'utf8') throw new RangeError('Unsupported encoding: ' + label);
			this._fatal = !!(options && options.fatal);
		}
		get encoding() { return 'utf-8'; }
		get fatal() { return this._fatal; }
		decode(buf) {
			let bytes;
			if (!buf) bytes = new Uint8Array(0);
			else if (buf instanceof ArrayBuffer) bytes = new Uint8Array(buf);
			else if (ArrayBuffer.isView(buf)) bytes = new Uint8Array(buf.buffer, buf.byteOffset, buf.byteLength);
			else bytes = new Uint8Array(buf);
			let i = 0;
			if (bytes.length >= 3 && bytes[0] === 0xef && bytes[1] === 0xbb && bytes[2] === 0xbf) i = 3;
			const fatal = this._fatal;
			const bad = function() {
				if (fatal) throw new TypeError('The encoded data was not valid utf-8');
				return '\uFFFD';
			};
			const cont = function(k) { return k < bytes.length && (bytes[k] & 0xc0) === 0x80; };
			let out = '';
			while (i < bytes.length) {
				const b = bytes[i];
				if (b < 0x80) {
					out += String.fromCharCode(b); i++;
				} else if ((b & 0xe0) === 0xc0 && cont(i + 1)) {
					out += String.fromCharCode(((b & 0x1f) << 6) | (bytes[i + 1] & 0x3f)); i += 2;
				} else if ((b & 0xf0) === 0xe0 && cont(i + 1) && cont(i + 2)) {
					out += String.fromCharCode(((b & 0x0f) << 12) | ((bytes[i + 1] & 0x3f) << 6) | (bytes[i + 2] & 0x3f)); i += 3;
				} else if ((b & 0xf8) === 0xf0 && cont(i + 1) && cont(i + 2) && cont(i + 3)) {
					out += String.fromCodePoint(((b & 0x07) << 18) | ((bytes[i + 1] & 0x3f) << 12) | ((bytes[i + 2] & 0x3f) << 6) | (bytes[i + 3] & 0x3f)); i += 4;
				} else {
					out += bad(); i++;
				}
			}
			return out;
		}
		get [Symbol.toStringTag]() { return 'TextDecoder'; }
	}

	globalThis.TextEncoder = TextEncoder;
	globalThis.TextDecoder = TextDecoder;
})();

globalThis.__bufferSourceToB64 = function(data) {
	var bytes;
	if (data instanceof ArrayBuffer) {
		bytes = new Uint8Array(data);
	} else if (ArrayBuffer.isView(data)) {
		bytes = new Uint8Array(data.buffer, data.byteOffset, data.byteLength);
	} else {
		bytes = new TextEncoder().encode(String(data));
	}
	var parts = [];
	for (var i = 0; i < bytes.length; i += 8192) {
		parts.push(String.fromCharCode.apply(null, bytes.subarray(i, Math.min(i + 8192, bytes.length))));
	}
	return btoa(parts.join(''));
};

globalThis.__b64ToBuffer = function(b64) {
	var binary = atob(b64);
	var bytes = new Uint8Array(binary.length);
	for (var i = 0; i < binary.length; i++) {
		bytes[i] = binary.charCodeAt(i);
	}
	return bytes.buffer;
};
`
