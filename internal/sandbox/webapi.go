package sandbox

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/cryguy/edgefn/internal/core"
)

// webAPIsJS defines the request/response vocabulary handed to user code:
// Headers, URL, URLSearchParams, Request and Response.
const webAPIsJS = `
(function() {
var parseURL = __parseURL;
delete globalThis.__parseURL;

function bodyToText(b) {
	if (b === null || b === undefined) return '';
	if (typeof b === 'string') return b;
	if (b instanceof ArrayBuffer || ArrayBuffer.isView(b)) return new TextDecoder().decode(b);
	return String(b);
}

function bodyToBytes(b) {
	if (b === null || b === undefined) return new Uint8Array(0);
	if (b instanceof ArrayBuffer) return new Uint8Array(b.slice(0));
	if (ArrayBuffer.isView(b)) return new Uint8Array(b.buffer.slice(b.byteOffset, b.byteOffset + b.byteLength));
	return new TextEncoder().encode(String(b));
}

function defaultContentType(b) {
	if (typeof b === 'string') return 'text/plain;charset=UTF-8';
	if (b instanceof URLSearchParams) return 'application/x-www-form-urlencoded;charset=UTF-8';
	return null;
}

class Body {
	_consume() {
		if (this._bodyUsed) throw new TypeError('body already consumed');
		this._bodyUsed = true;
		return this._body;
	}
	get body() { return this._body === undefined ? null : this._body; }
	get bodyUsed() { return this._bodyUsed; }
	async text() { return bodyToText(this._consume()); }
	async json() { return JSON.parse(bodyToText(this._consume())); }
	async arrayBuffer() { return bodyToBytes(this._consume()).buffer; }
	async bytes() { return bodyToBytes(this._consume()); }
	async formData() { return new URLSearchParams(bodyToText(this._consume())); }
}

class Headers {
	constructor(init) {
		this._map = {};
		if (!init) return;
		if (init instanceof Headers) {
			for (const k of Object.keys(init._map)) this._map[k] = init._map[k].slice();
		} else if (Array.isArray(init)) {
			for (const pair of init) {
				if (!pair || pair.length !== 2) throw new TypeError('Header pair must have exactly two items');
				this.append(pair[0], pair[1]);
			}
		} else if (typeof init === 'object') {
			for (const k of Object.keys(init)) this._map[String(k).toLowerCase()] = [String(init[k])];
		}
	}
	get(name) {
		const v = this._map[String(name).toLowerCase()];
		return v ? v.join(', ') : null;
	}
	set(name, value) { this._map[String(name).toLowerCase()] = [String(value)]; }
	has(name) { return Object.prototype.hasOwnProperty.call(this._map, String(name).toLowerCase()); }
	delete(name) { delete this._map[String(name).toLowerCase()]; }
	append(name, value) {
		const key = String(name).toLowerCase();
		if (!this._map[key]) this._map[key] = [];
		this._map[key].push(String(value));
	}
	getSetCookie() { return (this._map['set-cookie'] || []).slice(); }
	forEach(cb, thisArg) { for (const [k, v] of this.entries()) cb.call(thisArg, v, k, this); }
	entries() { return Object.keys(this._map).sort().map(k => [k, this._map[k].join(', ')])[Symbol.iterator](); }
	keys() { return Object.keys(this._map).sort()[Symbol.iterator](); }
	values() { return Object.keys(this._map).sort().map(k => this._map[k].join(', '))[Symbol.iterator](); }
	[Symbol.iterator]() { return this.entries(); }
	get [Symbol.toStringTag]() { return 'Headers'; }
}

function decodeQueryComponent(s) {
	return decodeURIComponent(s.replace(/\+/g, '%20'));
}

class URLSearchParams {
	constructor(init) {
		this._entries = [];
		this._url = null;
		if (init instanceof URLSearchParams) {
			this._entries = init._entries.map(e => [e[0], e[1]]);
		} else if (Array.isArray(init)) {
			for (const pair of init) this._entries.push([String(pair[0]), String(pair[1])]);
		} else if (init && typeof init === 'object') {
			for (const k of Object.keys(init)) this._entries.push([k, String(init[k])]);
		} else if (init !== undefined && init !== null) {
			this._parse(String(init));
		}
	}
	_parse(s) {
		this._entries = [];
		if (s.startsWith('?')) s = s.slice(1);
		if (!s) return;
		for (const pair of s.split('&')) {
			if (!pair) continue;
			const idx = pair.indexOf('=');
			const k = idx === -1 ? pair : pair.slice(0, idx);
			const v = idx === -1 ? '' : pair.slice(idx + 1);
			this._entries.push([decodeQueryComponent(k), decodeQueryComponent(v)]);
		}
	}
	_sync() {
		if (!this._url) return;
		const s = this.toString();
		this._url._search = s ? '?' + s : '';
		this._url._buildHref();
	}
	get size() { return this._entries.length; }
	get(name) {
		const e = this._entries.find(e => e[0] === name);
		return e ? e[1] : null;
	}
	getAll(name) { return this._entries.filter(e => e[0] === name).map(e => e[1]); }
	has(name) { return this._entries.some(e => e[0] === name); }
	append(name, value) { this._entries.push([String(name), String(value)]); this._sync(); }
	set(name, value) {
		const out = [];
		let found = false;
		for (const e of this._entries) {
			if (e[0] !== name) { out.push(e); continue; }
			if (!found) { out.push([name, String(value)]); found = true; }
		}
		if (!found) out.push([String(name), String(value)]);
		this._entries = out;
		this._sync();
	}
	delete(name) { this._entries = this._entries.filter(e => e[0] !== name); this._sync(); }
	sort() { this._entries.sort((a, b) => a[0] < b[0] ? -1 : a[0] > b[0] ? 1 : 0); this._sync(); }
	forEach(cb, thisArg) { for (const [k, v] of this._entries) cb.call(thisArg, v, k, this); }
	entries() { return this._entries.map(e => [e[0], e[1]])[Symbol.iterator](); }
	keys() { return this._entries.map(e => e[0])[Symbol.iterator](); }
	values() { return this._entries.map(e => e[1])[Symbol.iterator](); }
	[Symbol.iterator]() { return this.entries(); }
	toString() { return this._entries.map(e => encodeURIComponent(e[0]) + '=' + encodeURIComponent(e[1])).join('&'); }
	get [Symbol.toStringTag]() { return 'URLSearchParams'; }
}

class URL {
	constructor(input, base) {
		this._assign(String(input), base === undefined || base === null ? '' : String(base));
	}
	_assign(input, base) {
		const parsed = JSON.parse(parseURL(input, base));
		if (parsed.error) throw new TypeError(parsed.error);
		this._protocol = parsed.protocol;
		this._hostname = parsed.hostname;
		this._port = parsed.port;
		this._pathname = parsed.pathname;
		this._search = parsed.search;
		this._hash = parsed.hash;
		this._username = parsed.username || '';
		this._password = parsed.password || '';
		this._buildHref();
		this._searchParams = new URLSearchParams(this._search);
		this._searchParams._url = this;
	}
	_buildHref() {
		let userInfo = '';
		if (this._username) userInfo = this._username + (this._password ? ':' + this._password : '') + '@';
		this._host = this._port ? this._hostname + ':' + this._port : this._hostname;
		this._origin = this._protocol + '//' + this._host;
		this._href = this._protocol + '//' + userInfo + this._host + this._pathname + this._search + this._hash;
	}
	get href() { return this._href; }
	set href(v) { this._assign(String(v), ''); }
	get protocol() { return this._protocol; }
	get hostname() { return this._hostname; }
	set hostname(v) { this._hostname = String(v); this._buildHref(); }
	get port() { return this._port; }
	set port(v) { this._port = String(v); this._buildHref(); }
	get host() { return this._host; }
	get origin() { return this._origin; }
	get pathname() { return this._pathname; }
	set pathname(v) { v = String(v); this._pathname = v.startsWith('/') ? v : '/' + v; this._buildHref(); }
	get search() { return this._search; }
	set search(v) {
		v = String(v);
		this._search = v && !v.startsWith('?') ? '?' + v : (v === '?' ? '' : v);
		this._searchParams._parse(this._search);
		this._buildHref();
	}
	get hash() { return this._hash; }
	set hash(v) { v = String(v); this._hash = v && !v.startsWith('#') ? '#' + v : v; this._buildHref(); }
	get username() { return this._username; }
	get password() { return this._password; }
	get searchParams() { return this._searchParams; }
	toString() { return this._href; }
	toJSON() { return this._href; }
	get [Symbol.toStringTag]() { return 'URL'; }
	static canParse(input, base) {
		try { new URL(input, base); return true; } catch (e) { return false; }
	}
}

class Request extends Body {
	constructor(input, init) {
		super();
		init = init || {};
		this._bodyUsed = false;
		if (input instanceof Request) {
			this.url = input.url;
			this.method = input.method;
			this.headers = new Headers(input.headers);
			this._body = input._body;
			this.redirect = input.redirect;
		} else {
			try { this.url = new URL(String(input)).href; } catch (e) { this.url = String(input); }
			this.method = 'GET';
			this.headers = new Headers();
			this._body = null;
			this.redirect = 'follow';
		}
		if (init.method !== undefined) this.method = String(init.method).toUpperCase();
		if (init.headers !== undefined) this.headers = new Headers(init.headers);
		if (init.redirect !== undefined) this.redirect = String(init.redirect);
		this.signal = init.signal || null;
		if (init.body !== undefined && init.body !== null) {
			if (this.method === 'GET' || this.method === 'HEAD') {
				throw new TypeError('Request with GET/HEAD method cannot have body.');
			}
			this._body = init.body;
			const ct = defaultContentType(init.body);
			if (ct && !this.headers.has('content-type')) this.headers.set('content-type', ct);
		}
	}
	clone() {
		if (this._bodyUsed) throw new TypeError('Cannot clone a consumed request');
		return new Request(this);
	}
	get [Symbol.toStringTag]() { return 'Request'; }
}

class Response extends Body {
	constructor(body, init) {
		super();
		init = init || {};
		const status = init.status !== undefined ? Number(init.status) : 200;
		if (!Number.isInteger(status) || status < 200 || status > 599) {
			throw new RangeError('Invalid status code: ' + init.status);
		}
		this._body = body === undefined ? null : body;
		this._bodyUsed = false;
		this.status = status;
		this.statusText = init.statusText !== undefined ? String(init.statusText) : '';
		this.headers = new Headers(init.headers);
		this.type = 'default';
		this.redirected = false;
		this.url = '';
		const ct = defaultContentType(this._body);
		if (ct && !this.headers.has('content-type')) this.headers.set('content-type', ct);
	}
	get ok() { return this.status >= 200 && this.status < 300; }
	clone() {
		if (this._bodyUsed) throw new TypeError('Cannot clone a consumed response');
		const r = new Response(this._body, { status: this.status, statusText: this.statusText, headers: this.headers });
		r.type = this.type;
		r.url = this.url;
		r.redirected = this.redirected;
		return r;
	}
	static json(data, init) {
		init = init || {};
		const headers = new Headers(init.headers);
		if (!headers.has('content-type')) headers.set('content-type', 'application/json');
		return new Response(JSON.stringify(data), Object.assign({}, init, { headers: headers }));
	}
	static redirect(url, status) {
		status = status === undefined ? 302 : status;
		if ([301, 302, 303, 307, 308].indexOf(status) === -1) {
			throw new RangeError('Invalid redirect status: ' + status);
		}
		return new Response(null, { status: status, headers: { location: String(url) } });
	}
	get [Symbol.toStringTag]() { return 'Response'; }
}

globalThis.Headers = Headers;
globalThis.URL = URL;
globalThis.URLSearchParams = URLSearchParams;
globalThis.Request = Request;
globalThis.Response = Response;
})();
`

// URLParsed is the JSON structure returned by __parseURL.
type URLParsed struct {
	Href     string `json:"href"`
	Protocol string `json:"protocol"`
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
	Hash     string `json:"hash"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ParseURL parses rawURL, resolving it against base when base is non-empty.
func ParseURL(rawURL, base string) (*URLParsed, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %s", rawURL)
	}
	if base != "" {
		baseURL, err := url.Parse(base)
		if err != nil || baseURL.Scheme == "" {
			return nil, fmt.Errorf("invalid base URL: %s", base)
		}
		u = baseURL.ResolveReference(u)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("invalid URL: %s", rawURL)
	}

	p := &URLParsed{
		Protocol: u.Scheme + ":",
		Hostname: u.Hostname(),
		Port:     u.Port(),
		Pathname: u.EscapedPath(),
	}
	if p.Pathname == "" {
		p.Pathname = "/"
	}
	if u.RawQuery != "" {
		p.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		p.Hash = "#" + u.EscapedFragment()
	}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	host := p.Hostname
	if p.Port != "" {
		host += ":" + p.Port
	}
	userInfo := ""
	if u.User != nil {
		userInfo = u.User.String() + "@"
	}
	p.Href = p.Protocol + "//" + userInfo + host + p.Pathname + p.Search + p.Hash
	return p, nil
}

// registerWebAPIs registers the Go-backed URL parser used by the URL class.
func registerWebAPIs(rt core.Runtime) error {
	return rt.Bind("__parseURL", func(rawURL, base string) (string, error) {
		parsed, err := ParseURL(rawURL, base)
		if err != nil {
			data, _ := json.Marshal(map[string]string{"error": err.Error()})
			return string(data), nil
		}
		data, _ := json.Marshal(parsed)
		return string(data), nil
	})
}
