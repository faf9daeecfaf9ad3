package sandbox

// eventTargetJS is shared by both preludes.
const eventTargetJS = `
	function defineEventTarget(target) {
		const listeners = {};
		Object.defineProperty(target, "addEventListener", {
			value(type, listener) {
				if (listener == null) return;
				const list = listeners[type] || (listeners[type] = []);
				if (list.indexOf(listener) < 0) list.push(listener);
			},
		});
		Object.defineProperty(target, "removeEventListener", {
			value(type, listener) {
				const list = listeners[type];
				if (!list) return;
				const i = list.indexOf(listener);
				if (i >= 0) list.splice(i, 1);
			},
		});
		Object.defineProperty(target, "dispatchEvent", {
			value(event) {
				const handler = target["on" + event.type];
				if (typeof handler === "function") handler.call(target, event);
				for (const listener of (listeners[event.type] || []).slice()) {
					if (typeof listener === "function") listener.call(target, event);
					else if (listener && typeof listener.handleEvent === "function") listener.handleEvent(event);
				}
				return !event.defaultPrevented;
			},
		});
	}

	function makeEvent(type, init) {
		const event = Object.assign({}, init, { type, defaultPrevented: false });
		event.preventDefault = function () { event.defaultPrevented = true; };
		return event;
	}
`

// pagePreludeJS installs Blob, URL and Worker in a page realm. host carries
// registerBlob, revokeBlob and spawn.
const pagePreludeJS = `(function (host) {
	"use strict";
` + eventTargetJS + `
	const global = globalThis;
	global.window = global;
	global.self = global;

	class Blob {
		constructor(parts, options) {
			const chunks = [];
			for (const part of parts || []) {
				chunks.push(part instanceof Blob ? part.__text : String(part));
			}
			Object.defineProperty(this, "__text", { value: chunks.join("") });
			this.type = options && options.type ? String(options.type).toLowerCase() : "";
			this.size = this.__text.length;
		}
		text() { return Promise.resolve(this.__text); }
	}

	class URL {
		constructor(href) { this.href = String(href); }
		toString() { return this.href; }
		static createObjectURL(blob) {
			if (!(blob instanceof Blob)) {
				throw new TypeError("Failed to execute 'createObjectURL' on 'URL': Overload resolution failed.");
			}
			return host.registerBlob(blob.__text, blob.type);
		}
		static revokeObjectURL(url) { host.revokeBlob(String(url)); }
	}

	class Worker {
		constructor(url) {
			defineEventTarget(this);
			this.onmessage = null;
			this.onerror = null;
			const target = this;
			const handle = host.spawn(String(url), function (kind, payload) {
				const init = JSON.parse(payload);
				if (kind === "message") {
					target.dispatchEvent(makeEvent("message", { data: init[0] }));
				} else {
					target.dispatchEvent(makeEvent("error", Object.assign({ error: null }, init)));
				}
			});
			Object.defineProperty(this, "__handle", { value: handle });
		}
		postMessage(data) { this.__handle.post(JSON.stringify([data])); }
		terminate() { this.__handle.terminate(); }
	}

	global.Blob = Blob;
	global.URL = URL;
	global.Worker = Worker;

	return {
		invoke(fn, argsJSON, ok, fail) {
			let result;
			try {
				result = fn(...JSON.parse(argsJSON));
			} catch (e) {
				fail(e);
				return;
			}
			Promise.resolve(result).then(function (value) {
				let encoded;
				try {
					encoded = value === undefined ? undefined : JSON.stringify(value);
				} catch (e) {
					fail(e);
					return;
				}
				ok(encoded);
			}, fail);
		},
	};
})`

// workerPreludeJS installs the dedicated worker global scope. host carries
// post, close, importScript and href.
const workerPreludeJS = `(function (host) {
	"use strict";
` + eventTargetJS + `
	const global = globalThis;
	global.self = global;
	defineEventTarget(global);
	global.onmessage = null;
	global.onerror = null;
	global.location = { href: host.href, toString() { return this.href; } };

	global.postMessage = function (data) { host.post(JSON.stringify([data])); };
	global.close = function () { host.close(); };
	global.importScripts = function (...urls) {
		for (const url of urls) host.importScript(String(url));
	};

	return {
		deliver(payload) {
			global.dispatchEvent(makeEvent("message", { data: JSON.parse(payload)[0] }));
		},
		report(record) {
			return global.dispatchEvent(makeEvent("error", JSON.parse(record)));
		},
	};
})`
