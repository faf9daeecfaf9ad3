package bridge

// createWorkerJS builds the in-page worker, relays its events to the two
// host bindings and parks it under key.
const createWorkerJS = `(url, key, messageBinding, errorBinding) => {
	const worker = new Worker(url);
	worker.onmessage = (event) => {
		const relay = globalThis[messageBinding];
		if (relay) relay(event.data);
	};
	worker.onerror = (event) => {
		const relay = globalThis[errorBinding];
		if (!relay) return;
		relay({
			type: "error",
			message: event.message,
			filename: event.filename,
			lineno: event.lineno,
			colno: event.colno,
			error: event.error === undefined ? null : event.error,
		});
	};
	globalThis[key] = worker;
}`

// postMessageJS reports false when the in-page worker does not exist yet.
const postMessageJS = `(key, data) => {
	const worker = globalThis[key];
	if (!worker) return false;
	worker.postMessage(data);
	return true;
}`

const terminateJS = `(key) => {
	const worker = globalThis[key];
	if (!worker) return false;
	worker.terminate();
	delete globalThis[key];
	return true;
}`

const createObjectURLJS = `(source) => URL.createObjectURL(new Blob([source], { type: "text/javascript" }))`
