/*
Package bridge drives a Worker that lives inside a browser page through the
familiar Worker surface: PostMessage, Terminate, the OnMessage and OnError
slots, and AddEventListener/RemoveEventListener/DispatchEvent.

A Worker needs only a page.Page. It exposes two host functions named after
its identity, creates `new Worker(url)` in the page and wires the in-page
worker's onmessage and onerror to those functions. Several workers may share
one page; each identity owns its own page globals.

	w, err := bridge.FromString(ctx, p, `onmessage = (e) => postMessage(e.data)`)
	if err != nil {
		return err
	}
	defer w.Terminate(ctx)

	w.AddEventListener(bridge.EventMessage, bridge.ListenerFunc(func(ev bridge.Event) {
		var n int
		_ = ev.(*bridge.MessageEvent).Decode(&n)
	}))
	_ = w.PostMessage(ctx, 42)

# Legacy slots

OnMessage and OnError are coupled to the listener registry. Adding a
"message" or "error" listener also points the matching slot at it, and
removing any listener of that type clears the slot even if others remain.
A slot that mirrors a registered listener is not invoked twice.

# Managed mode

Launcher owns a browser (Chrome or the goja sandbox, chosen by config) and
gives every worker its own page. ManagedWorker.Terminate closes that page;
Worker.Terminate never closes a page it was handed.
*/
package bridge
