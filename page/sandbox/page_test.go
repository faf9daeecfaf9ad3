package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/browserworker/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func newTestPage(t *testing.T) (*Browser, *Page) {
	t.Helper()
	b := NewBrowser(DefaultConfig())
	t.Cleanup(func() { _ = b.Close() })

	p, err := b.OpenPage(context.Background())
	require.NoError(t, err)
	return b, p
}

// expose installs name and returns a channel of its calls
func expose(t *testing.T, p *Page, name string) <-chan []json.RawMessage {
	t.Helper()
	calls := make(chan []json.RawMessage, 64)
	require.NoError(t, p.ExposeFunction(context.Background(), name, func(args []json.RawMessage) {
		calls <- args
	}))
	return calls
}

func receive(t *testing.T, calls <-chan []json.RawMessage) []json.RawMessage {
	t.Helper()
	select {
	case args := <-calls:
		return args
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for binding call")
		return nil
	}
}

func TestEvaluate(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		fn       string
		args     []any
		expected string
		isNil    bool
	}{
		{name: "arguments", fn: "(a, b) => a + b", args: []any{1, 2}, expected: "3"},
		{name: "undefined result", fn: "() => undefined", isNil: true},
		{name: "null result", fn: "() => null", expected: "null"},
		{name: "object result", fn: "(s) => ({ k: [1, s] })", args: []any{"x"}, expected: `{"k":[1,"x"]}`},
		{name: "async function", fn: "async () => 42", expected: "42"},
		{name: "timer promise", fn: "() => new Promise((resolve) => setTimeout(() => resolve('late'), 10))", expected: `"late"`},
		{name: "window aliases global", fn: "() => window === globalThis && self === globalThis", expected: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := p.Evaluate(ctx, tt.fn, tt.args...)
			require.NoError(t, err)
			if tt.isNil {
				assert.Nil(t, raw)
				return
			}
			assert.JSONEq(t, tt.expected, string(raw))
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		fn       string
		contains string
	}{
		{name: "thrown error", fn: "() => { throw new Error('boom') }", contains: "Error: boom"},
		{name: "rejected promise", fn: "() => Promise.reject(new TypeError('bad'))", contains: "TypeError: bad"},
		{name: "syntax error", fn: "() => {", contains: "SyntaxError"},
		{name: "not a function", fn: "42", contains: "not callable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Evaluate(ctx, tt.fn)
			require.Error(t, err)

			var evalErr *page.EvaluationError
			require.ErrorAs(t, err, &evalErr)
			assert.Contains(t, evalErr.Message, tt.contains)
		})
	}
}

func TestEvaluateHonoursContext(t *testing.T) {
	_, p := newTestPage(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Evaluate(ctx, "() => new Promise(() => {})")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExposeFunction(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()

	calls := expose(t, p, "hostFn")

	_, err := p.Evaluate(ctx, "() => { hostFn(1, 'two'); hostFn({ three: 3 }); hostFn(); }")
	require.NoError(t, err)

	first := receive(t, calls)
	require.Len(t, first, 2)
	assert.JSONEq(t, "1", string(first[0]))
	assert.JSONEq(t, `"two"`, string(first[1]))

	second := receive(t, calls)
	require.Len(t, second, 1)
	assert.JSONEq(t, `{"three":3}`, string(second[0]))

	assert.Empty(t, receive(t, calls))

	err = p.ExposeFunction(ctx, "hostFn", func([]json.RawMessage) {})
	assert.ErrorIs(t, err, page.ErrBindingExists)

	require.NoError(t, p.RemoveExposedFunction(ctx, "hostFn"))
	raw, err := p.Evaluate(ctx, "() => typeof hostFn")
	require.NoError(t, err)
	assert.JSONEq(t, `"undefined"`, string(raw))

	assert.ErrorIs(t, p.RemoveExposedFunction(ctx, "hostFn"), page.ErrBindingNotFound)
}

func TestObjectURLs(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()

	var objectURL string
	require.NoError(t, page.EvaluateInto(ctx, p, &objectURL,
		`(src) => URL.createObjectURL(new Blob([src], { type: "text/javascript" }))`, "1 + 1"))
	assert.True(t, strings.HasPrefix(objectURL, "blob:null/"), objectURL)
	assert.Equal(t, 1, p.blobs.len())

	_, err := p.Evaluate(ctx, "(u) => URL.revokeObjectURL(u)", objectURL)
	require.NoError(t, err)
	assert.Equal(t, 0, p.blobs.len())

	_, err = p.Evaluate(ctx, "() => URL.createObjectURL('not a blob')")
	assert.True(t, page.IsEvaluationError(err))
}

const spawnWorkerJS = `(src) => {
	const url = URL.createObjectURL(new Blob([src], { type: "text/javascript" }));
	const worker = new Worker(url);
	worker.onmessage = (e) => report("message", e.data);
	worker.onerror = (e) => report("error", e.message, e.filename, e.lineno);
	window.worker = worker;
}`

func TestWorkerRoundTrip(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()
	calls := expose(t, p, "report")

	_, err := p.Evaluate(ctx, spawnWorkerJS, `self.onmessage = (e) => postMessage({ echo: e.data.n + 1 });`)
	require.NoError(t, err)

	// Posted before the worker script has run
	_, err = p.Evaluate(ctx, "() => { worker.postMessage({ n: 1 }); worker.postMessage({ n: 2 }); }")
	require.NoError(t, err)

	for _, expected := range []string{`{"echo":2}`, `{"echo":3}`} {
		args := receive(t, calls)
		require.Len(t, args, 2)
		assert.JSONEq(t, `"message"`, string(args[0]))
		assert.JSONEq(t, expected, string(args[1]))
	}
	assert.Equal(t, 1, p.WorkerCount())
}

func TestWorkerAddEventListener(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()
	calls := expose(t, p, "report")

	_, err := p.Evaluate(ctx, `(src) => {
		const url = URL.createObjectURL(new Blob([src]));
		const worker = new Worker(url);
		const listener = (e) => report("listener", e.data);
		worker.addEventListener("message", listener);
		worker.addEventListener("message", listener);
		worker.postMessage("ping");
	}`, `self.addEventListener("message", (e) => postMessage(e.data + "-pong"));`)
	require.NoError(t, err)

	args := receive(t, calls)
	assert.JSONEq(t, `"listener"`, string(args[0]))
	assert.JSONEq(t, `"ping-pong"`, string(args[1]))

	select {
	case extra := <-calls:
		t.Fatalf("duplicate listener fired: %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorkerErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		post    bool
		message string
		lineno  int
	}{
		{
			name:    "syntax error",
			src:     "this is javascript",
			message: "Uncaught SyntaxError: Unexpected identifier",
			lineno:  1,
		},
		{
			name:    "top level throw",
			src:     "\nthrow new Error('boom');",
			message: "Uncaught Error: boom",
			lineno:  2,
		},
		{
			name:    "throw in handler",
			src:     "self.onmessage = () => { throw new RangeError('late'); };",
			post:    true,
			message: "Uncaught RangeError: late",
			lineno:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p := newTestPage(t)
			ctx := context.Background()
			calls := expose(t, p, "report")

			_, err := p.Evaluate(ctx, spawnWorkerJS, tt.src)
			require.NoError(t, err)
			if tt.post {
				_, err = p.Evaluate(ctx, "() => worker.postMessage(null)")
				require.NoError(t, err)
			}

			args := receive(t, calls)
			require.Len(t, args, 4)
			assert.JSONEq(t, `"error"`, string(args[0]))

			var message, filename string
			require.NoError(t, json.Unmarshal(args[1], &message))
			require.NoError(t, json.Unmarshal(args[2], &filename))
			assert.True(t, strings.HasPrefix(message, tt.message), message)
			assert.True(t, strings.HasPrefix(filename, "blob:null/"), filename)
			assert.JSONEq(t, fmt.Sprint(tt.lineno), string(args[3]))
		})
	}
}

func TestWorkerHandledErrorIsNotForwarded(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()
	calls := expose(t, p, "report")

	_, err := p.Evaluate(ctx, spawnWorkerJS, `
		self.onerror = (e) => { e.preventDefault(); postMessage("handled: " + e.message); };
		self.onmessage = () => { throw new Error("inside"); };
	`)
	require.NoError(t, err)
	_, err = p.Evaluate(ctx, "() => worker.postMessage(1)")
	require.NoError(t, err)

	args := receive(t, calls)
	assert.JSONEq(t, `"message"`, string(args[0]))
	assert.JSONEq(t, `"handled: Uncaught Error: inside"`, string(args[1]))

	select {
	case extra := <-calls:
		t.Fatalf("handled error was forwarded: %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorkerTerminate(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()
	calls := expose(t, p, "report")

	_, err := p.Evaluate(ctx, spawnWorkerJS, `self.onmessage = (e) => postMessage(e.data);`)
	require.NoError(t, err)
	_, err = p.Evaluate(ctx, "() => worker.postMessage('before')")
	require.NoError(t, err)
	receive(t, calls)

	_, err = p.Evaluate(ctx, "() => { worker.terminate(); worker.terminate(); worker.postMessage('after'); }")
	require.NoError(t, err)
	assert.Equal(t, 0, p.WorkerCount())

	select {
	case extra := <-calls:
		t.Fatalf("terminated worker answered: %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorkerSelfClose(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()
	calls := expose(t, p, "report")

	_, err := p.Evaluate(ctx, spawnWorkerJS, `
		self.onmessage = (e) => { postMessage("bye"); close(); postMessage("ignored"); };
	`)
	require.NoError(t, err)
	_, err = p.Evaluate(ctx, "() => worker.postMessage(1)")
	require.NoError(t, err)

	args := receive(t, calls)
	assert.JSONEq(t, `"bye"`, string(args[1]))

	select {
	case extra := <-calls:
		t.Fatalf("closed worker kept posting: %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConsoleCapture(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()

	_, err := p.Evaluate(ctx, "() => { console.log('hello', 1); console.warn('careful'); }")
	require.NoError(t, err)

	entries := p.Console()
	require.Len(t, entries, 2)
	assert.Equal(t, "log", entries[0].Level)
	assert.Equal(t, "hello 1", entries[0].Message)
	assert.Equal(t, "page", entries[0].Source)
	assert.Equal(t, "warn", entries[1].Level)
}

func TestNodeGlobalsRemoved(t *testing.T) {
	_, p := newTestPage(t)

	raw, err := p.Evaluate(context.Background(), "() => [typeof require, typeof process, typeof module].join(',')")
	require.NoError(t, err)
	assert.JSONEq(t, `"undefined,undefined,undefined"`, string(raw))
}

func newFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Fixture</title></head><body>
			<div id="main" class="box" data-role="root">Hi</div>
			<script>window.inline = document.title + "!";</script>
			<script src="/lib.js"></script>
			<script type="application/json">{"ignored": true}</script>
		</body></html>`)
	})
	mux.HandleFunc("/lib.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		fmt.Fprint(w, "function double(x) { return x * 2; }")
	})
	mux.HandleFunc("/worker.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		fmt.Fprint(w, `importScripts("/lib.js"); self.onmessage = (e) => postMessage(double(e.data));`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGotoHTTPDocument(t *testing.T) {
	server := newFixtureServer(t)
	_, p := newTestPage(t)
	ctx := context.Background()

	require.NoError(t, p.Goto(ctx, server.URL+"/"))
	assert.Equal(t, server.URL+"/", p.URL())

	raw, err := p.Evaluate(ctx, `() => ({
		title: document.title,
		inline: window.inline,
		doubled: double(21),
		tag: document.querySelector("#main").tagName,
		role: document.querySelector(".box").getAttribute("data-role"),
		missing: document.querySelector("#nope"),
		count: document.querySelectorAll("script").length,
		byId: document.getElementById("main").textContent,
	})`)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"title": "Fixture",
		"inline": "Fixture!",
		"doubled": 42,
		"tag": "DIV",
		"role": "root",
		"missing": null,
		"count": 3,
		"byId": "Hi"
	}`, string(raw))
}

func TestWorkerFromHTTP(t *testing.T) {
	server := newFixtureServer(t)
	_, p := newTestPage(t)
	ctx := context.Background()

	require.NoError(t, p.Goto(ctx, server.URL+"/"))
	calls := expose(t, p, "report")

	_, err := p.Evaluate(ctx, `() => {
		const worker = new Worker("/worker.js");
		worker.onmessage = (e) => report(e.data);
		worker.postMessage(8);
	}`)
	require.NoError(t, err)

	args := receive(t, calls)
	assert.JSONEq(t, "16", string(args[0]))
}

func TestWorkerScriptLoadFailure(t *testing.T) {
	server := newFixtureServer(t)
	_, p := newTestPage(t)
	ctx := context.Background()

	require.NoError(t, p.Goto(ctx, server.URL+"/"))
	calls := expose(t, p, "report")

	_, err := p.Evaluate(ctx, `() => {
		const worker = new Worker("/missing.js");
		worker.onerror = (e) => report(e.message);
	}`)
	require.NoError(t, err)

	args := receive(t, calls)
	var message string
	require.NoError(t, json.Unmarshal(args[0], &message))
	assert.Contains(t, message, "Failed to load worker script")
}

func TestGotoResetsDocumentButKeepsBindings(t *testing.T) {
	_, p := newTestPage(t)
	ctx := context.Background()
	calls := expose(t, p, "report")

	_, err := p.Evaluate(ctx, spawnWorkerJS, `self.onmessage = (e) => postMessage(e.data);`)
	require.NoError(t, err)
	_, err = p.Evaluate(ctx, "() => { window.marker = 1; }")
	require.NoError(t, err)

	require.NoError(t, p.Goto(ctx, "about:blank"))
	assert.Equal(t, 0, p.WorkerCount())
	assert.Equal(t, 0, p.blobs.len())

	raw, err := p.Evaluate(ctx, "() => [typeof window.marker, typeof report].join(',')")
	require.NoError(t, err)
	assert.JSONEq(t, `"undefined,function"`, string(raw))

	_, err = p.Evaluate(ctx, "() => report('still wired')")
	require.NoError(t, err)
	args := receive(t, calls)
	assert.JSONEq(t, `"still wired"`, string(args[0]))
}

func TestGotoUnsupportedScheme(t *testing.T) {
	_, p := newTestPage(t)
	err := p.Goto(context.Background(), "ftp://example.com/")
	assert.Error(t, err)
	assert.Equal(t, "about:blank", p.URL())
}

func TestClose(t *testing.T) {
	b, p := newTestPage(t)
	ctx := context.Background()
	require.NoError(t, p.ExposeFunction(ctx, "host", func([]json.RawMessage) {}))

	assert.Equal(t, 1, b.Stats()["pages"])
	require.NoError(t, p.Close(ctx))
	assert.Empty(t, p.bindings.Names(), "close drops exposed functions")
	require.NoError(t, p.Close(ctx))
	assert.Equal(t, 0, b.Stats()["pages"])

	_, err := p.Evaluate(ctx, "() => 1")
	assert.ErrorIs(t, err, page.ErrClosed)
	assert.ErrorIs(t, p.ExposeFunction(ctx, "late", func([]json.RawMessage) {}), page.ErrClosed)
	assert.ErrorIs(t, p.Goto(ctx, "about:blank"), page.ErrClosed)

	require.NoError(t, b.Close())
	_, err = b.NewPage(ctx)
	assert.ErrorIs(t, err, page.ErrClosed)
}
