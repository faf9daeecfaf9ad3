package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/browserworker/page"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var errContextDestroyed = errors.New("execution context was destroyed")

// Page is an in-process page: one goja realm for the document plus one
// realm per dedicated worker it spawns.
type Page struct {
	id      string
	browser *Browser
	config  Config
	logger  *zap.Logger
	loader  *loader

	bindings *page.Bindings
	queue    *page.CallQueue
	blobs    *blobStore

	mu       sync.RWMutex
	url      string
	realm    *realm
	document *Document
	workers  map[string]*workerScope
	closed   bool

	consoleMu sync.Mutex
	console   []LogEntry
}

var _ page.Page = (*Page)(nil)

func newPage(ctx context.Context, b *Browser, id string) (*Page, error) {
	logger := b.logger.With(zap.String("page_id", id))
	bindings := page.NewBindings()

	p := &Page{
		id:       id,
		browser:  b,
		config:   b.config,
		logger:   logger,
		loader:   b.loader,
		bindings: bindings,
		queue:    page.NewCallQueue(bindings, logger),
		blobs:    newBlobStore(),
		workers:  make(map[string]*workerScope),
	}

	if err := p.Goto(ctx, "about:blank"); err != nil {
		p.queue.Close()
		return nil, err
	}
	return p, nil
}

// ID returns the page identifier
func (p *Page) ID() string {
	return p.id
}

// URL reports the current document URL
func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

// Console returns the console output of the page and its workers
func (p *Page) Console() []LogEntry {
	p.consoleMu.Lock()
	defer p.consoleMu.Unlock()
	return append([]LogEntry{}, p.console...)
}

func (p *Page) record(entry LogEntry) {
	p.consoleMu.Lock()
	defer p.consoleMu.Unlock()
	p.console = append(p.console, entry)
}

// WorkerCount reports the number of live dedicated workers
func (p *Page) WorkerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// Evaluate runs fn in the document realm
func (p *Page) Evaluate(ctx context.Context, fn string, args ...any) ([]byte, error) {
	argsJSON, err := page.MarshalArgs(args...)
	if err != nil {
		return nil, err
	}

	r, err := p.currentRealm()
	if err != nil {
		return nil, err
	}

	type outcome struct {
		raw []byte
		err error
	}
	done := make(chan outcome, 1)
	settle := func(o outcome) {
		select {
		case done <- o:
		default:
		}
	}

	scheduled := r.run(func(vm *goja.Runtime) {
		fnValue, err := vm.RunString("(" + fn + "\n)")
		if err != nil {
			settle(outcome{err: evaluationError(err)})
			return
		}
		if _, ok := goja.AssertFunction(fnValue); !ok {
			settle(outcome{err: &page.EvaluationError{Message: "TypeError: page function is not callable"}})
			return
		}

		ok := func(call goja.FunctionCall) goja.Value {
			v := call.Argument(0)
			if goja.IsUndefined(v) {
				settle(outcome{})
			} else {
				settle(outcome{raw: []byte(v.String())})
			}
			return goja.Undefined()
		}
		fail := func(call goja.FunctionCall) goja.Value {
			settle(outcome{err: &page.EvaluationError{Message: valueMessage(call.Argument(0))}})
			return goja.Undefined()
		}

		invoke := r.hook("invoke")
		if _, err := invoke(goja.Undefined(), fnValue, vm.ToValue(string(argsJSON)), vm.ToValue(ok), vm.ToValue(fail)); err != nil {
			settle(outcome{err: evaluationError(err)})
		}
	})
	if !scheduled {
		return nil, p.realmGone()
	}

	select {
	case o := <-done:
		return o.raw, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done():
		return nil, p.realmGone()
	}
}

// ExposeFunction installs globalThis[name] in the document realm
func (p *Page) ExposeFunction(ctx context.Context, name string, fn page.ExposedFunc) error {
	if p.isClosed() {
		return page.ErrClosed
	}
	if err := p.bindings.Add(name, fn); err != nil {
		return err
	}
	if _, err := p.Evaluate(ctx, page.InstallBindingJS, page.TransportBinding, name); err != nil {
		_ = p.bindings.Remove(name)
		return fmt.Errorf("failed to install %q: %w", name, err)
	}
	return nil
}

// RemoveExposedFunction uninstalls a name added by ExposeFunction
func (p *Page) RemoveExposedFunction(ctx context.Context, name string) error {
	if p.isClosed() {
		return page.ErrClosed
	}
	if err := p.bindings.Remove(name); err != nil {
		return err
	}
	if _, err := p.Evaluate(ctx, page.RemoveBindingJS, name); err != nil {
		return fmt.Errorf("failed to uninstall %q: %w", name, err)
	}
	return nil
}

// Goto replaces the document. Workers of the old document are terminated
// and object URLs are revoked; exposed functions survive.
func (p *Page) Goto(ctx context.Context, rawURL string) error {
	if p.isClosed() {
		return page.ErrClosed
	}

	html, err := p.loadDocument(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", rawURL, err)
	}
	doc, err := ParseDocument(html, rawURL)
	if err != nil {
		return err
	}

	r, err := newRealm("page", p.config, p.logger, p.record)
	if err != nil {
		return fmt.Errorf("failed to create document realm: %w", err)
	}
	if err := r.runSync(ctx, func(vm *goja.Runtime) error {
		return p.setupDocument(r, vm, doc, rawURL)
	}); err != nil {
		r.stop()
		return fmt.Errorf("failed to set up document: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		r.stop()
		return page.ErrClosed
	}
	old, oldWorkers := p.realm, p.workers
	p.realm = r
	p.url = rawURL
	p.document = doc
	p.workers = make(map[string]*workerScope)
	p.mu.Unlock()

	for _, w := range oldWorkers {
		w.terminate()
	}
	if old != nil {
		old.stop()
	}
	p.blobs.clear()

	for _, name := range p.bindings.Names() {
		if _, err := p.Evaluate(ctx, page.InstallBindingJS, page.TransportBinding, name); err != nil {
			return fmt.Errorf("failed to reinstall %q: %w", name, err)
		}
	}

	p.runDocumentScripts(ctx, r, doc)

	p.logger.Debug("Navigated", zap.String("url", rawURL), zap.String("title", doc.Title()))
	return nil
}

// Close terminates workers, stops the document realm and releases the page
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	r, workers := p.realm, p.workers
	p.workers = make(map[string]*workerScope)
	p.mu.Unlock()

	for _, w := range workers {
		w.terminate()
	}
	if r != nil {
		r.stop()
	}
	p.queue.Close()
	p.bindings.Clear()
	p.blobs.clear()
	p.browser.forget(p.id)
	return nil
}

func (p *Page) setupDocument(r *realm, vm *goja.Runtime, doc *Document, documentURL string) error {
	vm.Set(page.TransportBinding, func(call goja.FunctionCall) goja.Value {
		p.queue.PushPayload([]byte(call.Argument(0).String()))
		return goja.Undefined()
	})
	vm.Set("location", map[string]interface{}{"href": documentURL})

	if err := injectDocument(vm, doc); err != nil {
		return err
	}

	origin := originOf(documentURL)
	host := vm.NewObject()
	_ = host.Set("registerBlob", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(p.blobs.register(origin, call.Argument(0).String(), call.Argument(1).String()))
	})
	_ = host.Set("revokeBlob", func(call goja.FunctionCall) goja.Value {
		p.blobs.revoke(call.Argument(0).String())
		return goja.Undefined()
	})
	_ = host.Set("spawn", p.makeSpawnFunc(r, vm))

	return r.installPrelude(vm, pagePreludeJS, host)
}

// makeSpawnFunc backs the Worker constructor
func (p *Page) makeSpawnFunc(r *realm, vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		rawURL := call.Argument(0).String()
		deliver, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			panic(vm.NewTypeError("Failed to construct 'Worker': missing delivery callback"))
		}

		scriptURL, err := p.resolve(rawURL)
		if err != nil {
			throw(vm, "SyntaxError", fmt.Sprintf("Failed to construct 'Worker': The URL '%s' is invalid.", rawURL))
		}

		w := newWorkerScope(p, r, scriptURL, deliver)

		p.mu.Lock()
		if p.closed || p.realm != r {
			p.mu.Unlock()
			throw(vm, "Error", "Failed to construct 'Worker': document is no longer active")
		}
		p.workers[w.id] = w
		p.mu.Unlock()

		go w.start()

		handle := vm.NewObject()
		_ = handle.Set("post", func(call goja.FunctionCall) goja.Value {
			w.post(call.Argument(0).String())
			return goja.Undefined()
		})
		_ = handle.Set("terminate", func(goja.FunctionCall) goja.Value {
			w.terminate()
			return goja.Undefined()
		})
		return handle
	}
}

func (p *Page) forgetWorker(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.workers, id)
}

// resolve resolves ref against the document URL
func (p *Page) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}

	base, err := url.Parse(p.URL())
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return "", fmt.Errorf("cannot resolve %q against %q", ref, p.URL())
	}
	return base.ResolveReference(u).String(), nil
}

// loadScript returns the source behind a worker or document script URL
func (p *Page) loadScript(ctx context.Context, scriptURL string) (string, error) {
	switch {
	case strings.HasPrefix(scriptURL, "blob:"):
		b, ok := p.blobs.lookup(scriptURL)
		if !ok {
			return "", fmt.Errorf("object URL %s is not registered", scriptURL)
		}
		return b.data, nil
	case strings.HasPrefix(scriptURL, "http://"), strings.HasPrefix(scriptURL, "https://"):
		return p.loader.fetch(ctx, scriptURL)
	default:
		return "", fmt.Errorf("unsupported script URL %s", scriptURL)
	}
}

func (p *Page) loadDocument(ctx context.Context, rawURL string) (string, error) {
	switch {
	case rawURL == "about:blank":
		return blankHTML, nil
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return p.loader.fetch(ctx, rawURL)
	default:
		return "", fmt.Errorf("unsupported URL scheme")
	}
}

// runDocumentScripts runs classic scripts in order. Failures are reported
// on the console like a browser would and never abort navigation.
func (p *Page) runDocumentScripts(ctx context.Context, r *realm, doc *Document) {
	for i, script := range doc.Scripts() {
		name := fmt.Sprintf("%s#script%d", doc.url, i)
		src := script.Text
		if script.Src != "" {
			scriptURL, err := p.resolve(script.Src)
			if err == nil {
				name = scriptURL
				src, err = p.loadScript(ctx, scriptURL)
			}
			if err != nil {
				p.reportScriptError(name, scriptError{Message: err.Error()})
				continue
			}
		}

		err := r.runSync(ctx, func(vm *goja.Runtime) error {
			return execScript(vm, name, src)
		})
		if errors.Is(err, errRealmStopped) || ctx.Err() != nil {
			return
		}
		if err != nil {
			p.reportScriptError(name, describe(err))
		}
	}
}

func (p *Page) reportScriptError(name string, desc scriptError) {
	p.logger.Debug("Uncaught error in page script",
		zap.String("script", name),
		zap.String("message", desc.Message),
	)
	p.record(LogEntry{
		Level:   "error",
		Message: "Uncaught " + desc.Message,
		Source:  name,
		Time:    time.Now(),
	})
}

func (p *Page) currentRealm() (*realm, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, page.ErrClosed
	}
	return p.realm, nil
}

func (p *Page) realmGone() error {
	if p.isClosed() {
		return page.ErrClosed
	}
	return errContextDestroyed
}

func (p *Page) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// evaluationError converts a goja failure into the page error type
func evaluationError(err error) error {
	desc := describe(err)
	return &page.EvaluationError{Message: desc.Message, Line: desc.Line, Column: desc.Column}
}
