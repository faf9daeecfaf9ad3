package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errorRecord is the ErrorEvent init a worker reports to its owner
type errorRecord struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Lineno   int    `json:"lineno"`
	Colno    int    `json:"colno"`
}

// workerScope is a dedicated worker spawned by a page realm. Messages and
// errors cross between the two realms as JSON.
type workerScope struct {
	id      string
	url     string
	page    *Page
	parent  *realm
	deliver goja.Callable // Parent loop only
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	realm      *realm
	started    bool
	pending    []string
	closing    bool
	terminated bool
}

func newWorkerScope(p *Page, parent *realm, scriptURL string, deliver goja.Callable) *workerScope {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &workerScope{
		id:      id,
		url:     scriptURL,
		page:    p,
		parent:  parent,
		deliver: deliver,
		logger:  p.logger.With(zap.String("dedicated_worker", id), zap.String("script", scriptURL)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// start loads the script, builds the worker realm and runs the script.
// Messages posted before the script ran are delivered right after it.
func (w *workerScope) start() {
	src, err := w.page.loadScript(w.ctx, w.url)
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.Debug("Failed to load worker script", zap.Error(err))
			w.toParent("error", errorRecord{
				Message:  fmt.Sprintf("Failed to load worker script %s: %v", w.url, err),
				Filename: w.url,
			})
		}
		return
	}

	r, err := newRealm(w.url, w.page.config, w.logger, w.page.record)
	if err != nil {
		w.logger.Error("Failed to create worker realm", zap.Error(err))
		return
	}

	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		r.stop()
		return
	}
	w.realm = r
	w.mu.Unlock()

	r.run(func(vm *goja.Runtime) {
		if err := r.installPrelude(vm, workerPreludeJS, w.host(r, vm)); err != nil {
			w.logger.Error("Failed to install worker scope", zap.Error(err))
			return
		}

		if err := execScript(vm, w.url, src); err != nil {
			w.uncaught(r, vm, err)
		}

		w.mu.Lock()
		w.started = true
		pending := w.pending
		w.pending = nil
		w.mu.Unlock()

		for _, payload := range pending {
			w.dispatch(r, vm, payload)
		}
	})
}

// host builds the bindings behind the worker global scope
func (w *workerScope) host(r *realm, vm *goja.Runtime) *goja.Object {
	host := vm.NewObject()
	_ = host.Set("href", w.url)
	_ = host.Set("post", func(call goja.FunctionCall) goja.Value {
		w.mu.Lock()
		closing := w.closing
		w.mu.Unlock()
		if !closing {
			w.toParentRaw("message", call.Argument(0).String())
		}
		return goja.Undefined()
	})
	_ = host.Set("close", func(goja.FunctionCall) goja.Value {
		w.mu.Lock()
		w.closing = true
		w.pending = nil
		w.mu.Unlock()
		r.stopFromLoop()
		return goja.Undefined()
	})
	_ = host.Set("importScript", func(call goja.FunctionCall) goja.Value {
		ref := call.Argument(0).String()
		scriptURL, err := w.resolve(ref)
		if err != nil {
			throw(vm, "SyntaxError", fmt.Sprintf("Failed to execute 'importScripts' on 'WorkerGlobalScope': The URL '%s' is invalid.", ref))
		}
		src, err := w.page.loadScript(w.ctx, scriptURL)
		if err != nil {
			throw(vm, "Error", fmt.Sprintf("Failed to execute 'importScripts' on 'WorkerGlobalScope': The script at '%s' failed to load.", scriptURL))
		}
		if err := execScript(vm, scriptURL, src); err != nil {
			if ex, ok := err.(*goja.Exception); ok {
				panic(ex.Value())
			}
			throw(vm, "SyntaxError", describe(err).Message)
		}
		return goja.Undefined()
	})
	return host
}

// post queues a message from the owner
func (w *workerScope) post(payload string) {
	w.mu.Lock()
	if w.terminated || w.closing {
		w.mu.Unlock()
		return
	}
	if !w.started {
		w.pending = append(w.pending, payload)
		w.mu.Unlock()
		return
	}
	r := w.realm
	w.mu.Unlock()

	r.run(func(vm *goja.Runtime) {
		w.dispatch(r, vm, payload)
	})
}

// dispatch fires a message event in the worker scope. Called on its loop.
func (w *workerScope) dispatch(r *realm, vm *goja.Runtime, payload string) {
	if _, err := r.hook("deliver")(goja.Undefined(), vm.ToValue(payload)); err != nil {
		w.uncaught(r, vm, err)
	}
}

// uncaught reports an exception escaping worker script. The worker scope's
// own error handlers run first and may cancel forwarding.
func (w *workerScope) uncaught(r *realm, vm *goja.Runtime, err error) {
	desc := describe(err)
	record := errorRecord{
		Message:  "Uncaught " + desc.Message,
		Filename: w.url,
		Lineno:   desc.Line,
		Colno:    desc.Column,
	}
	w.logger.Debug("Uncaught error in worker", zap.String("message", record.Message))

	if report := r.hook("report"); report != nil {
		encoded, _ := sonic.MarshalString(record)
		if result, err := report(goja.Undefined(), vm.ToValue(encoded)); err == nil && !result.ToBoolean() {
			return
		}
	}
	w.toParent("error", record)
}

func (w *workerScope) toParent(kind string, record errorRecord) {
	encoded, err := sonic.MarshalString(record)
	if err != nil {
		w.logger.Error("Failed to encode error record", zap.Error(err))
		return
	}
	w.toParentRaw(kind, encoded)
}

// toParentRaw fires an event on the owning Worker object
func (w *workerScope) toParentRaw(kind, payload string) {
	if w.isTerminated() {
		return
	}
	w.parent.run(func(vm *goja.Runtime) {
		if w.isTerminated() {
			return
		}
		if _, err := w.deliver(goja.Undefined(), vm.ToValue(kind), vm.ToValue(payload)); err != nil {
			w.page.reportScriptError("page", describe(err))
		}
	})
}

// terminate stops the worker immediately. Queued and in-flight events are
// dropped.
func (w *workerScope) terminate() {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		return
	}
	w.terminated = true
	w.pending = nil
	r := w.realm
	w.mu.Unlock()

	w.cancel()
	if r != nil {
		r.stop()
	}
	w.page.forgetWorker(w.id)
	w.logger.Debug("Dedicated worker terminated")
}

func (w *workerScope) isTerminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}

func (w *workerScope) resolve(ref string) (string, error) {
	return w.page.resolve(ref)
}
