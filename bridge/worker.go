package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/browserworker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/browserworker/internal/logging"
	"github.com/GriffinCanCode/AgentOS/browserworker/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/browserworker/page"
	"go.uber.org/zap"
)

// rollbackTimeout bounds binding removal after a failed initialization
const rollbackTimeout = 5 * time.Second

// State is the worker lifecycle state
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MessageHandler is the legacy onmessage slot
type MessageHandler func(*MessageEvent)

// ErrorHandler is the legacy onerror slot
type ErrorHandler func(*ErrorEvent)

// Worker is a host-side handle on a Worker running inside a page.
//
// Events from the page arrive on the page's call queue in the order the
// in-page worker emitted them. Handlers run outside the worker's lock and may
// call back into the worker.
type Worker struct {
	id        id.WorkerID
	scriptURL string
	page      page.Page
	names     names
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	registry  *Registry

	ready   chan struct{}
	initErr error

	terminateOnce sync.Once

	mu            sync.RWMutex
	state         State
	onMessage     MessageHandler
	onError       ErrorHandler
	messageMirror EventListener
	errorMirror   EventListener
}

// New creates a worker for scriptURL on p and starts initializing it in the
// background under ctx. Use Init to wait for it. The worker claims its
// identity on p until Terminate, so every worker must be terminated.
func New(ctx context.Context, p page.Page, scriptURL string, opts ...Option) (*Worker, error) {
	if p == nil {
		return nil, ErrNilPage
	}
	if scriptURL == "" {
		return nil, ErrEmptyScriptURL
	}

	o := buildOptions(opts)
	wid := o.identity
	if wid == "" {
		wid = id.NewWorkerID()
	} else if !wid.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, wid)
	}
	if err := claim(p, wid); err != nil {
		return nil, fmt.Errorf("%w: %s", err, wid)
	}

	base := &logging.Logger{Logger: logging.OrNop(o.logger)}
	w := &Worker{
		id:        wid,
		scriptURL: scriptURL,
		page:      p,
		names:     namesFor(wid),
		logger:    base.Worker(wid.String()),
		metrics:   o.metrics,
		registry:  NewRegistry(),
		ready:     make(chan struct{}),
		state:     StateInitializing,
	}
	w.metrics.WorkerCreated()

	go w.init(ctx)
	return w, nil
}

func (w *Worker) init(ctx context.Context) {
	defer close(w.ready)

	if err := w.wire(ctx); err != nil {
		w.initErr = err
		w.metrics.InitFailed()
		w.logger.Warn("Worker initialization failed", zap.String("script_url", w.scriptURL), zap.Error(err))

		w.mu.Lock()
		w.state = StateTerminated
		w.mu.Unlock()
		release(w.page, w.id)
		return
	}

	w.mu.Lock()
	ready := w.state == StateInitializing
	if ready {
		w.state = StateReady
	}
	w.mu.Unlock()

	if ready {
		w.metrics.WorkerReady()
		w.logger.Debug("Worker ready", zap.String("script_url", w.scriptURL))
	}
}

// wire exposes both bindings and creates the in-page worker. Bindings
// already exposed are removed when a later step fails.
func (w *Worker) wire(ctx context.Context) (err error) {
	var exposed []string
	defer func() {
		if err == nil {
			return
		}
		rollback, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		for _, name := range exposed {
			if rmErr := w.unexpose(rollback, name); rmErr != nil {
				w.logger.Warn("Failed to remove binding", zap.String("binding", name), zap.Error(rmErr))
			}
		}
	}()

	if err = w.expose(ctx, w.names.message, w.onPageMessage); err != nil {
		return fmt.Errorf("failed to expose message binding: %w", err)
	}
	exposed = append(exposed, w.names.message)

	if err = w.expose(ctx, w.names.error, w.onPageError); err != nil {
		return fmt.Errorf("failed to expose error binding: %w", err)
	}
	exposed = append(exposed, w.names.error)

	if _, err = w.evaluate(ctx, "create", createWorkerJS, w.scriptURL, w.names.worker, w.names.message, w.names.error); err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	return nil
}

// Init waits for initialization and returns its outcome. Every call sees
// the same outcome.
func (w *Worker) Init(ctx context.Context) error {
	select {
	case <-w.ready:
		return w.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready is closed once initialization has finished, successfully or not
func (w *Worker) Ready() <-chan struct{} {
	return w.ready
}

// Err reports the initialization outcome, or ErrNotReady while it is still
// running.
func (w *Worker) Err() error {
	select {
	case <-w.ready:
		return w.initErr
	default:
		return ErrNotReady
	}
}

// PostMessage clones payload to JSON and sends it to the in-page worker.
// It does nothing on a terminated worker. A message sent before the in-page
// worker exists is dropped without error.
func (w *Worker) PostMessage(ctx context.Context, payload any) error {
	if w.Terminated() {
		return nil
	}

	raw, err := w.evaluate(ctx, "post", postMessageJS, w.names.worker, payload)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	if string(raw) != "true" {
		w.metrics.MessageDropped("not_ready")
		w.logger.Debug("Message dropped before worker creation")
		return nil
	}
	w.metrics.MessagePosted()
	return nil
}

// Terminate stops the in-page worker and removes its bindings. Only the
// first call does anything; the worker counts as terminated from the moment
// it is made. When ctx ends before initialization settles, Terminate returns
// ctx.Err() and the cleanup finishes in the background.
func (w *Worker) Terminate(ctx context.Context) error {
	first := false
	w.terminateOnce.Do(func() { first = true })
	if !first {
		return nil
	}

	w.mu.Lock()
	wasReady := w.state == StateReady
	w.state = StateTerminated
	w.mu.Unlock()

	select {
	case <-w.ready:
		return w.cleanup(ctx, wasReady)
	case <-ctx.Done():
		go func() {
			<-w.ready
			_ = w.cleanup(context.WithoutCancel(ctx), wasReady)
		}()
		return ctx.Err()
	}
}

func (w *Worker) cleanup(ctx context.Context, wasReady bool) error {
	if w.initErr != nil {
		return nil
	}

	var errs []error
	if _, err := w.evaluate(ctx, "terminate", terminateJS, w.names.worker); err != nil && !errors.Is(err, page.ErrClosed) {
		errs = append(errs, fmt.Errorf("failed to terminate in-page worker: %w", err))
	}
	for _, name := range []string{w.names.message, w.names.error} {
		err := w.unexpose(ctx, name)
		if err != nil && !errors.Is(err, page.ErrBindingNotFound) && !errors.Is(err, page.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", name, err))
		}
	}

	release(w.page, w.id)
	if wasReady {
		w.metrics.WorkerTerminated()
	}

	if err := errors.Join(errs...); err != nil {
		w.logger.Warn("Worker terminated with errors", zap.Error(err))
		return fmt.Errorf("terminate worker %s: %w", w.id, err)
	}
	w.logger.Debug("Worker terminated", zap.Strings("listener_types", w.registry.Types()))
	return nil
}

// AddEventListener registers l for typ. For "message" and "error" it also
// points the legacy slot at l.
func (w *Worker) AddEventListener(typ string, l EventListener) {
	if l == nil || !usable(l) {
		return
	}
	w.registry.Add(typ, l)

	w.mu.Lock()
	defer w.mu.Unlock()
	switch typ {
	case EventMessage:
		w.onMessage = func(ev *MessageEvent) { l.HandleEvent(ev) }
		w.messageMirror = l
	case EventError:
		w.onError = func(ev *ErrorEvent) { l.HandleEvent(ev) }
		w.errorMirror = l
	}
}

// RemoveEventListener unregisters l for typ. For "message" and "error" it
// also clears the legacy slot, even when other listeners remain.
func (w *Worker) RemoveEventListener(typ string, l EventListener) {
	if l == nil || !usable(l) {
		return
	}
	w.registry.Remove(typ, l)

	w.mu.Lock()
	defer w.mu.Unlock()
	switch typ {
	case EventMessage:
		if w.onMessage != nil {
			w.onMessage = nil
			w.messageMirror = nil
		}
	case EventError:
		if w.onError != nil {
			w.onError = nil
			w.errorMirror = nil
		}
	}
}

// DispatchEvent runs the listeners registered for ev's type in insertion
// order and reports whether the default was left unprevented. The legacy
// slots are not invoked.
func (w *Worker) DispatchEvent(ev Event) bool {
	if ev == nil {
		return true
	}
	listeners := w.registry.Listeners(ev.Type())
	if len(listeners) == 0 {
		return true
	}
	for _, l := range listeners {
		l.HandleEvent(ev)
	}
	return !ev.DefaultPrevented()
}

// OnMessage returns the legacy message slot
func (w *Worker) OnMessage() MessageHandler {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.onMessage
}

// SetOnMessage replaces the legacy message slot; nil clears it
func (w *Worker) SetOnMessage(h MessageHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMessage = h
	w.messageMirror = nil
}

// OnError returns the legacy error slot
func (w *Worker) OnError() ErrorHandler {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.onError
}

// SetOnError replaces the legacy error slot; nil clears it
func (w *Worker) SetOnError(h ErrorHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = h
	w.errorMirror = nil
}

// ID returns the worker identity
func (w *Worker) ID() id.WorkerID {
	return w.id
}

// ScriptURL returns the URL the in-page worker was created from
func (w *Worker) ScriptURL() string {
	return w.scriptURL
}

// Page returns the page the worker lives in
func (w *Worker) Page() page.Page {
	return w.page
}

// State returns the lifecycle state
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Terminated reports whether Terminate was called or initialization failed
func (w *Worker) Terminated() bool {
	return w.State() == StateTerminated
}

// ListenerCount counts the listeners registered for typ
func (w *Worker) ListenerCount(typ string) int {
	return w.registry.Len(typ)
}

func (w *Worker) onPageMessage(args []json.RawMessage) {
	if w.Terminated() {
		return
	}
	var data json.RawMessage
	if len(args) > 0 {
		data = args[0]
	}
	ev := NewMessageEvent(data)
	w.metrics.EventForwarded(EventMessage)

	if slot := w.messageSlot(); slot != nil {
		slot(ev)
	}
	w.DispatchEvent(ev)
}

func (w *Worker) onPageError(args []json.RawMessage) {
	if w.Terminated() {
		return
	}
	if len(args) == 0 {
		w.logger.Warn("Error relay called without a record")
		return
	}
	ev, err := decodeErrorEvent(args[0])
	if err != nil {
		w.logger.Warn("Dropping malformed error record", zap.Error(err))
		return
	}
	w.metrics.EventForwarded(EventError)
	w.logger.Debug("Worker error forwarded", zap.String("message", ev.Message))

	if slot := w.errorSlot(); slot != nil {
		slot(ev)
	}
	w.DispatchEvent(ev)
}

// messageSlot returns the legacy slot unless it mirrors a listener the
// registry will already invoke.
func (w *Worker) messageSlot() MessageHandler {
	w.mu.RLock()
	slot, mirror := w.onMessage, w.messageMirror
	w.mu.RUnlock()
	if slot == nil || (mirror != nil && w.registry.Has(EventMessage, mirror)) {
		return nil
	}
	return slot
}

func (w *Worker) errorSlot() ErrorHandler {
	w.mu.RLock()
	slot, mirror := w.onError, w.errorMirror
	w.mu.RUnlock()
	if slot == nil || (mirror != nil && w.registry.Has(EventError, mirror)) {
		return nil
	}
	return slot
}

func (w *Worker) evaluate(ctx context.Context, op, fn string, args ...any) ([]byte, error) {
	done := w.metrics.TimePageCall(op)
	raw, err := w.page.Evaluate(ctx, fn, args...)
	done(err)
	w.checkClosed(err)
	return raw, err
}

func (w *Worker) expose(ctx context.Context, name string, fn page.ExposedFunc) error {
	done := w.metrics.TimePageCall("expose")
	err := w.page.ExposeFunction(ctx, name, fn)
	done(err)
	w.checkClosed(err)
	return err
}

func (w *Worker) unexpose(ctx context.Context, name string) error {
	done := w.metrics.TimePageCall("unexpose")
	err := w.page.RemoveExposedFunction(ctx, name)
	done(err)
	w.checkClosed(err)
	return err
}

// checkClosed drops the identity claim once the page reports it is closed,
// so an abandoned worker does not pin the page in the claim table.
func (w *Worker) checkClosed(err error) {
	if errors.Is(err, page.ErrClosed) {
		release(w.page, w.id)
	}
}
