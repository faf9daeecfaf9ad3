package chrome

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/browserworker/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/browserworker/page"
	"github.com/chromedp/cdproto/inspector"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Page is a Chrome tab driven over the DevTools protocol
type Page struct {
	id      string
	ctx     context.Context // chromedp tab context
	cancel  context.CancelFunc
	browser *Browser
	logger  *zap.Logger
	breaker *resilience.Breaker

	bindings *page.Bindings
	queue    *page.CallQueue

	mu      sync.RWMutex
	url     string
	scripts map[string]cdppage.ScriptIdentifier
	closed  bool
}

var _ page.Page = (*Page)(nil)

func newPage(ctx context.Context, b *Browser, tabCtx context.Context, cancel context.CancelFunc, id string) (*Page, error) {
	logger := b.logger.With(zap.String("page_id", id))
	bindings := page.NewBindings()

	p := &Page{
		id:       id,
		ctx:      tabCtx,
		cancel:   cancel,
		browser:  b,
		logger:   logger,
		bindings: bindings,
		queue:    page.NewCallQueue(bindings, logger),
		url:      "about:blank",
		scripts:  make(map[string]cdppage.ScriptIdentifier),
	}
	p.breaker = resilience.New("chrome-page", resilience.Settings{
		Cooldown: 10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsFailure: func(err error) bool {
			return resilience.DefaultIsFailure(err) && !page.IsEvaluationError(err)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Page circuit changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	// The listener runs on the CDP event goroutine and must never call back
	// into chromedp; binding calls are handed to the queue.
	chromedp.ListenTarget(tabCtx, p.onEvent)

	err := p.do(ctx, "attach",
		runtime.Enable(),
		runtime.AddBinding(page.TransportBinding),
	)
	if err != nil {
		p.queue.Close()
		cancel()
		return nil, fmt.Errorf("internal error while adding binding to page: %w", err)
	}
	return p, nil
}

func (p *Page) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventBindingCalled:
		if ev.Name == page.TransportBinding {
			p.queue.PushPayload([]byte(ev.Payload))
		}
	case *cdppage.EventFrameNavigated:
		if ev.Frame != nil && ev.Frame.ParentID == "" {
			p.mu.Lock()
			p.url = ev.Frame.URL
			p.mu.Unlock()
		}
	case *inspector.EventTargetCrashed:
		p.logger.Error("Page target crashed")
	case *inspector.EventDetached:
		p.logger.Warn("Page target detached", zap.String("reason", ev.Reason.String()))
	}
}

// ID returns the page identifier
func (p *Page) ID() string {
	return p.id
}

// URL reports the current main frame URL
func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

// Evaluate runs fn in the main frame and awaits its result
func (p *Page) Evaluate(ctx context.Context, fn string, args ...any) ([]byte, error) {
	expr, err := page.CallExpression(fn, args...)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = p.do(ctx, "evaluate", chromedp.Evaluate(expr, &raw, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// ExposeFunction installs globalThis[name] now and on every new document
func (p *Page) ExposeFunction(ctx context.Context, name string, fn page.ExposedFunc) error {
	if p.isClosed() {
		return page.ErrClosed
	}
	if err := p.bindings.Add(name, fn); err != nil {
		return err
	}

	script, err := page.CallExpression(page.InstallBindingJS, page.TransportBinding, name)
	if err != nil {
		_ = p.bindings.Remove(name)
		return err
	}

	var scriptID cdppage.ScriptIdentifier
	err = p.do(ctx, "expose", chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		scriptID, err = cdppage.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		if err != nil {
			return err
		}
		return evaluate(ctx, script)
	}))
	if err != nil {
		_ = p.bindings.Remove(name)
		return fmt.Errorf("failed to install %q: %w", name, err)
	}

	p.mu.Lock()
	p.scripts[name] = scriptID
	p.mu.Unlock()
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

	p.mu.Lock()
	scriptID, ok := p.scripts[name]
	delete(p.scripts, name)
	p.mu.Unlock()

	script, err := page.CallExpression(page.RemoveBindingJS, name)
	if err != nil {
		return err
	}

	err = p.do(ctx, "unexpose", chromedp.ActionFunc(func(ctx context.Context) error {
		if ok {
			if err := cdppage.RemoveScriptToEvaluateOnNewDocument(scriptID).Do(ctx); err != nil {
				return err
			}
		}
		return evaluate(ctx, script)
	}))
	if err != nil {
		return fmt.Errorf("failed to uninstall %q: %w", name, err)
	}
	return nil
}

// Goto navigates the main frame and waits for the load event
func (p *Page) Goto(ctx context.Context, url string) error {
	var location string
	if err := p.do(ctx, "goto", chromedp.Navigate(url), chromedp.Location(&location)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	p.mu.Lock()
	p.url = location
	p.mu.Unlock()
	return nil
}

// Close closes the tab
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.queue.Close()
	p.bindings.Clear()
	p.browser.forget(p.id)

	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}

// BreakerState reports the page circuit state
func (p *Page) BreakerState() resilience.State {
	return p.breaker.State()
}

// do runs actions on the tab under the caller's context and the page
// circuit breaker
func (p *Page) do(ctx context.Context, op string, actions ...chromedp.Action) error {
	if p.isClosed() {
		return page.ErrClosed
	}

	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := p.breaker.Do(op, func() error {
		return translate(chromedp.Run(runCtx, actions...))
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && p.ctx.Err() != nil {
		return page.ErrClosed
	}
	return err
}

func (p *Page) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// evaluate runs a statement expression inside an action
func evaluate(ctx context.Context, expr string) error {
	_, exception, err := runtime.Evaluate(expr).Do(ctx)
	if err != nil {
		return err
	}
	if exception != nil {
		return exception
	}
	return nil
}

// translate maps a CDP exception onto the page error type
func translate(err error) error {
	var exception *runtime.ExceptionDetails
	if !errors.As(err, &exception) {
		return err
	}

	message := exception.Text
	if exception.Exception != nil && exception.Exception.Description != "" {
		message, _, _ = strings.Cut(exception.Exception.Description, "\n")
	}
	return &page.EvaluationError{
		Message: message,
		Line:    int(exception.LineNumber) + 1,
		Column:  int(exception.ColumnNumber) + 1,
	}
}
