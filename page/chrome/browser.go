package chrome

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/browserworker/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/browserworker/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Browser owns a Chrome process, or a connection to a remote one
type Browser struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger

	mu     sync.Mutex
	pages  map[string]*Page
	closed bool
}

var _ page.Browser = (*Browser)(nil)

// Option configures Launch
type Option func(*Browser)

// WithLogger sets the logger for the browser and its pages
func WithLogger(logger *zap.Logger) Option {
	return func(b *Browser) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Launch starts Chrome, or attaches to cfg.RemoteURL when set, and waits
// for the browser to come up within cfg.StartTimeout.
func Launch(ctx context.Context, cfg config.BrowserConfig, opts ...Option) (*Browser, error) {
	b := &Browser{
		logger: zap.NewNop(),
		pages:  make(map[string]*Page),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("chrome")

	if cfg.RemoteURL != "" {
		b.logger.Info("Connecting to Chrome", zap.String("url", cfg.RemoteURL))
		b.allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		b.logger.Info("Launching Chrome",
			zap.Bool("headless", cfg.Headless),
			zap.String("exec_path", cfg.ExecPath),
		)
		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	}

	sugar := b.logger.Sugar()
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)

	timeout := cfg.StartTimeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	startCtx, startDone := context.WithTimeout(ctx, timeout)
	defer startDone()

	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(b.browserCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			b.shutdown()
			return nil, fmt.Errorf("failed to start chrome: %w", err)
		}
		return b, nil
	case <-startCtx.Done():
		b.shutdown()
		return nil, fmt.Errorf("failed to start chrome: timed out after %s", timeout)
	}
}

// allocatorOptions assembles the Chrome flags for local execution
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, f := range cfg.Flags {
		f = strings.TrimLeft(strings.TrimSpace(f), "-")
		if f == "" {
			continue
		}
		if k, v, ok := strings.Cut(f, "="); ok {
			opts = append(opts, chromedp.Flag(k, v))
		} else {
			opts = append(opts, chromedp.Flag(f, true))
		}
	}
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// NewPage opens a new tab on about:blank
func (b *Browser) NewPage(ctx context.Context) (page.Page, error) {
	return b.OpenPage(ctx)
}

// OpenPage is NewPage returning the concrete type
func (b *Browser) OpenPage(ctx context.Context) (*Page, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, page.ErrClosed
	}
	b.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	p, err := newPage(ctx, b, tabCtx, cancel, uuid.NewString())
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[p.id] = p
	return p, nil
}

func (b *Browser) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pages, id)
}

// Close closes every tab and shuts Chrome down
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pages := make([]*Page, 0, len(b.pages))
	for _, p := range b.pages {
		pages = append(pages, p)
	}
	b.mu.Unlock()

	for _, p := range pages {
		if err := p.Close(context.Background()); err != nil {
			b.logger.Warn("Failed to close page", zap.String("page_id", p.id), zap.Error(err))
		}
	}
	return b.shutdown()
}

func (b *Browser) shutdown() error {
	err := chromedp.Cancel(b.browserCtx)
	b.browserCancel()
	b.allocCancel()
	if err != nil && err != context.Canceled {
		return fmt.Errorf("failed to stop chrome: %w", err)
	}
	return nil
}
