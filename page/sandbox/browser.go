package sandbox

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/AgentOS/browserworker/page"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Browser hands out sandbox pages that share one loader
type Browser struct {
	config Config
	logger *zap.Logger
	loader *loader

	mu     sync.RWMutex
	pages  map[string]*Page
	closed bool
}

var _ page.Browser = (*Browser)(nil)

// Option configures a Browser
type Option func(*Browser)

// WithLogger sets the logger for the browser and its pages
func WithLogger(logger *zap.Logger) Option {
	return func(b *Browser) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBrowser creates a sandbox browser
func NewBrowser(config Config, opts ...Option) *Browser {
	b := &Browser{
		config: config,
		logger: zap.NewNop(),
		pages:  make(map[string]*Page),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("sandbox")
	b.loader = newLoader(config)
	return b
}

// NewPage opens a page on about:blank
func (b *Browser) NewPage(ctx context.Context) (page.Page, error) {
	return b.OpenPage(ctx)
}

// OpenPage is NewPage returning the concrete type
func (b *Browser) OpenPage(ctx context.Context) (*Page, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, page.ErrClosed
	}

	p, err := newPage(ctx, b, uuid.NewString())
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		go p.Close(context.Background())
		return nil, page.ErrClosed
	}
	b.pages[p.id] = p
	return p, nil
}

func (b *Browser) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pages, id)
}

// Close closes every open page
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
		_ = p.Close(context.Background())
	}
	return nil
}

// Stats returns browser statistics
func (b *Browser) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	workers := 0
	for _, p := range b.pages {
		workers += p.WorkerCount()
	}
	return map[string]interface{}{
		"pages":   len(b.pages),
		"workers": workers,
		"closed":  b.closed,
	}
}
