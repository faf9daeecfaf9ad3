package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/browserworker/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/browserworker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/browserworker/internal/logging"
	"github.com/GriffinCanCode/AgentOS/browserworker/page"
	"github.com/GriffinCanCode/AgentOS/browserworker/page/chrome"
	"github.com/GriffinCanCode/AgentOS/browserworker/page/sandbox"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Launcher owns a browser and hands out workers that each own a page
type Launcher struct {
	browser page.Browser
	logger  *zap.Logger
	opts    []Option
}

// NewLauncher wraps an existing browser. opts apply to every worker created
// through the launcher.
func NewLauncher(browser page.Browser, opts ...Option) *Launcher {
	o := buildOptions(opts)
	return &Launcher{
		browser: browser,
		logger:  logging.OrNop(o.logger).Named("launcher"),
		opts:    opts,
	}
}

// LaunchFromEnv starts the backend described by environment variables
func LaunchFromEnv(ctx context.Context) (*Launcher, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return Launch(ctx, cfg)
}

// LaunchFromFile starts the backend described by a YAML, TOML or JSON file
func LaunchFromFile(ctx context.Context, path string) (*Launcher, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Launch(ctx, cfg)
}

// Launch starts the configured backend with logging and metrics set up
// from cfg.
func Launch(ctx context.Context, cfg *config.Config) (*Launcher, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	opts := []Option{WithLogger(logger.Logger)}
	if cfg.Metrics.Enabled {
		opts = append(opts, WithMetrics(monitoring.NewMetrics(prometheus.DefaultRegisterer, cfg.Metrics.Namespace)))
	}

	var browser page.Browser
	switch cfg.Browser.Backend {
	case config.BackendChrome:
		browser, err = chrome.Launch(ctx, cfg.Browser, chrome.WithLogger(logger.Page(config.BackendChrome)))
		if err != nil {
			return nil, err
		}
	case config.BackendSandbox:
		browser = sandbox.NewBrowser(sandbox.ConfigFrom(cfg.Sandbox), sandbox.WithLogger(logger.Page(config.BackendSandbox)))
	default:
		return nil, fmt.Errorf("unknown browser backend %q", cfg.Browser.Backend)
	}

	logger.Info("Browser launched", zap.String("backend", cfg.Browser.Backend))
	return NewLauncher(browser, opts...), nil
}

// Browser returns the launcher's browser
func (l *Launcher) Browser() page.Browser {
	return l.browser
}

// CreateWorkerFromString starts a worker from script text on a new page
func (l *Launcher) CreateWorkerFromString(ctx context.Context, script string, opts ...Option) (*ManagedWorker, error) {
	return l.CreateWorker(ctx, StringSource(script), opts...)
}

// CreateWorkerFromURL starts a worker from a script URL on a new page
func (l *Launcher) CreateWorkerFromURL(ctx context.Context, url string, opts ...Option) (*ManagedWorker, error) {
	return l.CreateWorker(ctx, URLSource(url), opts...)
}

// CreateWorkerFromFile starts a worker from a script file on a new page
func (l *Launcher) CreateWorkerFromFile(ctx context.Context, path string, opts ...Option) (*ManagedWorker, error) {
	return l.CreateWorker(ctx, FileSource(path), opts...)
}

// CreateWorker opens a page on about:blank and starts a worker from src in
// it. The page is closed again if the worker cannot be created.
func (l *Launcher) CreateWorker(ctx context.Context, src Source, opts ...Option) (*ManagedWorker, error) {
	p, err := l.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if err := p.Goto(ctx, "about:blank"); err != nil {
		l.closePage(p)
		return nil, err
	}

	w, err := FromSource(ctx, p, src, append(append([]Option{}, l.opts...), opts...)...)
	if err != nil {
		l.closePage(p)
		return nil, err
	}
	return &ManagedWorker{Worker: w}, nil
}

// Close shuts the browser down
func (l *Launcher) Close() error {
	return l.browser.Close()
}

func (l *Launcher) closePage(p page.Page) {
	if err := p.Close(context.Background()); err != nil {
		l.logger.Warn("Failed to close page", zap.Error(err))
	}
}

// ManagedWorker is a Worker that owns its page
type ManagedWorker struct {
	*Worker
	closeOnce sync.Once
}

// Terminate terminates the worker and then closes its page. Later calls do
// nothing.
func (m *ManagedWorker) Terminate(ctx context.Context) error {
	err := m.Worker.Terminate(ctx)
	var closeErr error
	m.closeOnce.Do(func() {
		closeErr = m.page.Close(ctx)
	})
	return errors.Join(err, closeErr)
}
