package bridge

import (
	"context"

	"github.com/GriffinCanCode/AgentOS/browserworker/page"
)

// FromString creates a worker on p from inline script text and waits for it
func FromString(ctx context.Context, p page.Page, script string, opts ...Option) (*Worker, error) {
	return FromSource(ctx, p, StringSource(script), opts...)
}

// FromURL creates a worker on p from a loadable script URL and waits for it
func FromURL(ctx context.Context, p page.Page, url string, opts ...Option) (*Worker, error) {
	return FromSource(ctx, p, URLSource(url), opts...)
}

// FromFile creates a worker on p from a script file and waits for it
func FromFile(ctx context.Context, p page.Page, path string, opts ...Option) (*Worker, error) {
	return FromSource(ctx, p, FileSource(path), opts...)
}

// FromSource resolves src, creates the worker and waits for initialization.
// Nothing is retried. If ctx ends first the half-built worker is terminated
// in the background.
func FromSource(ctx context.Context, p page.Page, src Source, opts ...Option) (*Worker, error) {
	if p == nil {
		return nil, ErrNilPage
	}
	url, err := Resolve(ctx, p, src)
	if err != nil {
		return nil, err
	}

	w, err := New(ctx, p, url, opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Init(ctx); err != nil {
		go func() { _ = w.Terminate(context.WithoutCancel(ctx)) }()
		return nil, err
	}
	return w, nil
}
