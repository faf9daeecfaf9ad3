package bridge

import (
	"context"
	"fmt"
	"os"

	"github.com/GriffinCanCode/AgentOS/browserworker/page"
	"github.com/gabriel-vasile/mimetype"
)

// Source is a worker script in one of the supported forms
type Source interface {
	resolve(ctx context.Context, p page.Page) (string, error)
}

// StringSource is inline script text
type StringSource string

// FileSource is a path to a script file on the host
type FileSource string

// URLSource is a URL the page can already load a worker from
type URLSource string

func (s StringSource) resolve(ctx context.Context, p page.Page) (string, error) {
	return ResolveString(ctx, p, string(s))
}

func (s FileSource) resolve(ctx context.Context, p page.Page) (string, error) {
	return ResolveFile(ctx, p, string(s))
}

func (s URLSource) resolve(context.Context, page.Page) (string, error) {
	return ResolveURL(string(s)), nil
}

// Resolve turns src into a script URL valid inside p
func Resolve(ctx context.Context, p page.Page, src Source) (string, error) {
	if src == nil {
		return "", fmt.Errorf("%w: no source", ErrResolve)
	}
	return src.resolve(ctx, p)
}

// ResolveString creates an object URL for script inside p. The URL is only
// valid in the document that created it.
func ResolveString(ctx context.Context, p page.Page, script string) (string, error) {
	var url string
	if err := page.EvaluateInto(ctx, p, &url, createObjectURLJS, script); err != nil {
		return "", fmt.Errorf("%w: %w", ErrResolve, err)
	}
	return url, nil
}

// ResolveFile reads a script from path and resolves it as a string
func ResolveFile(ctx context.Context, p page.Page, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrResolve, err)
	}
	if len(data) > 0 && !isText(mimetype.Detect(data)) {
		return "", fmt.Errorf("%w: %s is not a text file", ErrResolve, path)
	}
	return ResolveString(ctx, p, string(data))
}

// ResolveURL returns url unchanged
func ResolveURL(url string) string {
	return url
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
