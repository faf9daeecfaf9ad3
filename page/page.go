package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	// ErrClosed is returned by calls on a closed page or browser.
	ErrClosed = errors.New("page is closed")
	// ErrBindingExists is returned when a name is exposed twice.
	ErrBindingExists = errors.New("binding already exposed")
	// ErrBindingNotFound is returned when removing a name that was never exposed.
	ErrBindingNotFound = errors.New("binding not exposed")
	// ErrUndefined is returned when a typed result was expected but the page
	// function returned undefined.
	ErrUndefined = errors.New("page function returned undefined")
)

// ExposedFunc is a host function callable from page context. Arguments
// arrive JSON-cloned, one raw value per positional argument. Calls from one
// page are delivered in order on that page's call queue, never on the
// browser event goroutine.
type ExposedFunc func(args []json.RawMessage)

// Page is the capability the bridge needs from a browser page.
type Page interface {
	// Evaluate runs the JavaScript function source fn in page context with
	// JSON-cloned args and awaits it if it returns a promise. The result is
	// the JSON encoding of the returned value, or nil for undefined. A thrown
	// exception or rejected promise is reported as *EvaluationError.
	Evaluate(ctx context.Context, fn string, args ...any) ([]byte, error)

	// ExposeFunction installs globalThis[name] in page context; calling it
	// invokes fn on the host.
	ExposeFunction(ctx context.Context, name string, fn ExposedFunc) error

	// RemoveExposedFunction uninstalls a name added by ExposeFunction.
	RemoveExposedFunction(ctx context.Context, name string) error

	// Goto navigates the page and waits for the document to load.
	Goto(ctx context.Context, url string) error

	// URL reports the current document URL.
	URL() string

	// Close releases the page. Later calls fail with ErrClosed.
	Close(ctx context.Context) error
}

// Browser hands out pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// EvaluationError is a JavaScript exception raised by a page function.
type EvaluationError struct {
	Message string
	Line    int
	Column  int
}

func (e *EvaluationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("evaluation failed: %s (%d:%d)", e.Message, e.Line, e.Column)
	}
	return "evaluation failed: " + e.Message
}

// IsEvaluationError reports whether err carries an in-page exception.
func IsEvaluationError(err error) bool {
	var evalErr *EvaluationError
	return errors.As(err, &evalErr)
}

// MarshalArgs JSON-encodes positional arguments as an array.
func MarshalArgs(args ...any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	data, err := sonic.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to clone arguments: %w", err)
	}
	return data, nil
}

// CallExpression renders fn applied to args as a single expression.
func CallExpression(fn string, args ...any) (string, error) {
	data, err := MarshalArgs(args...)
	if err != nil {
		return "", err
	}
	return "(" + fn + ")(..." + string(data) + ")", nil
}

// EvaluateInto evaluates fn and decodes its result into v.
func EvaluateInto(ctx context.Context, p Page, v any, fn string, args ...any) error {
	raw, err := p.Evaluate(ctx, fn, args...)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return ErrUndefined
	}
	if err := sonic.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode page result: %w", err)
	}
	return nil
}
