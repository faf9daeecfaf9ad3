package sandbox

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
)

var errRealmStopped = errors.New("sandbox realm stopped")

// realm is one JavaScript global scope on its own event loop: the page
// document or a single worker. Every goja call happens on the loop.
type realm struct {
	source    string
	loop      *eventloop.EventLoop
	vm        *goja.Runtime
	config    Config
	logger    *zap.Logger
	onConsole func(LogEntry)

	// Prelude helpers, read and written only on the loop
	hooks map[string]goja.Callable

	stopOnce sync.Once
	stopped  chan struct{}
}

// newRealm starts a loop and installs the baseline globals
func newRealm(source string, config Config, logger *zap.Logger, onConsole func(LogEntry)) (*realm, error) {
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(require.NewRegistry()),
		eventloop.EnableConsole(false),
	)

	r := &realm{
		source:    source,
		loop:      loop,
		config:    config,
		logger:    logger,
		onConsole: onConsole,
		hooks:     make(map[string]goja.Callable),
		stopped:   make(chan struct{}),
	}

	loop.Start()
	if err := r.runSync(context.Background(), r.setupGlobals); err != nil {
		r.stop()
		return nil, err
	}
	return r, nil
}

// run schedules fn on the loop
func (r *realm) run(fn func(*goja.Runtime)) bool {
	select {
	case <-r.stopped:
		return false
	default:
	}
	return r.loop.RunOnLoop(fn)
}

// runSync schedules fn and waits for it. Never call it from the loop.
func (r *realm) runSync(ctx context.Context, fn func(*goja.Runtime) error) error {
	errCh := make(chan error, 1)
	if !r.run(func(vm *goja.Runtime) { errCh <- fn(vm) }) {
		return errRealmStopped
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return errRealmStopped
	}
}

// stop interrupts running script and shuts the loop down without waiting
func (r *realm) stop() {
	r.stopOnce.Do(func() {
		close(r.stopped)
		if r.vm != nil {
			r.vm.Interrupt(errRealmStopped)
		}
		go r.loop.Stop()
	})
}

// stopFromLoop lets the current job finish; used by a worker closing itself
func (r *realm) stopFromLoop() {
	r.stopOnce.Do(func() {
		close(r.stopped)
		r.loop.StopNoWait()
	})
}

func (r *realm) done() <-chan struct{} {
	return r.stopped
}

func (r *realm) hook(name string) goja.Callable {
	return r.hooks[name]
}

// setupGlobals configures global objects and security
func (r *realm) setupGlobals(vm *goja.Runtime) error {
	r.vm = vm
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	// Remove Node-style globals
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	if r.config.EnableConsole {
		console := vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		vm.Set("console", console)
	}

	return nil
}

// makeConsoleFunc creates a console function
func (r *realm) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		entry := LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Source:  r.source,
			Time:    time.Now(),
		}

		switch level {
		case "warn", "error":
			r.logger.Warn("Console output", zap.String("level", level), zap.String("source", r.source), zap.String("message", entry.Message))
		default:
			r.logger.Debug("Console output", zap.String("level", level), zap.String("source", r.source), zap.String("message", entry.Message))
		}

		if r.onConsole != nil {
			r.onConsole(entry)
		}
		return goja.Undefined()
	}
}

// installPrelude runs a prelude function with host bindings and records the
// helpers it returns
func (r *realm) installPrelude(vm *goja.Runtime, prelude string, host *goja.Object) error {
	value, err := vm.RunString(prelude)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return errors.New("prelude is not a function")
	}
	helpers, err := fn(goja.Undefined(), host)
	if err != nil {
		return err
	}

	obj := helpers.ToObject(vm)
	for _, key := range obj.Keys() {
		if hook, ok := goja.AssertFunction(obj.Get(key)); ok {
			r.hooks[key] = hook
		}
	}
	return nil
}

// execScript compiles and runs src under name. Called on the loop.
func execScript(vm *goja.Runtime, name, src string) error {
	program, err := goja.Compile(name, src, false)
	if err != nil {
		return err
	}
	_, err = vm.RunProgram(program)
	return err
}

// throw raises a JavaScript error of the given constructor from a Go callback
func throw(vm *goja.Runtime, ctor, message string) {
	if c, ok := goja.AssertConstructor(vm.Get(ctor)); ok {
		if obj, err := c(nil, vm.ToValue(message)); err == nil {
			panic(obj)
		}
	}
	panic(vm.NewTypeError(message))
}

var syntaxPosition = regexp.MustCompile(`Line (\d+):(\d+) (.+?)(?: \(and \d+ more errors?\))?$`)

// scriptError is a script failure normalised to message and position
type scriptError struct {
	Message string `json:"message"`
	Line    int    `json:"lineno"`
	Column  int    `json:"colno"`
}

// describe normalises a goja compile or runtime error
func describe(err error) scriptError {
	var syntaxErr *goja.CompilerSyntaxError
	var exception *goja.Exception
	var interrupted *goja.InterruptedError

	switch {
	case errors.As(err, &syntaxErr):
		desc := scriptError{Message: "SyntaxError: " + syntaxErr.Message}
		if m := syntaxPosition.FindStringSubmatch(syntaxErr.Message); m != nil {
			desc.Line, _ = strconv.Atoi(m[1])
			desc.Column, _ = strconv.Atoi(m[2])
			desc.Message = "SyntaxError: " + m[3]
		}
		return desc
	case errors.As(err, &exception):
		desc := scriptError{Message: valueMessage(exception.Value())}
		for _, frame := range exception.Stack() {
			if pos := frame.Position(); pos.Line > 0 {
				desc.Line = pos.Line
				desc.Column = pos.Column
				break
			}
		}
		return desc
	case errors.As(err, &interrupted):
		return scriptError{Message: "execution interrupted"}
	default:
		return scriptError{Message: err.Error()}
	}
}

func valueMessage(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	return v.String()
}
