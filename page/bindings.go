package page

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
)

// TransportBinding is the single raw binding a page adapter installs. Every
// exposed name is a thin page-side wrapper that serialises its call and
// sends it through this transport.
const TransportBinding = "__browserWorkerTransport"

// InstallBindingJS installs globalThis[name] as a wrapper over the transport.
const InstallBindingJS = `(transport, name) => {
	const send = globalThis[transport];
	globalThis[name] = (...args) => {
		send(JSON.stringify({ name, args }));
		return Promise.resolve();
	};
}`

// RemoveBindingJS uninstalls globalThis[name].
const RemoveBindingJS = `(name) => { delete globalThis[name]; }`

// Call is one decoded invocation of an exposed name.
type Call struct {
	Name string            `json:"name"`
	Args []json.RawMessage `json:"args"`
}

// DecodeCall parses a transport payload.
func DecodeCall(payload []byte) (Call, error) {
	var call Call
	if err := sonic.Unmarshal(payload, &call); err != nil {
		return Call{}, fmt.Errorf("malformed binding payload: %w", err)
	}
	if call.Name == "" {
		return Call{}, fmt.Errorf("malformed binding payload: missing name")
	}
	return call, nil
}

// Bindings maps exposed names to host functions for one page.
type Bindings struct {
	mu  sync.RWMutex
	fns map[string]ExposedFunc
}

// NewBindings creates an empty registry.
func NewBindings() *Bindings {
	return &Bindings{fns: make(map[string]ExposedFunc)}
}

// Add registers fn under name.
func (b *Bindings) Add(name string, fn ExposedFunc) error {
	if fn == nil {
		return fmt.Errorf("expose %q: nil function", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.fns[name]; exists {
		return fmt.Errorf("expose %q: %w", name, ErrBindingExists)
	}
	b.fns[name] = fn
	return nil
}

// Remove drops name.
func (b *Bindings) Remove(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.fns[name]; !exists {
		return fmt.Errorf("remove %q: %w", name, ErrBindingNotFound)
	}
	delete(b.fns, name)
	return nil
}

// Lookup returns the function registered under name.
func (b *Bindings) Lookup(name string) (ExposedFunc, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	fn, ok := b.fns[name]
	return fn, ok
}

// Names returns the registered names, sorted.
func (b *Bindings) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.fns))
	for name := range b.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear drops every registration.
func (b *Bindings) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fns = make(map[string]ExposedFunc)
}
