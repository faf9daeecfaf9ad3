package bridge

import (
	"reflect"
	"sort"
	"sync"
)

// EventListener is the object form of a listener
type EventListener interface {
	HandleEvent(Event)
}

type listenerFunc struct {
	fn func(Event)
}

func (l *listenerFunc) HandleEvent(ev Event) { l.fn(ev) }

// ListenerFunc wraps a plain callback. Keep the returned value to remove the
// listener later; two wrappers of the same func are distinct listeners.
func ListenerFunc(fn func(Event)) EventListener {
	if fn == nil {
		return nil
	}
	return &listenerFunc{fn: fn}
}

// Registry maps event types to ordered listener sets
type Registry struct {
	mu        sync.RWMutex
	listeners map[string][]EventListener
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[string][]EventListener)}
}

// Add registers l for typ. It reports false for a nil or non-comparable
// listener and for one already registered.
func (r *Registry) Add(typ string, l EventListener) bool {
	if !usable(l) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.listeners[typ] {
		if existing == l {
			return false
		}
	}
	r.listeners[typ] = append(r.listeners[typ], l)
	return true
}

// Remove unregisters l for typ and drops the type once it has no listeners
func (r *Registry) Remove(typ string, l EventListener) bool {
	if !usable(l) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.listeners[typ]
	for i, existing := range set {
		if existing != l {
			continue
		}
		set = append(set[:i:i], set[i+1:]...)
		if len(set) == 0 {
			delete(r.listeners, typ)
		} else {
			r.listeners[typ] = set
		}
		return true
	}
	return false
}

// Listeners returns a snapshot of the listeners for typ in insertion order
func (r *Registry) Listeners(typ string) []EventListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.listeners[typ]
	if len(set) == 0 {
		return nil
	}
	return append([]EventListener(nil), set...)
}

// Has reports whether l is registered for typ
func (r *Registry) Has(typ string, l EventListener) bool {
	if !usable(l) {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, existing := range r.listeners[typ] {
		if existing == l {
			return true
		}
	}
	return false
}

// Len counts the listeners for typ
func (r *Registry) Len(typ string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[typ])
}

// Types lists the event types with at least one listener
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.listeners))
	for typ := range r.listeners {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// usable rejects nil listeners and dynamic types that would panic on ==
func usable(l EventListener) bool {
	if l == nil {
		return false
	}
	return reflect.TypeOf(l).Comparable()
}
