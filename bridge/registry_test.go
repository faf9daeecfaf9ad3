package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingListener struct {
	calls int
}

func (l *countingListener) HandleEvent(Event) { l.calls++ }

// mapListener is not comparable and cannot be stored
type mapListener map[string]int

func (l mapListener) HandleEvent(Event) {}

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	a := &countingListener{}
	b := &countingListener{}

	assert.True(t, r.Add(EventMessage, a))
	assert.False(t, r.Add(EventMessage, a), "duplicate add")
	assert.True(t, r.Add(EventMessage, b))
	assert.True(t, r.Add(EventError, a))

	listeners := r.Listeners(EventMessage)
	require.Len(t, listeners, 2)
	assert.Same(t, a, listeners[0])
	assert.Same(t, b, listeners[1])
	assert.Equal(t, []string{EventError, EventMessage}, r.Types())

	assert.True(t, r.Remove(EventMessage, a))
	assert.False(t, r.Remove(EventMessage, a), "already removed")
	listeners = r.Listeners(EventMessage)
	require.Len(t, listeners, 1)
	assert.Same(t, b, listeners[0])
	assert.True(t, r.Has(EventError, a), "other types untouched")

	assert.True(t, r.Remove(EventMessage, b))
	assert.Nil(t, r.Listeners(EventMessage))
	assert.Equal(t, []string{EventError}, r.Types(), "empty type is dropped")
}

func TestRegistryRejectsUnusableListeners(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.Add(EventMessage, nil))
	assert.False(t, r.Add(EventMessage, mapListener{}))
	assert.False(t, r.Remove(EventMessage, mapListener{}))
	assert.Zero(t, r.Len(EventMessage))
}

func TestRegistrySnapshotIsStable(t *testing.T) {
	r := NewRegistry()
	a := &countingListener{}
	b := &countingListener{}
	r.Add(EventMessage, a)
	r.Add(EventMessage, b)

	snapshot := r.Listeners(EventMessage)
	r.Remove(EventMessage, a)

	assert.Len(t, snapshot, 2)
	assert.Equal(t, 1, r.Len(EventMessage))
}

func TestListenerFunc(t *testing.T) {
	assert.Nil(t, ListenerFunc(nil))

	var got Event
	fn := func(ev Event) { got = ev }
	first := ListenerFunc(fn)
	second := ListenerFunc(fn)
	assert.NotSame(t, first, second, "each wrapper is its own listener")

	ev := NewEvent("custom")
	first.HandleEvent(ev)
	assert.Same(t, ev, got)

	r := NewRegistry()
	assert.True(t, r.Add("custom", first))
	assert.True(t, r.Add("custom", second))
	assert.True(t, r.Remove("custom", first))
	assert.True(t, r.Has("custom", second))
}

func TestEvents(t *testing.T) {
	t.Run("message", func(t *testing.T) {
		ev := NewMessageEvent(json.RawMessage(`{"n":[1,2]}`))
		assert.Equal(t, EventMessage, ev.Type())

		var v struct {
			N []int `json:"n"`
		}
		require.NoError(t, ev.Decode(&v))
		assert.Equal(t, []int{1, 2}, v.N)
	})

	t.Run("message without data", func(t *testing.T) {
		ev := NewMessageEvent(nil)
		assert.JSONEq(t, "null", string(ev.Data))
	})

	t.Run("prevent default", func(t *testing.T) {
		ev := NewEvent("custom")
		assert.False(t, ev.DefaultPrevented())
		ev.PreventDefault()
		assert.True(t, ev.DefaultPrevented())
	})

	t.Run("error record", func(t *testing.T) {
		ev, err := decodeErrorEvent(json.RawMessage(`{"type":"error","message":"Uncaught Error: boom","filename":"blob:null/1","lineno":3,"colno":7,"error":{}}`))
		require.NoError(t, err)
		assert.Equal(t, EventError, ev.Type())
		assert.Equal(t, "Uncaught Error: boom", ev.Message)
		assert.Equal(t, 3, ev.Lineno)
		assert.Equal(t, 7, ev.Colno)
		assert.JSONEq(t, "{}", string(ev.Error))
		assert.Equal(t, "Uncaught Error: boom (blob:null/1:3:7)", ev.String())
	})

	t.Run("error record without error", func(t *testing.T) {
		ev, err := decodeErrorEvent(json.RawMessage(`{"message":"x"}`))
		require.NoError(t, err)
		assert.JSONEq(t, "null", string(ev.Error))
		assert.Equal(t, "x", ev.String())
	})

	t.Run("malformed error record", func(t *testing.T) {
		_, err := decodeErrorEvent(json.RawMessage(`[`))
		assert.Error(t, err)
	})
}
