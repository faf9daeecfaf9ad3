package page

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallExpression(t *testing.T) {
	tests := []struct {
		name     string
		fn       string
		args     []any
		expected string
	}{
		{
			name:     "no arguments",
			fn:       "() => 1",
			expected: "(() => 1)(...[])",
		},
		{
			name:     "mixed arguments",
			fn:       "(a, b) => a + b",
			args:     []any{"x", 2},
			expected: `((a, b) => a + b)(...["x",2])`,
		},
		{
			name:     "raw json passes through",
			fn:       "(v) => v",
			args:     []any{json.RawMessage(`{"k":[1,2]}`)},
			expected: `((v) => v)(...[{"k":[1,2]}])`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := CallExpression(tt.fn, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, expr)
		})
	}
}

func TestMarshalArgsRejectsUnclonable(t *testing.T) {
	_, err := MarshalArgs(make(chan int))
	assert.Error(t, err)
}

func TestEvaluationError(t *testing.T) {
	err := error(&EvaluationError{Message: "ReferenceError: x is not defined", Line: 3, Column: 7})
	assert.Equal(t, "evaluation failed: ReferenceError: x is not defined (3:7)", err.Error())
	assert.True(t, IsEvaluationError(err))
	assert.True(t, IsEvaluationError(errors.Join(errors.New("outer"), err)))
	assert.False(t, IsEvaluationError(ErrClosed))

	bare := &EvaluationError{Message: "boom"}
	assert.Equal(t, "evaluation failed: boom", bare.Error())
}

func TestDecodeCall(t *testing.T) {
	call, err := DecodeCall([]byte(`{"name":"__b","args":[1,"two",{"three":3}]}`))
	require.NoError(t, err)
	assert.Equal(t, "__b", call.Name)
	require.Len(t, call.Args, 3)
	assert.JSONEq(t, `{"three":3}`, string(call.Args[2]))

	_, err = DecodeCall([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeCall([]byte(`{"args":[]}`))
	assert.Error(t, err)
}

func TestBindings(t *testing.T) {
	b := NewBindings()
	noop := func([]json.RawMessage) {}

	require.NoError(t, b.Add("b", noop))
	require.NoError(t, b.Add("a", noop))
	assert.ErrorIs(t, b.Add("a", noop), ErrBindingExists)
	assert.Error(t, b.Add("c", nil))

	assert.Equal(t, []string{"a", "b"}, b.Names())

	_, ok := b.Lookup("a")
	assert.True(t, ok)

	require.NoError(t, b.Remove("a"))
	assert.ErrorIs(t, b.Remove("a"), ErrBindingNotFound)

	_, ok = b.Lookup("a")
	assert.False(t, ok)

	b.Clear()
	assert.Empty(t, b.Names())
}

func TestCallQueuePreservesOrder(t *testing.T) {
	b := NewBindings()

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})

	require.NoError(t, b.Add("record", func(args []json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(args[0]))
		if len(seen) == 100 {
			close(done)
		}
	}))

	q := NewCallQueue(b, nil)
	defer q.Close()

	for i := 0; i < 100; i++ {
		arg, _ := json.Marshal(i)
		require.True(t, q.Push(Call{Name: "record", Args: []json.RawMessage{arg}}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("calls were not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range seen {
		want, _ := json.Marshal(i)
		assert.Equal(t, string(want), got)
	}
}

func TestCallQueueHandlerMayReenter(t *testing.T) {
	b := NewBindings()
	q := NewCallQueue(b, nil)
	defer q.Close()

	second := make(chan struct{})
	require.NoError(t, b.Add("first", func([]json.RawMessage) {
		q.Push(Call{Name: "second"})
	}))
	require.NoError(t, b.Add("second", func(args []json.RawMessage) {
		assert.NotNil(t, args)
		close(second)
	}))

	require.True(t, q.PushPayload([]byte(`{"name":"first","args":[]}`)))

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("re-entrant call was not delivered")
	}
}

func TestCallQueueSurvivesPanicsAndUnknownNames(t *testing.T) {
	b := NewBindings()
	q := NewCallQueue(b, nil)
	defer q.Close()

	delivered := make(chan struct{})
	require.NoError(t, b.Add("explode", func([]json.RawMessage) { panic("boom") }))
	require.NoError(t, b.Add("ok", func([]json.RawMessage) { close(delivered) }))

	q.Push(Call{Name: "missing"})
	q.Push(Call{Name: "explode"})
	assert.False(t, q.PushPayload([]byte(`garbage`)))
	q.Push(Call{Name: "ok"})

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stopped after a failing handler")
	}
}

func TestCallQueueClose(t *testing.T) {
	q := NewCallQueue(NewBindings(), nil)
	q.Close()
	q.Close()
	assert.False(t, q.Push(Call{Name: "late"}))
}

type stubPage struct {
	Page
	result []byte
	err    error
}

func (s *stubPage) Evaluate(context.Context, string, ...any) ([]byte, error) {
	return s.result, s.err
}

func TestEvaluateInto(t *testing.T) {
	ctx := context.Background()

	var s string
	require.NoError(t, EvaluateInto(ctx, &stubPage{result: []byte(`"blob:x"`)}, &s, "() => 'blob:x'"))
	assert.Equal(t, "blob:x", s)

	assert.ErrorIs(t, EvaluateInto(ctx, &stubPage{}, &s, "() => {}"), ErrUndefined)

	evalErr := &EvaluationError{Message: "boom"}
	err := EvaluateInto(ctx, &stubPage{err: evalErr}, &s, "() => { throw 1 }")
	assert.ErrorIs(t, err, evalErr)

	var n int
	assert.Error(t, EvaluateInto(ctx, &stubPage{result: []byte(`"str"`)}, &n, "() => 'str'"))
}
