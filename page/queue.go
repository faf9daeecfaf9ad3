package page

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// CallQueue delivers exposed-function calls for one page in arrival order
// on a dedicated goroutine. Producers are the browser event goroutine or a
// JavaScript loop, neither of which may block on host handlers that call
// back into the page.
type CallQueue struct {
	bindings *Bindings
	logger   *zap.Logger

	mu      sync.Mutex
	pending []Call
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewCallQueue starts a queue dispatching into bindings.
func NewCallQueue(bindings *Bindings, logger *zap.Logger) *CallQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &CallQueue{
		bindings: bindings,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

// Push enqueues a call. It never blocks and reports false once the queue
// is closed.
func (q *CallQueue) Push(call Call) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, call)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// PushPayload decodes a transport payload and enqueues it.
func (q *CallQueue) PushPayload(payload []byte) bool {
	call, err := DecodeCall(payload)
	if err != nil {
		q.logger.Warn("Dropping binding call", zap.Error(err))
		return false
	}
	return q.Push(call)
}

// Close stops the queue. Calls still pending are dropped.
func (q *CallQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.pending = nil
	q.mu.Unlock()

	close(q.done)
}

func (q *CallQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}

		for {
			call, ok := q.next()
			if !ok {
				break
			}
			q.dispatch(call)
		}
	}
}

func (q *CallQueue) next() (Call, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return Call{}, false
	}
	call := q.pending[0]
	q.pending[0] = Call{}
	q.pending = q.pending[1:]
	return call, true
}

func (q *CallQueue) dispatch(call Call) {
	fn, ok := q.bindings.Lookup(call.Name)
	if !ok {
		q.logger.Debug("Binding call for unknown name", zap.String("name", call.Name))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Binding handler panicked",
				zap.String("name", call.Name),
				zap.Any("panic", r),
			)
		}
	}()

	args := call.Args
	if args == nil {
		args = []json.RawMessage{}
	}
	fn(args)
}
