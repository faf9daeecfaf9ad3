package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Event types forwarded from the page
const (
	EventMessage = "message"
	EventError   = "error"
)

// Event is the host-side view of a DOM event
type Event interface {
	Type() string
	PreventDefault()
	DefaultPrevented() bool
}

// BaseEvent implements Event and is embedded by the concrete events
type BaseEvent struct {
	EventType string
	prevented bool
}

// NewEvent creates a plain event of the given type
func NewEvent(typ string) *BaseEvent {
	return &BaseEvent{EventType: typ}
}

func (e *BaseEvent) Type() string { return e.EventType }

func (e *BaseEvent) PreventDefault() { e.prevented = true }

func (e *BaseEvent) DefaultPrevented() bool { return e.prevented }

// MessageEvent carries a payload posted by the in-page worker. Data is the
// JSON clone of the value; live references do not survive the boundary.
type MessageEvent struct {
	BaseEvent
	Data json.RawMessage
}

// NewMessageEvent creates a message event around an encoded payload
func NewMessageEvent(data json.RawMessage) *MessageEvent {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return &MessageEvent{BaseEvent: BaseEvent{EventType: EventMessage}, Data: data}
}

// Decode unmarshals Data into v
func (e *MessageEvent) Decode(v any) error {
	if err := sonic.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode message data: %w", err)
	}
	return nil
}

// ErrorEvent describes an uncaught error inside the in-page worker
type ErrorEvent struct {
	BaseEvent
	Message  string          `json:"message"`
	Filename string          `json:"filename"`
	Lineno   int             `json:"lineno"`
	Colno    int             `json:"colno"`
	Error    json.RawMessage `json:"error"`
}

// NewErrorEvent creates an error event
func NewErrorEvent(message, filename string, lineno, colno int) *ErrorEvent {
	return &ErrorEvent{
		BaseEvent: BaseEvent{EventType: EventError},
		Message:   message,
		Filename:  filename,
		Lineno:    lineno,
		Colno:     colno,
		Error:     json.RawMessage("null"),
	}
}

func (e *ErrorEvent) String() string {
	if e.Filename == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s:%d:%d)", e.Message, e.Filename, e.Lineno, e.Colno)
}

// errorRecord is the normalized error the page relays to the error binding
type errorRecord struct {
	Type     string          `json:"type"`
	Message  string          `json:"message"`
	Filename string          `json:"filename"`
	Lineno   int             `json:"lineno"`
	Colno    int             `json:"colno"`
	Error    json.RawMessage `json:"error"`
}

func decodeErrorEvent(raw json.RawMessage) (*ErrorEvent, error) {
	var rec errorRecord
	if err := sonic.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode error record: %w", err)
	}
	ev := NewErrorEvent(rec.Message, rec.Filename, rec.Lineno, rec.Colno)
	if len(rec.Error) > 0 {
		ev.Error = rec.Error
	}
	return ev, nil
}
