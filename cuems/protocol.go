package cuems

import (
	"encoding/json"
	"fmt"

	"github.com/zenibako/cuems-golang/messages"
)

// MessageKind tags the two kinds of traffic carried by a transport
type MessageKind string

const (
	KindStructured MessageKind = "structured"
	KindEvent      MessageKind = "event"
)

// Message is either a Structured control message or an Event.
// Consumers switch on the concrete type.
type Message interface {
	Kind() MessageKind
}

// Structured is a JSON control-channel message. Outbound requests carry
// Action and Value; inbound responses carry Type, Value and, for error
// envelopes, the Action that failed.
type Structured struct {
	Action   string          `json:"action,omitempty"`
	Type     string          `json:"type,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	UnixName string          `json:"unix_name,omitempty"`
}

// Kind implements Message
func (Structured) Kind() MessageKind { return KindStructured }

// IsError reports whether the message is the universal error envelope
func (s Structured) IsError() bool { return s.Type == messages.TypeError }

// DecodeValue unmarshals the message value into v
func (s Structured) DecodeValue(v any) error {
	if len(s.Value) == 0 {
		return fmt.Errorf("message %q has no value", s.Type)
	}
	return json.Unmarshal(s.Value, v)
}

// StringValue returns the value when it is a JSON string
func (s Structured) StringValue() (string, bool) {
	var str string
	if len(s.Value) == 0 || json.Unmarshal(s.Value, &str) != nil {
		return "", false
	}
	return str, true
}

// NewRequest builds an outbound control request. A nil value is omitted.
func NewRequest(action messages.Action, value any) (Structured, error) {
	req := Structured{Action: string(action)}
	if value == nil {
		return req, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Structured{}, fmt.Errorf("failed to encode %s value: %w", action, err)
	}
	req.Value = raw
	return req, nil
}

// Event is one event-channel packet: an address and its typed arguments
type Event struct {
	Address string
	Args    []any
}

// Kind implements Message
func (Event) Kind() MessageKind { return KindEvent }

// Arg returns the i-th argument, or nil when absent
func (e Event) Arg(i int) any {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// String formats the event for logs
func (e Event) String() string {
	return fmt.Sprintf("%s %v", e.Address, e.Args)
}
