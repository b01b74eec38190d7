package cuems

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hypebeast/go-osc/osc"
)

var (
	// ErrMalformedPacket is returned when an event-channel frame cannot be decoded
	ErrMalformedPacket = errors.New("malformed event packet")
	// ErrInvalidAddress is returned when an event address is not an OSC path
	ErrInvalidAddress = errors.New("event address must start with '/'")
	// ErrUnsupportedArgument is returned for argument types the event channel cannot carry
	ErrUnsupportedArgument = errors.New("unsupported event argument type")
)

// Pack encodes an address and its arguments into one event-channel packet.
// Numbers travel as 32-bit floats unless they are integers, which travel as
// 32-bit ints; strings travel as OSC strings.
func Pack(address string, args ...any) ([]byte, error) {
	if !strings.HasPrefix(address, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	msg := osc.NewMessage(address)
	for i, arg := range args {
		value, err := normalizeArg(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		msg.Append(value)
	}

	data, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", address, err)
	}
	return data, nil
}

// Unpack decodes one event-channel packet. It never panics: any decoder
// failure is reported as ErrMalformedPacket so a single bad frame cannot
// take the connection down.
func Unpack(data []byte) (ev Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev = Event{}
			err = fmt.Errorf("%w: %v", ErrMalformedPacket, r)
		}
	}()

	if len(data) == 0 || data[0] != '/' {
		return Event{}, fmt.Errorf("%w: missing address", ErrMalformedPacket)
	}

	packet, err := osc.ParsePacket(string(data))
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	msg, ok := packet.(*osc.Message)
	if !ok {
		return Event{}, fmt.Errorf("%w: bundles are not part of the event channel", ErrMalformedPacket)
	}

	return Event{Address: msg.Address, Args: msg.Arguments}, nil
}

func normalizeArg(arg any) (any, error) {
	switch v := arg.(type) {
	case float32:
		return v, nil
	case float64:
		return float32(v), nil
	case int:
		return toInt32(int64(v))
	case int32:
		return v, nil
	case int64:
		return toInt32(v)
	case string:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedArgument, arg)
	}
}

// toInt32 narrows v to the 32-bit integer OSC carries
func toInt32(v int64) (any, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return nil, fmt.Errorf("%w: integer %d overflows int32", ErrUnsupportedArgument, v)
	}
	return int32(v), nil
}

// argString renders an event argument as a string, the way status fields
// compare literals such as "yes".
func argString(arg any) string {
	switch v := arg.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// argNumber converts an event argument to a float64
func argNumber(arg any) (float64, bool) {
	switch v := arg.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
