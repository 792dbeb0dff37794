// Package ocppframe parses and builds OCPP 1.6-J JSON array frames without
// binding them to the full typed request/response schema: the gateway's job
// is to forward bytes, not validate them.
package ocppframe

import (
	"encoding/json"
	"fmt"
)

// Type identifies the OCPP-J message kind, matching the first array element.
type Type int

const (
	Call       Type = 2
	CallResult Type = 3
	CallError  Type = 4
)

// Frame is a tagged variant carrying the parsed header fields alongside the
// original bytes, per the byte-preserving forwarding design: callers that
// only need to relay a message never have to re-marshal it.
type Frame struct {
	Type    Type
	ID      string
	Action  string          // only set for Call
	Payload json.RawMessage // the request/response payload; the errorCode element for CallError
	Raw     []byte
}

// Parse decodes raw into a Frame. It never mutates raw; Frame.Raw aliases it.
func Parse(raw []byte) (*Frame, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("ocppframe: not a JSON array: %w", err)
	}
	if len(elems) < 3 {
		return nil, fmt.Errorf("ocppframe: array has %d elements, want >= 3", len(elems))
	}

	var typ int
	if err := json.Unmarshal(elems[0], &typ); err != nil {
		return nil, fmt.Errorf("ocppframe: message type not numeric: %w", err)
	}

	var id string
	if err := json.Unmarshal(elems[1], &id); err != nil {
		return nil, fmt.Errorf("ocppframe: message id not a string: %w", err)
	}

	f := &Frame{Type: Type(typ), ID: id, Raw: raw}

	switch f.Type {
	case Call:
		if len(elems) < 4 {
			return nil, fmt.Errorf("ocppframe: CALL array has %d elements, want 4", len(elems))
		}
		if err := json.Unmarshal(elems[2], &f.Action); err != nil {
			return nil, fmt.Errorf("ocppframe: action not a string: %w", err)
		}
		f.Payload = elems[3]
	case CallResult:
		f.Payload = elems[2]
	case CallError:
		// [4, id, errorCode, errorDescription, errorDetails] - keep the
		// errorCode element as the payload for callers that only care
		// whether an error arrived.
		f.Payload = elems[2]
	default:
		return nil, fmt.Errorf("ocppframe: unknown message type %d", typ)
	}

	return f, nil
}

// BuildCall marshals a [2, id, action, payload] frame.
func BuildCall(id, action string, payload any) ([]byte, error) {
	return json.Marshal([]any{int(Call), id, action, payload})
}
