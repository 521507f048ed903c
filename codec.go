package stashbus

import "encoding/json"

// Codec is the Strategy for encoding payloads and listener configurations.
// Byte-oriented store backends use it on the write path; the in-memory store
// keeps payloads as-is.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec is the default JSON implementation. encoding/json sorts map keys,
// which makes it suitable for configuration fingerprints.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func (JSONCodec) Name() string {
	return "json"
}

// Decode extracts a typed value from an event payload. Payloads fetched from
// byte-oriented stores arrive as raw bytes and are unmarshaled with c; an
// in-memory payload of the target type is returned directly, anything else is
// round-tripped through the codec.
func Decode[T any](c Codec, e *Event) (T, error) {
	var v T
	if c == nil {
		c = JSONCodec{}
	}
	if p, ok := e.Payload.(T); ok {
		return p, nil
	}
	switch p := e.Payload.(type) {
	case []byte:
		err := c.Unmarshal(p, &v)
		return v, err
	case json.RawMessage:
		err := c.Unmarshal(p, &v)
		return v, err
	default:
		data, err := c.Marshal(e.Payload)
		if err != nil {
			return v, err
		}
		err = c.Unmarshal(data, &v)
		return v, err
	}
}
