package netw

import (
	"encoding/json"
	"fmt"
)

// Envelope is the tag-discriminated outer wire format: every message that
// crosses a real socket is wrapped in one of these so the receiver can
// dispatch on Kind before unmarshaling Data into a concrete type.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps msg under kind and marshals the envelope.
func Encode(kind string, msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("netw: encode %s: %w", kind, err)
	}
	return json.Marshal(Envelope{Kind: kind, Data: data})
}

// Decode unwraps the envelope without touching Data, so a dispatcher can
// switch on Kind before choosing a concrete type to unmarshal into.
func Decode(buf []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return Envelope{}, fmt.Errorf("netw: decode envelope: %w", err)
	}
	return env, nil
}

// DecodeInto unmarshals an already-unwrapped Envelope's Data into v.
func DecodeInto(env Envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("netw: decode %s payload: %w", env.Kind, err)
	}
	return nil
}
