// Package serialize provides the value-serialization plug-point the engine
// is built against: serialize renders a logical string value to storage
// bytes, deserialize recovers it, and clone returns an independent copy so
// callers can hand each open engine its own serializer instance.
package serialize

import (
	"encoding/json"
	"fmt"
)

// Serializer mirrors engine.Serializer; kept as a standalone interface so
// package serialize has no dependency on package engine.
type Serializer interface {
	Serialize(value string) ([]byte, error)
	Deserialize(data []byte) (string, error)
	Clone() Serializer
}

// ErrInvalidJSON is returned by the json variant when a value fails JSON
// validation.
var ErrInvalidJSON = fmt.Errorf("serialize: invalid json")

// Plain is the identity serializer: values pass through as their raw UTF-8
// bytes, unchanged.
type Plain struct{}

// NewPlain returns a Plain serializer.
func NewPlain() Plain { return Plain{} }

// Serialize returns value's UTF-8 bytes unchanged.
func (Plain) Serialize(value string) ([]byte, error) { return []byte(value), nil }

// Deserialize returns data decoded as UTF-8 text unchanged.
func (Plain) Deserialize(data []byte) (string, error) { return string(data), nil }

// Clone returns a new Plain serializer (Plain carries no state).
func (Plain) Clone() Serializer { return Plain{} }

// JSON validates input as JSON and re-emits canonical JSON text.
type JSON struct{}

// NewJSON returns a JSON serializer.
func NewJSON() JSON { return JSON{} }

// Serialize validates value as JSON and returns its canonical (compacted)
// form.
func (JSON) Serialize(value string) ([]byte, error) {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	canonical, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: re-encode: %v", ErrInvalidJSON, err)
	}

	return canonical, nil
}

// Deserialize returns data's canonical JSON text unchanged; data is
// assumed to already be canonical JSON produced by Serialize.
func (JSON) Deserialize(data []byte) (string, error) {
	return string(data), nil
}

// Clone returns a new JSON serializer (JSON carries no state).
func (JSON) Clone() Serializer { return JSON{} }

var (
	_ Serializer = Plain{}
	_ Serializer = JSON{}
)
