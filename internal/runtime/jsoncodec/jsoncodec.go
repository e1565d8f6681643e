// Package jsoncodec is the single JSON codec for the module: the envelope
// wire format, typed handler payloads, and diagnostic endpoints all go
// through it.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// api pins sonic's ConfigStd, which mirrors encoding/json semantics
// (sorted map keys, HTML escaping) with a faster implementation.
var api = sonic.ConfigStd

// Marshal encodes v as compact JSON.
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent encodes v with the given prefix and indentation, for
// human-facing output.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Encode streams v as JSON onto w with a trailing newline.
func Encode(w io.Writer, v any) error {
	return api.NewEncoder(w).Encode(v)
}

// Decode reads a single JSON value from r into v.
func Decode(r io.Reader, v any) error {
	return api.NewDecoder(r).Decode(v)
}
