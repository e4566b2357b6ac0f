package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a frame payload and unwraps one layer of double encoding.
//
// The backend pre-serializes payloads before handing them to its SSE layer,
// so a value can arrive as a JSON string whose contents are JSON. Only one
// extra unwrap is attempted; a string that does not parse again is a real
// string payload and is returned as-is.
func Decode(raw string) (json.RawMessage, error) {
	data := bytes.TrimSpace([]byte(raw))
	if !json.Valid(data) {
		var probe any
		err := json.Unmarshal(data, &probe)
		return nil, &DecodeError{Raw: raw, Err: err}
	}
	if len(data) == 0 || data[0] != '"' {
		return json.RawMessage(data), nil
	}
	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}
	unwrapped := bytes.TrimSpace([]byte(inner))
	if len(unwrapped) == 0 || !json.Valid(unwrapped) {
		return json.RawMessage(data), nil
	}
	return json.RawMessage(unwrapped), nil
}

// DecodeError reports a payload that is not valid JSON.
type DecodeError struct {
	Raw string
	Err error
}

// Error formats the decode failure with a short excerpt of the payload.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode payload %q: %v", excerpt(e.Raw, 64), e.Err)
}

// Unwrap exposes the underlying JSON error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// excerpt truncates text for error messages.
func excerpt(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit-3] + "..."
}
