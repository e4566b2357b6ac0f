package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TransportError reports a connection failure or a non-success response.
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

// Error formats the transport failure.
func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		b.WriteString(": ")
		b.WriteString(excerpt(body, 200))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ApplicationError is a failure the backend reported through the stream.
type ApplicationError struct {
	Kind    Kind
	Section string
	Message string
	Payload json.RawMessage
}

// Error formats the backend failure.
func (e *ApplicationError) Error() string {
	message := e.Message
	if message == "" {
		message = "backend reported an error"
	}
	if e.Section != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Section, message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, message)
}

// errorPayload is the shape of server_error and regen_error frames.
type errorPayload struct {
	Message string `json:"message"`
	Section string `json:"section"`
}

// NewApplicationError builds an ApplicationError from an error event.
func NewApplicationError(ev Event) *ApplicationError {
	appErr := &ApplicationError{Kind: ev.Kind, Payload: ev.Payload}
	var payload errorPayload
	if err := json.Unmarshal(ev.Payload, &payload); err == nil {
		appErr.Message = payload.Message
		appErr.Section = payload.Section
	} else if len(ev.Payload) > 0 {
		appErr.Message = string(ev.Payload)
	}
	return appErr
}
