// Package llm provides the wire representations of chat completion requests,
// responses and stream frames, along with the errors an exchange can end in.
package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCredential is returned before any network call when no API key is configured.
	ErrEmptyCredential = errors.New("API key not configured")

	// ErrInvalidResponse indicates the server reply had no interpretable status or envelope.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrTransport wraps connection, timeout and body read failures.
	ErrTransport = errors.New("transport failure")

	// ErrBusy is returned when an exchange is started while another is still in flight.
	ErrBusy = errors.New("exchange already in flight")
)

// ErrorDetail is the body of an error envelope.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope represents an error from the LLM API: {"error": {"message": ...}}.
type ErrorEnvelope struct {
	Error *ErrorDetail `json:"error"`
}

// BadResponseError is returned when the server answers with a non-2xx status.
type BadResponseError struct {
	StatusCode int
	Message    string
}

func (e *BadResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bad response: %d", e.StatusCode)
	}
	return fmt.Sprintf("bad response: %d, %s", e.StatusCode, e.Message)
}

// ServerError is a well-formed error event received in the middle of a stream.
type ServerError struct {
	Message string
	Type    string
}

func (e *ServerError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("server error [%s]: %s", e.Type, e.Message)
	}
	return "server error: " + e.Message
}

// DecodeError is returned when a non-streaming body expected to be JSON is not.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode response: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
