// Package api provides the HTTP client for the OCR backend and the error
// types for batch submissions.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// MsgNoResponse is the user-facing message when the request went out but no
// response came back (including timeouts).
const MsgNoResponse = "no response from server"

// ServerError is a structured failure returned by the backend for the whole
// batch. Message is the payload's detail or error field, or the status text.
type ServerError struct {
	StatusCode int
	Message    string
	Err        error // Underlying cause, e.g. models.ErrMalformedBatch
}

func (e *ServerError) Error() string { return e.Message }
func (e *ServerError) Unwrap() error { return e.Err }
func (e *ServerError) Kind() string  { return "server" }

// TransportError means the request was sent but no response was received,
// or the batch deadline expired first.
type TransportError struct {
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string { return MsgNoResponse }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Kind() string  { return "transport" }

// Detail returns the underlying cause for logs.
func (e *TransportError) Detail() string {
	if e.Err == nil {
		return MsgNoResponse
	}
	if e.Timeout {
		return fmt.Sprintf("%s (timed out): %v", MsgNoResponse, e.Err)
	}
	return fmt.Sprintf("%s: %v", MsgNoResponse, e.Err)
}

// RequestError is a failure while building or sending the request, such as
// a staged file that can no longer be read. The message passes through.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return e.Err.Error() }
func (e *RequestError) Unwrap() error { return e.Err }
func (e *RequestError) Kind() string  { return "request" }

// ValidationError summarizes candidates skipped while staging. It is shown
// as an inline count and never stored in the session error slot.
type ValidationError struct {
	Rejected   int
	Duplicates int
}

func (e *ValidationError) Error() string {
	switch {
	case e.Rejected > 0 && e.Duplicates > 0:
		return fmt.Sprintf("skipped %d unsupported and %d duplicate file(s)", e.Rejected, e.Duplicates)
	case e.Rejected > 0:
		return fmt.Sprintf("skipped %d unsupported file(s)", e.Rejected)
	default:
		return fmt.Sprintf("skipped %d duplicate file(s)", e.Duplicates)
	}
}

func (e *ValidationError) Kind() string { return "validation" }

// NewValidationError returns nil when nothing was skipped.
func NewValidationError(rejected, duplicates int) error {
	if rejected == 0 && duplicates == 0 {
		return nil
	}
	return &ValidationError{Rejected: rejected, Duplicates: duplicates}
}

// ErrUnreachable is returned by Health when the backend answers non-2xx or
// not at all.
var ErrUnreachable = errors.New("backend unreachable")

// IsTimeout reports whether err is a TransportError caused by the deadline.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout
}

func statusText(code int) string {
	if t := http.StatusText(code); t != "" {
		return fmt.Sprintf("%d %s", code, t)
	}
	return fmt.Sprintf("HTTP %d", code)
}
