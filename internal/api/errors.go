package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport covers unreachable backends and an open circuit breaker.
	ErrTransport = errors.New("backend unreachable")
	// ErrMalformedResponse is returned when JSON was expected and something else arrived.
	ErrMalformedResponse = errors.New("malformed response")
	ErrCartNotFound      = errors.New("cart not found")
)

// StatusError is a non-2xx answer from the backend. Message carries the
// server's explanation when it sent one.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// IsBusinessRejection reports a 4xx answer, i.e. the server understood and refused.
func (e *StatusError) IsBusinessRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// MalformedResponseError keeps the body verbatim so it can be shown to the user.
type MalformedResponseError struct {
	ContentType string
	Body        string
}

func (e *MalformedResponseError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected %q response with empty body", e.ContentType)
	}
	return e.Body
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// StatusCode extracts the HTTP status from err, or 0 when err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
