package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
)

type ErrorCode string

const (
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrorInvalidResponse ErrorCode = "INVALID_RESPONSE"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

// Error is the failure type returned by RelayService. Error() carries the
// whole chain and is for logs; Public() is what callers may see.
type Error struct {
	Code    ErrorCode
	Message string
	// Cause is a short description of Err that never includes endpoint
	// URLs or upstream response bodies.
	Cause string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Public returns the caller-facing text.
func (e *Error) Public() string {
	if e == nil {
		return ""
	}
	if e.Cause == "" {
		return e.Message
	}
	return e.Message + ": " + e.Cause
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// InvalidInput reports a malformed request.
func InvalidInput(message string, err error) *Error {
	e := newError(ErrorInvalidInput, message, err)
	e.Cause = describeJSONError(err)
	return e
}

func upstreamError(err error) *Error {
	e := newError(ErrorUpstream, "inference request failed", err)
	e.Cause = describeUpstream(err)
	return e
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func describeUpstream(err error) string {
	var statusErr httpStatusCoder
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("HTTP %d", statusErr.HTTPStatusCode())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "connection refused"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "host not found"
	}
	if describeJSONError(err) != "" {
		return "malformed response"
	}
	return "network error"
}

func describeJSONError(err error) string {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "malformed JSON"
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field != "" {
			return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
		}
		return "unexpected JSON type"
	}
	return ""
}
