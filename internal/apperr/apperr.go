// Package apperr is the structured error taxonomy shared by every core
// package. Handlers in internal/api map a Kind to an HTTP status with
// StatusOf instead of inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names one of the taxonomy entries from the error-handling design.
type Kind string

const (
	InvalidArgument        Kind = "invalid_argument"
	NotFound                Kind = "not_found"
	UnauthorizedConfig      Kind = "unauthorized_configuration"
	UpstreamFailure         Kind = "upstream_failure"
	MarketLocked            Kind = "market_locked"
	Conflict                Kind = "conflict"
	Internal                Kind = "internal_error"
)

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a Kind and message to an existing error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, defaulting to Internal when err is not
// (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// StatusOf maps a Kind to the HTTP status code the design assigns it.
func StatusOf(err error) int {
	switch KindOf(err) {
	case InvalidArgument, UnauthorizedConfig, MarketLocked:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case UpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
