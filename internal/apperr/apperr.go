// Package apperr defines the error kinds surfaced to HTTP clients.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	InvalidInput
	InvalidCredentials
	NotAuthorized
	UpstreamExchangeFailed
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case InvalidCredentials:
		return "invalid_credentials"
	case NotAuthorized:
		return "not_authorized"
	case UpstreamExchangeFailed:
		return "upstream_exchange_failed"
	case Unavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case InvalidInput:
		return http.StatusBadRequest
	case InvalidCredentials, NotAuthorized:
		return http.StatusUnauthorized
	case UpstreamExchangeFailed:
		return http.StatusBadGateway
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind carried by err. Deadline and pool exhaustion
// errors that were never classified are reported as Unavailable.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Unavailable
	}
	return Internal
}

// Message returns the client-facing text for err. Internal errors never
// leak their cause.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != Internal {
		return appErr.Message
	}
	if KindOf(err) == Unavailable {
		return "service temporarily unavailable"
	}
	return "internal server error"
}
