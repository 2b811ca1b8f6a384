package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so callers can branch on cause.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindNotRegistered Kind = "not_registered"
	KindInvocation    Kind = "invocation"
	KindStore         Kind = "store"
	KindDiscovery     Kind = "discovery"
	KindUnauthorized  Kind = "unauthorized"
	KindConflict      Kind = "conflict"
)

// HTTPStatus maps an error kind to the status code the API layer reports.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindNotRegistered:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a standardized application error with a kind and an optional cause.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"` // internal cause for logging
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two errors of the same kind, so sentinel comparisons like
// errors.Is(err, apperr.NotFound("")) work without string equality.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an Error with the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...), nil)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...), nil)
}

func NotRegistered(format string, args ...any) *Error {
	return New(KindNotRegistered, fmt.Sprintf(format, args...), nil)
}

func Invocation(message string) *Error {
	return New(KindInvocation, message, nil)
}

func Store(message string, err error) *Error {
	return New(KindStore, message, err)
}

func Discovery(format string, args ...any) *Error {
	return New(KindDiscovery, fmt.Sprintf(format, args...), nil)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message, nil)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...), nil)
}

// KindOf returns the kind of err, or "" when err is not an application error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
