// Package apperr classifies failures surfaced by the portal client stores.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the category of a failure as presented to the view layer.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindBackend        Kind = "backend"
)

// Error is a categorised failure carrying a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, apperr.NotFound) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Message == "" && other.Err == nil && other.Kind == e.Kind
}

// Kind sentinels for errors.Is comparisons.
var (
	Validation     = &Error{Kind: KindValidation}
	Authentication = &Error{Kind: KindAuthentication}
	Authorization  = &Error{Kind: KindAuthorization}
	NotFound       = &Error{Kind: KindNotFound}
	Network        = &Error{Kind: KindNetwork}
	Timeout        = &Error{Kind: KindTimeout}
	Backend        = &Error{Kind: KindBackend}
)

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindBackend for uncategorised errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindBackend
}

// Message returns the string a store records in its error field. Nil yields "".
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return "unexpected error: " + err.Error()
}

// FromStatus maps a non-2xx HTTP status onto a kind.
func FromStatus(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}

	var kind Kind
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnsupportedMediaType,
		status == http.StatusConflict:
		kind = KindValidation
	case status == http.StatusUnauthorized:
		kind = KindAuthentication
	case status == http.StatusForbidden:
		kind = KindAuthorization
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		kind = KindTimeout
	default:
		kind = KindBackend
	}
	return &Error{Kind: kind, Message: message}
}
