// Package apperr defines the error taxonomy shared by the gateway, the
// screen controllers and the console. Every error that reaches a screen is
// an *Error with a Kind; controllers turn it into a user-facing message
// with Message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindUnauthenticated is the client-side pre-check: no token stored.
	KindUnauthenticated
	// KindForbidden is an HTTP 403.
	KindForbidden
	// KindSessionExpired is an HTTP 401; it also triggers re-authentication.
	KindSessionExpired
	// KindValidationFailed is a failed client-side required-field check.
	KindValidationFailed
	// KindRequestFailed covers network failures and other error statuses.
	KindRequestFailed
	// KindNotFound is an HTTP 404, usually a delete/update race.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindSessionExpired:
		return "session_expired"
	case KindValidationFailed:
		return "validation_failed"
	case KindRequestFailed:
		return "request_failed"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrSessionExpired   = &Error{Kind: KindSessionExpired}
	ErrValidationFailed = &Error{Kind: KindValidationFailed}
	ErrRequestFailed    = &Error{Kind: KindRequestFailed}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

// Error is the concrete error type returned across the client.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	// Detail is the server-provided message, if any.
	Detail string
	// Fields holds per-field messages for KindValidationFailed.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so callers can write errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Unauthenticated(op string) *Error {
	return &Error{Kind: KindUnauthenticated, Op: op, Err: errors.New("user is not authenticated")}
}

func Validation(op string, fields map[string]string) *Error {
	return &Error{Kind: KindValidationFailed, Op: op, Fields: fields}
}

// FromStatus maps an HTTP status to an error kind. It returns nil for
// non-error statuses.
func FromStatus(op string, status int, detail string) *Error {
	if status < http.StatusBadRequest {
		return nil
	}
	kind := KindRequestFailed
	switch status {
	case http.StatusUnauthorized:
		kind = KindSessionExpired
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	}
	return &Error{Kind: kind, Op: op, Status: status, Detail: detail}
}

// KindOf returns the kind of err, KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsAuth reports whether err means the user must log in again.
func IsAuth(err error) bool {
	k := KindOf(err)
	return k == KindUnauthenticated || k == KindSessionExpired
}

// Message converts err into a string fit for a screen. fallback is used
// for generic request failures so each screen can phrase its own.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindUnauthenticated:
		return "You are not logged in. Please log in to continue."
	case KindSessionExpired:
		return "Your session has expired. Please log in again to continue."
	case KindForbidden:
		return "You do not have permission to perform this action."
	case KindNotFound:
		return "This record no longer exists. It may have been removed by another user."
	case KindValidationFailed:
		return "Please fill in all required fields."
	}
	return fallback
}

// HTTPStatus is the status the console answers with for err.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated, KindSessionExpired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidationFailed:
		return http.StatusUnprocessableEntity
	case KindRequestFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
