// Package pmerr defines the closed set of error kinds that the realtime
// core and its REST collaborator translate into client-facing responses.
package pmerr

import (
	"fmt"
	"runtime"
)

// Kind is one of the fixed error codes from the wire protocol's error
// envelope. The set is closed: do not add a Kind without also adding a
// case to every switch over Kind in the dispatcher and REST layer.
type Kind string

const (
	Validation     Kind = "VALIDATION_ERROR"
	NotFound       Kind = "NOT_FOUND"
	Unauthorized   Kind = "UNAUTHORIZED"
	Conflict       Kind = "CONFLICT"
	DeleteBlocked  Kind = "DELETE_BLOCKED"
	RateLimited    Kind = "RATE_LIMITED"
	InvalidMessage Kind = "INVALID_MESSAGE"
	Internal       Kind = "INTERNAL_ERROR"

	// CircuitOpen is raised by the database resilience layer only; it is
	// never retried by the retry engine and maps to HTTP/WS 503.
	CircuitOpen Kind = "CIRCUIT_OPEN"

	// TokenExpired is a distinct sub-kind of Unauthorized so callers can
	// map it to a specific client hint (re-authenticate) without treating
	// every auth failure the same way.
	TokenExpired Kind = "TOKEN_EXPIRED"

	// ConnectionLimitExceed is raised by C6 when admission is refused.
	// RateLimitExceeded maps to 429 like RateLimited; C2 itself raises
	// RateLimited (via RateLimitedErr).
	RateLimitExceeded     Kind = "RATE_LIMIT_EXCEEDED"
	ConnectionLimitExceed Kind = "CONNECTION_LIMIT_EXCEEDED"
)

// HTTPStatus maps a Kind to the HTTP status code used by both the REST
// collaborator and the pre-upgrade WebSocket handshake.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation, InvalidMessage:
		return 400
	case Unauthorized, TokenExpired:
		return 401
	case NotFound:
		return 404
	case Conflict, DeleteBlocked:
		return 409
	case RateLimited, RateLimitExceeded:
		return 429
	case CircuitOpen:
		return 503
	default:
		return 500
	}
}

// Error is the internal representation of a classified failure. Field is
// set only for Validation errors pointing at a single offending field.
// Location is captured at construction time for server-side logs and is
// never serialized to a client.
type Error struct {
	Kind            Kind
	Message         string
	Field           string
	CurrentVersion  *int64 // populated for Conflict
	Location        string
	cause           error
}

func (e *Error) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Kind, e.Message, e.Location)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Location: caller(3)}
}

func New(kind Kind, msg string) *Error { return newErr(kind, msg) }

func Newf(kind Kind, format string, args ...any) *Error {
	return newErr(kind, fmt.Sprintf(format, args...))
}

func Wrap(kind Kind, cause error, msg string) *Error {
	e := newErr(kind, msg)
	e.cause = cause
	return e
}

func ValidationErr(field, msg string) *Error {
	e := newErr(Validation, msg)
	e.Field = field
	return e
}

func NotFoundErr(msg string) *Error { return newErr(NotFound, msg) }

func UnauthorizedErr(msg string) *Error { return newErr(Unauthorized, msg) }

func TokenExpiredErr() *Error { return newErr(TokenExpired, "token has expired") }

func ConflictErr(currentVersion int64) *Error {
	e := newErr(Conflict, "version mismatch")
	e.CurrentVersion = &currentVersion
	return e
}

func DeleteBlockedErr(msg string) *Error { return newErr(DeleteBlocked, msg) }

func RateLimitedErr(limit int, windowSecs int64) *Error {
	return newErr(RateLimited, fmt.Sprintf("rate limit exceeded: %d requests per %ds", limit, windowSecs))
}

func InvalidMessageErr(msg string) *Error { return newErr(InvalidMessage, msg) }

func InternalErr(cause error) *Error {
	e := newErr(Internal, "an unexpected error occurred. Please try again.")
	e.cause = cause
	return e
}

func CircuitOpenErr() *Error { return newErr(CircuitOpen, "service temporarily unavailable") }

func ConnectionLimitExceededErr(msg string) *Error { return newErr(ConnectionLimitExceed, msg) }

// As extracts an *Error from err if present.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// KindOf returns the Kind of err, defaulting to Internal for unclassified
// errors so every failure still maps to a bounded wire response.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}
