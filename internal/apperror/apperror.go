// Package apperror defines the error taxonomy shared by every layer of the
// storefront. Each error carries a Kind that maps to exactly one HTTP status,
// a human readable message and optional structured details (for example
// field-level validation failures).
package apperror

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
)

// Kind classifies an error for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified application error.
//
// Sentinel values declared with the constructors below compare by identity,
// so errors.Is works against them even after wrapping.
type Error struct {
	Kind    Kind
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetails returns a copy of e carrying details. The copy still matches e
// with errors.Is.
func (e *Error) WithDetails(details any) error {
	return &derived{err: &Error{Kind: e.Kind, Message: e.Message, Details: details, cause: e.cause}, origin: e}
}

// Withf returns a copy of e with a formatted message. The copy still matches
// e with errors.Is.
func (e *Error) Withf(format string, args ...any) error {
	return &derived{err: &Error{Kind: e.Kind, Message: fmt.Sprintf(format, args...), Details: e.Details, cause: e.cause}, origin: e}
}

// derived is a modified copy of a sentinel that still matches it.
type derived struct {
	err    *Error
	origin *Error
}

func (d *derived) Error() string { return d.err.Error() }

func (d *derived) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && (t == d.origin || t == d.err)
}

func (d *derived) Unwrap() error { return d.err }

// New returns an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies cause under kind with a message. The cause is kept for
// logging; only the message reaches the client.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func BadRequest(message string) *Error   { return New(KindBadRequest, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func Internal(message string) *Error     { return New(KindInternal, message) }

// Validation builds a 400 error carrying field-level messages.
func Validation(fields map[string]string) error {
	return &Error{Kind: KindBadRequest, Message: "validation failed", Details: fields}
}

// From extracts the classified error from err. Unclassified errors are
// reported as KindInternal with ok=false.
func From(err error) (e *Error, ok bool) {
	if errors.As(err, &e) {
		return e, true
	}
	return &Error{Kind: KindInternal, Message: "Internal Server Error", cause: err}, false
}

// KindOf returns the Kind of err, KindInternal when unclassified.
func KindOf(err error) Kind {
	e, _ := From(err)
	return e.Kind
}
