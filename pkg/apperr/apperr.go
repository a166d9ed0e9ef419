// Package apperr defines the error taxonomy shared by services and the HTTP
// boundary. Services return *Error for expected failures; anything else is
// treated as an internal error.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Fields maps a request field to its rule violations.
type Fields map[string][]string

// Error is an expected, client-facing failure.
type Error struct {
	Kind    Kind
	Message string
	Fields  Fields
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Default messages.
const (
	MsgValidation      = "Validation errors"
	MsgUnauthenticated = "Unauthenticated"
	MsgForbidden       = "Unauthorized"
)

// Validation reports one or more field rule violations.
func Validation(fields Fields) *Error {
	return &Error{Kind: KindValidation, Message: MsgValidation, Fields: fields}
}

// Invalid is a validation error carrying a single field message.
func Invalid(field, msg string) *Error {
	return Validation(Fields{field: {msg}})
}

// Conflict reports a uniqueness violation on field. It renders like a
// validation error.
func Conflict(field, msg string, err error) *Error {
	return &Error{Kind: KindConflict, Message: MsgValidation, Fields: Fields{field: {msg}}, Err: err}
}

// Unauthenticated reports a missing or bad credential.
func Unauthenticated(msg string) *Error {
	if msg == "" {
		msg = MsgUnauthenticated
	}
	return &Error{Kind: KindAuthentication, Message: msg}
}

// Forbidden reports an authenticated caller lacking a role or ownership.
func Forbidden(msg string) *Error {
	if msg == "" {
		msg = MsgForbidden
	}
	return &Error{Kind: KindAuthorization, Message: msg}
}

// NotFound reports a missing entity.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// BadRequest reports an unreadable request.
func BadRequest(msg string, err error) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Err: err}
}

// KindOf returns the Kind of err, KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Rejected is a 422 without field details, for requests that are well
// formed but not allowed in the current state.
func Rejected(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}
