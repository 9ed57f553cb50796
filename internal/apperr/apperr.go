// Package apperr defines the error taxonomy shared by the service and HTTP
// layers. Every failure the service can report carries one of a fixed set of
// kinds so callers branch on the kind, not on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary mapping.
type Kind int

const (
	// KindValidation marks malformed input, rejected before any store access.
	KindValidation Kind = iota + 1
	// KindUnauthorized marks a missing or unknown credential.
	KindUnauthorized
	// KindNotFound marks an absent resource. Ownership failures report the
	// same kind so a caller cannot distinguish "not yours" from "doesn't exist".
	KindNotFound
	// KindPreconditionRequired marks a mutation missing its concurrency token.
	KindPreconditionRequired
	// KindConflict marks a fingerprint mismatch: the caller worked from stale data.
	KindConflict
	// KindInternal marks unexpected failures (connectivity, aborted transactions).
	KindInternal
)

// Error is a kinded error. Message is safe to surface to clients; Err holds
// the underlying cause for logs, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind, so tests and handlers can use
// errors.Is(err, apperr.NotFound("")) style comparisons.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf returns the kind of err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func PreconditionRequired(msg string) *Error {
	return &Error{Kind: KindPreconditionRequired, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Internal wraps an unexpected failure. The wrapped error is preserved for
// logging but never serialized to clients.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}
