package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed operation for callers that decide whether to
// resubmit. Only KindConcurrencyConflict is worth retrying.
type ErrorKind string

// Supported error kinds.
const (
	KindNotFound            ErrorKind = "not_found"
	KindAlreadyExists       ErrorKind = "already_exists"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindInvalidArgument     ErrorKind = "invalid_argument"
	KindInvariantViolation  ErrorKind = "invariant_violation"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
)

// Error is the structured failure returned by every ledger operation.
type Error struct {
	Kind    ErrorKind
	Entity  EntityType
	Key     string
	Message string
	Err     error
}

// Sentinels for errors.Is checks. They match any *Error of the same kind.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrAlreadyExists       = &Error{Kind: KindAlreadyExists}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrInvariantViolation  = &Error{Kind: KindInvariantViolation}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict}
)

func (e *Error) Error() string {
	var b strings.Builder
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Entity != "":
		fmt.Fprintf(&b, "%s %s: %s", e.Entity, PrintableKey(e.Key), e.Kind)
	default:
		b.WriteString(string(e.Kind))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind carried by err, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var rv RuleViolationError
	if errors.As(err, &rv) {
		return KindInvariantViolation
	}
	return ""
}

// NotFound reports a referenced record that is absent from the ledger.
func NotFound(entity EntityType, key, format string, args ...any) *Error {
	return newError(KindNotFound, entity, key, format, args...)
}

// AlreadyExists reports a duplicate registration.
func AlreadyExists(entity EntityType, key, format string, args ...any) *Error {
	return newError(KindAlreadyExists, entity, key, format, args...)
}

// Unauthorized reports a caller organization mismatch.
func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, "", "", format, args...)
}

// InvalidArgument reports malformed input.
func InvalidArgument(format string, args ...any) *Error {
	return newError(KindInvalidArgument, "", "", format, args...)
}

// InvariantViolation reports a broken business invariant.
func InvariantViolation(entity EntityType, key, format string, args ...any) *Error {
	return newError(KindInvariantViolation, entity, key, format, args...)
}

// ConcurrencyConflict wraps a ledger commit conflict.
func ConcurrencyConflict(key string, err error) *Error {
	return &Error{Kind: KindConcurrencyConflict, Key: key, Message: "read set invalidated by concurrent commit", Err: err}
}

func newError(kind ErrorKind, entity EntityType, key, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Entity: entity, Key: key, Message: msg}
}

// PrintableKey renders composite keys without their NUL separators.
func PrintableKey(key string) string {
	return strings.Trim(strings.ReplaceAll(key, "\x00", "/"), "/")
}
