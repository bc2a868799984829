// Package apperror defines the typed error taxonomy shared by the workflow
// and audit services. Every command failure carries a machine-readable kind
// alongside the human message so transport layers can map it to a status
// code without string matching.
package apperror

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a command failure
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindValidation        Kind = "validation_error"
)

// Error is a typed command failure
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NotFound reports a missing workflow or document
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports a caller acting outside their granted role
func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a duplicate workflow or resubmitted approval
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports an edge not present in the state machine
func InvalidTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed or rejected command input
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not a typed Error
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err is a typed Error of the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
