// Package apperr defines the error taxonomy shared by every pipeline stage.
//
// Stages wrap failures in *Error so the caller can tell a network outage from
// a missing release or a crashed child without parsing strings. No kind is
// retried automatically; every retry is a fresh user-initiated invocation.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a category of failure.
type Kind string

const (
	// KindNetwork covers unreachable endpoints and non-success HTTP statuses.
	KindNetwork Kind = "NETWORK"
	// KindParse covers responses that are not in the expected format.
	KindParse Kind = "PARSE"
	// KindNotFound covers a missing release asset or a missing runtime root.
	KindNotFound Kind = "NOT_FOUND"
	// KindExtraction covers archive read failures and missing post-extract binaries.
	KindExtraction Kind = "EXTRACTION"
	// KindProcess covers spawn failures, non-zero exits and fatal-pattern kills.
	KindProcess Kind = "PROCESS"
	// KindConfig covers invalid settings and flag files.
	KindConfig Kind = "CONFIG"
)

// Error is a categorized failure with optional context.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error

	// ExitStatus is the raw child status for KindProcess; -1 when unknown.
	ExitStatus int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, ExitStatus: -1}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause, ExitStatus: -1}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// WithCause attaches the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithExitStatus records the raw child exit status.
func (e *Error) WithExitStatus(status int) *Error {
	e.ExitStatus = status
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
