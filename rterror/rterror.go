// Package rterror implements the runtime's rich error surface: a tagged
// error value with a borrowed cause chain and separate display/debug
// projections, propagated through the registry the way cue/errors layers
// human and diagnostic views on top of the standard error chain instead of
// replacing it.
package rterror

import (
	"fmt"
	"strings"
)

// Kind tags an Error with the subsystem-qualified error kind it represents,
// e.g. "library.LibraryHandleInvalid" or "module.ModuleStateInvalid". Kinds
// are compared by value, so two Errors of the same Kind satisfy errors.Is
// regardless of their individual messages or causes.
type Kind string

// Error is the runtime's outward error value. It owns its own message and
// optionally borrows a causal chain via Unwrap, exactly as a stdlib wrapped
// error does; Display and Debug are its two outward projections.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New creates a fresh Error of the given kind with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind chaining cause as its source.
// This is how registry-level errors adopt a loader-level error as their
// cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

// Kind reports the error's tag.
func (e *Error) Kind() Kind { return e.kind }

// Error implements the error interface with the display projection: a
// single human-readable line, the cause's own Error() appended if present.
func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
}

// Debug renders the full chain, one cause per line, each annotated with its
// Kind -- the diagnostic projection, meant for logs rather than users.
func (e *Error) Debug() string {
	var b strings.Builder
	cur := error(e)
	for cur != nil {
		if re, ok := cur.(*Error); ok {
			fmt.Fprintf(&b, "[%s] %s\n", re.kind, re.msg)
			cur = re.cause
		} else {
			fmt.Fprintf(&b, "%s\n", cur.Error())
			break
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Unwrap exposes the borrowed cause to errors.Is / errors.As / errors.Unwrap.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error of the same Kind, letting callers
// compare against a package-level sentinel instead of the exact instance.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}
