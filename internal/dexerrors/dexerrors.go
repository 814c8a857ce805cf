// Package dexerrors defines the error kinds the core surfaces to the
// transaction boundary, per the failure-semantics design: callers branch on
// Kind rather than string-matching a message, the way a chaincode
// transaction boundary needs to in order to map failures onto wire-level
// response codes.
package dexerrors

import (
	"errors"
	"fmt"
)

// Kind names a role, not a Go type: the five failure categories the engine
// can raise.
type Kind string

const (
	KindValidation   Kind = "Validation"
	KindNotFound     Kind = "NotFound"
	KindUnauthorized Kind = "Unauthorized"
	KindConflict     Kind = "Conflict"
	KindInconsistent Kind = "Inconsistent"
)

// Error is the concrete error type every constructor below returns.
type Error struct {
	Kind  Kind
	Cause string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func Validation(cause string) error   { return &Error{Kind: KindValidation, Cause: cause} }
func NotFound(cause string) error     { return &Error{Kind: KindNotFound, Cause: cause} }
func Unauthorized(cause string) error { return &Error{Kind: KindUnauthorized, Cause: cause} }
func Conflict(cause string) error     { return &Error{Kind: KindConflict, Cause: cause} }
func Inconsistent(cause string) error { return &Error{Kind: KindInconsistent, Cause: cause} }

// Validationf, Conflictf and Inconsistentf mirror the constructors above but accept a
// format string, for the call sites that build the cause from values.
func Validationf(format string, args ...interface{}) error {
	return Validation(fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...interface{}) error {
	return Conflict(fmt.Sprintf(format, args...))
}

func Inconsistentf(format string, args ...interface{}) error {
	return Inconsistent(fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind from err, if err (or something it wraps) is one
// of ours.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
