/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import (
	"fmt"

	goldap "github.com/go-ldap/ldap/v3"
)

// ErrorKind classifies the failure modes of directory operations. Callers
// dispatch on the kind instead of matching error strings.
type ErrorKind int

const (
	// NotFound means that the requested identity does not exist in its tree.
	NotFound ErrorKind = iota + 1
	// DuplicateIdentity means that the name or account already exists in the
	// target tree.
	DuplicateIdentity
	// InvalidAttributeValue means that a value fails a schema or business-rule
	// check, e.g. the account-name character set.
	InvalidAttributeValue
	// RefusedCriticalDeletion means that a deletion was refused because the
	// entry is a protected system object.
	RefusedCriticalDeletion
	// LinkInconsistency means that a counterpart link points at a different
	// object than expected.
	LinkInconsistency
	// ConnectionFailure is a transient connection problem. It is retried
	// internally (once per operation) and only surfaces if the retry fails.
	ConnectionFailure
	// ConnectionExhausted is fatal: the bounded connection-retry loop ran out
	// of attempts.
	ConnectionExhausted
	// ProtocolError means that the server rejected a request; the error
	// carries the server's verbatim diagnostic.
	ProtocolError
)

// String implements the fmt.Stringer interface.
func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case DuplicateIdentity:
		return "duplicate identity"
	case InvalidAttributeValue:
		return "invalid attribute value"
	case RefusedCriticalDeletion:
		return "refusing to delete system object"
	case LinkInconsistency:
		return "link inconsistency"
	case ConnectionFailure:
		return "connection failure"
	case ConnectionExhausted:
		return "connection attempts exhausted"
	case ProtocolError:
		return "directory protocol error"
	default:
		return fmt.Sprintf("unknown error kind %d", int(k))
	}
}

// Error is the error type returned by all operations in this package.
type Error struct {
	Kind  ErrorKind
	Op    string // the failed operation, e.g. "fetch" or "save"
	Ident string // the identity the operation worked on
	cause error  // the server's verbatim diagnostic, if any
}

// Error implements the builtin error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s during %s of %q", e.Kind.String(), e.Op, e.Ident)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap supports errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsKind checks whether the error is a directory error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	dirErr, ok := err.(*Error)
	if !ok {
		return false
	}
	return dirErr.Kind == kind
}

func makeError(kind ErrorKind, op, ident string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Ident: ident, cause: cause}
}

// NewError builds an Error. Packages layered on top of this one use it to
// report their own failures with the same kinds.
func NewError(kind ErrorKind, op, ident string, cause error) *Error {
	return makeError(kind, op, ident, cause)
}

// Translates an error returned by the go-ldap library into our error type.
// The mapping from result codes to kinds is the contract that the rest of the
// engine relies on for its retry and propagation decisions.
func classify(op, ident string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	switch {
	case goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject):
		return makeError(NotFound, op, ident, err)
	case goldap.IsErrorWithCode(err, goldap.LDAPResultEntryAlreadyExists):
		return makeError(DuplicateIdentity, op, ident, err)
	case goldap.IsErrorWithCode(err, goldap.LDAPResultConstraintViolation),
		goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidAttributeSyntax),
		goldap.IsErrorWithCode(err, goldap.LDAPResultObjectClassViolation):
		return makeError(InvalidAttributeValue, op, ident, err)
	case goldap.IsErrorWithCode(err, goldap.ErrorNetwork):
		return makeError(ConnectionFailure, op, ident, err)
	default:
		return makeError(ProtocolError, op, ident, err)
	}
}
