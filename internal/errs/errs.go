// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package errs defines the flat error taxonomy of spec §7. It has no
// dependencies on the rest of the driver so that every layer —
// connection, topology, driver, cursor — can produce and compare these
// without import cycles.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories a caller can switch on.
type Kind string

// The taxonomy named in spec §7.
const (
	ConnectionLost         Kind = "CONNECTION_LOST"
	ConnectionNotAvailable Kind = "CONNECTION_NOT_AVAILABLE"
	ShutdownInProgress     Kind = "SHUTDOWN_IN_PROGRESS"
	NoSuitableServer       Kind = "NO_SUITABLE_SERVER"
	NoPrimary              Kind = "NO_PRIMARY"
	DuplicateKey           Kind = "DUPLICATE_KEY"
	CursorNotFound         Kind = "CURSOR_NOT_FOUND"
	QueryFailure           Kind = "QUERY_FAILURE"
	ShardConfigStale       Kind = "SHARD_CONFIG_STALE"
	ReplyValidation        Kind = "REPLY_VALIDATION"
	OperationTimedOut      Kind = "OPERATION_TIMED_OUT"
	Cancelled              Kind = "CANCELLED"
	Framing                Kind = "FRAMING"
)

// Error is the concrete error type carried through the driver. It always
// names a Kind and may wrap an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause chain for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether the first *Error found in err's chain has the given
// kind. Wrappers that are not *Error (connection.Error, topology-level
// wrappers) are looked through, so callers one or two layers away from
// where the *Error was constructed still classify correctly; the Cause
// of that first *Error is not consulted.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Retryable reports whether an error of this kind is one the dispatcher
// recovers from transparently per spec §7's propagation policy.
func (e *Error) Retryable() bool {
	return e.Kind == ConnectionLost || e.Kind == ShardConfigStale
}
