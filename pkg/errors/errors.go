// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the typed errors used across the registry core.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType is the machine-readable classification of an error.
type ErrorType string

const (
	// ErrInvalidArgument indicates a malformed input (bad payload, bad flag).
	ErrInvalidArgument ErrorType = "invalid_argument"
	// ErrNotFound indicates a missing entry or profile.
	ErrNotFound ErrorType = "not_found"
	// ErrInvariant indicates a broken registry invariant (ID collision,
	// illegal state transition). Operator action required; never swallowed.
	ErrInvariant ErrorType = "invariant"
	// ErrValidation indicates a rejected network profile.
	ErrValidation ErrorType = "validation"
	// ErrTimeout indicates an expired bus request or evacuation deadline.
	ErrTimeout ErrorType = "timeout"
	// ErrTransient indicates a recoverable external failure (document store
	// read during refresh). The previously cached state remains in effect.
	ErrTransient ErrorType = "transient"
	// ErrInternal indicates an unexpected internal failure.
	ErrInternal ErrorType = "internal"
)

// Error is a typed error with an optional cause.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new typed error.
func NewError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// NewInvalidArgumentError creates an invalid_argument error.
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewNotFoundError creates a not_found error.
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewInvariantError creates an invariant error.
func NewInvariantError(message string, cause error) *Error {
	return NewError(ErrInvariant, message, cause)
}

// NewValidationError creates a validation error.
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrValidation, message, cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(message string, cause error) *Error {
	return NewError(ErrTimeout, message, cause)
}

// NewTransientError creates a transient error.
func NewTransientError(message string, cause error) *Error {
	return NewError(ErrTransient, message, cause)
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// isType reports whether err is (or wraps) a typed error of type t.
func isType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsNotFound returns true if the error is a not_found error.
func IsNotFound(err error) bool { return isType(err, ErrNotFound) }

// IsInvariant returns true if the error is an invariant error.
func IsInvariant(err error) bool { return isType(err, ErrInvariant) }

// IsValidation returns true if the error is a validation error.
func IsValidation(err error) bool { return isType(err, ErrValidation) }

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool { return isType(err, ErrTimeout) }

// IsTransient returns true if the error is a transient error.
func IsTransient(err error) bool { return isType(err, ErrTransient) }

// IsInvalidArgument returns true if the error is an invalid_argument error.
func IsInvalidArgument(err error) bool { return isType(err, ErrInvalidArgument) }
