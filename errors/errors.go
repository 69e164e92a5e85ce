// Package errors provides error handling for codify.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Add hints for users
//	return errors.WithHint(err, "check the engine root in codify.toml")
//
//	// Check errors
//	if errors.Is(err, errors.ErrInputExists) {
//	    // input was written by an earlier pass
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is         = crdb.Is
	IsAny      = crdb.IsAny
	As         = crdb.As
	Unwrap     = crdb.Unwrap
	UnwrapOnce = crdb.UnwrapOnce
	UnwrapAll  = crdb.UnwrapAll
)

// Assertions and panics
var (
	AssertionFailedf                 = crdb.AssertionFailedf
	NewAssertionErrorWithWrappedErrf = crdb.NewAssertionErrorWithWrappedErrf
	HasAssertionFailure              = crdb.HasAssertionFailure
)

// Common sentinel errors for use across codify.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrConfiguration indicates the environment or configuration is
	// unusable: missing engine root, unreadable vocabulary database,
	// bad server address. Callers should abort the current operation.
	ErrConfiguration = New("configuration error")

	// ErrContent indicates one unit of input data is malformed or
	// unanalyzable. The unit is skipped; the operation continues.
	ErrContent = New("content error")

	// ErrEngineRun indicates an external NLP engine batch invocation
	// failed. Other engines may still proceed.
	ErrEngineRun = New("engine run failed")

	// ErrParse indicates an engine deposited output that could not be
	// decoded. Treated as output-not-yet-available by callers.
	ErrParse = New("engine output unreadable")

	// ErrInputExists indicates an engine input file was already written
	// by an earlier pass. The unit keeps waiting for output.
	ErrInputExists = New("input file already exists")

	// ErrNoInputDir indicates the engine's input directory is missing,
	// usually because the engine installation was never prepared.
	ErrNoInputDir = New("engine input directory missing")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
// Also provides backward compatibility with string-based "not found" errors.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrNotFound) {
		return true
	}
	// Backward compatibility: check error message
	errMsg := err.Error()
	return len(errMsg) >= 9 && (errMsg == "not found" ||
		errMsg[len(errMsg)-9:] == "not found" ||
		len(errMsg) > 10 && errMsg[:10] == "not found:")
}

// IsConfigurationError checks if an error is or wraps ErrConfiguration
func IsConfigurationError(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsContentError checks if an error is or wraps ErrContent
func IsContentError(err error) bool {
	return err != nil && Is(err, ErrContent)
}

// IsEngineRunError checks if an error is or wraps ErrEngineRun
func IsEngineRunError(err error) bool {
	return err != nil && Is(err, ErrEngineRun)
}

// NewConfigurationError creates a configuration error with a formatted message
func NewConfigurationError(format string, args ...interface{}) error {
	return Wrap(ErrConfiguration, Newf(format, args...).Error())
}

// NewContentError creates a content error with a formatted message
func NewContentError(format string, args ...interface{}) error {
	return Wrap(ErrContent, Newf(format, args...).Error())
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
