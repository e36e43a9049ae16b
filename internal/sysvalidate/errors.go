package sysvalidate

import (
	"errors"
	"fmt"

	"github.com/roach88/sysval/internal/dht"
)

// ErrorCode categorizes validation failures.
type ErrorCode string

const (
	// CodeDependencyMissing means a referenced header, entry or element could
	// not be found in the vault, the cache or on the network. Retryable.
	CodeDependencyMissing ErrorCode = "DEPENDENCY_MISSING"

	// CodeChainInvalid covers timestamp, sequence, fork and genesis violations.
	CodeChainInvalid ErrorCode = "CHAIN_INVALID"

	// CodeEntryInvalid covers hash mismatch, oversize payloads and tags,
	// type mismatch, and undeclared or private entry types.
	CodeEntryInvalid ErrorCode = "ENTRY_INVALID"

	// CodeReferenceInvalid means an update, delete or link removal targets a
	// record of the wrong kind, or the link index disagrees with the vault.
	CodeReferenceInvalid ErrorCode = "REFERENCE_INVALID"

	// CodeSignatureInvalid means the header signature does not verify.
	CodeSignatureInvalid ErrorCode = "SIGNATURE_INVALID"

	// CodeAuthorInvalid means the author key is unusable or revoked.
	CodeAuthorInvalid ErrorCode = "AUTHOR_INVALID"

	// CodeOpMalformed means the op's header does not fit its kind or is
	// missing fields its type requires.
	CodeOpMalformed ErrorCode = "OP_MALFORMED"
)

// Retryable reports whether an op failing with this code should be retried.
func (c ErrorCode) Retryable() bool {
	return c == CodeDependencyMissing
}

// ValidationError is the result of a failed check.
//
// Anything a check returns that is not a *ValidationError is a storage or
// transport fault and aborts the run.
type ValidationError struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Missing is the unresolved address for CodeDependencyMissing.
	Missing dht.AnyDhtHash

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("%s: %s (missing=%s)", e.Code, e.Message, e.Missing)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsDependencyMissing returns true if err is a retryable missing-dependency failure.
// Uses errors.As to handle wrapped errors.
func IsDependencyMissing(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code == CodeDependencyMissing
	}
	return false
}

// IsTerminal returns true if err is a validation failure that must not be retried.
// Uses errors.As to handle wrapped errors.
func IsTerminal(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return !ve.Code.Retryable()
	}
	return false
}

func dependencyMissing[H ~string](hash H, what string) *ValidationError {
	return &ValidationError{
		Code:    CodeDependencyMissing,
		Message: what + " not found",
		Missing: dht.AnyDhtHash(hash),
	}
}

func invalid(code ErrorCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}
