package types

import "errors"

var (
	// ErrValidation marks a malformed fragment rejected at the boundary.
	ErrValidation = errors.New("validation error")

	// ErrConfigInvalid aborts process startup.
	ErrConfigInvalid = errors.New("configuration invalid")

	// ErrConcurrencyViolation marks a detected partial-state read. Correct
	// locking makes it structurally impossible; if it surfaces, callers must
	// treat it as fatal rather than retry.
	ErrConcurrencyViolation = errors.New("concurrency violation")
)
