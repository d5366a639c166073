package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates invalid caller input.
	ErrValidation = errors.New("invalid input")
	// ErrStaleWrite indicates the caller acted on an outdated document
	// version; recoverable by reload and retry.
	ErrStaleWrite = errors.New("stale write: document version changed")
	// ErrGuardViolation indicates an illegal state transition attempt.
	ErrGuardViolation = errors.New("transition not allowed")
	// ErrValidationPartial indicates some serials could not be validated
	// remotely; surfaced as a warning requiring user action.
	ErrValidationPartial = errors.New("serial validation incomplete")
)
