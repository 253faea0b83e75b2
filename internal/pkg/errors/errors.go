package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPolicyViolation marks a draft rejected by the evidence policy gate.
	ErrPolicyViolation = errors.New("policy violation")
	// ErrConflict marks writes that collide with existing unique state.
	ErrConflict = errors.New("conflict")
)
