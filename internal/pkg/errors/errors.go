package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPermissionDenied is returned when an authenticated caller mutates something it does not own.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAccessDenied is returned when a caller may not use a model or session.
	ErrAccessDenied = errors.New("access denied")
)
