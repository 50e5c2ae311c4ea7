package domain

import "errors"

var (
	// ErrValidation marks malformed client input; mapped to 400.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing record; mapped to 404.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a state conflict; mapped to 409.
	ErrConflict = errors.New("conflict")
	// ErrRateLimited marks a rejected enqueue under rate pressure; mapped to 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable marks an unreachable backing store or broker; mapped to 503.
	ErrUnavailable = errors.New("service unavailable")
)
