package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrStaleData marks a fetched payload rejected by the regression guard.
	ErrStaleData = errors.New("stale data rejected")
)
