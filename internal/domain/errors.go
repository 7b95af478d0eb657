package domain

import "errors"

var (
	// ErrInvalidStatus is returned when a string is not a known dispatch status.
	ErrInvalidStatus = errors.New("invalid dispatch status")

	// ErrInvalidTransition is returned when the target status is not reachable from the current one.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingDriver is returned when dispatching without an assigned driver.
	ErrMissingDriver = errors.New("dispatch has no assigned driver")

	// ErrInvalidTimeOfDay is returned when a shift boundary cannot be parsed.
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
)
