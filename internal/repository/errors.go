package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrBookingHasDispatch is returned when a booking already has a non-cancelled dispatch.
	ErrBookingHasDispatch = errors.New("booking already has a non-cancelled dispatch")

	// ErrDriverCommitted is returned when a driver is already assigned to another non-terminal dispatch.
	ErrDriverCommitted = errors.New("driver already assigned to another open dispatch")
)
