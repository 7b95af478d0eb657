package service

import (
	"errors"
	"fmt"

	"tms/internal/domain"
	"tms/internal/repository"
)

var (
	// ErrNotFound is returned when a referenced booking, driver or dispatch does not exist.
	ErrNotFound = repository.ErrNotFound

	// ErrDuplicateDispatch is returned when a booking already has a non-cancelled dispatch.
	ErrDuplicateDispatch = errors.New("duplicate dispatch for booking")

	// ErrInvalidTransition is returned when the target status is not reachable from the current one.
	ErrInvalidTransition = domain.ErrInvalidTransition

	// ErrMissingDriver is returned when dispatching without an assigned driver.
	ErrMissingDriver = domain.ErrMissingDriver

	// ErrDriverUnavailable is returned when a driver fails the assignability check.
	ErrDriverUnavailable = errors.New("driver unavailable")

	// ErrInvalidState is returned when an operation is not permitted in the dispatch's current status.
	ErrInvalidState = errors.New("operation not permitted in current dispatch state")

	// ErrInvalidDispatchID is returned when dispatch ID is empty.
	ErrInvalidDispatchID = errors.New("invalid dispatch id")

	// ErrInvalidBookingID is returned when booking ID is empty.
	ErrInvalidBookingID = errors.New("invalid booking id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidStatus is returned when a status filter is not a known dispatch status.
	ErrInvalidStatus = domain.ErrInvalidStatus
)

// IsBusinessError reports whether err is a rule violation rather than an
// infrastructure failure. Business errors are not worth retrying.
func IsBusinessError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateDispatch),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrMissingDriver),
		errors.Is(err, ErrDriverUnavailable),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInvalidDispatchID),
		errors.Is(err, ErrInvalidBookingID),
		errors.Is(err, ErrInvalidDriverID),
		errors.Is(err, ErrInvalidStatus):
		return true
	}
	return false
}

// notFound decorates a repository miss with the entity that was missing.
func notFound(entity, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return err
}

// translateWriteError maps store-level uniqueness conflicts onto business errors.
func translateWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrBookingHasDispatch):
		return fmt.Errorf("%w: %v", ErrDuplicateDispatch, err)
	case errors.Is(err, repository.ErrDriverCommitted):
		return fmt.Errorf("%w: %v", ErrDriverUnavailable, err)
	}
	return err
}
