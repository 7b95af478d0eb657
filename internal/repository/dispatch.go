package repository

import (
	"context"

	"tms/internal/domain"
)

const (
	// DefaultPageLimit is used when a caller does not ask for a page size.
	DefaultPageLimit = 20

	// MaxPageLimit caps the page size of any listing.
	MaxPageLimit = 100
)

// Page is a skip/limit window over an ordered listing.
type Page struct {
	Skip  int
	Limit int
}

// Normalize clamps Limit to [1, MaxPageLimit] and Skip to >= 0.
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// DispatchFilter narrows a dispatch listing. Empty fields match everything
// and set fields are AND-combined.
type DispatchFilter struct {
	Status           domain.DispatchStatus
	BookingID        string
	AssignedDriverID string
}

// DispatchRepository defines the persistence operations for dispatches.
type DispatchRepository interface {
	// Create persists a new dispatch. Returns ErrBookingHasDispatch when the
	// booking already has a non-cancelled dispatch.
	Create(ctx context.Context, dispatch *domain.Dispatch) error

	// GetByID retrieves a dispatch by ID.
	GetByID(ctx context.Context, id string) (*domain.Dispatch, error)

	// GetByIDForUpdate retrieves a dispatch and holds a row lock on it until
	// the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Dispatch, error)

	// GetCurrentByBookingID retrieves the non-cancelled dispatch of a booking.
	GetCurrentByBookingID(ctx context.Context, bookingID string) (*domain.Dispatch, error)

	// List retrieves dispatches matching filter, newest first.
	List(ctx context.Context, filter DispatchFilter, page Page) ([]*domain.Dispatch, error)

	// Update updates an existing dispatch. Returns ErrDriverCommitted when
	// the assigned driver already holds another non-terminal dispatch.
	Update(ctx context.Context, dispatch *domain.Dispatch) error

	// Delete removes a dispatch.
	Delete(ctx context.Context, id string) error

	// CountOpenByDriverID counts non-terminal dispatches assigned to a
	// driver, ignoring the dispatch with excludeID.
	CountOpenByDriverID(ctx context.Context, driverID, excludeID string) (int, error)

	// ListCommittedDriverIDs returns the drivers assigned to any non-terminal dispatch.
	ListCommittedDriverIDs(ctx context.Context) ([]string, error)
}
