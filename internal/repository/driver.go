package repository

import (
	"context"

	"tms/internal/domain"
)

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByIDForUpdate retrieves a driver and holds a row lock on it until
	// the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Driver, error)

	// ListActive retrieves drivers with status active and is_available set.
	ListActive(ctx context.Context) ([]*domain.Driver, error)

	// IncrementTotalTrips bumps the completed-trip counter of a driver.
	IncrementTotalTrips(ctx context.Context, id string) error
}
