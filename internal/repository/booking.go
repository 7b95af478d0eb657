package repository

import (
	"context"

	"tms/internal/domain"
)

// BookingRepository reads bookings owned by the booking service.
type BookingRepository interface {
	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
}
