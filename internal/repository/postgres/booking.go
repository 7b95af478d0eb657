package postgres

import (
	"context"
	"database/sql"
	"errors"

	"tms/internal/domain"
	"tms/internal/repository"
)

// BookingRepository is a PostgreSQL implementation of repository.BookingRepository.
type BookingRepository struct {
	q Querier
}

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

// NewBookingRepositoryWithTx creates a booking repository using a transaction.
func NewBookingRepositoryWithTx(tx *sql.Tx) *BookingRepository {
	return &BookingRepository{q: tx}
}

// Create adds a new booking.
func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `
		INSERT INTO bookings (id, source, destination, truck_id, vehicle_id, service_type, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.q.ExecContext(ctx, query,
		b.ID,
		b.Source,
		b.Destination,
		nullString(b.TruckID),
		nullString(b.VehicleID),
		b.ServiceType,
		b.Price,
		b.Status,
		b.CreatedAt,
		b.UpdatedAt,
	)
	return err
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `
		SELECT id, source, destination, truck_id, vehicle_id, service_type, price, status, created_at, updated_at
		FROM bookings WHERE id = $1
	`

	var b domain.Booking
	var truckID, vehicleID sql.NullString
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&b.ID,
		&b.Source,
		&b.Destination,
		&truckID,
		&vehicleID,
		&b.ServiceType,
		&b.Price,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	b.TruckID = truckID.String
	b.VehicleID = vehicleID.String
	return &b, nil
}
