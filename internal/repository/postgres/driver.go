package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tms/internal/domain"
	"tms/internal/repository"
)

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

const driverColumns = `id, name, COALESCE(phone, ''), COALESCE(license_number, ''), license_expiry, shift_start, shift_end,
		status, is_available, total_trips, rating, assigned_truck_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriver(row rowScanner) (*domain.Driver, error) {
	var d domain.Driver
	var shiftStart, shiftEnd, truckID sql.NullString
	if err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Phone,
		&d.LicenseNumber,
		&d.LicenseExpiry,
		&shiftStart,
		&shiftEnd,
		&d.Status,
		&d.IsAvailable,
		&d.TotalTrips,
		&d.Rating,
		&truckID,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	// A shift is only enforced when both bounds are present.
	if shiftStart.Valid && shiftEnd.Valid {
		start, err := domain.ParseTimeOfDay(shiftStart.String)
		if err != nil {
			return nil, fmt.Errorf("driver %s shift_start: %w", d.ID, err)
		}
		end, err := domain.ParseTimeOfDay(shiftEnd.String)
		if err != nil {
			return nil, fmt.Errorf("driver %s shift_end: %w", d.ID, err)
		}
		d.Shift = &domain.Shift{Start: start, End: end}
	}
	d.AssignedTruckID = truckID.String

	return &d, nil
}

// Create adds a new driver.
func (r *DriverRepository) Create(ctx context.Context, d *domain.Driver) error {
	query := `
		INSERT INTO drivers (id, name, phone, license_number, license_expiry, shift_start, shift_end,
			status, is_available, total_trips, rating, assigned_truck_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	var shiftStart, shiftEnd sql.NullString
	if d.Shift != nil {
		shiftStart = sql.NullString{String: d.Shift.Start.String(), Valid: true}
		shiftEnd = sql.NullString{String: d.Shift.End.String(), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		d.ID,
		d.Name,
		nullString(d.Phone),
		nullString(d.LicenseNumber),
		d.LicenseExpiry,
		shiftStart,
		shiftEnd,
		d.Status,
		d.IsAvailable,
		d.TotalTrips,
		d.Rating,
		nullString(d.AssignedTruckID),
		d.CreatedAt,
		d.UpdatedAt,
	)
	return err
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	return r.getOne(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a driver and locks its row.
func (r *DriverRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Driver, error) {
	return r.getOne(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1 FOR UPDATE`, id)
}

func (r *DriverRepository) getOne(ctx context.Context, query, id string) (*domain.Driver, error) {
	d, err := scanDriver(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListActive retrieves active drivers flagged as available.
func (r *DriverRepository) ListActive(ctx context.Context) ([]*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers
		WHERE status = 'active' AND is_available
		ORDER BY rating DESC, id ASC`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// IncrementTotalTrips bumps the completed-trip counter of a driver.
func (r *DriverRepository) IncrementTotalTrips(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE drivers SET total_trips = total_trips + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
