package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"tms/internal/domain"
	"tms/internal/repository"
)

// DispatchRepository is a PostgreSQL implementation of repository.DispatchRepository.
type DispatchRepository struct {
	q Querier
}

// NewDispatchRepository creates a new PostgreSQL dispatch repository.
func NewDispatchRepository(db *sql.DB) *DispatchRepository {
	return &DispatchRepository{q: db}
}

// NewDispatchRepositoryWithTx creates a dispatch repository using a transaction.
func NewDispatchRepositoryWithTx(tx *sql.Tx) *DispatchRepository {
	return &DispatchRepository{q: tx}
}

const dispatchColumns = `id, booking_id, assigned_driver_id, status, dispatch_time, arrival_time, created_at, updated_at`

func scanDispatch(row rowScanner) (*domain.Dispatch, error) {
	var d domain.Dispatch
	var driverID sql.NullString
	var dispatchTime, arrivalTime sql.NullTime
	if err := row.Scan(
		&d.ID,
		&d.BookingID,
		&driverID,
		&d.Status,
		&dispatchTime,
		&arrivalTime,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	d.AssignedDriverID = driverID.String
	if dispatchTime.Valid {
		d.DispatchTime = dispatchTime.Time
	}
	if arrivalTime.Valid {
		d.ArrivalTime = arrivalTime.Time
	}
	return &d, nil
}

func dispatchTimes(d *domain.Dispatch) (sql.NullTime, sql.NullTime) {
	var dispatchTime, arrivalTime sql.NullTime
	if !d.DispatchTime.IsZero() {
		dispatchTime = sql.NullTime{Time: d.DispatchTime, Valid: true}
	}
	if !d.ArrivalTime.IsZero() {
		arrivalTime = sql.NullTime{Time: d.ArrivalTime, Valid: true}
	}
	return dispatchTime, arrivalTime
}

// translateWriteError maps partial unique index violations onto repository errors.
func translateWriteError(err error) error {
	switch {
	case uniqueViolationOn(err, constraintBookingOpenDispatch):
		return repository.ErrBookingHasDispatch
	case uniqueViolationOn(err, constraintDriverOpenDispatch):
		return repository.ErrDriverCommitted
	}
	return err
}

// Create persists a new dispatch.
func (r *DispatchRepository) Create(ctx context.Context, d *domain.Dispatch) error {
	query := `
		INSERT INTO dispatches (` + dispatchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	dispatchTime, arrivalTime := dispatchTimes(d)
	_, err := r.q.ExecContext(ctx, query,
		d.ID,
		d.BookingID,
		nullString(d.AssignedDriverID),
		d.Status,
		dispatchTime,
		arrivalTime,
		d.CreatedAt,
		d.UpdatedAt,
	)
	return translateWriteError(err)
}

// GetByID retrieves a dispatch by ID.
func (r *DispatchRepository) GetByID(ctx context.Context, id string) (*domain.Dispatch, error) {
	return r.getOne(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a dispatch and locks its row.
func (r *DispatchRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Dispatch, error) {
	return r.getOne(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = $1 FOR UPDATE`, id)
}

// GetCurrentByBookingID retrieves the non-cancelled dispatch of a booking.
func (r *DispatchRepository) GetCurrentByBookingID(ctx context.Context, bookingID string) (*domain.Dispatch, error) {
	return r.getOne(ctx, `SELECT `+dispatchColumns+` FROM dispatches
		WHERE booking_id = $1 AND status <> 'cancelled'`, bookingID)
}

func (r *DispatchRepository) getOne(ctx context.Context, query string, arg string) (*domain.Dispatch, error) {
	d, err := scanDispatch(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// List retrieves dispatches matching filter, newest first.
func (r *DispatchRepository) List(ctx context.Context, filter repository.DispatchFilter, page repository.Page) ([]*domain.Dispatch, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, cond+" = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.BookingID != "" {
		add("booking_id", filter.BookingID)
	}
	if filter.AssignedDriverID != "" {
		add("assigned_driver_id", filter.AssignedDriverID)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + dispatchColumns + ` FROM dispatches`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	page = page.Normalize()
	args = append(args, page.Limit, page.Skip)
	sb.WriteString(" ORDER BY created_at DESC, id ASC")
	sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args)))

	rows, err := r.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dispatches := make([]*domain.Dispatch, 0, page.Limit)
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		dispatches = append(dispatches, d)
	}
	return dispatches, rows.Err()
}

// Update updates an existing dispatch.
func (r *DispatchRepository) Update(ctx context.Context, d *domain.Dispatch) error {
	query := `
		UPDATE dispatches
		SET assigned_driver_id = $1, status = $2, dispatch_time = $3, arrival_time = $4, updated_at = $5
		WHERE id = $6
	`

	dispatchTime, arrivalTime := dispatchTimes(d)
	result, err := r.q.ExecContext(ctx, query,
		nullString(d.AssignedDriverID),
		d.Status,
		dispatchTime,
		arrivalTime,
		d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		return translateWriteError(err)
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

// Delete removes a dispatch.
func (r *DispatchRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM dispatches WHERE id = $1`, id)
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

// CountOpenByDriverID counts non-terminal dispatches assigned to a driver.
func (r *DispatchRepository) CountOpenByDriverID(ctx context.Context, driverID, excludeID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM dispatches
		WHERE assigned_driver_id = $1
		  AND status NOT IN ('completed', 'cancelled')
		  AND id <> $2
	`

	var n int
	if err := r.q.QueryRowContext(ctx, query, driverID, excludeID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListCommittedDriverIDs returns the drivers assigned to any non-terminal dispatch.
func (r *DispatchRepository) ListCommittedDriverIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT assigned_driver_id FROM dispatches
		WHERE assigned_driver_id IS NOT NULL
		  AND status NOT IN ('completed', 'cancelled')
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
