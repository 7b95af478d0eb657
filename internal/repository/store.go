package repository

import "context"

// Store groups repositories that share a single transaction.
type Store interface {
	Dispatches() DispatchRepository
	Drivers() DriverRepository
	Bookings() BookingRepository
}

// Transactor runs fn inside one transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
