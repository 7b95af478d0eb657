package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"tms/internal/repository"
)

// TxManager is a PostgreSQL implementation of repository.Transactor.
type TxManager struct {
	db *sql.DB
}

// NewTxManager creates a new TxManager.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

var _ repository.Transactor = (*TxManager)(nil)

// WithinTx runs fn with transaction-scoped repositories.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, newTxStore(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// txStore hands out repositories bound to one *sql.Tx.
type txStore struct {
	dispatches *DispatchRepository
	drivers    *DriverRepository
	bookings   *BookingRepository
}

func newTxStore(tx *sql.Tx) *txStore {
	return &txStore{
		dispatches: NewDispatchRepositoryWithTx(tx),
		drivers:    NewDriverRepositoryWithTx(tx),
		bookings:   NewBookingRepositoryWithTx(tx),
	}
}

func (s *txStore) Dispatches() repository.DispatchRepository { return s.dispatches }
func (s *txStore) Drivers() repository.DriverRepository       { return s.drivers }
func (s *txStore) Bookings() repository.BookingRepository     { return s.bookings }
