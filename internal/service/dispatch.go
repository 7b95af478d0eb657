package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tms/internal/domain"
	"tms/internal/logger"
	"tms/internal/redis"
	"tms/internal/repository"
)

const defaultDriverLockTTL = 10 * time.Second

// Operation names reported to MetricsRecorder.
const (
	OpCreateDispatch = "create_dispatch"
	OpAssignDriver   = "assign_driver"
	OpUnassignDriver = "unassign_driver"
	OpAdvance        = "advance"
	OpCancel         = "cancel"
	OpDelete         = "delete"
)

// DispatchServiceOptions carries the optional collaborators of a DispatchService.
type DispatchServiceOptions struct {
	// LockStore serializes assignment attempts for one driver across instances.
	LockStore redis.LockStoreInterface
	// Cache receives every committed write.
	Cache     redis.DispatchCacheInterface
	Publisher EventPublisher
	Metrics   MetricsRecorder
	Logger    logger.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time

	DriverLockTTL time.Duration
}

// DispatchService creates dispatches, assigns drivers and moves dispatches
// through their lifecycle.
type DispatchService struct {
	tx            repository.Transactor
	lockStore     redis.LockStoreInterface
	cache         redis.DispatchCacheInterface
	publisher     EventPublisher
	metrics       MetricsRecorder
	log           logger.Logger
	now           func() time.Time
	driverLockTTL time.Duration
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(tx repository.Transactor, opts DispatchServiceOptions) *DispatchService {
	s := &DispatchService{
		tx:            tx,
		lockStore:     opts.LockStore,
		cache:         opts.Cache,
		publisher:     opts.Publisher,
		metrics:       opts.Metrics,
		log:           opts.Logger,
		now:           opts.Clock,
		driverLockTTL: opts.DriverLockTTL,
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.log == nil {
		s.log = logger.NopLogger{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.driverLockTTL <= 0 {
		s.driverLockTTL = defaultDriverLockTTL
	}
	return s
}

func (s *DispatchService) observe(op string, start time.Time, errp *error) {
	s.metrics.ObserveOperation(op, outcomeOf(*errp), time.Since(start))
}

// CreateDispatchRequest contains the parameters for creating a dispatch.
type CreateDispatchRequest struct {
	BookingID string
	Operator  domain.Operator
}

// CreateDispatch opens a pending dispatch for a booking.
func (s *DispatchService) CreateDispatch(ctx context.Context, req CreateDispatchRequest) (_ *domain.Dispatch, err error) {
	defer s.observe(OpCreateDispatch, time.Now(), &err)

	bookingID := strings.TrimSpace(req.BookingID)
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}

	now := s.now()
	dispatch := &domain.Dispatch{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		Status:    domain.DispatchStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		if _, err := store.Bookings().GetByID(ctx, bookingID); err != nil {
			return notFound("booking", bookingID, err)
		}

		existing, err := store.Dispatches().GetCurrentByBookingID(ctx, bookingID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: booking %s already has dispatch %s (%s)",
				ErrDuplicateDispatch, bookingID, existing.ID, existing.Status)
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		// The partial unique index still guards concurrent creates.
		return translateWriteError(store.Dispatches().Create(ctx, dispatch))
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, dispatch, domain.DispatchEventCreated, "", req.Operator)
	return dispatch, nil
}

// AssignDriverRequest contains the parameters for assigning a driver.
type AssignDriverRequest struct {
	DispatchID string
	DriverID   string
	Operator   domain.Operator
}

// AssignDriver sets the assigned driver of a pending or dispatched dispatch.
// The driver is re-checked for assignability inside the write transaction.
// Status is left unchanged.
func (s *DispatchService) AssignDriver(ctx context.Context, req AssignDriverRequest) (_ *domain.Dispatch, err error) {
	defer s.observe(OpAssignDriver, time.Now(), &err)

	if req.DispatchID == "" {
		return nil, ErrInvalidDispatchID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}

	if s.lockStore != nil {
		token, err := s.lockStore.AcquireDriverLock(ctx, req.DriverID, s.driverLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire driver lock: %w", err)
		}
		if token == "" {
			return nil, fmt.Errorf("%w: driver %s has an assignment in progress", ErrDriverUnavailable, req.DriverID)
		}
		defer func() {
			if relErr := s.lockStore.ReleaseDriverLock(context.WithoutCancel(ctx), req.DriverID, token); relErr != nil {
				s.log.Warnf("release driver lock %s: %v", req.DriverID, relErr)
			}
		}()
	}

	var (
		dispatch       *domain.Dispatch
		previousDriver string
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		d, err := store.Dispatches().GetByIDForUpdate(ctx, req.DispatchID)
		if err != nil {
			return notFound("dispatch", req.DispatchID, err)
		}
		if !d.Status.AllowsAssignment() {
			return fmt.Errorf("%w: cannot assign a driver to a %s dispatch", ErrInvalidState, d.Status)
		}

		driver, err := store.Drivers().GetByIDForUpdate(ctx, req.DriverID)
		if err != nil {
			return notFound("driver", req.DriverID, err)
		}

		now := s.now()
		if err := checkAssignable(ctx, store.Dispatches(), driver, d.ID, now); err != nil {
			return err
		}

		previousDriver = d.AssignedDriverID
		d.AssignedDriverID = driver.ID
		d.UpdatedAt = now
		if err := store.Dispatches().Update(ctx, d); err != nil {
			return translateWriteError(err)
		}

		dispatch = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previousDriver != "" && previousDriver != dispatch.AssignedDriverID {
		s.log.Infow("driver reassigned", map[string]any{
			"dispatch_id":     dispatch.ID,
			"previous_driver": previousDriver,
			"driver_id":       dispatch.AssignedDriverID,
			"status":          string(dispatch.Status),
		})
	}
	s.afterCommit(ctx, dispatch, domain.DispatchEventDriverAssigned, "", req.Operator)
	return dispatch, nil
}

// UnassignDriverRequest contains the parameters for clearing a driver.
type UnassignDriverRequest struct {
	DispatchID string
	Operator   domain.Operator
}

// UnassignDriver clears the assigned driver of a pending dispatch. Unassigning
// a dispatch that has no driver returns it unchanged.
func (s *DispatchService) UnassignDriver(ctx context.Context, req UnassignDriverRequest) (_ *domain.Dispatch, err error) {
	defer s.observe(OpUnassignDriver, time.Now(), &err)

	if req.DispatchID == "" {
		return nil, ErrInvalidDispatchID
	}

	var (
		dispatch *domain.Dispatch
		changed  bool
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		d, err := store.Dispatches().GetByIDForUpdate(ctx, req.DispatchID)
		if err != nil {
			return notFound("dispatch", req.DispatchID, err)
		}
		if d.Status != domain.DispatchStatusPending {
			return fmt.Errorf("%w: cannot unassign the driver of a %s dispatch", ErrInvalidState, d.Status)
		}

		dispatch = d
		if !d.HasDriver() {
			return nil
		}

		d.AssignedDriverID = ""
		d.UpdatedAt = s.now()
		if err := store.Dispatches().Update(ctx, d); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.afterCommit(ctx, dispatch, domain.DispatchEventDriverUnassigned, "", req.Operator)
	}
	return dispatch, nil
}

// AdvanceRequest contains the parameters for a status transition.
type AdvanceRequest struct {
	DispatchID   string
	TargetStatus domain.DispatchStatus
	// At optionally overrides the timestamp recorded on entering
	// dispatched or arrived.
	At       time.Time
	Operator domain.Operator
}

// Advance moves a dispatch to TargetStatus under a row lock.
func (s *DispatchService) Advance(ctx context.Context, req AdvanceRequest) (_ *domain.Dispatch, err error) {
	defer s.observe(OpAdvance, time.Now(), &err)

	if req.DispatchID == "" {
		return nil, ErrInvalidDispatchID
	}

	eventType := domain.DispatchEventStatusChanged
	if req.TargetStatus == domain.DispatchStatusCancelled {
		eventType = domain.DispatchEventCancelled
	}
	return s.transition(ctx, req.DispatchID, req.TargetStatus, req.At, req.Operator, eventType)
}

// CancelRequest contains the parameters for cancelling a dispatch.
type CancelRequest struct {
	DispatchID string
	Operator   domain.Operator
}

// Cancel moves a non-terminal dispatch to cancelled.
func (s *DispatchService) Cancel(ctx context.Context, req CancelRequest) (_ *domain.Dispatch, err error) {
	defer s.observe(OpCancel, time.Now(), &err)

	if req.DispatchID == "" {
		return nil, ErrInvalidDispatchID
	}
	return s.transition(ctx, req.DispatchID, domain.DispatchStatusCancelled, time.Time{}, req.Operator, domain.DispatchEventCancelled)
}

func (s *DispatchService) transition(
	ctx context.Context,
	dispatchID string,
	target domain.DispatchStatus,
	at time.Time,
	op domain.Operator,
	eventType domain.DispatchEventType,
) (*domain.Dispatch, error) {
	var (
		dispatch *domain.Dispatch
		previous domain.DispatchStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		d, err := store.Dispatches().GetByIDForUpdate(ctx, dispatchID)
		if err != nil {
			return notFound("dispatch", dispatchID, err)
		}

		previous = d.Status
		if err := d.Transition(target, domain.TransitionContext{Now: s.now(), At: at}); err != nil {
			return err
		}
		if err := store.Dispatches().Update(ctx, d); err != nil {
			return translateWriteError(err)
		}

		if target == domain.DispatchStatusCompleted {
			if err := store.Drivers().IncrementTotalTrips(ctx, d.AssignedDriverID); err != nil {
				return notFound("driver", d.AssignedDriverID, err)
			}
		}

		dispatch = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(previous, target)
	if previous == domain.DispatchStatusArrived && target == domain.DispatchStatusCancelled {
		s.log.Warnw("dispatch cancelled after arrival", map[string]any{
			"dispatch_id": dispatch.ID,
			"booking_id":  dispatch.BookingID,
			"driver_id":   dispatch.AssignedDriverID,
			"operator_id": op.ID,
		})
	}

	s.afterCommit(ctx, dispatch, eventType, previous, op)
	return dispatch, nil
}

// DeleteDispatchRequest contains the parameters for deleting a dispatch.
type DeleteDispatchRequest struct {
	DispatchID string
	Operator   domain.Operator
}

// DeleteIfPending hard-deletes a dispatch that is still pending.
func (s *DispatchService) DeleteIfPending(ctx context.Context, req DeleteDispatchRequest) (err error) {
	defer s.observe(OpDelete, time.Now(), &err)

	if req.DispatchID == "" {
		return ErrInvalidDispatchID
	}

	var dispatch *domain.Dispatch
	err = s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		d, err := store.Dispatches().GetByIDForUpdate(ctx, req.DispatchID)
		if err != nil {
			return notFound("dispatch", req.DispatchID, err)
		}
		if d.Status != domain.DispatchStatusPending {
			return fmt.Errorf("%w: only pending dispatches can be deleted, dispatch is %s", ErrInvalidState, d.Status)
		}
		if err := store.Dispatches().Delete(ctx, d.ID); err != nil {
			return notFound("dispatch", d.ID, err)
		}
		dispatch = d
		return nil
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, dispatch, domain.DispatchEventDeleted, "", req.Operator)
	return nil
}

// afterCommit writes the committed dispatch through to the cache, or leaves
// a tombstone for a deleted one, and publishes the event. Failures here are
// logged; the write has already committed.
func (s *DispatchService) afterCommit(
	ctx context.Context,
	d *domain.Dispatch,
	eventType domain.DispatchEventType,
	previous domain.DispatchStatus,
	op domain.Operator,
) {
	ctx = context.WithoutCancel(ctx)

	if s.cache != nil {
		if eventType == domain.DispatchEventDeleted {
			if err := s.cache.InvalidateDispatch(ctx, d.ID); err != nil {
				s.log.Warnf("invalidate cached dispatch %s: %v", d.ID, err)
			}
		} else if err := s.cache.SetDispatch(ctx, toCached(d)); err != nil {
			s.log.Warnf("refresh cached dispatch %s: %v", d.ID, err)
		}
	}

	if op.ID == "" {
		op = domain.SystemOperator
	}
	event := domain.DispatchEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		DispatchID:     d.ID,
		BookingID:      d.BookingID,
		DriverID:       d.AssignedDriverID,
		PreviousStatus: previous,
		Status:         d.Status,
		OperatorID:     op.ID,
		OccurredAt:     s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Errorf("publish %s for dispatch %s: %v", eventType, d.ID, err)
	}
}
