package service

import (
	"context"
	"time"

	"tms/internal/domain"
	"tms/internal/logger"
	"tms/internal/redis"
	"tms/internal/repository"
)

// QueryService serves read-only dispatch lookups and listings.
type QueryService struct {
	dispatchRepo repository.DispatchRepository
	cache        redis.DispatchCacheInterface
	log          logger.Logger
}

// NewQueryService creates a new QueryService. cache and log may be nil.
func NewQueryService(dispatchRepo repository.DispatchRepository, cache redis.DispatchCacheInterface, log logger.Logger) *QueryService {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &QueryService{
		dispatchRepo: dispatchRepo,
		cache:        cache,
		log:          log,
	}
}

// ListDispatchesRequest contains the filters and window for a listing.
type ListDispatchesRequest struct {
	Status           string
	BookingID        string
	AssignedDriverID string
	Skip             int
	Limit            int
}

// DispatchPage is one window of a dispatch listing.
type DispatchPage struct {
	Items []*domain.Dispatch
	Skip  int
	Limit int
}

// List returns dispatches matching every provided filter, newest first.
func (s *QueryService) List(ctx context.Context, req ListDispatchesRequest) (*DispatchPage, error) {
	filter := repository.DispatchFilter{
		BookingID:        req.BookingID,
		AssignedDriverID: req.AssignedDriverID,
	}
	if req.Status != "" {
		status, err := domain.ParseDispatchStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	return s.list(ctx, filter, repository.Page{Skip: req.Skip, Limit: req.Limit})
}

// GetByDriver returns every dispatch referencing a driver, in any status.
func (s *QueryService) GetByDriver(ctx context.Context, driverID string, skip, limit int) (*DispatchPage, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	return s.list(ctx, repository.DispatchFilter{AssignedDriverID: driverID}, repository.Page{Skip: skip, Limit: limit})
}

func (s *QueryService) list(ctx context.Context, filter repository.DispatchFilter, page repository.Page) (*DispatchPage, error) {
	page = page.Normalize()
	items, err := s.dispatchRepo.List(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.Dispatch{}
	}
	return &DispatchPage{Items: items, Skip: page.Skip, Limit: page.Limit}, nil
}

// GetByBooking returns the non-cancelled dispatch of a booking.
func (s *QueryService) GetByBooking(ctx context.Context, bookingID string) (*domain.Dispatch, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}
	d, err := s.dispatchRepo.GetCurrentByBookingID(ctx, bookingID)
	if err != nil {
		return nil, notFound("dispatch for booking", bookingID, err)
	}
	return d, nil
}

// GetDispatch returns a dispatch by ID, served from cache when possible.
func (s *QueryService) GetDispatch(ctx context.Context, dispatchID string) (*domain.Dispatch, error) {
	if dispatchID == "" {
		return nil, ErrInvalidDispatchID
	}

	if s.cache != nil {
		cached, err := s.cache.GetDispatch(ctx, dispatchID)
		if err != nil {
			s.log.Warnf("read cached dispatch %s: %v", dispatchID, err)
		} else if cached != nil {
			return fromCached(cached), nil
		}
	}

	d, err := s.dispatchRepo.GetByID(ctx, dispatchID)
	if err != nil {
		return nil, notFound("dispatch", dispatchID, err)
	}

	if s.cache != nil {
		if err := s.cache.FillDispatch(ctx, toCached(d)); err != nil {
			s.log.Warnf("cache dispatch %s: %v", dispatchID, err)
		}
	}
	return d, nil
}

func toCached(d *domain.Dispatch) *redis.CachedDispatch {
	return &redis.CachedDispatch{
		ID:               d.ID,
		BookingID:        d.BookingID,
		AssignedDriverID: d.AssignedDriverID,
		Status:           string(d.Status),
		DispatchTime:     d.DispatchTime,
		ArrivalTime:      d.ArrivalTime,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func fromCached(c *redis.CachedDispatch) *domain.Dispatch {
	return &domain.Dispatch{
		ID:               c.ID,
		BookingID:        c.BookingID,
		AssignedDriverID: c.AssignedDriverID,
		Status:           domain.DispatchStatus(c.Status),
		DispatchTime:     normalizeZero(c.DispatchTime),
		ArrivalTime:      normalizeZero(c.ArrivalTime),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// normalizeZero drops the location JSON gives a zero time so IsZero holds.
func normalizeZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t
}
