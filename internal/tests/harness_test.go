package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tms/internal/domain"
	"tms/internal/service"
)

type harness struct {
	store     *MockStore
	locks     *MockLockStore
	cache     *MockDispatchCache
	publisher *MockPublisher
	metrics   *MockMetrics

	dispatches   *service.DispatchService
	queries      *service.QueryService
	availability *service.AvailabilityService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:     NewMockStore(),
		locks:     NewMockLockStore(),
		cache:     NewMockDispatchCache(),
		publisher: NewMockPublisher(),
		metrics:   NewMockMetrics(),
	}
	h.dispatches = service.NewDispatchService(h.store, service.DispatchServiceOptions{
		LockStore: h.locks,
		Cache:     h.cache,
		Publisher: h.publisher,
		Metrics:   h.metrics,
		Clock:     FixedClock(BaseTime),
	})
	h.queries = service.NewQueryService(h.store.Dispatches(), h.cache, nil)
	h.availability = service.NewAvailabilityService(h.store.Drivers(), h.store.Dispatches(), h.metrics)
	return h
}

var operator = domain.Operator{ID: "op-1", Role: "dispatcher"}

// createDispatch seeds a booking and opens a pending dispatch for it.
func (h *harness) createDispatch(t *testing.T, bookingID string) *domain.Dispatch {
	t.Helper()
	h.store.AddBooking(Booking(bookingID))
	d, err := h.dispatches.CreateDispatch(context.Background(), service.CreateDispatchRequest{
		BookingID: bookingID,
		Operator:  operator,
	})
	require.NoError(t, err)
	return d
}

func (h *harness) assign(t *testing.T, dispatchID, driverID string) *domain.Dispatch {
	t.Helper()
	d, err := h.dispatches.AssignDriver(context.Background(), service.AssignDriverRequest{
		DispatchID: dispatchID,
		DriverID:   driverID,
		Operator:   operator,
	})
	require.NoError(t, err)
	return d
}

func (h *harness) advance(t *testing.T, dispatchID string, target domain.DispatchStatus) *domain.Dispatch {
	t.Helper()
	d, err := h.dispatches.Advance(context.Background(), service.AdvanceRequest{
		DispatchID:   dispatchID,
		TargetStatus: target,
		Operator:     operator,
	})
	require.NoError(t, err)
	return d
}
