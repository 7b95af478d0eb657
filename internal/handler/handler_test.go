package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tms/internal/domain"
	"tms/internal/service"
	"tms/internal/tests"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	store  *tests.MockStore
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := tests.NewMockStore()
	clock := tests.FixedClock(tests.BaseTime)
	dispatches := service.NewDispatchService(store, service.DispatchServiceOptions{
		LockStore: tests.NewMockLockStore(),
		Clock:     clock,
	})
	queries := service.NewQueryService(store.Dispatches(), nil, nil)
	availability := service.NewAvailabilityService(store.Drivers(), store.Dispatches(), nil)

	dh := NewDispatchHandler(dispatches, queries)
	drh := NewDriverHandler(availability, queries, clock)

	r := gin.New()
	v1 := r.Group("/v1")
	v1.POST("/dispatches", dh.Create)
	v1.GET("/dispatches", dh.List)
	v1.GET("/dispatches/:id", dh.Get)
	v1.POST("/dispatches/:id/assign", dh.Assign)
	v1.POST("/dispatches/:id/unassign", dh.Unassign)
	v1.POST("/dispatches/:id/advance", dh.Advance)
	v1.POST("/dispatches/:id/cancel", dh.Cancel)
	v1.DELETE("/dispatches/:id", dh.Delete)
	v1.GET("/bookings/:id/dispatch", dh.GetByBooking)
	v1.GET("/drivers/available", drh.ListAvailable)
	v1.GET("/drivers/:id/dispatches", drh.ListDispatches)

	return &testServer{store: store, router: r}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) create(t *testing.T, bookingID string) DispatchResponse {
	t.Helper()
	s.store.AddBooking(tests.Booking(bookingID))
	w := s.do(http.MethodPost, "/v1/dispatches", `{"booking_id":"`+bookingID+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[DispatchResponse](t, w)
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, code, decode[ErrorResponse](t, w).Code)
}

func TestCreateDispatch(t *testing.T) {
	s := newTestServer(t)

	d := s.create(t, "b-42")
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "b-42", d.BookingID)
	assert.Equal(t, "pending", d.Status)
	assert.Empty(t, d.AssignedDriverID)
	assert.Empty(t, d.DispatchTime)

	w := s.do(http.MethodPost, "/v1/dispatches", `{"booking_id":"b-42"}`)
	assertErrorCode(t, w, http.StatusConflict, CodeDuplicateDispatch)
}

func TestCreateDispatchValidation(t *testing.T) {
	s := newTestServer(t)

	assertErrorCode(t, s.do(http.MethodPost, "/v1/dispatches", `not json`), http.StatusBadRequest, CodeInvalidRequest)
	assertErrorCode(t, s.do(http.MethodPost, "/v1/dispatches", `{}`), http.StatusBadRequest, CodeInvalidRequest)
	assertErrorCode(t, s.do(http.MethodPost, "/v1/dispatches", `{"booking_id":"missing"}`), http.StatusNotFound, CodeNotFound)
}

func TestDispatchLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.store.AddDriver(tests.ActiveDriver("drv-7"))
	d := s.create(t, "b-1")
	base := "/v1/dispatches/" + d.ID

	w := s.do(http.MethodPost, base+"/advance", `{"status":"dispatched"}`)
	assertErrorCode(t, w, http.StatusUnprocessableEntity, CodeMissingDriver)

	w = s.do(http.MethodPost, base+"/assign", `{"driver_id":"drv-7"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "drv-7", decode[DispatchResponse](t, w).AssignedDriverID)

	w = s.do(http.MethodPost, base+"/advance", `{"status":"dispatched","at":"2025-03-12T11:30:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[DispatchResponse](t, w)
	assert.Equal(t, "dispatched", got.Status)
	assert.Equal(t, "2025-03-12T11:30:00Z", got.DispatchTime)

	for _, status := range []string{"in_transit", "arrived", "completed"} {
		w = s.do(http.MethodPost, base+"/advance", `{"status":"`+status+`"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, status, decode[DispatchResponse](t, w).Status)
	}

	w = s.do(http.MethodPost, base+"/advance", `{"status":"pending"}`)
	assertErrorCode(t, w, http.StatusConflict, CodeInvalidTransition)

	w = s.do(http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[DispatchResponse](t, w)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "2025-03-12T12:00:00Z", got.ArrivalTime)
	assert.Equal(t, 1, s.store.GetDriver("drv-7").TotalTrips)
}

func TestAdvanceValidation(t *testing.T) {
	s := newTestServer(t)
	d := s.create(t, "b-1")
	base := "/v1/dispatches/" + d.ID

	assertErrorCode(t, s.do(http.MethodPost, base+"/advance", `{}`), http.StatusBadRequest, CodeInvalidRequest)
	assertErrorCode(t, s.do(http.MethodPost, base+"/advance", `{"status":"dispatched","at":"yesterday"}`), http.StatusBadRequest, CodeInvalidRequest)
	assertErrorCode(t, s.do(http.MethodPost, base+"/advance", `{"status":"teleported"}`), http.StatusConflict, CodeInvalidTransition)
	assertErrorCode(t, s.do(http.MethodPost, "/v1/dispatches/nope/advance", `{"status":"cancelled"}`), http.StatusNotFound, CodeNotFound)
}

func TestAssignUnavailableDriver(t *testing.T) {
	s := newTestServer(t)
	s.store.AddDriver(tests.ActiveDriver("drv-7"))
	off := tests.ActiveDriver("drv-8")
	off.IsAvailable = false
	s.store.AddDriver(off)

	d1 := s.create(t, "b-1")
	d2 := s.create(t, "b-2")

	w := s.do(http.MethodPost, "/v1/dispatches/"+d1.ID+"/assign", `{"driver_id":"drv-7"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/v1/dispatches/"+d2.ID+"/assign", `{"driver_id":"drv-7"}`)
	assertErrorCode(t, w, http.StatusConflict, CodeDriverUnavailable)

	w = s.do(http.MethodPost, "/v1/dispatches/"+d2.ID+"/assign", `{"driver_id":"drv-8"}`)
	assertErrorCode(t, w, http.StatusConflict, CodeDriverUnavailable)

	w = s.do(http.MethodPost, "/v1/dispatches/"+d2.ID+"/assign", `{"driver_id":"ghost"}`)
	assertErrorCode(t, w, http.StatusNotFound, CodeNotFound)

	w = s.do(http.MethodPost, "/v1/dispatches/"+d2.ID+"/assign", `{}`)
	assertErrorCode(t, w, http.StatusBadRequest, CodeInvalidRequest)
}

func TestUnassignAfterDispatchIsInvalidState(t *testing.T) {
	s := newTestServer(t)
	s.store.AddDriver(tests.ActiveDriver("drv-7"))
	d := s.create(t, "b-1")
	base := "/v1/dispatches/" + d.ID

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/assign", `{"driver_id":"drv-7"}`).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/advance", `{"status":"dispatched"}`).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/advance", `{"status":"in_transit"}`).Code)

	assertErrorCode(t, s.do(http.MethodPost, base+"/unassign", ""), http.StatusConflict, CodeInvalidState)
}

func TestUnassignPending(t *testing.T) {
	s := newTestServer(t)
	s.store.AddDriver(tests.ActiveDriver("drv-7"))
	d := s.create(t, "b-1")
	base := "/v1/dispatches/" + d.ID

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/assign", `{"driver_id":"drv-7"}`).Code)
	w := s.do(http.MethodPost, base+"/unassign", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[DispatchResponse](t, w).AssignedDriverID)
}

func TestCancelTwice(t *testing.T) {
	s := newTestServer(t)
	d := s.create(t, "b-1")
	base := "/v1/dispatches/" + d.ID

	w := s.do(http.MethodPost, base+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode[DispatchResponse](t, w).Status)

	assertErrorCode(t, s.do(http.MethodPost, base+"/cancel", ""), http.StatusConflict, CodeInvalidTransition)
}

func TestDeleteDispatch(t *testing.T) {
	s := newTestServer(t)
	s.store.AddDriver(tests.ActiveDriver("drv-7"))

	pending := s.create(t, "b-1")
	w := s.do(http.MethodDelete, "/v1/dispatches/"+pending.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assertErrorCode(t, s.do(http.MethodGet, "/v1/bookings/b-1/dispatch", ""), http.StatusNotFound, CodeNotFound)

	dispatched := s.create(t, "b-2")
	base := "/v1/dispatches/" + dispatched.ID
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/assign", `{"driver_id":"drv-7"}`).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/advance", `{"status":"dispatched"}`).Code)
	assertErrorCode(t, s.do(http.MethodDelete, base, ""), http.StatusConflict, CodeInvalidState)
}

func TestGetByBooking(t *testing.T) {
	s := newTestServer(t)
	d := s.create(t, "b-1")

	w := s.do(http.MethodGet, "/v1/bookings/b-1/dispatch", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[DispatchResponse](t, w)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, "pending", got.Status)

	assertErrorCode(t, s.do(http.MethodGet, "/v1/bookings/unknown/dispatch", ""), http.StatusNotFound, CodeNotFound)
}

func TestListDispatches(t *testing.T) {
	s := newTestServer(t)
	s.store.AddDriver(tests.ActiveDriver("drv-7"))
	for _, id := range []string{"b-1", "b-2", "b-3"} {
		s.create(t, id)
	}
	cancelled := s.create(t, "b-4")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/dispatches/"+cancelled.ID+"/cancel", "").Code)

	w := s.do(http.MethodGet, "/v1/dispatches", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[DispatchListResponse](t, w)
	assert.Len(t, page.Items, 4)
	assert.Equal(t, 0, page.Skip)
	assert.Equal(t, 20, page.Limit)

	w = s.do(http.MethodGet, "/v1/dispatches?status=pending&limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[DispatchListResponse](t, w)
	assert.Len(t, page.Items, 2)
	for _, d := range page.Items {
		assert.Equal(t, "pending", d.Status)
	}

	w = s.do(http.MethodGet, "/v1/dispatches?limit=1000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, decode[DispatchListResponse](t, w).Limit)

	w = s.do(http.MethodGet, "/v1/dispatches?booking_id=b-2", "")
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[DispatchListResponse](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "b-2", page.Items[0].BookingID)

	assertErrorCode(t, s.do(http.MethodGet, "/v1/dispatches?status=lost", ""), http.StatusBadRequest, CodeInvalidRequest)
	assertErrorCode(t, s.do(http.MethodGet, "/v1/dispatches?skip=x", ""), http.StatusBadRequest, CodeInvalidRequest)
	assertErrorCode(t, s.do(http.MethodGet, "/v1/dispatches?limit=abc", ""), http.StatusBadRequest, CodeInvalidRequest)
}

func TestListDispatches_ClampsOutOfRangePage(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "b-1")
	s.create(t, "b-2")

	w := s.do(http.MethodGet, "/v1/dispatches?limit=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[DispatchListResponse](t, w)
	assert.Equal(t, 1, page.Limit)
	assert.Len(t, page.Items, 1)

	w = s.do(http.MethodGet, "/v1/dispatches?skip=-5&limit=-3", "")
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[DispatchListResponse](t, w)
	assert.Equal(t, 0, page.Skip)
	assert.Equal(t, 1, page.Limit)
}

func TestListAvailableDrivers(t *testing.T) {
	s := newTestServer(t)
	low := tests.ActiveDriver("drv-1")
	low.Rating = 3.9
	high := tests.ActiveDriver("drv-2")
	high.Rating = 4.9
	high.Shift = &domain.Shift{Start: domain.TimeOfDay(8 * time.Hour), End: domain.TimeOfDay(16 * time.Hour)}
	busy := tests.ActiveDriver("drv-3")
	s.store.AddDriver(low)
	s.store.AddDriver(high)
	s.store.AddDriver(busy)

	d := s.create(t, "b-1")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/dispatches/"+d.ID+"/assign", `{"driver_id":"drv-3"}`).Code)

	w := s.do(http.MethodGet, "/v1/drivers/available", "")
	require.Equal(t, http.StatusOK, w.Code)
	drivers := decode[[]DriverResponse](t, w)
	require.Len(t, drivers, 2)
	assert.Equal(t, "drv-2", drivers[0].ID)
	assert.Equal(t, "08:00:00", drivers[0].ShiftStart)
	assert.Equal(t, "16:00:00", drivers[0].ShiftEnd)
	assert.Equal(t, "drv-1", drivers[1].ID)

	w = s.do(http.MethodGet, "/v1/drivers/drv-3/dispatches", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[DispatchListResponse](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, d.ID, page.Items[0].ID)
}

func TestListAvailableDriversEmpty(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/v1/drivers/available", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMapErrorDefaultsToInternal(t *testing.T) {
	code, status := mapError(assert.AnError)
	assert.Equal(t, CodeInternal, code)
	assert.Equal(t, http.StatusInternalServerError, status)
}
