package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tms/internal/config"
	"tms/internal/domain"
	"tms/internal/handler"
	"tms/internal/logger"
	"tms/internal/metrics"
	"tms/internal/middleware"
	"tms/internal/service"
	"tms/internal/tests"
)

func newTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, *tests.MockStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := tests.NewMockStore()
	recorder, err := metrics.NewPromRecorder(prometheus.NewRegistry())
	require.NoError(t, err)

	clock := tests.FixedClock(tests.BaseTime)
	dispatches := service.NewDispatchService(store, service.DispatchServiceOptions{
		Metrics: recorder,
		Clock:   clock,
	})
	queries := service.NewQueryService(store.Dispatches(), nil, nil)
	availability := service.NewAvailabilityService(store.Drivers(), store.Dispatches(), recorder)

	router := NewRouter(RouterDeps{
		DispatchHandler: handler.NewDispatchHandler(dispatches, queries),
		DriverHandler:   handler.NewDriverHandler(availability, queries, clock),
		Metrics:         recorder.Handler(),
		Logger:          logger.NopLogger{},
		Config:          cfg,
	})
	return router, store
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, config.Default())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router, store := newTestRouter(t, config.Default())
	store.AddBooking(tests.Booking("b-1"))

	req := httptest.NewRequest(http.MethodPost, "/v1/dispatches", strings.NewReader(`{"booking_id":"b-1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tms_dispatch_operations_total")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	router, _ := newTestRouter(t, cfg)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthRequiredWhenSecretConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "s3cret"
	router, store := newTestRouter(t, cfg)
	store.AddBooking(tests.Booking("b-1"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/dispatches", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.IssueToken("s3cret", cfg.Auth.Issuer, domain.Operator{ID: "op-9", Role: "dispatcher"}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/dispatches", strings.NewReader(`{"booking_id":"b-1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health stays public")
}

func TestCORSPreflight(t *testing.T) {
	cfg := config.Default()
	cfg.Server.CORSOrigins = "https://ops.example.com"
	router, _ := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/v1/dispatches", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
