package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tms/internal/domain"
	"tms/internal/middleware"
	"tms/internal/service"
)

// DispatchHandler handles HTTP requests for dispatches.
type DispatchHandler struct {
	dispatchService *service.DispatchService
	queryService    *service.QueryService
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(dispatchService *service.DispatchService, queryService *service.QueryService) *DispatchHandler {
	return &DispatchHandler{
		dispatchService: dispatchService,
		queryService:    queryService,
	}
}

// CreateDispatchRequest is the HTTP request body for creating a dispatch.
type CreateDispatchRequest struct {
	BookingID string `json:"booking_id"`
}

// AssignDriverRequest is the HTTP request body for assigning a driver.
type AssignDriverRequest struct {
	DriverID string `json:"driver_id"`
}

// AdvanceRequest is the HTTP request body for moving a dispatch forward.
type AdvanceRequest struct {
	Status string `json:"status"`
	// At is an optional RFC 3339 timestamp recorded as the dispatch or
	// arrival time.
	At string `json:"at,omitempty"`
}

// DispatchResponse is the HTTP response for dispatch data.
type DispatchResponse struct {
	ID               string `json:"id"`
	BookingID        string `json:"booking_id"`
	AssignedDriverID string `json:"assigned_driver_id,omitempty"`
	Status           string `json:"status"`
	DispatchTime     string `json:"dispatch_time,omitempty"`
	ArrivalTime      string `json:"arrival_time,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// DispatchListResponse is one page of dispatches.
type DispatchListResponse struct {
	Items []DispatchResponse `json:"items"`
	Skip  int                `json:"skip"`
	Limit int                `json:"limit"`
}

func toDispatchResponse(d *domain.Dispatch) DispatchResponse {
	return DispatchResponse{
		ID:               d.ID,
		BookingID:        d.BookingID,
		AssignedDriverID: d.AssignedDriverID,
		Status:           string(d.Status),
		DispatchTime:     formatTime(d.DispatchTime),
		ArrivalTime:      formatTime(d.ArrivalTime),
		CreatedAt:        formatTime(d.CreatedAt),
		UpdatedAt:        formatTime(d.UpdatedAt),
	}
}

func toDispatchListResponse(page *service.DispatchPage) DispatchListResponse {
	items := make([]DispatchResponse, 0, len(page.Items))
	for _, d := range page.Items {
		items = append(items, toDispatchResponse(d))
	}
	return DispatchListResponse{Items: items, Skip: page.Skip, Limit: page.Limit}
}

// Create handles POST /v1/dispatches
func (h *DispatchHandler) Create(c *gin.Context) {
	var req CreateDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	dispatch, err := h.dispatchService.CreateDispatch(c.Request.Context(), service.CreateDispatchRequest{
		BookingID: req.BookingID,
		Operator:  middleware.OperatorFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toDispatchResponse(dispatch))
}

// List handles GET /v1/dispatches
func (h *DispatchHandler) List(c *gin.Context) {
	skip, limit, ok := pageParams(c)
	if !ok {
		return
	}

	page, err := h.queryService.List(c.Request.Context(), service.ListDispatchesRequest{
		Status:           c.Query("status"),
		BookingID:        c.Query("booking_id"),
		AssignedDriverID: c.Query("assigned_driver"),
		Skip:             skip,
		Limit:            limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDispatchListResponse(page))
}

// Get handles GET /v1/dispatches/:id
func (h *DispatchHandler) Get(c *gin.Context) {
	dispatch, err := h.queryService.GetDispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDispatchResponse(dispatch))
}

// GetByBooking handles GET /v1/bookings/:id/dispatch
func (h *DispatchHandler) GetByBooking(c *gin.Context) {
	dispatch, err := h.queryService.GetByBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDispatchResponse(dispatch))
}

// Assign handles POST /v1/dispatches/:id/assign
func (h *DispatchHandler) Assign(c *gin.Context) {
	var req AssignDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	dispatch, err := h.dispatchService.AssignDriver(c.Request.Context(), service.AssignDriverRequest{
		DispatchID: c.Param("id"),
		DriverID:   req.DriverID,
		Operator:   middleware.OperatorFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDispatchResponse(dispatch))
}

// Unassign handles POST /v1/dispatches/:id/unassign
func (h *DispatchHandler) Unassign(c *gin.Context) {
	dispatch, err := h.dispatchService.UnassignDriver(c.Request.Context(), service.UnassignDriverRequest{
		DispatchID: c.Param("id"),
		Operator:   middleware.OperatorFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDispatchResponse(dispatch))
}

// Advance handles POST /v1/dispatches/:id/advance
func (h *DispatchHandler) Advance(c *gin.Context) {
	var req AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.Status == "" {
		respondBadRequest(c, "status is required")
		return
	}

	var at time.Time
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			respondBadRequest(c, "at must be an RFC 3339 timestamp")
			return
		}
		at = parsed
	}

	// Unknown statuses are rejected by the state machine as invalid transitions.
	dispatch, err := h.dispatchService.Advance(c.Request.Context(), service.AdvanceRequest{
		DispatchID:   c.Param("id"),
		TargetStatus: domain.DispatchStatus(req.Status),
		At:           at,
		Operator:     middleware.OperatorFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDispatchResponse(dispatch))
}

// Cancel handles POST /v1/dispatches/:id/cancel
func (h *DispatchHandler) Cancel(c *gin.Context) {
	dispatch, err := h.dispatchService.Cancel(c.Request.Context(), service.CancelRequest{
		DispatchID: c.Param("id"),
		Operator:   middleware.OperatorFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDispatchResponse(dispatch))
}

// Delete handles DELETE /v1/dispatches/:id
func (h *DispatchHandler) Delete(c *gin.Context) {
	err := h.dispatchService.DeleteIfPending(c.Request.Context(), service.DeleteDispatchRequest{
		DispatchID: c.Param("id"),
		Operator:   middleware.OperatorFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
