package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tms/internal/domain"
	"tms/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	availabilityService *service.AvailabilityService
	queryService        *service.QueryService
	now                 func() time.Time
}

// NewDriverHandler creates a new DriverHandler. A nil clock uses time.Now.
func NewDriverHandler(availabilityService *service.AvailabilityService, queryService *service.QueryService, clock func() time.Time) *DriverHandler {
	if clock == nil {
		clock = time.Now
	}
	return &DriverHandler{
		availabilityService: availabilityService,
		queryService:        queryService,
		now:                 clock,
	}
}

// DriverResponse is the HTTP response for driver data.
type DriverResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Phone           string  `json:"phone,omitempty"`
	LicenseNumber   string  `json:"license_number,omitempty"`
	LicenseExpiry   string  `json:"license_expiry"`
	ShiftStart      string  `json:"shift_start,omitempty"`
	ShiftEnd        string  `json:"shift_end,omitempty"`
	Status          string  `json:"status"`
	IsAvailable     bool    `json:"is_available"`
	TotalTrips      int     `json:"total_trips"`
	Rating          float64 `json:"rating"`
	AssignedTruckID string  `json:"assigned_truck_id,omitempty"`
}

func toDriverResponse(d *domain.Driver) DriverResponse {
	resp := DriverResponse{
		ID:              d.ID,
		Name:            d.Name,
		Phone:           d.Phone,
		LicenseNumber:   d.LicenseNumber,
		LicenseExpiry:   formatTime(d.LicenseExpiry),
		Status:          string(d.Status),
		IsAvailable:     d.IsAvailable,
		TotalTrips:      d.TotalTrips,
		Rating:          d.Rating,
		AssignedTruckID: d.AssignedTruckID,
	}
	if d.Shift != nil {
		resp.ShiftStart = d.Shift.Start.String()
		resp.ShiftEnd = d.Shift.End.String()
	}
	return resp
}

// ListAvailable handles GET /v1/drivers/available
func (h *DriverHandler) ListAvailable(c *gin.Context) {
	drivers, err := h.availabilityService.ListAvailable(c.Request.Context(), h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]DriverResponse, 0, len(drivers))
	for _, d := range drivers {
		response = append(response, toDriverResponse(d))
	}

	respondJSON(c, http.StatusOK, response)
}

// ListDispatches handles GET /v1/drivers/:id/dispatches
func (h *DriverHandler) ListDispatches(c *gin.Context) {
	skip, limit, ok := pageParams(c)
	if !ok {
		return
	}

	page, err := h.queryService.GetByDriver(c.Request.Context(), c.Param("id"), skip, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDispatchListResponse(page))
}
