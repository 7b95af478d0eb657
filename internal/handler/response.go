package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tms/internal/repository"
	"tms/internal/service"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// Machine-readable error codes carried in ErrorResponse.Code.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeDuplicateDispatch = "DUPLICATE_DISPATCH"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeMissingDriver     = "MISSING_DRIVER"
	CodeDriverUnavailable = "DRIVER_UNAVAILABLE"
	CodeInvalidState      = "INVALID_STATE"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInternal          = "INTERNAL"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Infrastructure failures are reported with a generic message.
func respondError(c *gin.Context, err error) {
	code, status := mapError(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		c.JSON(status, ErrorResponse{Error: "internal error", Code: code})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// respondBadRequest sends a 400 with the INVALID_REQUEST code.
func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeInvalidRequest})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapError maps service/repository errors to an error code and HTTP status.
func mapError(err error) (string, int) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return CodeNotFound, http.StatusNotFound

	case errors.Is(err, service.ErrDuplicateDispatch):
		return CodeDuplicateDispatch, http.StatusConflict
	case errors.Is(err, service.ErrInvalidTransition):
		return CodeInvalidTransition, http.StatusConflict
	case errors.Is(err, service.ErrDriverUnavailable):
		return CodeDriverUnavailable, http.StatusConflict
	case errors.Is(err, service.ErrInvalidState):
		return CodeInvalidState, http.StatusConflict

	case errors.Is(err, service.ErrMissingDriver):
		return CodeMissingDriver, http.StatusUnprocessableEntity

	case errors.Is(err, service.ErrInvalidDispatchID),
		errors.Is(err, service.ErrInvalidBookingID),
		errors.Is(err, service.ErrInvalidDriverID),
		errors.Is(err, service.ErrInvalidStatus):
		return CodeInvalidRequest, http.StatusBadRequest

	default:
		return CodeInternal, http.StatusInternalServerError
	}
}

// pageParams reads skip and limit query parameters. Absent values use the
// first page of repository.DefaultPageLimit items.
func pageParams(c *gin.Context) (skip, limit int, ok bool) {
	skip, limit = 0, repository.DefaultPageLimit
	if raw := c.Query("skip"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondBadRequest(c, "skip must be an integer")
			return 0, 0, false
		}
		skip = v
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondBadRequest(c, "limit must be an integer")
			return 0, 0, false
		}
		limit = v
	}
	// Out of range values are clamped by repository.Page.Normalize.
	return skip, limit, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
