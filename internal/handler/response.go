package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ipotracker/internal/repository"
	"ipotracker/internal/sebi"
	"ipotracker/internal/service"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// statusFor maps service errors onto HTTP statuses. Anything unknown is an
// upstream or storage failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrOfferingNotFound), errors.Is(err, service.ErrUnknownSwitch):
		return http.StatusNotFound
	case errors.Is(err, sebi.ErrInvalidCloseDate):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrLinkageConflict):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
