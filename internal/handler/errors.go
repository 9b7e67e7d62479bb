package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/quocanhngo/guardian/internal/service"
)

// respondError maps service errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Not found", Message: err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "Forbidden", Message: err.Error()})
	case errors.Is(err, service.ErrDeviceUnpaired):
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "Device not paired", Message: err.Error()})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Internal error"})
	}
}
