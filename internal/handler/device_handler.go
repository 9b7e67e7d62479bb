package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/quocanhngo/guardian/internal/service"
)

// DeviceHandler handles device configuration
type DeviceHandler struct {
	deviceService *service.DeviceService
}

func NewDeviceHandler(deviceService *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

// UpdateConfig godoc
// @Summary Update device thresholds
// @Description Stores the thresholds and publishes them to device/{code}/config
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Device code"
// @Param body body model.UpdateDeviceConfigRequest true "Device config"
// @Success 200 {object} model.Device
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 502 {object} model.ErrorResponse
// @Router /devices/{code}/config [post]
func (h *DeviceHandler) UpdateConfig(c *gin.Context) {
	var req model.UpdateDeviceConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	device, err := h.deviceService.UpdateConfig(c.Request.Context(), userID, c.Param("code"), req)
	if err != nil {
		if device != nil {
			// Stored, but the broker did not take the command
			c.JSON(http.StatusBadGateway, model.ErrorResponse{Error: "Config saved but not delivered", Message: err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}
