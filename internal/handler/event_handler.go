package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"github.com/quocanhngo/guardian/internal/service"
)

// EventHandler serves event history
type EventHandler struct {
	eventService *service.EventService
}

func NewEventHandler(eventService *service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// ListEvents godoc
// @Summary List an elder's events
// @Description Newest first. Pass the timestamp of the last event as before to page.
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param id path string true "Elder ID"
// @Param limit query int false "Page size (max 200)"
// @Param before query string false "RFC3339 cursor"
// @Success 200 {array} model.Event
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /elders/{id}/events [get]
func (h *EventHandler) ListEvents(c *gin.Context) {
	elderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid elder ID"})
		return
	}

	var req model.EventListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	var before *time.Time
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339Nano, req.Before)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid before cursor", Message: err.Error()})
			return
		}
		before = &t
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	events, err := h.eventService.List(c.Request.Context(), userID, elderID, before, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// CancelEvent godoc
// @Summary Cancel an event
// @Description Marks an event as a false alarm and notifies live clients
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 200 {object} model.Event
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /events/{id}/cancel [post]
func (h *EventHandler) CancelEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid event ID"})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	event, err := h.eventService.Cancel(c.Request.Context(), userID, eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}
