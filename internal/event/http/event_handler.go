// Package http exposes event publishing over the admin API.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/propflow/internal/event/http/dto"
	eventUseCase "github.com/allisson/propflow/internal/event/usecase"
	"github.com/allisson/propflow/internal/httputil"
	customValidation "github.com/allisson/propflow/internal/validation"
)

// EventHandler handles event publishing requests.
type EventHandler struct {
	bus    eventUseCase.UseCase
	logger *slog.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(bus eventUseCase.UseCase, logger *slog.Logger) *EventHandler {
	return &EventHandler{bus: bus, logger: logger}
}

// PublishHandler publishes an event. Handlers run before the response is written,
// but their failures are not reported to the caller.
// POST /v1/events
func (h *EventHandler) PublishHandler(c *gin.Context) {
	var req dto.PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	event, err := h.bus.PublishRaw(c.Request.Context(), req.Type, req.Data)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.MapEventToResponse(event))
}
