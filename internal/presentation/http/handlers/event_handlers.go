package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/botforgehq/botforge-go/internal/application/services"
	"github.com/botforgehq/botforge-go/internal/domain/engine"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/performance"
	"github.com/botforgehq/botforge-go/internal/presentation/http/middleware"
)

// EventHandlers accepts inbound chat events from the transport layer
// (Telegram webhook adapters post normalized events here).
type EventHandlers struct {
	execution   *services.ExecutionService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewEventHandlers creates event handlers with injected dependencies
func NewEventHandlers(execution *services.ExecutionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *EventHandlers {
	return &EventHandlers{
		execution:   execution,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

type eventRequest struct {
	Type          string `json:"type" binding:"required"`
	BotID         string `json:"botId" binding:"required"`
	ParticipantID string `json:"participantId" binding:"required"`
	Text          string `json:"text,omitempty"`
	CallbackData  string `json:"callbackData,omitempty"`
}

// PostEvent handles POST /api/v1/events - runs one inbound event through
// the flow engine and reports the resulting session position.
func (h *EventHandlers) PostEvent(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type, botId and participantId are required"})
		return
	}

	eventType := engine.EventType(req.Type)
	switch eventType {
	case engine.EventMessage, engine.EventCallback:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be message or callback"})
		return
	}

	res, err := h.execution.HandleEvent(c.Request.Context(), tenantCtx, engine.Event{
		Type:          eventType,
		BotID:         req.BotID,
		ParticipantID: req.ParticipantID,
		Text:          req.Text,
		CallbackData:  req.CallbackData,
		ReceivedAt:    time.Now().UTC(),
	})
	if err != nil {
		h.logger.LogError(logging.ChannelEngine, "handle_event", err, tenantCtx.TenantID)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"currentNodeId": res.Session.CurrentNodeID,
		"status":        res.Session.Status,
		"completed":     res.Completed,
		"actions":       len(res.Actions),
		"waiting":       res.Session.PendingWait != nil,
	})
}
