// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botforgehq/botforge-go/internal/application/services"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/performance"
	"github.com/botforgehq/botforge-go/internal/presentation/http/middleware"
)

// EndpointHandlers contains the endpoint bridge HTTP handlers
type EndpointHandlers struct {
	bridge      *services.EndpointBridgeService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewEndpointHandlers creates endpoint handlers with injected dependencies
func NewEndpointHandlers(bridge *services.EndpointBridgeService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *EndpointHandlers {
	return &EndpointHandlers{
		bridge:      bridge,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// ingestRequest is the inbound payload shape. The access key may arrive in
// the body instead of the X-Access-Key header; participantId is optional
// (absent means a bot-wide payload).
type ingestRequest struct {
	AccessKey     string         `json:"accessKey,omitempty"`
	ParticipantID string         `json:"participantId,omitempty"`
	Data          map[string]any `json:"data"`
}

// PostIngest handles POST /api/v1/endpoint/:botId/:nodeId - accepts an
// external payload for an endpoint node and resumes the waiting session.
func (h *EndpointHandlers) PostIngest(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	botID := c.Param("botId")
	nodeID := c.Param("nodeId")

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	accessKey := c.GetHeader("X-Access-Key")
	if accessKey == "" {
		accessKey = req.AccessKey
	}

	result, err := h.bridge.Ingest(c.Request.Context(), tenantCtx, botID, nodeID, req.ParticipantID, accessKey, req.Data)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAccessKey):
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid access key"})
		case errors.Is(err, services.ErrUnknownEndpointNode):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "unknown endpoint node"})
		default:
			h.logger.LogError(logging.ChannelEndpoint, "endpoint_ingest", err, tenantCtx.TenantID)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "ingest failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
