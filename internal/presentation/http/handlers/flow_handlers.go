package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/performance"
	"github.com/botforgehq/botforge-go/internal/presentation/http/middleware"
)

// maxFlowDefinitionBytes bounds uploaded definitions.
const maxFlowDefinitionBytes = 4 << 20

// FlowHandlers contains the flow definition HTTP handlers
type FlowHandlers struct {
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewFlowHandlers creates flow handlers with injected dependencies
func NewFlowHandlers(logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *FlowHandlers {
	return &FlowHandlers{
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// readDefinition parses and validates the request body as a flow definition.
func (h *FlowHandlers) readDefinition(c *gin.Context) (*flow.Definition, []byte, bool) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFlowDefinitionBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return nil, nil, false
	}

	def, err := flow.ParseDefinition(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	return def, raw, true
}

// PostValidate handles POST /api/v1/flows/validate - structural checks only
func (h *FlowHandlers) PostValidate(c *gin.Context) {
	def, _, ok := h.readDefinition(c)
	if !ok {
		return
	}

	issues := def.Validate()
	c.JSON(http.StatusOK, gin.H{
		"valid":  !flow.HasErrors(issues),
		"issues": issues,
	})
}

// PostFlow handles POST /api/v1/flows - validates and persists a definition
func (h *FlowHandlers) PostFlow(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	def, raw, ok := h.readDefinition(c)
	if !ok {
		return
	}

	issues := def.Validate()
	if flow.HasErrors(issues) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"valid": false, "issues": issues})
		return
	}

	if err := tenantCtx.FlowRepo().Save(c.Request.Context(), tenantCtx.TenantID, def, raw); err != nil {
		h.logger.LogError(logging.ChannelDatabase, "save_flow", err, tenantCtx.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save flow"})
		return
	}

	h.logger.System().Info("Flow definition saved",
		"tenantId", tenantCtx.TenantID, "flowId", def.ID, "botId", def.BotID,
		"version", def.Version, "nodes", len(def.Nodes), "warnings", len(issues))
	c.JSON(http.StatusOK, gin.H{"valid": true, "flowId": def.ID, "issues": issues})
}

// GetFlow handles GET /api/v1/flows/:flowId
func (h *FlowHandlers) GetFlow(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	def, err := tenantCtx.FlowRepo().FindByID(c.Request.Context(), tenantCtx.TenantID, c.Param("flowId"))
	if err != nil {
		h.logger.LogError(logging.ChannelDatabase, "get_flow", err, tenantCtx.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load flow"})
		return
	}
	if def == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "flow not found"})
		return
	}

	c.JSON(http.StatusOK, def)
}

// GetActiveFlow handles GET /api/v1/bots/:botId/flow
func (h *FlowHandlers) GetActiveFlow(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	def, err := tenantCtx.FlowRepo().FindActiveByBot(c.Request.Context(), tenantCtx.TenantID, c.Param("botId"))
	if err != nil {
		h.logger.LogError(logging.ChannelDatabase, "get_active_flow", err, tenantCtx.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load active flow"})
		return
	}
	if def == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot has no active flow"})
		return
	}

	c.JSON(http.StatusOK, def)
}
