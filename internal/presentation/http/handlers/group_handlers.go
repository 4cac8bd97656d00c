package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botforgehq/botforge-go/internal/application/services"
	"github.com/botforgehq/botforge-go/internal/domain/entities/group"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/performance"
	"github.com/botforgehq/botforge-go/internal/presentation/http/middleware"
)

// GroupHandlers contains the group/lobby session HTTP handlers
type GroupHandlers struct {
	groups      *services.GroupSessionService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewGroupHandlers creates group handlers with injected dependencies
func NewGroupHandlers(groups *services.GroupSessionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *GroupHandlers {
	return &GroupHandlers{
		groups:      groups,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

type createGroupRequest struct {
	BotID     string `json:"botId" binding:"required"`
	FlowID    string `json:"flowId" binding:"required"`
	CreatorID string `json:"creatorId" binding:"required"`
	MaxSize   int    `json:"maxSize,omitempty"`
}

type membershipRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

// PostGroup handles POST /api/v1/groups - creates a lobby
func (h *GroupHandlers) PostGroup(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "botId, flowId and creatorId are required"})
		return
	}

	g, err := h.groups.CreateGroup(c.Request.Context(), tenantCtx, req.BotID, req.FlowID, req.CreatorID, req.MaxSize)
	if err != nil {
		if errors.Is(err, services.ErrGroupCapacity) {
			c.JSON(http.StatusConflict, gin.H{"error": "active group cap reached for bot"})
			return
		}
		h.logger.LogError(logging.ChannelGroup, "create_group", err, tenantCtx.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create group"})
		return
	}

	c.JSON(http.StatusCreated, g)
}

// GetGroup handles GET /api/v1/groups/:groupId
func (h *GroupHandlers) GetGroup(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	g, err := h.groups.GetGroup(c.Request.Context(), tenantCtx, c.Param("groupId"))
	if err != nil {
		if errors.Is(err, services.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		h.logger.LogError(logging.ChannelGroup, "get_group", err, tenantCtx.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	c.JSON(http.StatusOK, g)
}

// PostJoin handles POST /api/v1/groups/:groupId/join
func (h *GroupHandlers) PostJoin(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req membershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participantId is required"})
		return
	}

	err := h.groups.AddParticipant(c.Request.Context(), tenantCtx, c.Param("groupId"), req.ParticipantID)
	if err != nil {
		switch {
		case errors.Is(err, group.ErrGroupFull):
			c.JSON(http.StatusConflict, gin.H{"error": "group is at capacity"})
		case errors.Is(err, services.ErrGroupNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		default:
			h.logger.LogError(logging.ChannelGroup, "join_group", err, tenantCtx.TenantID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join group"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PostLeave handles POST /api/v1/groups/:groupId/leave
func (h *GroupHandlers) PostLeave(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	var req membershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participantId is required"})
		return
	}

	err := h.groups.RemoveParticipant(c.Request.Context(), tenantCtx, c.Param("groupId"), req.ParticipantID)
	if err != nil {
		if errors.Is(err, services.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		h.logger.LogError(logging.ChannelGroup, "leave_group", err, tenantCtx.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PostArchive handles POST /api/v1/groups/:groupId/archive
func (h *GroupHandlers) PostArchive(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	if err := h.groups.ArchiveGroup(c.Request.Context(), tenantCtx, c.Param("groupId")); err != nil {
		if errors.Is(err, services.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		h.logger.LogError(logging.ChannelGroup, "archive_group", err, tenantCtx.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to archive group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
