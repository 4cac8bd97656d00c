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

// SessionHandlers contains the session admin HTTP handlers
type SessionHandlers struct {
	storage     *services.SessionStorageService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewSessionHandlers creates session handlers with injected dependencies
func NewSessionHandlers(storage *services.SessionStorageService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionHandlers {
	return &SessionHandlers{
		storage:     storage,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// GetSession handles GET /api/v1/sessions/:botId/:participantId
func (h *SessionHandlers) GetSession(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	sess, err := h.storage.GetSession(c.Request.Context(), tenantCtx, c.Param("botId"), c.Param("participantId"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.LogError(logging.ChannelCache, "get_session", err, tenantCtx.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	c.JSON(http.StatusOK, sess)
}

// ListSessions handles GET /api/v1/sessions/:botId - durable rows for a bot
func (h *SessionHandlers) ListSessions(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	sessions, err := tenantCtx.SessionRepo().FindByBot(c.Request.Context(), tenantCtx.TenantID, c.Param("botId"))
	if err != nil {
		h.logger.LogError(logging.ChannelDatabase, "list_sessions", err, tenantCtx.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// DeleteSession handles DELETE /api/v1/sessions/:botId/:participantId
func (h *SessionHandlers) DeleteSession(c *gin.Context) {
	tenantCtx, exists := middleware.GetTenantContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	if err := h.storage.DeleteSession(c.Request.Context(), tenantCtx, c.Param("botId"), c.Param("participantId")); err != nil {
		h.logger.LogError(logging.ChannelDatabase, "delete_session", err, tenantCtx.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
