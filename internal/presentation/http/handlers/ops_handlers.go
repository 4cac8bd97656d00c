package handlers

import (
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/botforgehq/botforge-go/internal/application/container"
	"github.com/botforgehq/botforge-go/internal/infrastructure/messaging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/security"
	"github.com/botforgehq/botforge-go/pkg/config"
)

// operatorTokenTTL bounds issued dashboard tokens.
const operatorTokenTTL = 12 * time.Hour

var opsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is same-deployment; CORS already gates browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OpsHandlers contains the operator dashboard HTTP handlers
type OpsHandlers struct {
	container *container.Container
}

// NewOpsHandlers creates ops handlers over the container
func NewOpsHandlers(c *container.Container) *OpsHandlers {
	return &OpsHandlers{container: c}
}

type opsLoginRequest struct {
	OperatorID string `json:"operatorId" binding:"required"`
	Secret     string `json:"secret" binding:"required"`
}

// PostLogin handles POST /api/ops/login - issues an operator JWT
func (h *OpsHandlers) PostLogin(c *gin.Context) {
	if config.OpsJWTSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "operator access is not configured"})
		return
	}

	var req opsLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operatorId and secret are required"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(config.OpsJWTSecret)) != 1 {
		h.container.Logger.Auth().Warn("Operator login rejected", "operatorId", req.OperatorID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := security.GenerateOperatorToken(req.OperatorID, config.OpsJWTSecret, operatorTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	h.container.Logger.Auth().Info("Operator logged in", "operatorId", req.OperatorID)
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresIn": operatorTokenTTL.String()})
}

// GetLogLevels handles GET /api/ops/logs/levels
func (h *OpsHandlers) GetLogLevels(c *gin.Context) {
	levels := h.container.Logger.GetChannelLevels()
	out := make(map[string]string, len(levels))
	for channel, level := range levels {
		out[string(channel)] = level.String()
	}
	c.JSON(http.StatusOK, gin.H{"levels": out})
}

type setLogLevelRequest struct {
	Channel string `json:"channel" binding:"required"`
	Level   string `json:"level" binding:"required"`
}

// PostLogLevel handles POST /api/ops/logs/levels
func (h *OpsHandlers) PostLogLevel(c *gin.Context) {
	var req setLogLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel and level are required"})
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(req.Level)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "level must be DEBUG, INFO, WARN or ERROR"})
		return
	}

	if err := h.container.Logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "channel": req.Channel, "level": level.String()})
}

// GetPerformance handles GET /api/ops/performance
func (h *OpsHandlers) GetPerformance(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.PerfTracker.Summary())
}

// GetTenantStats handles GET /api/ops/stats/:tenantId
func (h *OpsHandlers) GetTenantStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.OpsBroadcaster.StatsForTenant(c.Param("tenantId")))
}

// GetStatsSocket handles GET /api/ops/ws - upgrades to a WebSocket that
// receives per-tenant stats ticks from the broadcaster.
func (h *OpsHandlers) GetStatsSocket(c *gin.Context) {
	tenantID := c.Query("tenantId")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenantId query param is required"})
		return
	}

	conn, err := opsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.container.Logger.SSE().Error("Ops socket upgrade failed", "error", err.Error())
		return
	}

	client := &messaging.OpsClient{
		Conn:     conn,
		TenantID: tenantID,
		Send:     make(chan []byte, 8),
	}
	h.container.OpsBroadcaster.Register(client)

	go h.writePump(client)
	go h.readPump(client)
}

// writePump pushes broadcast ticks to one client until its channel closes.
func (h *OpsHandlers) writePump(client *messaging.OpsClient) {
	defer client.Conn.Close()
	for message := range client.Send {
		if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// readPump consumes (and discards) client frames to detect disconnects.
func (h *OpsHandlers) readPump(client *messaging.OpsClient) {
	defer h.container.OpsBroadcaster.Unregister(client)
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

// StreamLogs handles GET /api/ops/logs/stream - SSE log tail
func (h *OpsHandlers) StreamLogs(c *gin.Context) {
	filters := logging.StreamFilters{}
	if channel := c.Query("channel"); channel != "" {
		filters.Channel = logging.Channel(channel)
	}
	if levelStr := c.Query("level"); levelStr != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelStr)); err == nil {
			filters.Level = level
		}
	}

	broadcaster := logging.GetStreamBroadcaster()
	client := broadcaster.NewClient(filters)
	broadcaster.RegisterClient(client)
	defer broadcaster.UnregisterClient(client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-client.Channel:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
