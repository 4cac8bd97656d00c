package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
)

// HealthHandlers contains liveness and readiness handlers
type HealthHandlers struct {
	tenantManager *tenant.Manager
	startedAt     time.Time
}

// NewHealthHandlers creates health handlers
func NewHealthHandlers(tenantManager *tenant.Manager) *HealthHandlers {
	return &HealthHandlers{
		tenantManager: tenantManager,
		startedAt:     time.Now().UTC(),
	}
}

// GetHealth handles GET /api/v1/health
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	activeTenants, err := h.tenantManager.GetActiveTenantCount()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptime":        time.Since(h.startedAt).String(),
		"activeTenants": activeTenants,
	})
}
