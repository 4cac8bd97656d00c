package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/botforgehq/botforge-go/internal/infrastructure/security"
	"github.com/botforgehq/botforge-go/pkg/config"
)

// OperatorAuthMiddleware guards the ops endpoints with the operator JWT.
// Tokens arrive as "Authorization: Bearer <token>" or a "token" query param
// for WebSocket clients.
func OperatorAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.OpsJWTSecret == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "operator access is not configured"})
			c.Abort()
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "operator token required"})
			c.Abort()
			return
		}

		claims, err := security.ValidateJWT(token, config.OpsJWTSecret)
		if err != nil || !security.IsOperatorClaims(claims) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator token"})
			c.Abort()
			return
		}

		if operatorID, ok := claims["sub"].(string); ok {
			c.Set("operatorId", operatorID)
		}
		c.Next()
	}
}
