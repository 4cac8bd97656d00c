package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/botforgehq/botforge-go/pkg/config"
)

// CORSMiddleware allows the dashboard origins configured for this
// deployment. The defaults cover local dashboard development.
func CORSMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins: config.DashboardOrigins,
		AllowMethods: []string{
			"GET", "POST", "PUT", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"X-Tenant-ID", "X-Access-Key", "X-Requested-With",
			"Cache-Control",
		},
		AllowCredentials: true,
		ExposeHeaders: []string{
			"Content-Type", "Cache-Control", "Connection",
		},
	}

	return cors.New(cfg)
}
