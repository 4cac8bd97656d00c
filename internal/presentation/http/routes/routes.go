// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/botforgehq/botforge-go/internal/application/container"
	"github.com/botforgehq/botforge-go/internal/presentation/http/handlers"
	"github.com/botforgehq/botforge-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	eventHandlers := handlers.NewEventHandlers(container.ExecutionService, container.Logger, container.PerfTracker)
	endpointHandlers := handlers.NewEndpointHandlers(container.EndpointBridgeService, container.Logger, container.PerfTracker)
	sessionHandlers := handlers.NewSessionHandlers(container.SessionStorageService, container.Logger, container.PerfTracker)
	groupHandlers := handlers.NewGroupHandlers(container.GroupSessionService, container.Logger, container.PerfTracker)
	flowHandlers := handlers.NewFlowHandlers(container.Logger, container.PerfTracker)
	healthHandlers := handlers.NewHealthHandlers(container.TenantManager)
	opsHandlers := handlers.NewOpsHandlers(container)

	// Operator dashboard endpoints are not tenant scoped.
	ops := r.Group("/api/ops")
	{
		ops.POST("/login", opsHandlers.PostLogin)

		authed := ops.Group("")
		authed.Use(middleware.OperatorAuthMiddleware())
		{
			authed.GET("/logs/levels", opsHandlers.GetLogLevels)
			authed.POST("/logs/levels", opsHandlers.PostLogLevel)
			authed.GET("/logs/stream", opsHandlers.StreamLogs)
			authed.GET("/performance", opsHandlers.GetPerformance)
			authed.GET("/stats/:tenantId", opsHandlers.GetTenantStats)
			authed.GET("/ws", opsHandlers.GetStatsSocket)
		}
	}

	// API routes with tenant middleware
	api := r.Group("/api/v1")
	api.Use(middleware.TenantMiddleware(container.TenantManager, container.PerfTracker))
	api.Use(middleware.DomainValidationMiddleware(container.TenantManager))
	{
		api.GET("/health", healthHandlers.GetHealth)

		// Inbound participant events (messages, button callbacks)
		api.POST("/events", eventHandlers.PostEvent)

		// External system payload ingestion
		api.POST("/endpoint/:botId/:nodeId", endpointHandlers.PostIngest)

		// Session administration
		sessions := api.Group("/sessions")
		{
			sessions.GET("/:botId", sessionHandlers.ListSessions)
			sessions.GET("/:botId/:participantId", sessionHandlers.GetSession)
			sessions.DELETE("/:botId/:participantId", sessionHandlers.DeleteSession)
		}

		// Group lifecycle and membership
		groups := api.Group("/groups")
		{
			groups.POST("", groupHandlers.PostGroup)
			groups.GET("/:groupId", groupHandlers.GetGroup)
			groups.POST("/:groupId/join", groupHandlers.PostJoin)
			groups.POST("/:groupId/leave", groupHandlers.PostLeave)
			groups.POST("/:groupId/archive", groupHandlers.PostArchive)
		}

		// Flow definitions
		flows := api.Group("/flows")
		{
			flows.POST("", flowHandlers.PostFlow)
			flows.POST("/validate", flowHandlers.PostValidate)
			flows.GET("/:flowId", flowHandlers.GetFlow)
		}
		api.GET("/bots/:botId/flow", flowHandlers.GetActiveFlow)
	}

	return r
}
