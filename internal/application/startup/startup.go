// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/botforgehq/botforge-go/internal/application/container"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/cleanup"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
	"github.com/botforgehq/botforge-go/internal/presentation/http/server"
	"github.com/botforgehq/botforge-go/pkg/config"
)

// Initialize performs the complete multi-tenant startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[32m" + `

  ▄▄▄▄   ▄▄▄▄▄ ▄▄▄▄▄ ▄▄▄▄▄ ▄▄▄▄▄ ▄▄▄▄▄ ▄▄▄▄▄ ▄▄▄▄▄
  ██  █▄ ██ ██   ██   ██▄▄  ██ ██ ██▄█▀ ██ ▄▄ ██▄▄
  ██▄▄█▀ ██▄██   ██   ██    ██▄██ ██ ▀█ ██▄██ ██▄▄▄
` + "\033[97m" + `
  bot flows, delivered
` + "\033[0m")

	// Step 1: Create dependency injection container
	log.Println("Initializing dependency injection container...")
	appContainer, err := container.NewContainer(nil)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	logger := appContainer.Logger
	logger.Startup().Info("Container initialization complete - switching to channeled logging")

	tenantManager := appContainer.TenantManager
	cacheManager := appContainer.CacheManager

	// Step 2: Load tenant registry to discover all tenants
	logger.Startup().Info("Loading tenant registry...")
	registry, err := tenant.LoadTenantRegistry()
	if err != nil {
		return fmt.Errorf("failed to load tenant registry: %w", err)
	}

	if len(registry.Tenants) == 0 {
		logger.Startup().Info("No tenants found in registry - creating default tenant")
		if err := tenant.RegisterTenant("default"); err != nil {
			return fmt.Errorf("failed to register default tenant: %w", err)
		}
		registry, err = tenant.LoadTenantRegistry()
		if err != nil {
			return fmt.Errorf("failed to reload registry: %w", err)
		}
	}

	logger.Startup().Info("Tenant registry loaded", "tenants", len(registry.Tenants))

	// Step 3: Pre-activate inactive tenants only
	logger.Startup().Info("Starting tenant pre-activation...")
	if err := tenantManager.PreActivateAllTenants(); err != nil {
		return fmt.Errorf("tenant pre-activation failed: %w", err)
	}

	// Step 4: Validate tenant activation
	if err := tenantManager.ValidatePreActivation(); err != nil {
		return fmt.Errorf("tenant validation failed: %w", err)
	}

	// Step 5: Verify active tenant connections
	activeCount, err := tenantManager.GetActiveTenantCount()
	if err != nil {
		return fmt.Errorf("failed to get active tenant count: %w", err)
	}
	logger.Startup().Info("Active tenant connections verified", "count", activeCount)

	// Step 6: Ensure durable schemas and warm caches per active tenant
	logger.Startup().Info("Preparing tenant storage...")
	for _, tenantID := range registry.ActiveTenantIDs() {
		tenantCtx, err := tenantManager.ContextFromID(tenantID)
		if err != nil {
			return fmt.Errorf("failed to build context for tenant %s: %w", tenantID, err)
		}
		if err := ensureSchemas(ctx, tenantCtx); err != nil {
			return fmt.Errorf("failed to ensure schema for tenant %s: %w", tenantID, err)
		}
		cacheManager.InitializeTenant(tenantID)
		logger.Startup().Info("Tenant storage ready", "tenantId", tenantID)
	}

	// Step 7: Start the outbound action dispatcher
	logger.Startup().Info("Starting action dispatcher...",
		"queueSize", config.DispatchQueueSize, "workers", config.DispatchWorkers)
	appContainer.Dispatcher.Start()

	// Step 8: Start the ops stats broadcaster
	go appContainer.OpsBroadcaster.Run()
	logger.Startup().Info("Ops stats broadcaster started", "tick", config.OpsTickInterval)

	// Step 9: Start background sweep worker
	cleanupConfig := cleanup.NewConfig()
	sweepWorker := cleanup.NewWorker(cacheManager, registry, tenantManager, cleanupConfig)
	go sweepWorker.Start(ctx)
	logger.Startup().Info("Background sweep worker started", "interval", cleanupConfig.SweepInterval)

	// Step 10: Start HTTP server
	port := os.Getenv("PORT")
	if port == "" {
		port = config.Port
	}
	httpServer := server.New(port, appContainer)

	// Step 11: Setup graceful shutdown
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	totalStartupTime := time.Since(start)
	logger.Startup().Info("Application startup complete",
		"totalDuration", totalStartupTime,
		"activeTenants", activeCount,
		"port", port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	// Cancel background tasks
	cancelBackgroundTasks()

	// Stop server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	// Drain and stop the dispatcher so queued actions are not lost
	logger.Shutdown().Info("Stopping action dispatcher...")
	appContainer.Dispatcher.Stop()
	logger.Shutdown().Info("Action dispatcher stopped",
		"delivered", appContainer.Dispatcher.Delivered(),
		"failed", appContainer.Dispatcher.Failed())

	// Close tenant manager
	logger.Shutdown().Info("Closing tenant manager...")
	if err := tenantManager.Close(); err != nil {
		logger.Shutdown().Error("Error closing tenant manager", "error", err.Error())
	} else {
		logger.Shutdown().Info("Tenant manager closed successfully")
	}

	logging.GetStreamBroadcaster().Shutdown()

	elapsed := time.Since(start)
	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", elapsed,
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// ensureSchemas creates the durable tables for one tenant if missing.
func ensureSchemas(ctx context.Context, tenantCtx *tenant.Context) error {
	if err := tenantCtx.SessionRepo().EnsureSchema(ctx); err != nil {
		return err
	}
	if err := tenantCtx.GroupRepo().EnsureSchema(ctx); err != nil {
		return err
	}
	if err := tenantCtx.ParticipantRepo().EnsureSchema(ctx); err != nil {
		return err
	}
	if err := tenantCtx.FlowRepo().EnsureSchema(ctx); err != nil {
		return err
	}
	return tenantCtx.EndpointPayloadRepo().EnsureSchema(ctx)
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
