// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/botforgehq/botforge-go/internal/application/services"
	"github.com/botforgehq/botforge-go/internal/domain/engine"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/manager"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/types"
	"github.com/botforgehq/botforge-go/internal/infrastructure/messaging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/performance"
	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
	"github.com/botforgehq/botforge-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services (stateless singletons)
	SessionStorageService *services.SessionStorageService
	GroupSessionService   *services.GroupSessionService
	ExecutionService      *services.ExecutionService
	EndpointBridgeService *services.EndpointBridgeService

	// Domain
	Engine *engine.Engine

	// Infrastructure dependencies
	TenantManager  *tenant.Manager
	CacheManager   *manager.Manager
	Dispatcher     *messaging.Dispatcher
	OpsBroadcaster *messaging.OpsBroadcaster
	Logger         *logging.ChanneledLogger
	PerfTracker    *performance.Tracker
}

// NewContainer creates and wires all singleton services. The session cache
// backend (in-process or Redis) is chosen from config; the transport may be
// nil, in which case delivery is a logged no-op.
func NewContainer(transport messaging.Transport) (*Container, error) {
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	perfTracker := performance.NewTracker(1024)

	cacheConfig := &types.CacheConfig{
		SessionTTL: config.SessionCacheTTL,
		GroupTTL:   config.SessionCacheTTL,
		FlowTTL:    types.DefaultCacheConfig().FlowTTL,
	}

	var cacheManager *manager.Manager
	if config.CacheBackend == "redis" {
		cacheManager, err = manager.NewManagerWithRedis(config.RedisURL, cacheConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect session cache to redis: %w", err)
		}
		logger.Startup().Info("Session cache backend: redis")
	} else {
		cacheManager = manager.NewManager(cacheConfig, logger)
		logger.Startup().Info("Session cache backend: memory")
	}

	tenantManager := tenant.NewManager(cacheManager, logger)

	dispatcher := messaging.NewDispatcher(config.DispatchQueueSize, config.DispatchWorkers, transport, logger)
	opsBroadcaster := messaging.NewOpsBroadcaster(cacheManager, dispatcher, logger)

	flowEngine := engine.NewEngine(logger, engine.Options{
		Recipients:     services.NewParticipantResolver(tenantManager),
		WebhookTimeout: config.WebhookDefaultTimeout,
		RetryBackoff:   config.WebhookRetryBackoff,
	})

	policy := services.NewPersistencePolicy(config.SessionCriticalStates)
	storage := services.NewSessionStorageService(policy, logger, perfTracker)
	groups := services.NewGroupSessionService(logger, perfTracker)
	execution := services.NewExecutionService(flowEngine, storage, groups, dispatcher, nil, logger, perfTracker)
	bridge := services.NewEndpointBridgeService(execution, logger, perfTracker)

	return &Container{
		SessionStorageService: storage,
		GroupSessionService:   groups,
		ExecutionService:      execution,
		EndpointBridgeService: bridge,

		Engine: flowEngine,

		TenantManager:  tenantManager,
		CacheManager:   cacheManager,
		Dispatcher:     dispatcher,
		OpsBroadcaster: opsBroadcaster,
		Logger:         logger,
		PerfTracker:    perfTracker,
	}, nil
}
