package stores

import (
	"sync"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/types"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

// FlowsStore caches parsed flow definitions per tenant so the engine never
// re-parses graph JSON on the hot path. Definitions are immutable once
// cached; publishing a new version invalidates the old entry.
type FlowsStore struct {
	tenantCaches map[string]*types.TenantFlowCache
	mu           sync.RWMutex
	logger       *logging.ChanneledLogger
}

// NewFlowsStore creates a new flows cache store
func NewFlowsStore(logger *logging.ChanneledLogger) *FlowsStore {
	return &FlowsStore{
		tenantCaches: make(map[string]*types.TenantFlowCache),
		logger:       logger,
	}
}

// InitializeTenant creates cache structures for a tenant
func (fs *FlowsStore) InitializeTenant(tenantID string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.tenantCaches[tenantID] == nil {
		fs.tenantCaches[tenantID] = &types.TenantFlowCache{
			Flows:       make(map[string]*flow.Definition),
			BotToActive: make(map[string]string),
			LastUpdated: time.Now().UTC(),
		}
	}
}

// InvalidateTenant drops all cached flows for a tenant.
func (fs *FlowsStore) InvalidateTenant(tenantID string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.tenantCaches, tenantID)
}

func (fs *FlowsStore) getTenantCache(tenantID string) (*types.TenantFlowCache, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	cache, exists := fs.tenantCaches[tenantID]
	return cache, exists
}

// GetFlow retrieves a parsed definition by flow ID.
func (fs *FlowsStore) GetFlow(tenantID, flowID string) (*flow.Definition, bool) {
	cache, exists := fs.getTenantCache(tenantID)
	if !exists {
		return nil, false
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()
	def, found := cache.Flows[flowID]
	return def, found
}

// SetFlow caches a parsed definition.
func (fs *FlowsStore) SetFlow(tenantID string, def *flow.Definition) {
	cache, exists := fs.getTenantCache(tenantID)
	if !exists {
		fs.InitializeTenant(tenantID)
		cache, _ = fs.getTenantCache(tenantID)
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()
	cache.Flows[def.ID] = def
	cache.LastUpdated = time.Now().UTC()

	if fs.logger != nil {
		fs.logger.Cache().Debug("Cache operation", "operation", "set", "type", "flow", "tenantId", tenantID, "flowId", def.ID, "version", def.Version)
	}
}

// InvalidateFlow removes a cached definition.
func (fs *FlowsStore) InvalidateFlow(tenantID, flowID string) {
	cache, exists := fs.getTenantCache(tenantID)
	if !exists {
		return
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()
	delete(cache.Flows, flowID)
	cache.LastUpdated = time.Now().UTC()
}

// GetActiveFlowID resolves the active flow for a bot.
func (fs *FlowsStore) GetActiveFlowID(tenantID, botID string) (string, bool) {
	cache, exists := fs.getTenantCache(tenantID)
	if !exists {
		return "", false
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()
	flowID, found := cache.BotToActive[botID]
	return flowID, found
}

// SetActiveFlowID records the active flow for a bot.
func (fs *FlowsStore) SetActiveFlowID(tenantID, botID, flowID string) {
	cache, exists := fs.getTenantCache(tenantID)
	if !exists {
		fs.InitializeTenant(tenantID)
		cache, _ = fs.getTenantCache(tenantID)
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()
	cache.BotToActive[botID] = flowID
	cache.LastUpdated = time.Now().UTC()
}
