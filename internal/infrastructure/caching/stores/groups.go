package stores

import (
	"sync"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/group"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/types"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

// GroupsStore implements group session caching with tenant isolation. The
// membership fast set answers "which group is this participant in for this
// bot" in O(1); group rows remain the authoritative member list.
type GroupsStore struct {
	tenantCaches map[string]*types.TenantGroupCache
	mu           sync.RWMutex
	logger       *logging.ChanneledLogger
}

// NewGroupsStore creates a new groups cache store
func NewGroupsStore(logger *logging.ChanneledLogger) *GroupsStore {
	if logger != nil {
		logger.Cache().Info("Initializing groups cache store")
	}
	return &GroupsStore{
		tenantCaches: make(map[string]*types.TenantGroupCache),
		logger:       logger,
	}
}

// InitializeTenant creates cache structures for a tenant
func (gs *GroupsStore) InitializeTenant(tenantID string) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.tenantCaches[tenantID] == nil {
		gs.tenantCaches[tenantID] = &types.TenantGroupCache{
			Groups:      make(map[string]*group.Group),
			Memberships: make(map[string]string),
			LastLoaded:  time.Now().UTC(),
		}
		if gs.logger != nil {
			gs.logger.Cache().Info("Tenant group cache initialized", "tenantId", tenantID)
		}
	}
}

// InvalidateTenant drops all cached groups for a tenant.
func (gs *GroupsStore) InvalidateTenant(tenantID string) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	delete(gs.tenantCaches, tenantID)
}

// GetTenantCache safely retrieves a tenant's group cache
func (gs *GroupsStore) GetTenantCache(tenantID string) (*types.TenantGroupCache, bool) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	cache, exists := gs.tenantCaches[tenantID]
	return cache, exists
}

// GetGroup retrieves a group by ID.
func (gs *GroupsStore) GetGroup(tenantID, groupID string) (*group.Group, bool) {
	start := time.Now()
	cache, exists := gs.GetTenantCache(tenantID)
	if !exists {
		return nil, false
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	g, found := cache.Groups[groupID]
	if gs.logger != nil {
		gs.logger.Cache().Debug("Cache operation", "operation", "get", "type", "group", "tenantId", tenantID, "groupId", groupID, "hit", found, "duration", time.Since(start))
	}
	return g, found
}

// SetGroup stores the authoritative group row and rebuilds its membership
// fast-set entries. The row is written first so a reader that races the
// fast-set update still sees a consistent member list.
func (gs *GroupsStore) SetGroup(tenantID string, g *group.Group) {
	start := time.Now()
	cache, exists := gs.GetTenantCache(tenantID)
	if !exists {
		gs.InitializeTenant(tenantID)
		cache, _ = gs.GetTenantCache(tenantID)
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()

	if existing, ok := cache.Groups[g.ID]; ok {
		for _, pid := range existing.ParticipantIDs {
			key := types.MembershipKey(existing.BotID, pid)
			if cache.Memberships[key] == g.ID {
				delete(cache.Memberships, key)
			}
		}
	}

	cache.Groups[g.ID] = g
	if g.Status == group.StatusActive {
		for _, pid := range g.ParticipantIDs {
			cache.Memberships[types.MembershipKey(g.BotID, pid)] = g.ID
		}
	}
	cache.LastLoaded = time.Now().UTC()

	if gs.logger != nil {
		gs.logger.Cache().Debug("Cache operation", "operation", "set", "type", "group", "tenantId", tenantID, "groupId", g.ID, "members", len(g.ParticipantIDs), "duration", time.Since(start))
	}
}

// RemoveGroup removes a group and its membership entries.
func (gs *GroupsStore) RemoveGroup(tenantID, groupID string) {
	cache, exists := gs.GetTenantCache(tenantID)
	if !exists {
		return
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()

	if g, ok := cache.Groups[groupID]; ok {
		for _, pid := range g.ParticipantIDs {
			key := types.MembershipKey(g.BotID, pid)
			if cache.Memberships[key] == groupID {
				delete(cache.Memberships, key)
			}
		}
		delete(cache.Groups, groupID)
		cache.LastLoaded = time.Now().UTC()

		if gs.logger != nil {
			gs.logger.Cache().Debug("Cache operation", "operation", "remove", "type", "group", "tenantId", tenantID, "groupId", groupID)
		}
	}
}

// GetMembership resolves a participant's group for a bot via the fast set.
func (gs *GroupsStore) GetMembership(tenantID, botID, participantID string) (string, bool) {
	cache, exists := gs.GetTenantCache(tenantID)
	if !exists {
		return "", false
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	groupID, found := cache.Memberships[types.MembershipKey(botID, participantID)]
	return groupID, found
}

// SetMembership records one fast-set entry.
func (gs *GroupsStore) SetMembership(tenantID, botID, participantID, groupID string) {
	cache, exists := gs.GetTenantCache(tenantID)
	if !exists {
		gs.InitializeTenant(tenantID)
		cache, _ = gs.GetTenantCache(tenantID)
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()
	cache.Memberships[types.MembershipKey(botID, participantID)] = groupID
}

// RemoveMembership drops one fast-set entry.
func (gs *GroupsStore) RemoveMembership(tenantID, botID, participantID string) {
	cache, exists := gs.GetTenantCache(tenantID)
	if !exists {
		return
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()
	delete(cache.Memberships, types.MembershipKey(botID, participantID))
}

// GetAllGroupIDs returns every cached group ID for a tenant.
func (gs *GroupsStore) GetAllGroupIDs(tenantID string) []string {
	cache, exists := gs.GetTenantCache(tenantID)
	if !exists {
		return []string{}
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	ids := make([]string, 0, len(cache.Groups))
	for id := range cache.Groups {
		ids = append(ids, id)
	}
	return ids
}

// ArchiveInactive archives groups idle past the window and clears their
// membership entries. Returns the number of groups archived.
func (gs *GroupsStore) ArchiveInactive(tenantID string, window time.Duration) int {
	cache, exists := gs.GetTenantCache(tenantID)
	if !exists {
		return 0
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()

	archived := 0
	for _, g := range cache.Groups {
		if g.Status != group.StatusActive {
			continue
		}
		if time.Since(g.LastActivity) > window {
			g.Archive()
			for _, pid := range g.ParticipantIDs {
				key := types.MembershipKey(g.BotID, pid)
				if cache.Memberships[key] == g.ID {
					delete(cache.Memberships, key)
				}
			}
			archived++
		}
	}
	return archived
}
