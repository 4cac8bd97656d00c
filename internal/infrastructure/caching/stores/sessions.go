// Package stores provides concrete cache store implementations
package stores

import (
	"sync"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/types"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

// SessionsStore implements conversation session caching with tenant isolation.
type SessionsStore struct {
	tenantCaches map[string]*types.TenantSessionCache
	mu           sync.RWMutex
	config       *types.CacheConfig
	logger       *logging.ChanneledLogger
}

// NewSessionsStore creates a new sessions cache store
func NewSessionsStore(config *types.CacheConfig, logger *logging.ChanneledLogger) *SessionsStore {
	if config == nil {
		config = types.DefaultCacheConfig()
	}
	if logger != nil {
		logger.Cache().Info("Initializing sessions cache store", "sessionTTL", config.SessionTTL.String())
	}
	return &SessionsStore{
		tenantCaches: make(map[string]*types.TenantSessionCache),
		config:       config,
		logger:       logger,
	}
}

// InitializeTenant creates cache structures for a tenant
func (ss *SessionsStore) InitializeTenant(tenantID string) {
	start := time.Now()
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.tenantCaches[tenantID] == nil {
		ss.tenantCaches[tenantID] = &types.TenantSessionCache{
			Sessions:              make(map[string]*session.Session),
			ParticipantToSessions: make(map[string][]string),
			LastLoaded:            time.Now().UTC(),
		}
		if ss.logger != nil {
			ss.logger.Cache().Info("Tenant session cache initialized", "tenantId", tenantID, "duration", time.Since(start))
		}
	}
}

// InvalidateTenant drops all cached sessions for a tenant.
func (ss *SessionsStore) InvalidateTenant(tenantID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.tenantCaches, tenantID)
	if ss.logger != nil {
		ss.logger.Cache().Info("Tenant session cache invalidated", "tenantId", tenantID)
	}
}

// GetTenantCache safely retrieves a tenant's session cache
func (ss *SessionsStore) GetTenantCache(tenantID string) (*types.TenantSessionCache, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	cache, exists := ss.tenantCaches[tenantID]
	return cache, exists
}

// GetSession retrieves a session by its key. Sessions past the configured
// TTL read as misses; the sweep worker removes them later.
func (ss *SessionsStore) GetSession(tenantID, sessionKey string) (*session.Session, bool) {
	start := time.Now()
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		if ss.logger != nil {
			ss.logger.Cache().Debug("Cache operation", "operation", "get", "type", "session", "tenantId", tenantID, "sessionKey", sessionKey, "hit", false, "reason", "tenant_not_initialized", "duration", time.Since(start))
		}
		return nil, false
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	sess, found := cache.Sessions[sessionKey]
	if found && time.Since(sess.LastActivity) > ss.config.SessionTTL {
		if ss.logger != nil {
			ss.logger.Cache().Debug("Cache operation", "operation", "get", "type", "session", "tenantId", tenantID, "sessionKey", sessionKey, "hit", false, "reason", "expired", "duration", time.Since(start))
		}
		return nil, false
	}

	if ss.logger != nil {
		ss.logger.Cache().Debug("Cache operation", "operation", "get", "type", "session", "tenantId", tenantID, "sessionKey", sessionKey, "hit", found, "duration", time.Since(start))
	}
	return sess, found
}

// SetSession stores a session and maintains the participant inverted index.
func (ss *SessionsStore) SetSession(tenantID string, sess *session.Session) {
	start := time.Now()
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		ss.InitializeTenant(tenantID)
		cache, _ = ss.GetTenantCache(tenantID)
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()

	if existing, ok := cache.Sessions[sess.SessionKey]; ok {
		if existing.ParticipantID != sess.ParticipantID {
			ss.removeFromParticipantIndex(cache, existing.ParticipantID, sess.SessionKey)
		}
	}

	cache.Sessions[sess.SessionKey] = sess
	ss.addToParticipantIndex(cache, sess.ParticipantID, sess.SessionKey)
	cache.LastLoaded = time.Now().UTC()

	if ss.logger != nil {
		ss.logger.Cache().Debug("Cache operation", "operation", "set", "type", "session", "tenantId", tenantID, "sessionKey", sess.SessionKey, "participantId", sess.ParticipantID, "duration", time.Since(start))
	}
}

// RemoveSession removes a session and updates the inverted index
func (ss *SessionsStore) RemoveSession(tenantID, sessionKey string) {
	start := time.Now()
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()

	if sess, ok := cache.Sessions[sessionKey]; ok {
		ss.removeFromParticipantIndex(cache, sess.ParticipantID, sessionKey)
		delete(cache.Sessions, sessionKey)
		cache.LastLoaded = time.Now().UTC()

		if ss.logger != nil {
			ss.logger.Cache().Debug("Cache operation", "operation", "remove", "type", "session", "tenantId", tenantID, "sessionKey", sessionKey, "duration", time.Since(start))
		}
	}
}

// GetSessionsByParticipant returns all session keys for a participant.
func (ss *SessionsStore) GetSessionsByParticipant(tenantID, participantID string) []string {
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return []string{}
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	keys := cache.ParticipantToSessions[participantID]
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// GetAllSessionKeys returns every cached session key for a tenant.
func (ss *SessionsStore) GetAllSessionKeys(tenantID string) []string {
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return []string{}
	}

	cache.Mu.RLock()
	defer cache.Mu.RUnlock()

	keys := make([]string, 0, len(cache.Sessions))
	for key := range cache.Sessions {
		keys = append(keys, key)
	}
	return keys
}

// CountSessions returns the number of cached sessions for a tenant.
func (ss *SessionsStore) CountSessions(tenantID string) int {
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return 0
	}
	cache.Mu.RLock()
	defer cache.Mu.RUnlock()
	return len(cache.Sessions)
}

// PurgeExpired removes sessions idle past the TTL. The sweep worker calls
// this on its interval; reads already treat such sessions as misses.
func (ss *SessionsStore) PurgeExpired(tenantID string) int {
	cache, exists := ss.GetTenantCache(tenantID)
	if !exists {
		return 0
	}

	cache.Mu.Lock()
	defer cache.Mu.Unlock()

	purged := 0
	for key, sess := range cache.Sessions {
		if time.Since(sess.LastActivity) > ss.config.SessionTTL {
			ss.removeFromParticipantIndex(cache, sess.ParticipantID, key)
			delete(cache.Sessions, key)
			purged++
		}
	}
	return purged
}

// addToParticipantIndex adds a session key to a participant's list (caller holds lock)
func (ss *SessionsStore) addToParticipantIndex(cache *types.TenantSessionCache, participantID, sessionKey string) {
	for _, existing := range cache.ParticipantToSessions[participantID] {
		if existing == sessionKey {
			return
		}
	}
	cache.ParticipantToSessions[participantID] = append(cache.ParticipantToSessions[participantID], sessionKey)
}

// removeFromParticipantIndex removes a session key from a participant's list (caller holds lock)
func (ss *SessionsStore) removeFromParticipantIndex(cache *types.TenantSessionCache, participantID, sessionKey string) {
	keys := cache.ParticipantToSessions[participantID]
	for i, existing := range keys {
		if existing == sessionKey {
			cache.ParticipantToSessions[participantID] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(cache.ParticipantToSessions[participantID]) == 0 {
		delete(cache.ParticipantToSessions, participantID)
	}
}
