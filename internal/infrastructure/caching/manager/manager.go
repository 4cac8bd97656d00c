// Package manager provides the unified cache facade combining the session,
// group, and flow stores behind the interfaces.Cache contract.
package manager

import (
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/group"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/interfaces"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/stores"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/types"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

// sessionBackend is what the manager needs from a session tier beyond the
// public contract: tenant lifecycle and sweep support. Both the in-memory
// and Redis stores satisfy it.
type sessionBackend interface {
	interfaces.SessionCache
	InitializeTenant(tenantID string)
	InvalidateTenant(tenantID string)
	PurgeExpired(tenantID string) int
}

// Manager is the concrete cache implementation handed to services.
type Manager struct {
	sessions sessionBackend
	groups   *stores.GroupsStore
	flows    *stores.FlowsStore
	logger   *logging.ChanneledLogger
}

// Compile-time contract check.
var _ interfaces.Cache = (*Manager)(nil)

// NewManager creates a cache manager with the in-memory session backend.
func NewManager(config *types.CacheConfig, logger *logging.ChanneledLogger) *Manager {
	return &Manager{
		sessions: stores.NewSessionsStore(config, logger),
		groups:   stores.NewGroupsStore(logger),
		flows:    stores.NewFlowsStore(logger),
		logger:   logger,
	}
}

// NewManagerWithRedis creates a cache manager whose session tier lives in
// Redis; groups and flows stay in-process.
func NewManagerWithRedis(redisURL string, config *types.CacheConfig, logger *logging.ChanneledLogger) (*Manager, error) {
	sessions, err := stores.NewRedisSessionsStore(redisURL, config, logger)
	if err != nil {
		return nil, err
	}
	return &Manager{
		sessions: sessions,
		groups:   stores.NewGroupsStore(logger),
		flows:    stores.NewFlowsStore(logger),
		logger:   logger,
	}, nil
}

// InitializeTenant prepares all stores for a tenant.
func (m *Manager) InitializeTenant(tenantID string) {
	m.sessions.InitializeTenant(tenantID)
	m.groups.InitializeTenant(tenantID)
	m.flows.InitializeTenant(tenantID)
}

// InvalidateTenant drops everything cached for a tenant.
func (m *Manager) InvalidateTenant(tenantID string) {
	m.sessions.InvalidateTenant(tenantID)
	m.groups.InvalidateTenant(tenantID)
	m.flows.InvalidateTenant(tenantID)
	if m.logger != nil {
		m.logger.Cache().Info("Tenant caches invalidated", "tenantId", tenantID)
	}
}

// Session operations

func (m *Manager) GetSession(tenantID, sessionKey string) (*session.Session, bool) {
	return m.sessions.GetSession(tenantID, sessionKey)
}

func (m *Manager) SetSession(tenantID string, sess *session.Session) {
	m.sessions.SetSession(tenantID, sess)
}

func (m *Manager) RemoveSession(tenantID, sessionKey string) {
	m.sessions.RemoveSession(tenantID, sessionKey)
}

func (m *Manager) GetSessionsByParticipant(tenantID, participantID string) []string {
	return m.sessions.GetSessionsByParticipant(tenantID, participantID)
}

func (m *Manager) GetAllSessionKeys(tenantID string) []string {
	return m.sessions.GetAllSessionKeys(tenantID)
}

func (m *Manager) CountSessions(tenantID string) int {
	return m.sessions.CountSessions(tenantID)
}

// PurgeExpiredSessions delegates to the active session backend's sweep.
func (m *Manager) PurgeExpiredSessions(tenantID string) int {
	return m.sessions.PurgeExpired(tenantID)
}

// Group operations

func (m *Manager) GetGroup(tenantID, groupID string) (*group.Group, bool) {
	return m.groups.GetGroup(tenantID, groupID)
}

func (m *Manager) SetGroup(tenantID string, g *group.Group) {
	m.groups.SetGroup(tenantID, g)
}

func (m *Manager) RemoveGroup(tenantID, groupID string) {
	m.groups.RemoveGroup(tenantID, groupID)
}

func (m *Manager) GetMembership(tenantID, botID, participantID string) (string, bool) {
	return m.groups.GetMembership(tenantID, botID, participantID)
}

func (m *Manager) SetMembership(tenantID, botID, participantID, groupID string) {
	m.groups.SetMembership(tenantID, botID, participantID, groupID)
}

func (m *Manager) RemoveMembership(tenantID, botID, participantID string) {
	m.groups.RemoveMembership(tenantID, botID, participantID)
}

func (m *Manager) GetAllGroupIDs(tenantID string) []string {
	return m.groups.GetAllGroupIDs(tenantID)
}

// ArchiveInactiveGroups archives groups idle past the window.
func (m *Manager) ArchiveInactiveGroups(tenantID string, window time.Duration) int {
	return m.groups.ArchiveInactive(tenantID, window)
}

// Flow operations

func (m *Manager) GetFlow(tenantID, flowID string) (*flow.Definition, bool) {
	return m.flows.GetFlow(tenantID, flowID)
}

func (m *Manager) SetFlow(tenantID string, def *flow.Definition) {
	m.flows.SetFlow(tenantID, def)
}

func (m *Manager) InvalidateFlow(tenantID, flowID string) {
	m.flows.InvalidateFlow(tenantID, flowID)
}

func (m *Manager) GetActiveFlowID(tenantID, botID string) (string, bool) {
	return m.flows.GetActiveFlowID(tenantID, botID)
}

func (m *Manager) SetActiveFlowID(tenantID, botID, flowID string) {
	m.flows.SetActiveFlowID(tenantID, botID, flowID)
}
