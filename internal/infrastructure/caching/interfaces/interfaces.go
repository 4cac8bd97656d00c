// Package interfaces defines cache operation contracts for multi-tenant
// session, group, and flow caching.
package interfaces

import (
	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/group"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
)

// SessionCache defines operations for the hot session tier. Implementations
// must treat stored sessions as owned by the cache; callers pass and receive
// copies via Clone when they intend to mutate.
type SessionCache interface {
	GetSession(tenantID, sessionKey string) (*session.Session, bool)
	SetSession(tenantID string, sess *session.Session)
	RemoveSession(tenantID, sessionKey string)
	GetSessionsByParticipant(tenantID, participantID string) []string
	GetAllSessionKeys(tenantID string) []string
	CountSessions(tenantID string) int
}

// GroupCache defines operations for group rows and the membership fast set.
type GroupCache interface {
	GetGroup(tenantID, groupID string) (*group.Group, bool)
	SetGroup(tenantID string, g *group.Group)
	RemoveGroup(tenantID, groupID string)
	GetMembership(tenantID, botID, participantID string) (string, bool)
	SetMembership(tenantID, botID, participantID, groupID string)
	RemoveMembership(tenantID, botID, participantID string)
	GetAllGroupIDs(tenantID string) []string
}

// FlowCache defines operations for parsed flow definitions and the
// bot-to-active-flow routing index.
type FlowCache interface {
	GetFlow(tenantID, flowID string) (*flow.Definition, bool)
	SetFlow(tenantID string, def *flow.Definition)
	InvalidateFlow(tenantID, flowID string)
	GetActiveFlowID(tenantID, botID string) (string, bool)
	SetActiveFlowID(tenantID, botID, flowID string)
}

// Cache aggregates all cache contracts plus tenant lifecycle operations.
type Cache interface {
	SessionCache
	GroupCache
	FlowCache

	InitializeTenant(tenantID string)
	InvalidateTenant(tenantID string)
}
