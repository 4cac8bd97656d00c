// Package types defines the cache data structures shared by stores and the
// cache manager.
package types

import (
	"sync"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/group"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
)

// TenantSessionCache holds all cached conversation sessions for one tenant.
// ParticipantToSessions is an inverted index from participant ID to session
// keys so per-participant lookups avoid scanning the whole map.
type TenantSessionCache struct {
	Sessions              map[string]*session.Session
	ParticipantToSessions map[string][]string
	LastLoaded            time.Time
	Mu                    sync.RWMutex
}

// TenantGroupCache holds cached group sessions for one tenant. Memberships
// is the fast set mapping botID:participantID to the group ID, consulted on
// every inbound group event.
type TenantGroupCache struct {
	Groups      map[string]*group.Group
	Memberships map[string]string
	LastLoaded  time.Time
	Mu          sync.RWMutex
}

// TenantFlowCache holds parsed flow definitions for one tenant, plus the
// bot-to-active-flow routing index.
type TenantFlowCache struct {
	Flows       map[string]*flow.Definition
	BotToActive map[string]string
	LastUpdated time.Time
	Mu          sync.RWMutex
}

// MembershipKey builds the fast-set key for a participant in a bot's group.
func MembershipKey(botID, participantID string) string {
	return botID + ":" + participantID
}
