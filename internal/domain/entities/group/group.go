// Package group provides the multi-participant ("lobby") session entity:
// shared variables and deduplicated membership under capacity limits.
package group

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a group session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// ErrGroupFull is returned when membership would exceed MaxSize.
var ErrGroupFull = errors.New("group is at capacity")

// Metadata carries creation-time group settings.
type Metadata struct {
	MaxSize   int    `json:"maxSize"`
	CreatedBy string `json:"createdBy"`
}

// Group is a session shared by multiple participants.
type Group struct {
	ID              string         `json:"id"`
	BotID           string         `json:"botId"`
	FlowID          string         `json:"flowId"`
	ParticipantIDs  []string       `json:"participantIds"`
	SharedVariables map[string]any `json:"sharedVariables"`
	CurrentNodeID   string         `json:"currentNodeId"`
	Status          Status         `json:"status"`
	Metadata        Metadata       `json:"metadata"`
	CreatedAt       time.Time      `json:"createdAt"`
	LastActivity    time.Time      `json:"lastActivity"`
}

// New creates an active group with the creator as its first member.
func New(id, botID, flowID, creatorID string, maxSize int) *Group {
	now := time.Now().UTC()
	return &Group{
		ID:              id,
		BotID:           botID,
		FlowID:          flowID,
		ParticipantIDs:  []string{creatorID},
		SharedVariables: make(map[string]any),
		Status:          StatusActive,
		Metadata:        Metadata{MaxSize: maxSize, CreatedBy: creatorID},
		CreatedAt:       now,
		LastActivity:    now,
	}
}

// HasParticipant reports membership.
func (g *Group) HasParticipant(participantID string) bool {
	for _, id := range g.ParticipantIDs {
		if id == participantID {
			return true
		}
	}
	return false
}

// AddParticipant adds a member, deduplicated, enforcing MaxSize.
func (g *Group) AddParticipant(participantID string) error {
	if g.HasParticipant(participantID) {
		return nil
	}
	if g.Metadata.MaxSize > 0 && len(g.ParticipantIDs) >= g.Metadata.MaxSize {
		return ErrGroupFull
	}
	g.ParticipantIDs = append(g.ParticipantIDs, participantID)
	g.Touch()
	return nil
}

// RemoveParticipant removes a member; returns true if membership changed.
func (g *Group) RemoveParticipant(participantID string) bool {
	for i, id := range g.ParticipantIDs {
		if id == participantID {
			g.ParticipantIDs[i] = g.ParticipantIDs[len(g.ParticipantIDs)-1]
			g.ParticipantIDs = g.ParticipantIDs[:len(g.ParticipantIDs)-1]
			g.Touch()
			return true
		}
	}
	return false
}

// IsEmpty reports whether the group has no members left.
func (g *Group) IsEmpty() bool {
	return len(g.ParticipantIDs) == 0
}

// Archive marks the group archived.
func (g *Group) Archive() {
	g.Status = StatusArchived
	g.Touch()
}

// Touch refreshes the activity timestamp.
func (g *Group) Touch() {
	g.LastActivity = time.Now().UTC()
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	copied := *g
	copied.ParticipantIDs = append([]string(nil), g.ParticipantIDs...)
	copied.SharedVariables = make(map[string]any, len(g.SharedVariables))
	for k, v := range g.SharedVariables {
		copied.SharedVariables[k] = v
	}
	return &copied
}
