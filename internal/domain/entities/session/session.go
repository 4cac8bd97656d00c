// Package session provides the per-(bot, participant) execution state for
// flow conversations: the current node pointer, scoped variables, and any
// pending wait (form field, keyboard, delay, endpoint).
package session

import (
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/variables"
)

// Status is the lifecycle state of a session. Completed and expired
// sessions are logical deletions; durable rows are kept for audit.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// PendingWait records why a session is suspended at its current node.
type PendingWait struct {
	NodeID      string    `json:"nodeId"`
	RequestedAt time.Time `json:"requestedAt"`
	TimeoutMs   int       `json:"timeoutMs,omitempty"`

	// FormFieldIndex is the next unfilled field when waiting inside a form.
	FormFieldIndex int `json:"formFieldIndex,omitempty"`
}

// Expired reports whether the wait has a timeout and it has elapsed. An
// expired wait is treated as a no-op input on next access: the engine
// re-evaluates the node rather than auto-advancing.
func (w *PendingWait) Expired(now time.Time) bool {
	if w == nil || w.TimeoutMs <= 0 {
		return false
	}
	return now.After(w.RequestedAt.Add(time.Duration(w.TimeoutMs) * time.Millisecond))
}

// Session is the execution state for one participant in one bot's flow.
type Session struct {
	SessionKey    string        `json:"sessionKey"`
	BotID         string        `json:"botId"`
	ParticipantID string        `json:"participantId"`
	FlowID        string        `json:"flowId"`
	CurrentNodeID string        `json:"currentNodeId"`
	Variables     variables.Bag `json:"variables"`
	Status        Status        `json:"status"`
	PendingWait   *PendingWait  `json:"pendingWait,omitempty"`
	GroupRef      string        `json:"groupRef,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	LastActivity  time.Time     `json:"lastActivity"`
}

// Key builds the canonical session key for a (bot, participant) pair.
func Key(botID, participantID string) string {
	return botID + ":" + participantID
}

// New creates a fresh active session positioned before the start node.
func New(botID, participantID, flowID string) *Session {
	now := time.Now().UTC()
	return &Session{
		SessionKey:    Key(botID, participantID),
		BotID:         botID,
		ParticipantID: participantID,
		FlowID:        flowID,
		Variables:     variables.NewBag(),
		Status:        StatusActive,
		CreatedAt:     now,
		LastActivity:  now,
	}
}

// Touch refreshes the activity timestamp.
func (s *Session) Touch() {
	s.LastActivity = time.Now().UTC()
}

// Complete marks the session finished and clears session-scoped variables
// and any pending wait.
func (s *Session) Complete() {
	s.Status = StatusCompleted
	s.PendingWait = nil
	s.Variables[variables.ScopeSession] = make(map[string]any)
	s.Touch()
}

// InGroup reports whether the session participates in a group.
func (s *Session) InGroup() bool {
	return s.GroupRef != ""
}

// Clone returns a deep copy so the engine can work on a scratch session
// without mutating the caller's copy until save succeeds.
func (s *Session) Clone() *Session {
	copied := *s
	copied.Variables = variables.Clone(s.Variables)
	if s.PendingWait != nil {
		wait := *s.PendingWait
		copied.PendingWait = &wait
	}
	return &copied
}
