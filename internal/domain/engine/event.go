// Package engine implements the flow execution interpreter: given an
// inbound event and the current session, it evaluates the current node,
// produces outbound actions, computes the next node, and requests session
// mutation. The engine owns transient per-invocation state only and never
// persists or sleeps; delays come back as wake instructions for the
// scheduler collaborator.
package engine

import "time"

// EventType classifies an inbound event.
type EventType string

const (
	EventMessage  EventType = "message"  // plain chat message
	EventCallback EventType = "callback" // button press payload
	EventEndpoint EventType = "endpoint" // synthetic, from the endpoint bridge
	EventTick     EventType = "tick"     // scheduler re-drive after a delay
)

// Event is one inbound occurrence for a (bot, participant) pair. The
// Telegram transport collaborator maps raw updates onto this shape.
type Event struct {
	Type          EventType      `json:"type"`
	BotID         string         `json:"botId"`
	ParticipantID string         `json:"participantId"`
	Text          string         `json:"text,omitempty"`
	CallbackData  string         `json:"callbackData,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	ReceivedAt    time.Time      `json:"receivedAt"`
}
