package engine

import (
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
)

// ActionType classifies an outbound action. Delivery is the transport
// collaborator's job; payloads are opaque to the engine.
type ActionType string

const (
	ActionSendMessage  ActionType = "send_message"
	ActionSendKeyboard ActionType = "send_keyboard"
	ActionSendFile     ActionType = "send_file"
	ActionIntegration  ActionType = "integration"
)

// Action is one outbound side effect produced by a flow step.
type Action struct {
	Type          ActionType     `json:"type"`
	BotID         string         `json:"botId"`
	ParticipantID string         `json:"participantId"`
	NodeID        string         `json:"nodeId"`
	Text          string         `json:"text,omitempty"`
	Buttons       []flow.Button  `json:"buttons,omitempty"`
	FileURL       string         `json:"fileUrl,omitempty"`
	FileType      string         `json:"fileType,omitempty"`
	Caption       string         `json:"caption,omitempty"`
	Service       string         `json:"service,omitempty"`
	Operation     string         `json:"operation,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
}

// Wait instructs the scheduler collaborator to re-drive the session with a
// tick event at or after WakeAt.
type Wait struct {
	NodeID string    `json:"nodeId"`
	WakeAt time.Time `json:"wakeAt"`
}

// Result is the outcome of one execute invocation.
type Result struct {
	Session   *session.Session `json:"session"`
	Actions   []Action         `json:"actions"`
	NextWait  *Wait            `json:"nextWait,omitempty"`
	Completed bool             `json:"completed"`
}
