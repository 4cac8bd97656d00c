// Package flow provides the immutable, versioned representation of a bot's
// dialogue graph: nodes, edges, and per-node typed configuration. The
// execution engine dispatches exhaustively on NodeType, so adding a node
// type is a compile-time-checked change.
package flow

import (
	"encoding/json"
	"fmt"

	"github.com/botforgehq/botforge-go/internal/domain/variables"
)

// NodeType identifies the behavior of a node.
type NodeType string

const (
	NodeStart       NodeType = "start"
	NodeMessage     NodeType = "message"
	NodeKeyboard    NodeType = "keyboard"
	NodeCondition   NodeType = "condition"
	NodeWebhook     NodeType = "webhook"
	NodeForm        NodeType = "form"
	NodeDelay       NodeType = "delay"
	NodeVariable    NodeType = "variable"
	NodeFile        NodeType = "file"
	NodeRandom      NodeType = "random"
	NodeIntegration NodeType = "integration"
	NodeEndpoint    NodeType = "endpoint"
	NodeBroadcast   NodeType = "broadcast"
	NodeEnd         NodeType = "end"
)

// NodeConfig is the tagged union of per-type node configuration. Concrete
// types are decoded from the stored JSON by DecodeConfig.
type NodeConfig interface {
	nodeConfig()
}

// StartConfig has no options; the start node only anchors the graph.
type StartConfig struct{}

// MessageConfig renders templated text and optional media.
type MessageConfig struct {
	Text      string `json:"text"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// Button is one keyboard option; Data is the callback payload.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// KeyboardConfig suspends execution until a callback matches a button. The
// pressed button's data is stored under Variable ("selected" by default).
type KeyboardConfig struct {
	Text     string   `json:"text"`
	Buttons  []Button `json:"buttons"`
	Columns  int      `json:"columns,omitempty"`
	Variable string   `json:"variable,omitempty"`
}

// ConditionOperator enumerates supported comparison operators.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpExists      ConditionOperator = "exists"
	OpNotExists   ConditionOperator = "not_exists"
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "not_contains"
	OpStartsWith  ConditionOperator = "starts_with"
	OpEndsWith    ConditionOperator = "ends_with"
	OpRegex       ConditionOperator = "regex"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpIsEmpty     ConditionOperator = "is_empty"
	OpIsNotEmpty  ConditionOperator = "is_not_empty"
)

// ConditionConfig routes along the "true" or "false" outgoing edge.
type ConditionConfig struct {
	Field         string            `json:"field"`
	Operator      ConditionOperator `json:"operator"`
	Value         string            `json:"value,omitempty"`
	CaseSensitive bool              `json:"caseSensitive,omitempty"`
}

// WebhookConfig issues an outbound HTTP call with bounded retries.
type WebhookConfig struct {
	URL              string            `json:"url"`
	Method           string            `json:"method"`
	Headers          map[string]string `json:"headers,omitempty"`
	Body             string            `json:"body,omitempty"`
	TimeoutMs        int               `json:"timeoutMs,omitempty"`
	RetryCount       int               `json:"retryCount,omitempty"`
	ResponseVariable string            `json:"responseVariable,omitempty"`
	ResponseScope    variables.Scope   `json:"responseScope,omitempty"`
}

// FormFieldType enumerates input validation kinds for form fields.
type FormFieldType string

const (
	FieldText   FormFieldType = "text"
	FieldNumber FormFieldType = "number"
	FieldEmail  FormFieldType = "email"
	FieldPhone  FormFieldType = "phone"
	FieldRegex  FormFieldType = "regex"
)

// FormField is one prompt/answer pair in a multi-turn form.
type FormField struct {
	Name       string        `json:"name"`
	Prompt     string        `json:"prompt"`
	Type       FormFieldType `json:"type"`
	Validation string        `json:"validation,omitempty"` // pattern when Type == regex
	Required   bool          `json:"required,omitempty"`
}

// FormConfig collects fields across multiple inbound events; answers are
// bulk-assigned to the target scope on completion.
type FormConfig struct {
	Fields      []FormField     `json:"fields"`
	Scope       variables.Scope `json:"scope,omitempty"`
	RetryPrompt string          `json:"retryPrompt,omitempty"`
	TimeoutMs   int             `json:"timeoutMs,omitempty"`
}

// DelayUnit is the time unit for delay nodes.
type DelayUnit string

const (
	UnitSeconds DelayUnit = "seconds"
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
	UnitDays    DelayUnit = "days"
)

// DelayConfig computes a wake time; the engine never sleeps itself.
type DelayConfig struct {
	Value int       `json:"value"`
	Unit  DelayUnit `json:"unit"`
}

// VariableConfig applies one mutation to a named variable.
type VariableConfig struct {
	Scope     variables.Scope `json:"scope,omitempty"`
	Name      string          `json:"name"`
	Operation variables.Op    `json:"operation"`
	Value     any             `json:"value,omitempty"`
}

// FileConfig emits a send-file action with an opaque payload.
type FileConfig struct {
	URL      string `json:"url"`
	FileType string `json:"fileType,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// RandomOption is one weighted branch value.
type RandomOption struct {
	Value  string `json:"value"`
	Weight int    `json:"weight,omitempty"` // defaults to 1
}

// RandomConfig selects an outgoing branch by weighted random choice.
type RandomConfig struct {
	Options  []RandomOption  `json:"options"`
	Variable string          `json:"variable,omitempty"`
	Scope    variables.Scope `json:"scope,omitempty"`
}

// IntegrationConfig emits an opaque action for an external integration.
type IntegrationConfig struct {
	Service string         `json:"service"`
	Action  string         `json:"action"`
	Params  map[string]any `json:"params,omitempty"`
}

// EndpointConfig marks a resumption target for the endpoint bridge. The
// access key may be stored as a bcrypt hash or plaintext.
type EndpointConfig struct {
	AccessKey  string          `json:"accessKey"`
	MergeScope variables.Scope `json:"mergeScope,omitempty"`
}

// BroadcastAudience selects how broadcast recipients are resolved.
type BroadcastAudience string

const (
	AudienceAll    BroadcastAudience = "all"
	AudienceList   BroadcastAudience = "list"
	AudienceActive BroadcastAudience = "active"
)

// BroadcastConfig expands to one send action per resolved recipient.
type BroadcastConfig struct {
	Audience         BroadcastAudience `json:"audience"`
	ParticipantIDs   []string          `json:"participantIds,omitempty"`
	ActiveWithinDays int               `json:"activeWithinDays,omitempty"`
	Text             string            `json:"text"`
}

// EndConfig has no options; reaching an end node completes the session.
type EndConfig struct{}

func (StartConfig) nodeConfig()       {}
func (MessageConfig) nodeConfig()     {}
func (KeyboardConfig) nodeConfig()    {}
func (ConditionConfig) nodeConfig()   {}
func (WebhookConfig) nodeConfig()     {}
func (FormConfig) nodeConfig()        {}
func (DelayConfig) nodeConfig()       {}
func (VariableConfig) nodeConfig()    {}
func (FileConfig) nodeConfig()        {}
func (RandomConfig) nodeConfig()      {}
func (IntegrationConfig) nodeConfig() {}
func (EndpointConfig) nodeConfig()    {}
func (BroadcastConfig) nodeConfig()   {}
func (EndConfig) nodeConfig()         {}

// DecodeConfig unmarshals raw node configuration into its typed form.
func DecodeConfig(nodeType NodeType, raw json.RawMessage) (NodeConfig, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var (
		cfg NodeConfig
		err error
	)
	switch nodeType {
	case NodeStart:
		c := StartConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeMessage:
		c := MessageConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeKeyboard:
		c := KeyboardConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeCondition:
		c := ConditionConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeWebhook:
		c := WebhookConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeForm:
		c := FormConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeDelay:
		c := DelayConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeVariable:
		c := VariableConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeFile:
		c := FileConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeRandom:
		c := RandomConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeIntegration:
		c := IntegrationConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeEndpoint:
		c := EndpointConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeBroadcast:
		c := BroadcastConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeEnd:
		c := EndConfig{}
		err = json.Unmarshal(raw, &c)
		cfg = c
	default:
		return nil, fmt.Errorf("unknown node type %q", nodeType)
	}
	if err != nil {
		return nil, fmt.Errorf("malformed %s config: %w", nodeType, err)
	}
	return cfg, nil
}

// IsWaiting reports whether a node type suspends execution until the next
// inbound event (rather than advancing in the same step).
func IsWaiting(nodeType NodeType) bool {
	switch nodeType {
	case NodeKeyboard, NodeForm, NodeEndpoint:
		return true
	default:
		return false
	}
}
