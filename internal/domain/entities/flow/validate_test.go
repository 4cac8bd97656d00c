package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id string, nodeType NodeType, cfg NodeConfig) *Node {
	return &Node{ID: id, Type: nodeType, Config: cfg}
}

func edge(id, source, target string, label EdgeLabel) *Edge {
	return &Edge{ID: id, Source: source, Target: target, Label: label}
}

func TestValidateAcceptsWellFormedFlow(t *testing.T) {
	def := NewDefinition("f1", "b1", []*Node{
		node("start", NodeStart, StartConfig{}),
		node("msg", NodeMessage, MessageConfig{Text: "hi"}),
		node("done", NodeEnd, EndConfig{}),
	}, []*Edge{
		edge("e1", "start", "msg", EdgeDefault),
		edge("e2", "msg", "done", EdgeDefault),
	})

	issues := def.Validate()
	assert.Empty(t, issues)
	assert.False(t, HasErrors(issues))
}

func TestValidateRequiresExactlyOneStart(t *testing.T) {
	def := NewDefinition("f1", "b1", []*Node{
		node("a", NodeMessage, MessageConfig{Text: "hi"}),
	}, nil)

	issues := def.Validate()
	require.True(t, HasErrors(issues))
	assert.Contains(t, issues[0].Message, "exactly one start node")

	def = NewDefinition("f2", "b1", []*Node{
		node("s1", NodeStart, StartConfig{}),
		node("s2", NodeStart, StartConfig{}),
	}, nil)
	assert.True(t, HasErrors(def.Validate()))
}

func TestValidateRejectsEndWithOutgoingEdges(t *testing.T) {
	def := NewDefinition("f1", "b1", []*Node{
		node("start", NodeStart, StartConfig{}),
		node("done", NodeEnd, EndConfig{}),
	}, []*Edge{
		edge("e1", "start", "done", EdgeDefault),
		edge("e2", "done", "start", EdgeDefault),
	})

	issues := def.Validate()
	require.True(t, HasErrors(issues))
	found := false
	for _, issue := range issues {
		if issue.NodeID == "done" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateRejectsDanglingEdges(t *testing.T) {
	def := NewDefinition("f1", "b1", []*Node{
		node("start", NodeStart, StartConfig{}),
	}, []*Edge{
		edge("e1", "start", "ghost", EdgeDefault),
	})

	issues := def.Validate()
	require.True(t, HasErrors(issues))
	assert.Contains(t, issues[0].Message, "missing target node ghost")
}

func TestValidateWarnsOnUnreachableNodes(t *testing.T) {
	def := NewDefinition("f1", "b1", []*Node{
		node("start", NodeStart, StartConfig{}),
		node("msg", NodeMessage, MessageConfig{Text: "hi"}),
		node("island", NodeMessage, MessageConfig{Text: "never"}),
	}, []*Edge{
		edge("e1", "start", "msg", EdgeDefault),
	})

	issues := def.Validate()
	assert.False(t, HasErrors(issues))
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
	assert.Equal(t, "island", issues[0].NodeID)
}

func TestValidateNodeConfigs(t *testing.T) {
	cases := []struct {
		name string
		node *Node
	}{
		{"empty message", node("n", NodeMessage, MessageConfig{})},
		{"keyboard without buttons", node("n", NodeKeyboard, KeyboardConfig{Text: "pick"})},
		{"condition without field", node("n", NodeCondition, ConditionConfig{Operator: OpEquals})},
		{"condition without operator", node("n", NodeCondition, ConditionConfig{Field: "x"})},
		{"webhook without url", node("n", NodeWebhook, WebhookConfig{})},
		{"form without fields", node("n", NodeForm, FormConfig{})},
		{"delay without value", node("n", NodeDelay, DelayConfig{})},
		{"variable without name", node("n", NodeVariable, VariableConfig{})},
		{"random without options", node("n", NodeRandom, RandomConfig{Variable: "v"})},
		{"endpoint without key", node("n", NodeEndpoint, EndpointConfig{})},
		{"broadcast list without ids", node("n", NodeBroadcast, BroadcastConfig{Audience: AudienceList})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := NewDefinition("f1", "b1", []*Node{
				node("start", NodeStart, StartConfig{}),
				tc.node,
			}, []*Edge{
				edge("e1", "start", "n", EdgeDefault),
			})
			assert.True(t, HasErrors(def.Validate()))
		})
	}
}
