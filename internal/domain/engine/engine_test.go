package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/domain/variables"
)

func node(id string, cfg flow.NodeConfig) *flow.Node {
	var t flow.NodeType
	switch cfg.(type) {
	case flow.StartConfig:
		t = flow.NodeStart
	case flow.MessageConfig:
		t = flow.NodeMessage
	case flow.KeyboardConfig:
		t = flow.NodeKeyboard
	case flow.ConditionConfig:
		t = flow.NodeCondition
	case flow.WebhookConfig:
		t = flow.NodeWebhook
	case flow.FormConfig:
		t = flow.NodeForm
	case flow.DelayConfig:
		t = flow.NodeDelay
	case flow.VariableConfig:
		t = flow.NodeVariable
	case flow.FileConfig:
		t = flow.NodeFile
	case flow.RandomConfig:
		t = flow.NodeRandom
	case flow.IntegrationConfig:
		t = flow.NodeIntegration
	case flow.EndpointConfig:
		t = flow.NodeEndpoint
	case flow.BroadcastConfig:
		t = flow.NodeBroadcast
	case flow.EndConfig:
		t = flow.NodeEnd
	}
	return &flow.Node{ID: id, Type: t, Config: cfg}
}

func edge(source, target string, label flow.EdgeLabel) *flow.Edge {
	return &flow.Edge{ID: source + "->" + target, Source: source, Target: target, Label: label}
}

func newTestEngine() *Engine {
	return NewEngine(nil, Options{RandSeed: 42})
}

func newSession() *session.Session {
	return session.New("bot1", "user1", "flow1")
}

func messageEvent(text string) Event {
	return Event{Type: EventMessage, BotID: "bot1", ParticipantID: "user1", Text: text, ReceivedAt: time.Now()}
}

func callbackEvent(data string) Event {
	return Event{Type: EventCallback, BotID: "bot1", ParticipantID: "user1", CallbackData: data, ReceivedAt: time.Now()}
}

func TestExecuteLinearMessageFlow(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("hello", flow.MessageConfig{Text: "Hello {{name}}!"}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "hello", flow.EdgeDefault),
			edge("hello", "end", flow.EdgeDefault),
		})

	sess := newSession()
	sess.Variables[variables.ScopeUser]["name"] = "Ada"

	res, err := newTestEngine().Execute(context.Background(), def, sess, messageEvent("/start"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "Hello Ada!", res.Actions[0].Text)
	assert.True(t, res.Completed)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Empty(t, sess.Variables[variables.ScopeSession])
}

func TestExecuteCurrentNodeAlwaysValid(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("m1", flow.MessageConfig{Text: "one"}),
			node("kb", flow.KeyboardConfig{Text: "pick", Buttons: []flow.Button{{Label: "A", Data: "a"}}}),
		},
		[]*flow.Edge{
			edge("start", "m1", flow.EdgeDefault),
			edge("m1", "kb", flow.EdgeDefault),
		})

	sess := newSession()
	_, err := newTestEngine().Execute(context.Background(), def, sess, messageEvent("hi"))
	require.NoError(t, err)

	_, ok := def.Node(sess.CurrentNodeID)
	assert.True(t, ok, "session must always point at a node defined in the flow")
	assert.Equal(t, "kb", sess.CurrentNodeID)
	require.NotNil(t, sess.PendingWait)
	assert.Equal(t, "kb", sess.PendingWait.NodeID)
}

func TestKeyboardResumeStoresSelection(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("kb", flow.KeyboardConfig{
				Text:     "red or blue?",
				Buttons:  []flow.Button{{Label: "Red", Data: "red"}, {Label: "Blue", Data: "blue"}},
				Variable: "color",
			}),
			node("echo", flow.MessageConfig{Text: "you chose {{color}}"}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "kb", flow.EdgeDefault),
			edge("kb", "echo", flow.EdgeDefault),
			edge("echo", "end", flow.EdgeDefault),
		})

	eng := newTestEngine()
	sess := newSession()

	res, err := eng.Execute(context.Background(), def, sess, messageEvent("/start"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionSendKeyboard, res.Actions[0].Type)

	res, err = eng.Execute(context.Background(), def, sess, callbackEvent("blue"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "you chose blue", res.Actions[0].Text)
	assert.True(t, res.Completed)
}

func TestKeyboardRejectsUnknownCallback(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("kb", flow.KeyboardConfig{Text: "pick", Buttons: []flow.Button{{Label: "A", Data: "a"}}}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "kb", flow.EdgeDefault),
			edge("kb", "end", flow.EdgeDefault),
		})

	eng := newTestEngine()
	sess := newSession()
	_, err := eng.Execute(context.Background(), def, sess, messageEvent("/start"))
	require.NoError(t, err)

	res, err := eng.Execute(context.Background(), def, sess, callbackEvent("bogus"))
	require.NoError(t, err)
	require.NotNil(t, sess.PendingWait, "unknown callback keeps the session waiting")
	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionSendKeyboard, res.Actions[0].Type)
}

func TestConditionRoutesTrueAndFalse(t *testing.T) {
	build := func() *flow.Definition {
		return flow.NewDefinition("flow1", "bot1",
			[]*flow.Node{
				node("start", flow.StartConfig{}),
				node("check", flow.ConditionConfig{Field: "color", Operator: flow.OpEquals, Value: "blue"}),
				node("yes", flow.MessageConfig{Text: "blue it is"}),
				node("no", flow.MessageConfig{Text: "not blue"}),
				node("end", flow.EndConfig{}),
			},
			[]*flow.Edge{
				edge("start", "check", flow.EdgeDefault),
				edge("check", "yes", flow.EdgeTrue),
				edge("check", "no", flow.EdgeFalse),
				edge("yes", "end", flow.EdgeDefault),
				edge("no", "end", flow.EdgeDefault),
			})
	}

	sess := newSession()
	sess.Variables[variables.ScopeSession]["color"] = "blue"
	res, err := newTestEngine().Execute(context.Background(), build(), sess, messageEvent("go"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "blue it is", res.Actions[0].Text)

	sess = newSession()
	sess.Variables[variables.ScopeSession]["color"] = "green"
	res, err = newTestEngine().Execute(context.Background(), build(), sess, messageEvent("go"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "not blue", res.Actions[0].Text)
}

func TestConditionHaltsWithoutMatchingEdge(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("check", flow.ConditionConfig{Field: "x", Operator: flow.OpExists}),
			node("yes", flow.MessageConfig{Text: "has x"}),
		},
		[]*flow.Edge{
			edge("start", "check", flow.EdgeDefault),
			edge("check", "yes", flow.EdgeTrue),
		})

	sess := newSession()
	res, err := newTestEngine().Execute(context.Background(), def, sess, messageEvent("go"))
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
	assert.False(t, res.Completed)
	assert.Equal(t, "check", sess.CurrentNodeID)
	assert.Equal(t, session.StatusActive, sess.Status)
}

func TestVariableOperations(t *testing.T) {
	// User scope so the values survive the end node clearing session scope.
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("set", flow.VariableConfig{Scope: variables.ScopeUser, Name: "score", Operation: variables.OpSet, Value: "oops"}),
			node("inc", flow.VariableConfig{Scope: variables.ScopeUser, Name: "score", Operation: variables.OpIncrement, Value: 5}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "set", flow.EdgeDefault),
			edge("set", "inc", flow.EdgeDefault),
			edge("inc", "end", flow.EdgeDefault),
		})

	sess := newSession()
	_, err := newTestEngine().Execute(context.Background(), def, sess, messageEvent("go"))
	require.NoError(t, err)
	// Non-numeric prior value coerces to 0 before incrementing.
	assert.Equal(t, float64(5), sess.Variables[variables.ScopeUser]["score"])
}

func TestRandomWeightedDistribution(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("pick", flow.RandomConfig{
				Options: []flow.RandomOption{
					{Value: "rare", Weight: 1},
					{Value: "common", Weight: 3},
				},
				Variable: "prize",
				Scope:    variables.ScopeUser,
			}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "pick", flow.EdgeDefault),
			edge("pick", "end", flow.EdgeDefault),
		})

	eng := newTestEngine()
	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		sess := newSession()
		_, err := eng.Execute(context.Background(), def, sess, messageEvent("go"))
		require.NoError(t, err)
		counts[variables.Stringify(sess.Variables[variables.ScopeUser]["prize"])]++
	}

	ratio := float64(counts["common"]) / float64(counts["rare"])
	assert.InDelta(t, 3.0, ratio, 0.5, "weights 1:3 should yield roughly a 1:3 pick ratio, got %v", counts)
}

func TestRandomRoutesByLabeledEdge(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("pick", flow.RandomConfig{Options: []flow.RandomOption{{Value: "win"}}}),
			node("won", flow.MessageConfig{Text: "you won"}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "pick", flow.EdgeDefault),
			{ID: "pick->won", Source: "pick", Target: "won", Label: "win"},
			edge("won", "end", flow.EdgeDefault),
		})

	sess := newSession()
	res, err := newTestEngine().Execute(context.Background(), def, sess, messageEvent("go"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "you won", res.Actions[0].Text)
}

func TestDelayReturnsWaitAndResumesOnTick(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("wait", flow.DelayConfig{Value: 2, Unit: flow.UnitMinutes}),
			node("after", flow.MessageConfig{Text: "done waiting"}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "wait", flow.EdgeDefault),
			edge("wait", "after", flow.EdgeDefault),
			edge("after", "end", flow.EdgeDefault),
		})

	eng := newTestEngine()
	sess := newSession()
	started := time.Now()

	res, err := eng.Execute(context.Background(), def, sess, messageEvent("go"))
	require.NoError(t, err)
	require.NotNil(t, res.NextWait)
	assert.Equal(t, "wait", res.NextWait.NodeID)
	assert.WithinDuration(t, started.Add(2*time.Minute), res.NextWait.WakeAt, 2*time.Second)
	assert.True(t, time.Since(started) < time.Second, "delay must not block execution")

	// A stray message during the delay is ignored.
	res, err = eng.Execute(context.Background(), def, sess, messageEvent("hello?"))
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
	require.NotNil(t, sess.PendingWait)

	res, err = eng.Execute(context.Background(), def, sess, Event{Type: EventTick, BotID: "bot1", ParticipantID: "user1"})
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "done waiting", res.Actions[0].Text)
	assert.True(t, res.Completed)
}

func TestEndpointResumeMergesNamespacedPayload(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("pay", flow.EndpointConfig{AccessKey: "secret", MergeScope: variables.ScopeUser}),
			node("thanks", flow.MessageConfig{Text: "status {{endpoint_pay_status}}"}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "pay", flow.EdgeDefault),
			edge("pay", "thanks", flow.EdgeDefault),
			edge("thanks", "end", flow.EdgeDefault),
		})

	eng := newTestEngine()
	sess := newSession()

	res, err := eng.Execute(context.Background(), def, sess, messageEvent("buy"))
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
	require.NotNil(t, sess.PendingWait)

	// A chat message cannot satisfy an endpoint wait.
	res, err = eng.Execute(context.Background(), def, sess, messageEvent("done yet?"))
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
	require.NotNil(t, sess.PendingWait)

	res, err = eng.Execute(context.Background(), def, sess, Event{
		Type:          EventEndpoint,
		BotID:         "bot1",
		ParticipantID: "user1",
		Payload:       map[string]any{"status": "paid", "amount": 42},
	})
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "status paid", res.Actions[0].Text)
	assert.Equal(t, "paid", sess.Variables[variables.ScopeUser]["endpoint_pay_status"])
	assert.Equal(t, 42, sess.Variables[variables.ScopeUser]["endpoint_pay_amount"])
	assert.True(t, res.Completed)
}

func TestBroadcastExpandsRecipients(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("shout", flow.BroadcastConfig{
				Audience:       flow.AudienceList,
				ParticipantIDs: []string{"u1", "u2", "u3"},
				Text:           "game on",
			}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "shout", flow.EdgeDefault),
			edge("shout", "end", flow.EdgeDefault),
		})

	sess := newSession()
	res, err := newTestEngine().Execute(context.Background(), def, sess, messageEvent("go"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 3)
	for i, want := range []string{"u1", "u2", "u3"} {
		assert.Equal(t, want, res.Actions[i].ParticipantID)
		assert.Equal(t, "game on", res.Actions[i].Text)
	}
}

func TestStepLimitTripsOnCycle(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("a", flow.VariableConfig{Name: "n", Operation: variables.OpIncrement, Value: 1}),
			node("b", flow.VariableConfig{Name: "n", Operation: variables.OpIncrement, Value: 1}),
		},
		[]*flow.Edge{
			edge("start", "a", flow.EdgeDefault),
			edge("a", "b", flow.EdgeDefault),
			edge("b", "a", flow.EdgeDefault),
		})

	sess := newSession()
	_, err := newTestEngine().Execute(context.Background(), def, sess, messageEvent("go"))
	assert.ErrorIs(t, err, ErrStepLimit)
}

func TestExecuteRejectsCompletedSession(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{node("start", flow.StartConfig{}), node("end", flow.EndConfig{})},
		[]*flow.Edge{edge("start", "end", flow.EdgeDefault)})

	sess := newSession()
	sess.Complete()
	_, err := newTestEngine().Execute(context.Background(), def, sess, messageEvent("go"))
	assert.Error(t, err)
}

func TestEndToEndOnboarding(t *testing.T) {
	def := flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("greet", flow.MessageConfig{Text: "Welcome!"}),
			node("kb", flow.KeyboardConfig{
				Text:    "Are you new here?",
				Buttons: []flow.Button{{Label: "Yes", Data: "yes"}, {Label: "No", Data: "no"}},
			}),
			node("check", flow.ConditionConfig{Field: "selected", Operator: flow.OpEquals, Value: "yes"}),
			node("newbie", flow.MessageConfig{Text: "Here is the tour."}),
			node("regular", flow.MessageConfig{Text: "Welcome back."}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "greet", flow.EdgeDefault),
			edge("greet", "kb", flow.EdgeDefault),
			edge("kb", "check", flow.EdgeDefault),
			edge("check", "newbie", flow.EdgeTrue),
			edge("check", "regular", flow.EdgeFalse),
			edge("newbie", "end", flow.EdgeDefault),
			edge("regular", "end", flow.EdgeDefault),
		})

	eng := newTestEngine()
	sess := newSession()

	res, err := eng.Execute(context.Background(), def, sess, messageEvent("/start"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, "Welcome!", res.Actions[0].Text)
	assert.Equal(t, ActionSendKeyboard, res.Actions[1].Type)

	res, err = eng.Execute(context.Background(), def, sess, callbackEvent("yes"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "Here is the tour.", res.Actions[0].Text)
	assert.True(t, res.Completed)
}
