package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforgehq/botforge-go/internal/domain/engine"
	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/domain/variables"
	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
)

// captureDispatcher records enqueued actions; Full simulates backpressure.
type captureDispatcher struct {
	mu      sync.Mutex
	actions []engine.Action
	full    bool
}

func (d *captureDispatcher) Enqueue(tenantID string, action engine.Action) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return false
	}
	d.actions = append(d.actions, action)
	return true
}

func (d *captureDispatcher) Actions() []engine.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]engine.Action(nil), d.actions...)
}

// manualScheduler collects scheduled wake-ups so tests fire them directly.
type manualScheduler struct {
	mu    sync.Mutex
	fires []func()
}

func (s *manualScheduler) Schedule(wakeAt time.Time, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fires = append(s.fires, fire)
}

func newExecutionHarness(t *testing.T, tenantCtx *tenant.Context) (*ExecutionService, *captureDispatcher, *manualScheduler) {
	t.Helper()
	logger := newTestLogger(t)
	dispatcher := &captureDispatcher{}
	scheduler := &manualScheduler{}
	storage := NewSessionStorageService(NewPersistencePolicy(nil), logger, newTestTracker())
	groups := NewGroupSessionService(logger, newTestTracker())
	eng := engine.NewEngine(logger, engine.Options{RandSeed: 1})
	svc := NewExecutionService(eng, storage, groups, dispatcher, scheduler, logger, newTestTracker())
	return svc, dispatcher, scheduler
}

func onboardingFlow(t *testing.T) *flow.Definition {
	return flow.NewDefinition("flow-1", "bot-1", []*flow.Node{
		configNode(t, "start", flow.NodeStart, flow.StartConfig{}),
		configNode(t, "greet", flow.NodeMessage, flow.MessageConfig{Text: "Welcome {{name}}!"}),
		configNode(t, "ask", flow.NodeKeyboard, flow.KeyboardConfig{
			Text: "Ready?",
			Buttons: []flow.Button{
				{Label: "Yes", Data: "yes"},
				{Label: "No", Data: "no"},
			},
		}),
		configNode(t, "check", flow.NodeCondition, flow.ConditionConfig{
			Field: "selected", Operator: flow.OpEquals, Value: "yes",
		}),
		configNode(t, "go", flow.NodeMessage, flow.MessageConfig{Text: "Let's go"}),
		configNode(t, "bye", flow.NodeMessage, flow.MessageConfig{Text: "Maybe later"}),
		configNode(t, "done", flow.NodeEnd, flow.EndConfig{}),
	}, []*flow.Edge{
		labeledEdge("e1", "start", "greet", ""),
		labeledEdge("e2", "greet", "ask", ""),
		labeledEdge("e3", "ask", "check", ""),
		labeledEdge("e4", "check", "go", flow.EdgeTrue),
		labeledEdge("e5", "check", "bye", flow.EdgeFalse),
		labeledEdge("e6", "go", "done", ""),
		labeledEdge("e7", "bye", "done", ""),
	})
}

func TestHandleEventRunsFlowEndToEnd(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc, dispatcher, _ := newExecutionHarness(t, tenantCtx)
	saveActiveFlow(t, tenantCtx, onboardingFlow(t))
	ctx := context.Background()

	res, err := svc.HandleEvent(ctx, tenantCtx, engine.Event{
		Type: engine.EventMessage, BotID: "bot-1", ParticipantID: "p-1",
		Text: "hi", ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, "ask", res.Session.CurrentNodeID)
	require.NotNil(t, res.Session.PendingWait)

	res, err = svc.HandleEvent(ctx, tenantCtx, engine.Event{
		Type: engine.EventCallback, BotID: "bot-1", ParticipantID: "p-1",
		CallbackData: "yes", ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, res.Completed)

	var texts []string
	for _, action := range dispatcher.Actions() {
		if action.Type == engine.ActionSendMessage {
			texts = append(texts, action.Text)
		}
	}
	assert.Contains(t, texts, "Welcome !")
	assert.Contains(t, texts, "Let's go")
}

func TestHandleEventNoActiveFlow(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc, _, _ := newExecutionHarness(t, tenantCtx)

	_, err := svc.HandleEvent(context.Background(), tenantCtx, engine.Event{
		Type: engine.EventMessage, BotID: "ghost-bot", ParticipantID: "p-1",
		ReceivedAt: time.Now().UTC(),
	})
	assert.Error(t, err)
}

func TestHandleEventSchedulesDelayWake(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc, dispatcher, scheduler := newExecutionHarness(t, tenantCtx)

	def := flow.NewDefinition("flow-1", "bot-1", []*flow.Node{
		configNode(t, "start", flow.NodeStart, flow.StartConfig{}),
		configNode(t, "pause", flow.NodeDelay, flow.DelayConfig{Value: 1, Unit: flow.UnitSeconds}),
		configNode(t, "after", flow.NodeMessage, flow.MessageConfig{Text: "awake"}),
		configNode(t, "done", flow.NodeEnd, flow.EndConfig{}),
	}, []*flow.Edge{
		labeledEdge("e1", "start", "pause", ""),
		labeledEdge("e2", "pause", "after", ""),
		labeledEdge("e3", "after", "done", ""),
	})
	saveActiveFlow(t, tenantCtx, def)

	res, err := svc.HandleEvent(context.Background(), tenantCtx, engine.Event{
		Type: engine.EventMessage, BotID: "bot-1", ParticipantID: "p-1",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotNil(t, res.NextWait)
	require.Len(t, scheduler.fires, 1)

	// Fire the scheduled tick as the timer would.
	scheduler.fires[0]()

	var texts []string
	for _, action := range dispatcher.Actions() {
		texts = append(texts, action.Text)
	}
	assert.Contains(t, texts, "awake")
}

func TestHandleEventCountsDroppedActions(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc, dispatcher, _ := newExecutionHarness(t, tenantCtx)
	dispatcher.full = true
	saveActiveFlow(t, tenantCtx, onboardingFlow(t))

	_, err := svc.HandleEvent(context.Background(), tenantCtx, engine.Event{
		Type: engine.EventMessage, BotID: "bot-1", ParticipantID: "p-1",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Greater(t, svc.DroppedActions(), int64(0))
}

func TestHandleEventParallelSessionsIsolated(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc, _, _ := newExecutionHarness(t, tenantCtx)
	saveActiveFlow(t, tenantCtx, onboardingFlow(t))

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.HandleEvent(context.Background(), tenantCtx, engine.Event{
				Type: engine.EventMessage, BotID: "bot-1",
				ParticipantID: string(rune('a' + i)),
				ReceivedAt:    time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 16, tenantCtx.CacheManager.CountSessions(testTenantID))
}

func TestHandleEventSyncsGroupVariables(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc, _, _ := newExecutionHarness(t, tenantCtx)

	def := flow.NewDefinition("flow-1", "bot-1", []*flow.Node{
		configNode(t, "start", flow.NodeStart, flow.StartConfig{}),
		configNode(t, "set", flow.NodeVariable, flow.VariableConfig{
			Name: "round", Operation: variables.OpSet, Value: "1",
		}),
	}, []*flow.Edge{
		labeledEdge("e1", "start", "set", ""),
	})
	saveActiveFlow(t, tenantCtx, def)

	groups := NewGroupSessionService(newTestLogger(t), newTestTracker())
	g, err := groups.CreateGroup(context.Background(), tenantCtx, "bot-1", "flow-1", "p-1", 0)
	require.NoError(t, err)

	_, err = svc.HandleEvent(context.Background(), tenantCtx, engine.Event{
		Type: engine.EventMessage, BotID: "bot-1", ParticipantID: "p-1",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	loaded, err := groups.GetGroup(context.Background(), tenantCtx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", loaded.SharedVariables["round"])
}

func TestHandleEventRestartsOnFlowChange(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc, _, _ := newExecutionHarness(t, tenantCtx)
	saveActiveFlow(t, tenantCtx, onboardingFlow(t))
	ctx := context.Background()

	_, err := svc.HandleEvent(ctx, tenantCtx, engine.Event{
		Type: engine.EventMessage, BotID: "bot-1", ParticipantID: "p-1",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	// Seed a user-scoped variable that must survive the flow swap.
	sess, found := tenantCtx.CacheManager.GetSession(testTenantID, session.Key("bot-1", "p-1"))
	require.True(t, found)
	variables.Apply(sess.Variables, variables.Mutation{
		Scope: variables.ScopeUser, Key: "name", Op: variables.OpSet, Value: "Ada",
	})
	tenantCtx.CacheManager.SetSession(testTenantID, sess)

	replacement := flow.NewDefinition("flow-2", "bot-1", []*flow.Node{
		configNode(t, "start", flow.NodeStart, flow.StartConfig{}),
		configNode(t, "hello", flow.NodeMessage, flow.MessageConfig{Text: "v2 {{name}}"}),
	}, []*flow.Edge{
		labeledEdge("e1", "start", "hello", ""),
	})
	replacement.Version = 2
	saveActiveFlow(t, tenantCtx, replacement)

	res, err := svc.HandleEvent(ctx, tenantCtx, engine.Event{
		Type: engine.EventMessage, BotID: "bot-1", ParticipantID: "p-1",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, "flow-2", res.Session.FlowID)

	got, ok := variables.Resolve(res.Session.Variables, "name")
	require.True(t, ok)
	assert.Equal(t, "Ada", got)
}

func TestHandleEventAfterCompletionStartsNewSession(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc, _, _ := newExecutionHarness(t, tenantCtx)
	saveActiveFlow(t, tenantCtx, onboardingFlow(t))
	ctx := context.Background()

	_, err := svc.HandleEvent(ctx, tenantCtx, engine.Event{
		Type: engine.EventMessage, BotID: "bot-1", ParticipantID: "p-1",
		Text: "hi", ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	res, err := svc.HandleEvent(ctx, tenantCtx, engine.Event{
		Type: engine.EventCallback, BotID: "bot-1", ParticipantID: "p-1",
		CallbackData: "yes", ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, res.Completed)

	// The finished conversation is logically gone; the next message opens a
	// fresh session that runs to the keyboard wait again.
	res, err = svc.HandleEvent(ctx, tenantCtx, engine.Event{
		Type: engine.EventMessage, BotID: "bot-1", ParticipantID: "p-1",
		Text: "hi again", ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, res.Session.Status)
	assert.Equal(t, "ask", res.Session.CurrentNodeID)
	assert.NotNil(t, res.Session.PendingWait)
}
