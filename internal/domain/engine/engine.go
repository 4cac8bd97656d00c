package engine

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/domain/variables"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

// maxStepsPerEvent bounds how many nodes one inbound event may traverse.
// Cycles without a waiting node would otherwise spin forever.
const maxStepsPerEvent = 64

// ErrStepLimit is returned when a single event traverses too many nodes.
var ErrStepLimit = fmt.Errorf("flow exceeded %d steps for one event", maxStepsPerEvent)

// HTTPDoer is the outbound HTTP client contract, satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RecipientResolver resolves a broadcast audience to participant IDs. The
// application layer backs this with the participant repository.
type RecipientResolver interface {
	ResolveAudience(ctx context.Context, tenantID, botID string, cfg flow.BroadcastConfig) ([]string, error)
}

// Options tunes engine behavior; zero values fall back to defaults.
type Options struct {
	HTTPClient     HTTPDoer
	Recipients     RecipientResolver
	WebhookTimeout time.Duration
	RetryBackoff   time.Duration
	RandSeed       int64
}

// Engine interprets flow definitions against session state. It holds no
// per-session state and is safe for concurrent use; callers serialize
// per-session access themselves.
type Engine struct {
	httpClient     HTTPDoer
	recipients     RecipientResolver
	logger         *logging.ChanneledLogger
	webhookTimeout time.Duration
	retryBackoff   time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine builds an engine. The logger may be nil in tests.
func NewEngine(logger *logging.ChanneledLogger, opts Options) *Engine {
	e := &Engine{
		httpClient:     opts.HTTPClient,
		recipients:     opts.Recipients,
		logger:         logger,
		webhookTimeout: opts.WebhookTimeout,
		retryBackoff:   opts.RetryBackoff,
	}
	if e.httpClient == nil {
		e.httpClient = &http.Client{}
	}
	if e.webhookTimeout <= 0 {
		e.webhookTimeout = 10 * time.Second
	}
	if e.retryBackoff <= 0 {
		e.retryBackoff = 250 * time.Millisecond
	}
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e.rng = rand.New(rand.NewSource(seed))
	return e
}

// Execute processes one inbound event against the session. The session is
// mutated in place; callers persist it after a nil error. A nil error with
// Result.NextWait set means the scheduler must re-drive the session with a
// tick event at WakeAt.
func (e *Engine) Execute(ctx context.Context, def *flow.Definition, sess *session.Session, event Event) (*Result, error) {
	start := time.Now()
	res := &Result{Session: sess}

	if sess.Status != session.StatusActive {
		return res, fmt.Errorf("session %s is %s", sess.SessionKey, sess.Status)
	}

	if sess.CurrentNodeID == "" {
		startNode, ok := def.StartNode()
		if !ok {
			return res, fmt.Errorf("flow %s has no start node", def.ID)
		}
		sess.CurrentNodeID = startNode.ID
	}

	if sess.PendingWait != nil {
		proceed, err := e.resolveWait(ctx, def, sess, event, res)
		if err != nil || !proceed {
			sess.Touch()
			return res, err
		}
	}

	err := e.run(ctx, def, sess, res)
	sess.Touch()

	if e.logger != nil {
		e.logger.Engine().Debug("Executed flow event",
			"botId", sess.BotID,
			"sessionKey", sess.SessionKey,
			"eventType", string(event.Type),
			"currentNode", sess.CurrentNodeID,
			"actions", len(res.Actions),
			"completed", res.Completed,
			"duration", time.Since(start).String())
	}
	return res, err
}

// run advances the session through consecutive non-waiting nodes until a
// waiting node suspends it, an end node completes it, routing halts, or the
// step limit trips.
func (e *Engine) run(ctx context.Context, def *flow.Definition, sess *session.Session, res *Result) error {
	for steps := 0; steps < maxStepsPerEvent; steps++ {
		node, ok := def.Node(sess.CurrentNodeID)
		if !ok {
			return fmt.Errorf("flow %s has no node %s", def.ID, sess.CurrentNodeID)
		}

		switch cfg := node.Config.(type) {
		case flow.StartConfig:
			if !e.advance(def, sess, flow.EdgeDefault) {
				return nil
			}

		case flow.MessageConfig:
			action := Action{
				Type:          ActionSendMessage,
				BotID:         sess.BotID,
				ParticipantID: sess.ParticipantID,
				NodeID:        node.ID,
				Text:          variables.Interpolate(cfg.Text, sess.Variables),
			}
			if cfg.MediaURL != "" {
				action.FileURL = variables.Interpolate(cfg.MediaURL, sess.Variables)
				action.FileType = cfg.MediaType
			}
			res.Actions = append(res.Actions, action)
			if !e.advance(def, sess, flow.EdgeDefault) {
				return nil
			}

		case flow.KeyboardConfig:
			res.Actions = append(res.Actions, e.keyboardPrompt(node.ID, sess, cfg))
			sess.PendingWait = &session.PendingWait{
				NodeID:      node.ID,
				RequestedAt: time.Now().UTC(),
			}
			return nil

		case flow.ConditionConfig:
			label := flow.EdgeFalse
			if evaluateCondition(sess.Variables, cfg) {
				label = flow.EdgeTrue
			}
			if !e.advance(def, sess, label) {
				e.warnHalt(sess, node.ID, string(label))
				return nil
			}

		case flow.WebhookConfig:
			response, err := e.callWebhook(ctx, sess.Variables, cfg)
			if err != nil {
				if e.logger != nil {
					e.logger.Engine().Warn("Webhook call failed",
						"botId", sess.BotID, "nodeId", node.ID, "error", err.Error())
				}
				if !e.advance(def, sess, flow.EdgeError) {
					e.warnHalt(sess, node.ID, string(flow.EdgeError))
					return nil
				}
				continue
			}
			if cfg.ResponseVariable != "" {
				variables.Apply(sess.Variables, variables.Mutation{
					Scope: cfg.ResponseScope,
					Key:   cfg.ResponseVariable,
					Op:    variables.OpSet,
					Value: response,
				})
			}
			if !e.advance(def, sess, flow.EdgeDefault) {
				return nil
			}

		case flow.FormConfig:
			if len(cfg.Fields) == 0 {
				if !e.advance(def, sess, flow.EdgeDefault) {
					return nil
				}
				continue
			}
			variables.Apply(sess.Variables, variables.Mutation{
				Scope: variables.ScopeSession,
				Key:   formTempKey(node.ID),
				Op:    variables.OpSet,
				Value: map[string]any{},
			})
			res.Actions = append(res.Actions, Action{
				Type:          ActionSendMessage,
				BotID:         sess.BotID,
				ParticipantID: sess.ParticipantID,
				NodeID:        node.ID,
				Text:          variables.Interpolate(cfg.Fields[0].Prompt, sess.Variables),
			})
			sess.PendingWait = &session.PendingWait{
				NodeID:         node.ID,
				RequestedAt:    time.Now().UTC(),
				TimeoutMs:      cfg.TimeoutMs,
				FormFieldIndex: 0,
			}
			return nil

		case flow.DelayConfig:
			wake := time.Now().UTC().Add(delayDuration(cfg))
			sess.PendingWait = &session.PendingWait{
				NodeID:      node.ID,
				RequestedAt: time.Now().UTC(),
				TimeoutMs:   int(delayDuration(cfg).Milliseconds()),
			}
			res.NextWait = &Wait{NodeID: node.ID, WakeAt: wake}
			return nil

		case flow.VariableConfig:
			value := cfg.Value
			if s, ok := value.(string); ok {
				value = variables.Interpolate(s, sess.Variables)
			}
			variables.Apply(sess.Variables, variables.Mutation{
				Scope: cfg.Scope,
				Key:   cfg.Name,
				Op:    cfg.Operation,
				Value: value,
			})
			if !e.advance(def, sess, flow.EdgeDefault) {
				return nil
			}

		case flow.FileConfig:
			res.Actions = append(res.Actions, Action{
				Type:          ActionSendFile,
				BotID:         sess.BotID,
				ParticipantID: sess.ParticipantID,
				NodeID:        node.ID,
				FileURL:       variables.Interpolate(cfg.URL, sess.Variables),
				FileType:      cfg.FileType,
				Caption:       variables.Interpolate(cfg.Caption, sess.Variables),
			})
			if !e.advance(def, sess, flow.EdgeDefault) {
				return nil
			}

		case flow.RandomConfig:
			chosen := e.weightedPick(cfg.Options)
			if cfg.Variable != "" {
				variables.Apply(sess.Variables, variables.Mutation{
					Scope: cfg.Scope,
					Key:   cfg.Variable,
					Op:    variables.OpSet,
					Value: chosen,
				})
			}
			if edge, ok := def.EdgeByLabel(node.ID, flow.EdgeLabel(chosen)); ok {
				sess.CurrentNodeID = edge.Target
			} else if !e.advance(def, sess, flow.EdgeDefault) {
				e.warnHalt(sess, node.ID, chosen)
				return nil
			}

		case flow.IntegrationConfig:
			params := make(map[string]any, len(cfg.Params))
			for k, v := range cfg.Params {
				if s, ok := v.(string); ok {
					params[k] = variables.Interpolate(s, sess.Variables)
				} else {
					params[k] = v
				}
			}
			res.Actions = append(res.Actions, Action{
				Type:          ActionIntegration,
				BotID:         sess.BotID,
				ParticipantID: sess.ParticipantID,
				NodeID:        node.ID,
				Service:       cfg.Service,
				Operation:     cfg.Action,
				Params:        params,
			})
			if !e.advance(def, sess, flow.EdgeDefault) {
				return nil
			}

		case flow.EndpointConfig:
			sess.PendingWait = &session.PendingWait{
				NodeID:      node.ID,
				RequestedAt: time.Now().UTC(),
			}
			return nil

		case flow.BroadcastConfig:
			if err := e.broadcast(ctx, sess, node.ID, cfg, res); err != nil {
				return err
			}
			if !e.advance(def, sess, flow.EdgeDefault) {
				return nil
			}

		case flow.EndConfig:
			sess.Complete()
			res.Completed = true
			return nil

		default:
			return fmt.Errorf("node %s has unsupported type %s", node.ID, node.Type)
		}
	}
	return ErrStepLimit
}

// resolveWait handles an event arriving while the session is suspended.
// It reports whether the run loop should continue advancing afterwards.
func (e *Engine) resolveWait(ctx context.Context, def *flow.Definition, sess *session.Session, event Event, res *Result) (bool, error) {
	wait := sess.PendingWait
	node, ok := def.Node(wait.NodeID)
	if !ok {
		sess.PendingWait = nil
		return false, fmt.Errorf("flow %s dropped waiting node %s", def.ID, wait.NodeID)
	}

	switch cfg := node.Config.(type) {
	case flow.KeyboardConfig:
		if wait.Expired(time.Now().UTC()) {
			sess.PendingWait = nil
			return true, nil
		}
		if event.Type != EventCallback {
			res.Actions = append(res.Actions, e.keyboardPrompt(node.ID, sess, cfg))
			return false, nil
		}
		if !matchesButton(cfg.Buttons, event.CallbackData) {
			res.Actions = append(res.Actions, e.keyboardPrompt(node.ID, sess, cfg))
			return false, nil
		}
		name := cfg.Variable
		if name == "" {
			name = "selected"
		}
		variables.Apply(sess.Variables, variables.Mutation{
			Scope: variables.ScopeSession,
			Key:   name,
			Op:    variables.OpSet,
			Value: event.CallbackData,
		})
		sess.PendingWait = nil
		if edge, ok := def.EdgeByLabel(node.ID, flow.EdgeLabel(event.CallbackData)); ok {
			sess.CurrentNodeID = edge.Target
			return true, nil
		}
		if !e.advance(def, sess, flow.EdgeDefault) {
			e.warnHalt(sess, node.ID, event.CallbackData)
			return false, nil
		}
		return true, nil

	case flow.FormConfig:
		if wait.Expired(time.Now().UTC()) {
			sess.PendingWait = nil
			variables.Apply(sess.Variables, variables.Mutation{
				Scope: variables.ScopeSession,
				Key:   formTempKey(node.ID),
				Op:    variables.OpSet,
				Value: nil,
			})
			return true, nil
		}
		if event.Type != EventMessage {
			return false, nil
		}
		return e.resolveFormAnswer(def, sess, node.ID, cfg, event, res)

	case flow.DelayConfig:
		if event.Type == EventTick || wait.Expired(time.Now().UTC()) {
			sess.PendingWait = nil
			if !e.advance(def, sess, flow.EdgeDefault) {
				return false, nil
			}
			return true, nil
		}
		return false, nil

	case flow.EndpointConfig:
		if event.Type != EventEndpoint {
			return false, nil
		}
		scope := cfg.MergeScope
		if scope == "" {
			scope = variables.ScopeSession
		}
		for k, v := range event.Payload {
			variables.Apply(sess.Variables, variables.Mutation{
				Scope: scope,
				Key:   fmt.Sprintf("endpoint_%s_%s", node.ID, k),
				Op:    variables.OpSet,
				Value: v,
			})
		}
		sess.PendingWait = nil
		if !e.advance(def, sess, flow.EdgeDefault) {
			return false, nil
		}
		return true, nil

	default:
		// The node was edited out from under the session; drop the stale
		// wait and re-evaluate from the current node.
		sess.PendingWait = nil
		return true, nil
	}
}

// resolveFormAnswer validates one answer, advances the field cursor, and on
// the last field promotes the collected answers to the configured scope.
func (e *Engine) resolveFormAnswer(def *flow.Definition, sess *session.Session, nodeID string, cfg flow.FormConfig, event Event, res *Result) (bool, error) {
	idx := sess.PendingWait.FormFieldIndex
	if idx >= len(cfg.Fields) {
		sess.PendingWait = nil
		return true, nil
	}
	field := cfg.Fields[idx]

	value, err := validateFieldInput(field, event.Text)
	if err != nil {
		prompt := cfg.RetryPrompt
		if prompt == "" {
			prompt = field.Prompt
		}
		res.Actions = append(res.Actions, Action{
			Type:          ActionSendMessage,
			BotID:         sess.BotID,
			ParticipantID: sess.ParticipantID,
			NodeID:        nodeID,
			Text:          variables.Interpolate(prompt, sess.Variables),
		})
		return false, nil
	}

	answers := formAnswers(sess.Variables, nodeID)
	answers[field.Name] = value
	variables.Apply(sess.Variables, variables.Mutation{
		Scope: variables.ScopeSession,
		Key:   formTempKey(nodeID),
		Op:    variables.OpSet,
		Value: answers,
	})

	if idx+1 < len(cfg.Fields) {
		next := cfg.Fields[idx+1]
		res.Actions = append(res.Actions, Action{
			Type:          ActionSendMessage,
			BotID:         sess.BotID,
			ParticipantID: sess.ParticipantID,
			NodeID:        nodeID,
			Text:          variables.Interpolate(next.Prompt, sess.Variables),
		})
		sess.PendingWait.FormFieldIndex = idx + 1
		sess.PendingWait.RequestedAt = time.Now().UTC()
		return false, nil
	}

	scope := cfg.Scope
	if scope == "" {
		scope = variables.DefaultScope
	}
	for name, v := range answers {
		variables.Apply(sess.Variables, variables.Mutation{
			Scope: scope,
			Key:   name,
			Op:    variables.OpSet,
			Value: v,
		})
	}
	delete(sess.Variables[variables.ScopeSession], formTempKey(nodeID))
	sess.PendingWait = nil
	if !e.advance(def, sess, flow.EdgeDefault) {
		return false, nil
	}
	return true, nil
}

// broadcast expands one send action per resolved recipient.
func (e *Engine) broadcast(ctx context.Context, sess *session.Session, nodeID string, cfg flow.BroadcastConfig, res *Result) error {
	var recipients []string
	if cfg.Audience == flow.AudienceList || e.recipients == nil {
		recipients = cfg.ParticipantIDs
	} else {
		resolved, err := e.recipients.ResolveAudience(ctx, TenantIDFromContext(ctx), sess.BotID, cfg)
		if err != nil {
			return fmt.Errorf("failed to resolve broadcast audience: %w", err)
		}
		recipients = resolved
	}
	text := variables.Interpolate(cfg.Text, sess.Variables)
	for _, participantID := range recipients {
		res.Actions = append(res.Actions, Action{
			Type:          ActionSendMessage,
			BotID:         sess.BotID,
			ParticipantID: participantID,
			NodeID:        nodeID,
			Text:          text,
		})
	}
	return nil
}

// advance moves the session along the labeled outgoing edge. It reports
// false when no such edge exists, leaving the session at the current node.
func (e *Engine) advance(def *flow.Definition, sess *session.Session, label flow.EdgeLabel) bool {
	edge, ok := def.EdgeByLabel(sess.CurrentNodeID, label)
	if !ok {
		return false
	}
	sess.CurrentNodeID = edge.Target
	return true
}

func (e *Engine) keyboardPrompt(nodeID string, sess *session.Session, cfg flow.KeyboardConfig) Action {
	return Action{
		Type:          ActionSendKeyboard,
		BotID:         sess.BotID,
		ParticipantID: sess.ParticipantID,
		NodeID:        nodeID,
		Text:          variables.Interpolate(cfg.Text, sess.Variables),
		Buttons:       cfg.Buttons,
	}
}

// weightedPick selects an option value proportionally to its weight.
// Missing or non-positive weights count as 1.
func (e *Engine) weightedPick(options []flow.RandomOption) string {
	if len(options) == 0 {
		return ""
	}
	total := 0
	for _, opt := range options {
		total += optionWeight(opt)
	}
	e.rngMu.Lock()
	r := e.rng.Intn(total)
	e.rngMu.Unlock()
	for _, opt := range options {
		r -= optionWeight(opt)
		if r < 0 {
			return opt.Value
		}
	}
	return options[len(options)-1].Value
}

func optionWeight(opt flow.RandomOption) int {
	if opt.Weight <= 0 {
		return 1
	}
	return opt.Weight
}

func (e *Engine) warnHalt(sess *session.Session, nodeID, label string) {
	if e.logger == nil {
		return
	}
	e.logger.Engine().Warn("No outgoing edge for route; halting at node",
		"botId", sess.BotID,
		"sessionKey", sess.SessionKey,
		"nodeId", nodeID,
		"label", label)
}

func matchesButton(buttons []flow.Button, data string) bool {
	for _, b := range buttons {
		if b.Data == data {
			return true
		}
	}
	return false
}

func delayDuration(cfg flow.DelayConfig) time.Duration {
	v := time.Duration(cfg.Value)
	switch cfg.Unit {
	case flow.UnitMinutes:
		return v * time.Minute
	case flow.UnitHours:
		return v * time.Hour
	case flow.UnitDays:
		return v * 24 * time.Hour
	default:
		return v * time.Second
	}
}

// formAnswers returns the in-progress answer map for a form node, creating
// it if the holding slot is missing or was cleared.
func formAnswers(bag variables.Bag, nodeID string) map[string]any {
	raw, _ := variables.ResolveScoped(bag, variables.ScopeSession, formTempKey(nodeID))
	if m, ok := raw.(map[string]any); ok && m != nil {
		return m
	}
	return map[string]any{}
}
