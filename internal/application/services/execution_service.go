package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/engine"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/domain/variables"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/performance"
	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
)

// lockStripes bounds memory for the keyed locks; collisions only cost
// unnecessary serialization, never correctness.
const lockStripes = 128

// ActionDispatcher enqueues outbound actions for delivery. Enqueue returns
// false when the queue is full.
type ActionDispatcher interface {
	Enqueue(tenantID string, action engine.Action) bool
}

// WaitScheduler re-drives a session after a delay wait. Implementations
// must not block the caller.
type WaitScheduler interface {
	Schedule(wakeAt time.Time, fire func())
}

// timerScheduler is the default WaitScheduler, backed by time.AfterFunc.
type timerScheduler struct{}

func (timerScheduler) Schedule(wakeAt time.Time, fire func()) {
	delay := time.Until(wakeAt)
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, fire)
}

// ExecutionService drives the flow engine for inbound events: it makes
// load, execute, and save a critical section per session key, mirrors
// session changes into the participant's group, hands actions to the
// dispatcher, and schedules delay wake-ups.
type ExecutionService struct {
	engine     *engine.Engine
	storage    *SessionStorageService
	groups     *GroupSessionService
	dispatcher ActionDispatcher
	scheduler  WaitScheduler

	locks          [lockStripes]sync.Mutex
	droppedActions atomic.Int64

	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewExecutionService creates the orchestrator. A nil scheduler gets the
// timer-backed default.
func NewExecutionService(eng *engine.Engine, storage *SessionStorageService, groups *GroupSessionService, dispatcher ActionDispatcher, scheduler WaitScheduler, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *ExecutionService {
	if scheduler == nil {
		scheduler = timerScheduler{}
	}
	return &ExecutionService{
		engine:      eng,
		storage:     storage,
		groups:      groups,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// DroppedActions returns how many actions were discarded because the
// dispatch queue was full.
func (s *ExecutionService) DroppedActions() int64 {
	return s.droppedActions.Load()
}

// HandleEvent runs one inbound event through the engine under the session's
// keyed lock. Events for different sessions proceed fully in parallel.
func (s *ExecutionService) HandleEvent(ctx context.Context, tenantCtx *tenant.Context, event engine.Event) (*engine.Result, error) {
	marker := s.perfTracker.StartMarker("execution_handle_event", tenantCtx.TenantID)
	defer marker.Complete()

	def, err := tenantCtx.FlowRepo().FindActiveByBot(ctx, tenantCtx.TenantID, event.BotID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("bot %s has no active flow", event.BotID)
	}

	if err := tenantCtx.ParticipantRepo().Touch(ctx, tenantCtx.TenantID, event.BotID, event.ParticipantID, event.ReceivedAt); err != nil {
		s.logger.LogError(logging.ChannelDatabase, "participant_touch", err, tenantCtx.TenantID)
	}

	sessionKey := session.Key(event.BotID, event.ParticipantID)
	lock := s.lockFor(tenantCtx.TenantID, sessionKey)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.storage.GetSession(ctx, tenantCtx, event.BotID, event.ParticipantID)
	switch {
	case err == ErrSessionNotFound:
		sess = session.New(event.BotID, event.ParticipantID, def.ID)
		if groupID, found := tenantCtx.CacheManager.GetMembership(tenantCtx.TenantID, event.BotID, event.ParticipantID); found {
			sess.GroupRef = groupID
		}
	case err != nil:
		marker.SetError(err)
		return nil, err
	case sess.FlowID != def.ID:
		// The active flow changed under a live session; start over on the
		// new definition rather than executing stale node ids.
		s.logger.Engine().Info("Active flow changed; restarting session",
			"tenantId", tenantCtx.TenantID, "sessionKey", sessionKey,
			"oldFlowId", sess.FlowID, "newFlowId", def.ID)
		fresh := session.New(event.BotID, event.ParticipantID, def.ID)
		fresh.Variables[variables.ScopeUser] = sess.Variables[variables.ScopeUser]
		fresh.Variables[variables.ScopeGlobal] = sess.Variables[variables.ScopeGlobal]
		fresh.GroupRef = sess.GroupRef
		sess = fresh
	}

	res, err := s.engine.Execute(engine.WithTenantID(ctx, tenantCtx.TenantID), def, sess.Clone(), event)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	if err := s.storage.SaveSession(ctx, tenantCtx, def, res.Session, res.Completed); err != nil {
		marker.SetError(err)
		return nil, err
	}

	if res.Session.InGroup() {
		s.syncGroupVariables(ctx, tenantCtx, res.Session)
	}

	s.dispatch(tenantCtx.TenantID, res.Actions)

	if res.NextWait != nil {
		s.scheduleWake(tenantCtx, event, res.NextWait.WakeAt)
	}

	marker.SetSuccess(true)
	return res, nil
}

// dispatch enqueues actions; a full queue drops the action with a count.
// Engine correctness never depends on delivery.
func (s *ExecutionService) dispatch(tenantID string, actions []engine.Action) {
	for _, action := range actions {
		if s.dispatcher == nil {
			continue
		}
		if !s.dispatcher.Enqueue(tenantID, action) {
			dropped := s.droppedActions.Add(1)
			s.logger.Dispatch().Warn("Action dropped; dispatch queue full",
				"tenantId", tenantID, "actionType", string(action.Type),
				"nodeId", action.NodeID, "droppedTotal", dropped)
		}
	}
}

// scheduleWake arranges a tick event at the wait's wake time. The tick runs
// through HandleEvent like any other event and so takes the session lock.
func (s *ExecutionService) scheduleWake(tenantCtx *tenant.Context, event engine.Event, wakeAt time.Time) {
	tick := engine.Event{
		Type:          engine.EventTick,
		BotID:         event.BotID,
		ParticipantID: event.ParticipantID,
	}
	s.scheduler.Schedule(wakeAt, func() {
		tick.ReceivedAt = time.Now().UTC()
		if _, err := s.HandleEvent(context.Background(), tenantCtx, tick); err != nil {
			s.logger.LogError(logging.ChannelEngine, "delay_wake", err, tenantCtx.TenantID)
		}
	})
}

// syncGroupVariables mirrors the session's session-scoped variables into
// the participant's group under the group's keyed lock, so concurrent
// members apply in arrival order. The group write is deliberately separate
// from the session write; a crash between the two heals on the next event.
func (s *ExecutionService) syncGroupVariables(ctx context.Context, tenantCtx *tenant.Context, sess *session.Session) {
	updates := sess.Variables[variables.ScopeSession]
	if len(updates) == 0 {
		return
	}

	lock := s.lockFor(tenantCtx.TenantID, "group:"+sess.GroupRef)
	lock.Lock()
	defer lock.Unlock()

	if err := s.groups.UpdateSharedVariables(ctx, tenantCtx, sess.GroupRef, updates); err != nil {
		s.logger.LogError(logging.ChannelGroup, "group_variable_sync", err, tenantCtx.TenantID)
	}
}

// lockFor returns the stripe mutex for a tenant-scoped key.
func (s *ExecutionService) lockFor(tenantID, key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}
