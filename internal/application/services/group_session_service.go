package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/botforgehq/botforge-go/internal/domain/entities/group"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/performance"
	"github.com/botforgehq/botforge-go/internal/infrastructure/security"
	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
	"github.com/botforgehq/botforge-go/pkg/config"
)

// ErrGroupNotFound is returned when a group is in neither tier.
var ErrGroupNotFound = errors.New("group not found")

// ErrGroupCapacity is returned when a bot already has the maximum number of
// active groups.
var ErrGroupCapacity = errors.New("active group cap reached for bot")

// GroupSessionService manages multi-participant ("lobby") sessions. Writes
// go to the authoritative durable row first and the cache mirror second, so
// a crash between the two heals on the next read.
type GroupSessionService struct {
	defaultMaxSize int
	perBotCap      int
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewGroupSessionService creates the group service with capacity limits
// from config.
func NewGroupSessionService(logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *GroupSessionService {
	return &GroupSessionService{
		defaultMaxSize: config.GroupMaxSize,
		perBotCap:      config.GroupsPerBotCap,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// CreateGroup creates a new active group with the creator as first member.
// The creator leaves any prior active group for the bot first.
func (s *GroupSessionService) CreateGroup(ctx context.Context, tenantCtx *tenant.Context, botID, flowID, creatorID string, maxSize int) (*group.Group, error) {
	marker := s.perfTracker.StartMarker("group_create", tenantCtx.TenantID)
	defer marker.Complete()

	count, err := tenantCtx.GroupRepo().CountActiveByBot(ctx, tenantCtx.TenantID, botID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if count >= s.perBotCap {
		return nil, ErrGroupCapacity
	}

	if err := s.leaveCurrentGroup(ctx, tenantCtx, botID, creatorID); err != nil {
		marker.SetError(err)
		return nil, err
	}

	if maxSize <= 0 || maxSize > s.defaultMaxSize {
		maxSize = s.defaultMaxSize
	}
	g := group.New(security.GenerateULID(), botID, flowID, creatorID, maxSize)
	if err := s.writeThrough(ctx, tenantCtx, g); err != nil {
		marker.SetError(err)
		return nil, err
	}

	s.logger.Group().Info("Group created",
		"tenantId", tenantCtx.TenantID, "groupId", g.ID, "botId", botID,
		"createdBy", creatorID, "maxSize", maxSize)
	marker.SetSuccess(true)
	return g, nil
}

// GetGroup reads the cache mirror first, falling back to the durable row.
func (s *GroupSessionService) GetGroup(ctx context.Context, tenantCtx *tenant.Context, groupID string) (*group.Group, error) {
	if g, found := tenantCtx.CacheManager.GetGroup(tenantCtx.TenantID, groupID); found {
		return g, nil
	}
	g, err := tenantCtx.GroupRepo().FindByID(ctx, tenantCtx.TenantID, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	tenantCtx.CacheManager.SetGroup(tenantCtx.TenantID, g)
	return g, nil
}

// FindGroupByParticipant resolves a participant's active group for a bot,
// membership mirror first, then the durable rows.
func (s *GroupSessionService) FindGroupByParticipant(ctx context.Context, tenantCtx *tenant.Context, botID, participantID string) (*group.Group, error) {
	if groupID, found := tenantCtx.CacheManager.GetMembership(tenantCtx.TenantID, botID, participantID); found {
		return s.GetGroup(ctx, tenantCtx, groupID)
	}

	active, err := tenantCtx.GroupRepo().FindActiveByBot(ctx, tenantCtx.TenantID, botID)
	if err != nil {
		return nil, err
	}
	for _, g := range active {
		if g.HasParticipant(participantID) {
			tenantCtx.CacheManager.SetGroup(tenantCtx.TenantID, g)
			return g, nil
		}
	}
	return nil, ErrGroupNotFound
}

// AddParticipant joins a participant to a group, enforcing capacity and the
// one-active-group-per-bot rule. No mutation happens on a full group.
func (s *GroupSessionService) AddParticipant(ctx context.Context, tenantCtx *tenant.Context, groupID, participantID string) error {
	marker := s.perfTracker.StartMarker("group_join", tenantCtx.TenantID)
	defer marker.Complete()

	g, err := s.GetGroup(ctx, tenantCtx, groupID)
	if err != nil {
		marker.SetError(err)
		return err
	}
	if g.Status != group.StatusActive {
		return fmt.Errorf("group %s is not active", groupID)
	}
	if g.HasParticipant(participantID) {
		return nil
	}

	if err := s.leaveCurrentGroup(ctx, tenantCtx, g.BotID, participantID); err != nil {
		marker.SetError(err)
		return err
	}

	updated := g.Clone()
	if err := updated.AddParticipant(participantID); err != nil {
		return err
	}
	if err := s.writeThrough(ctx, tenantCtx, updated); err != nil {
		marker.SetError(err)
		return err
	}

	s.logger.Group().Info("Participant joined group",
		"tenantId", tenantCtx.TenantID, "groupId", groupID,
		"participantId", participantID, "members", len(updated.ParticipantIDs))
	marker.SetSuccess(true)
	return nil
}

// RemoveParticipant removes a member; removing the last member archives the
// group.
func (s *GroupSessionService) RemoveParticipant(ctx context.Context, tenantCtx *tenant.Context, groupID, participantID string) error {
	g, err := s.GetGroup(ctx, tenantCtx, groupID)
	if err != nil {
		return err
	}

	updated := g.Clone()
	if !updated.RemoveParticipant(participantID) {
		return nil
	}
	if updated.IsEmpty() {
		updated.Archive()
	}
	if err := s.writeThrough(ctx, tenantCtx, updated); err != nil {
		return err
	}
	tenantCtx.CacheManager.RemoveMembership(tenantCtx.TenantID, updated.BotID, participantID)

	s.logger.Group().Info("Participant left group",
		"tenantId", tenantCtx.TenantID, "groupId", groupID,
		"participantId", participantID, "status", string(updated.Status))
	return nil
}

// UpdateSharedVariables merges updates into the group's shared variables.
func (s *GroupSessionService) UpdateSharedVariables(ctx context.Context, tenantCtx *tenant.Context, groupID string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	g, err := s.GetGroup(ctx, tenantCtx, groupID)
	if err != nil {
		return err
	}

	updated := g.Clone()
	for k, v := range updates {
		updated.SharedVariables[k] = v
	}
	updated.Touch()
	return s.writeThrough(ctx, tenantCtx, updated)
}

// GetParticipantIDs returns the current membership of a group.
func (s *GroupSessionService) GetParticipantIDs(ctx context.Context, tenantCtx *tenant.Context, groupID string) ([]string, error) {
	g, err := s.GetGroup(ctx, tenantCtx, groupID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), g.ParticipantIDs...), nil
}

// ArchiveGroup marks a group archived and drops its membership mirror.
func (s *GroupSessionService) ArchiveGroup(ctx context.Context, tenantCtx *tenant.Context, groupID string) error {
	g, err := s.GetGroup(ctx, tenantCtx, groupID)
	if err != nil {
		return err
	}

	updated := g.Clone()
	updated.Archive()
	return s.writeThrough(ctx, tenantCtx, updated)
}

// leaveCurrentGroup removes a participant from whatever active group they
// are in for the bot, if any. The membership mirror is checked first; a miss
// falls back to the durable rows, which stay authoritative across restarts.
func (s *GroupSessionService) leaveCurrentGroup(ctx context.Context, tenantCtx *tenant.Context, botID, participantID string) error {
	currentID, found := tenantCtx.CacheManager.GetMembership(tenantCtx.TenantID, botID, participantID)
	if !found {
		g, err := s.FindGroupByParticipant(ctx, tenantCtx, botID, participantID)
		if err == ErrGroupNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		currentID = g.ID
	}
	return s.RemoveParticipant(ctx, tenantCtx, currentID, participantID)
}

// writeThrough persists the authoritative row first, then refreshes the
// cache mirror. SetGroup rebuilds the fast membership set from the row.
func (s *GroupSessionService) writeThrough(ctx context.Context, tenantCtx *tenant.Context, g *group.Group) error {
	if err := tenantCtx.GroupRepo().Upsert(ctx, tenantCtx.TenantID, g); err != nil {
		s.logger.LogError(logging.ChannelGroup, "group_upsert", err, tenantCtx.TenantID)
		return err
	}
	tenantCtx.CacheManager.SetGroup(tenantCtx.TenantID, g)
	return nil
}
