package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforgehq/botforge-go/internal/domain/entities/group"
)

func newGroupService(t *testing.T) *GroupSessionService {
	svc := NewGroupSessionService(newTestLogger(t), newTestTracker())
	svc.defaultMaxSize = 4
	svc.perBotCap = 2
	return svc
}

func TestCreateGroupWriteThrough(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc := newGroupService(t)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, g.ParticipantIDs)
	assert.Equal(t, 4, g.Metadata.MaxSize)

	// Authoritative row.
	row, err := tenantCtx.GroupRepo().FindByID(ctx, testTenantID, g.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, group.StatusActive, row.Status)

	// Membership mirror.
	groupID, found := tenantCtx.CacheManager.GetMembership(testTenantID, "bot-1", "alice")
	require.True(t, found)
	assert.Equal(t, g.ID, groupID)
}

func TestCreateGroupEnforcesPerBotCap(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc := newGroupService(t)
	ctx := context.Background()

	_, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "a", 0)
	require.NoError(t, err)
	_, err = svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "b", 0)
	require.NoError(t, err)

	_, err = svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "c", 0)
	assert.ErrorIs(t, err, ErrGroupCapacity)
}

func TestAddParticipantFullGroupDoesNotMutate(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc := newGroupService(t)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "alice", 2)
	require.NoError(t, err)
	require.NoError(t, svc.AddParticipant(ctx, tenantCtx, g.ID, "bob"))

	err = svc.AddParticipant(ctx, tenantCtx, g.ID, "carol")
	assert.ErrorIs(t, err, group.ErrGroupFull)

	ids, err := svc.GetParticipantIDs(ctx, tenantCtx, g.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids)

	_, found := tenantCtx.CacheManager.GetMembership(testTenantID, "bot-1", "carol")
	assert.False(t, found)
}

func TestAddParticipantIsIdempotent(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc := newGroupService(t)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "alice", 0)
	require.NoError(t, err)
	require.NoError(t, svc.AddParticipant(ctx, tenantCtx, g.ID, "alice"))

	ids, err := svc.GetParticipantIDs(ctx, tenantCtx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, ids)
}

func TestJoinSecondGroupLeavesFirst(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc := newGroupService(t)
	ctx := context.Background()

	first, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "alice", 0)
	require.NoError(t, err)
	second, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "bob", 0)
	require.NoError(t, err)

	require.NoError(t, svc.AddParticipant(ctx, tenantCtx, second.ID, "alice"))

	groupID, found := tenantCtx.CacheManager.GetMembership(testTenantID, "bot-1", "alice")
	require.True(t, found)
	assert.Equal(t, second.ID, groupID)

	// Alice left the first group, which archives it as empty.
	firstRow, err := tenantCtx.GroupRepo().FindByID(ctx, testTenantID, first.ID)
	require.NoError(t, err)
	assert.False(t, firstRow.HasParticipant("alice"))
	assert.Equal(t, group.StatusArchived, firstRow.Status)
}

func TestRemoveLastParticipantArchives(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc := newGroupService(t)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "alice", 0)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveParticipant(ctx, tenantCtx, g.ID, "alice"))

	row, err := tenantCtx.GroupRepo().FindByID(ctx, testTenantID, g.ID)
	require.NoError(t, err)
	assert.Equal(t, group.StatusArchived, row.Status)

	_, found := tenantCtx.CacheManager.GetMembership(testTenantID, "bot-1", "alice")
	assert.False(t, found)
}

func TestUpdateSharedVariablesMerges(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc := newGroupService(t)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "alice", 0)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateSharedVariables(ctx, tenantCtx, g.ID, map[string]any{"round": 1}))
	require.NoError(t, svc.UpdateSharedVariables(ctx, tenantCtx, g.ID, map[string]any{"round": 2, "pot": 50}))

	loaded, err := svc.GetGroup(ctx, tenantCtx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.SharedVariables["round"])
	assert.Equal(t, 50, loaded.SharedVariables["pot"])
}

func TestFindGroupByParticipantFallsBackToRows(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc := newGroupService(t)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "alice", 0)
	require.NoError(t, err)

	// Drop the mirror; the durable rows remain authoritative.
	tenantCtx.CacheManager.InvalidateTenant(testTenantID)
	tenantCtx.CacheManager.InitializeTenant(testTenantID)

	found, err := svc.FindGroupByParticipant(ctx, tenantCtx, "bot-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, g.ID, found.ID)
}

func TestJoinAfterRestartLeavesDurableGroup(t *testing.T) {
	tenantCtx := newTestTenantContext(t)
	svc := newGroupService(t)
	ctx := context.Background()

	first, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "alice", 0)
	require.NoError(t, err)
	second, err := svc.CreateGroup(ctx, tenantCtx, "bot-1", "flow-1", "bob", 0)
	require.NoError(t, err)

	// Restart wipes the membership mirror; the rows survive.
	tenantCtx.CacheManager.InvalidateTenant(testTenantID)
	tenantCtx.CacheManager.InitializeTenant(testTenantID)

	require.NoError(t, svc.AddParticipant(ctx, tenantCtx, second.ID, "alice"))

	firstRow, err := tenantCtx.GroupRepo().FindByID(ctx, testTenantID, first.ID)
	require.NoError(t, err)
	assert.False(t, firstRow.HasParticipant("alice"),
		"joining a second group must remove the durable membership in the first")

	groupID, found := tenantCtx.CacheManager.GetMembership(testTenantID, "bot-1", "alice")
	require.True(t, found)
	assert.Equal(t, second.ID, groupID)
}
