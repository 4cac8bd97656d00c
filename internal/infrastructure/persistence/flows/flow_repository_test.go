package flows

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/manager"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/types"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

const tenantID = "test-tenant"

func newTestRepository(t *testing.T) (*Repository, *manager.Manager) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{
		DefaultLevel:  slog.LevelError,
		ChannelLevels: make(map[logging.Channel]slog.Level),
	})
	require.NoError(t, err)

	cache := manager.NewManager(types.DefaultCacheConfig(), logger)
	cache.InitializeTenant(tenantID)

	repo := NewRepository(db, cache, logger)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo, cache
}

func testDefinition(id, botID string) *flow.Definition {
	def := flow.NewDefinition(id, botID, []*flow.Node{
		{ID: "start", Type: flow.NodeStart, Config: flow.StartConfig{}},
		{ID: "msg", Type: flow.NodeMessage, Config: flow.MessageConfig{Text: "hi"},
			RawConfig: []byte(`{"text":"hi"}`)},
		{ID: "done", Type: flow.NodeEnd, Config: flow.EndConfig{}},
	}, []*flow.Edge{
		{ID: "e1", Source: "start", Target: "msg"},
		{ID: "e2", Source: "msg", Target: "done"},
	})
	return def
}

func TestSaveAndFindByID(t *testing.T) {
	repo, cache := newTestRepository(t)
	ctx := context.Background()

	def := testDefinition("flow-1", "bot-1")
	require.NoError(t, repo.Save(ctx, tenantID, def, nil))

	loaded, err := repo.FindByID(ctx, tenantID, "flow-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "bot-1", loaded.BotID)

	msg, ok := loaded.Node("msg")
	require.True(t, ok)
	cfg, ok := msg.Config.(flow.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "hi", cfg.Text)

	// Second read is served from the cache tier.
	cached, found := cache.GetFlow(tenantID, "flow-1")
	require.True(t, found)
	assert.Equal(t, loaded.ID, cached.ID)
}

func TestFindActiveByBot(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	none, err := repo.FindActiveByBot(ctx, tenantID, "bot-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, repo.Save(ctx, tenantID, testDefinition("flow-1", "bot-1"), nil))

	active, err := repo.FindActiveByBot(ctx, tenantID, "bot-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "flow-1", active.ID)
}

func TestSaveNewVersionRepointsBot(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, tenantID, testDefinition("flow-1", "bot-1"), nil))

	v2 := testDefinition("flow-2", "bot-1")
	v2.Version = 2
	require.NoError(t, repo.Save(ctx, tenantID, v2, nil))

	active, err := repo.FindActiveByBot(ctx, tenantID, "bot-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "flow-2", active.ID)
}

func TestFindByIDMissing(t *testing.T) {
	repo, _ := newTestRepository(t)

	loaded, err := repo.FindByID(context.Background(), tenantID, "ghost")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
