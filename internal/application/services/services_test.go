package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/manager"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/types"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/performance"
	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
)

const testTenantID = "test-tenant"

func newTestLogger(t *testing.T) *logging.ChanneledLogger {
	t.Helper()
	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{
		OutputToFile:    false,
		OutputToConsole: false,
		DefaultLevel:    slog.LevelError,
		ChannelLevels:   make(map[logging.Channel]slog.Level),
	})
	require.NoError(t, err)
	return logger
}

// newTestTenantContext wires an in-memory SQLite database and a fresh cache
// manager behind a tenant context, with all schemas applied.
func newTestTenantContext(t *testing.T) *tenant.Context {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// The pool must stay on one connection or each conn gets its own
	// empty in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger := newTestLogger(t)
	cache := manager.NewManager(types.DefaultCacheConfig(), logger)
	cache.InitializeTenant(testTenantID)

	tenantCtx := &tenant.Context{
		TenantID:     testTenantID,
		Database:     &tenant.Database{Conn: db, TenantID: testTenantID},
		Status:       "active",
		CacheManager: cache,
		Logger:       logger,
	}

	ctx := context.Background()
	require.NoError(t, tenantCtx.SessionRepo().EnsureSchema(ctx))
	require.NoError(t, tenantCtx.GroupRepo().EnsureSchema(ctx))
	require.NoError(t, tenantCtx.ParticipantRepo().EnsureSchema(ctx))
	require.NoError(t, tenantCtx.FlowRepo().EnsureSchema(ctx))
	require.NoError(t, tenantCtx.EndpointPayloadRepo().EnsureSchema(ctx))
	return tenantCtx
}

func newTestTracker() *performance.Tracker {
	return performance.NewTracker(256)
}

// configNode builds a node whose RawConfig round-trips through the flow
// repository.
func configNode(t *testing.T, id string, nodeType flow.NodeType, cfg flow.NodeConfig) *flow.Node {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return &flow.Node{ID: id, Type: nodeType, Config: cfg, RawConfig: raw}
}

func labeledEdge(id, source, target string, label flow.EdgeLabel) *flow.Edge {
	return &flow.Edge{ID: id, Source: source, Target: target, Label: label}
}

// saveActiveFlow persists a definition as the bot's active flow.
func saveActiveFlow(t *testing.T, tenantCtx *tenant.Context, def *flow.Definition) {
	t.Helper()
	require.NoError(t, tenantCtx.FlowRepo().Save(context.Background(), tenantCtx.TenantID, def, nil))
}
