package groups

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforgehq/botforge-go/internal/domain/entities/group"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

const tenantID = "test-tenant"

func newTestRepository(t *testing.T) *Repository {
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

	repo := NewRepository(db, logger)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestUpsertRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	g := group.New("g-1", "bot-1", "flow-1", "p-1", 8)
	require.NoError(t, g.AddParticipant("p-2"))
	g.SharedVariables["round"] = "3"
	g.CurrentNodeID = "lobby"
	require.NoError(t, repo.Upsert(ctx, tenantID, g))

	loaded, err := repo.FindByID(ctx, tenantID, "g-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.ElementsMatch(t, []string{"p-1", "p-2"}, loaded.ParticipantIDs)
	assert.Equal(t, "3", loaded.SharedVariables["round"])
	assert.Equal(t, "lobby", loaded.CurrentNodeID)
	assert.Equal(t, 8, loaded.Metadata.MaxSize)
	assert.Equal(t, "p-1", loaded.Metadata.CreatedBy)
}

func TestFindByIDMissing(t *testing.T) {
	repo := newTestRepository(t)

	loaded, err := repo.FindByID(context.Background(), tenantID, "ghost")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFindActiveByBotExcludesArchived(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	active := group.New("g-1", "bot-1", "flow-1", "p-1", 8)
	require.NoError(t, repo.Upsert(ctx, tenantID, active))

	archived := group.New("g-2", "bot-1", "flow-1", "p-2", 8)
	archived.Archive()
	require.NoError(t, repo.Upsert(ctx, tenantID, archived))

	other := group.New("g-3", "bot-2", "flow-2", "p-3", 8)
	require.NoError(t, repo.Upsert(ctx, tenantID, other))

	rows, err := repo.FindActiveByBot(ctx, tenantID, "bot-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "g-1", rows[0].ID)

	count, err := repo.CountActiveByBot(ctx, tenantID, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestArchiveInactive(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stale := group.New("g-old", "bot-1", "flow-1", "p-1", 8)
	stale.LastActivity = time.Now().UTC().Add(-10 * 24 * time.Hour)
	require.NoError(t, repo.Upsert(ctx, tenantID, stale))

	fresh := group.New("g-new", "bot-1", "flow-1", "p-2", 8)
	require.NoError(t, repo.Upsert(ctx, tenantID, fresh))

	archived, err := repo.ArchiveInactive(ctx, tenantID, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)

	loaded, err := repo.FindByID(ctx, tenantID, "g-old")
	require.NoError(t, err)
	assert.Equal(t, group.StatusArchived, loaded.Status)

	loaded, err = repo.FindByID(ctx, tenantID, "g-new")
	require.NoError(t, err)
	assert.Equal(t, group.StatusActive, loaded.Status)
}
