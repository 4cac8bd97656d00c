package participants

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestTouchUpsertsAndList(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Touch(ctx, tenantID, "bot-1", "p-1", now))
	require.NoError(t, repo.Touch(ctx, tenantID, "bot-1", "p-2", now))
	require.NoError(t, repo.Touch(ctx, tenantID, "bot-2", "p-1", now))

	// Touching again must not create a duplicate row.
	require.NoError(t, repo.Touch(ctx, tenantID, "bot-1", "p-1", now.Add(time.Minute)))

	ids, err := repo.ListByBot(ctx, tenantID, "bot-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p-1", "p-2"}, ids)
}

func TestListActiveSince(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Touch(ctx, tenantID, "bot-1", "p-recent", now))
	require.NoError(t, repo.Touch(ctx, tenantID, "bot-1", "p-stale", now.Add(-40*24*time.Hour)))

	ids, err := repo.ListActiveSince(ctx, tenantID, "bot-1", now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"p-recent"}, ids)
}
