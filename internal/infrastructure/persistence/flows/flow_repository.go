// Package flows provides the SQL-backed store for flow definitions, with a
// read-through into the parsed-definition cache.
package flows

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/manager"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/persistence/database"
)

const queryTimeout = 5 * time.Second

// Repository is the SQL-based flow definition store.
type Repository struct {
	db     *sql.DB
	cache  *manager.Manager
	logger *logging.ChanneledLogger
}

// NewRepository creates a new instance of the repository.
func NewRepository(db *sql.DB, cache *manager.Manager, logger *logging.ChanneledLogger) *Repository {
	return &Repository{db: db, cache: cache, logger: logger}
}

// EnsureSchema creates the flows table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS flows (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'draft',
			definition TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_flows_bot_status ON flows(bot_id, status);`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// FindByID retrieves a parsed flow definition, reading through the cache.
// A nil definition with nil error means not found.
func (r *Repository) FindByID(ctx context.Context, tenantID, flowID string) (*flow.Definition, error) {
	if r.cache != nil {
		if def, found := r.cache.GetFlow(tenantID, flowID); found {
			return def, nil
		}
	}

	start := time.Now()
	const query = `SELECT definition FROM flows WHERE id = ?`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var raw string
	err := r.db.QueryRowContext(ctx, query, flowID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	database.CheckAndLogSlowQuery(r.logger, "FLOW_FIND_BY_ID", time.Since(start), tenantID)

	def, err := flow.ParseDefinition([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", flowID, err)
	}
	if r.cache != nil {
		r.cache.SetFlow(tenantID, def)
	}
	return def, nil
}

// FindActiveByBot retrieves the single active flow for a bot, reading
// through the routing index. A nil definition with nil error means the bot
// has no active flow.
func (r *Repository) FindActiveByBot(ctx context.Context, tenantID, botID string) (*flow.Definition, error) {
	if r.cache != nil {
		if flowID, found := r.cache.GetActiveFlowID(tenantID, botID); found {
			return r.FindByID(ctx, tenantID, flowID)
		}
	}

	const query = `
		SELECT id FROM flows
		WHERE bot_id = ? AND status = ?
		ORDER BY version DESC
		LIMIT 1`

	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var flowID string
	err := r.db.QueryRowContext(qctx, query, botID, string(flow.StatusActive)).Scan(&flowID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.SetActiveFlowID(tenantID, botID, flowID)
	}
	return r.FindByID(ctx, tenantID, flowID)
}

// Save persists a flow definition and invalidates its cache entry.
func (r *Repository) Save(ctx context.Context, tenantID string, def *flow.Definition, rawDefinition []byte) error {
	if len(rawDefinition) == 0 {
		data, err := json.Marshal(def)
		if err != nil {
			return fmt.Errorf("failed to marshal flow definition: %w", err)
		}
		rawDefinition = data
	}

	const query = `
		INSERT INTO flows (id, bot_id, version, status, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			status = excluded.status,
			definition = excluded.definition,
			updated_at = excluded.updated_at`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, query,
		def.ID, def.BotID, def.Version, string(def.Status), string(rawDefinition), now, now)
	if err != nil {
		return err
	}

	if r.cache != nil {
		r.cache.InvalidateFlow(tenantID, def.ID)
		if def.Status == flow.StatusActive {
			r.cache.SetActiveFlowID(tenantID, def.BotID, def.ID)
		}
	}
	return nil
}
