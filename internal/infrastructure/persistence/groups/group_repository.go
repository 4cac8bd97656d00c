// Package groups provides the SQL-backed durable tier for group sessions.
// Group state is always persisted; the cache tier mirrors it for speed.
package groups

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/group"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/persistence/database"
)

const queryTimeout = 5 * time.Second

// Repository is the SQL-based group store.
type Repository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

// NewRepository creates a new instance of the repository.
func NewRepository(db *sql.DB, logger *logging.ChanneledLogger) *Repository {
	return &Repository{db: db, logger: logger}
}

// EnsureSchema creates the groups table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			flow_id TEXT NOT NULL,
			participant_ids TEXT NOT NULL DEFAULT '[]',
			shared_variables TEXT NOT NULL DEFAULT '{}',
			current_node_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			last_activity TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_groups_bot_status ON groups(bot_id, status);`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Upsert writes the authoritative group row.
func (r *Repository) Upsert(ctx context.Context, tenantID string, g *group.Group) error {
	start := time.Now()
	const query = `
		INSERT INTO groups
			(id, bot_id, flow_id, participant_ids, shared_variables, current_node_id, status, metadata, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participant_ids = excluded.participant_ids,
			shared_variables = excluded.shared_variables,
			current_node_id = excluded.current_node_id,
			status = excluded.status,
			metadata = excluded.metadata,
			last_activity = excluded.last_activity`

	membersJSON, err := json.Marshal(g.ParticipantIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal participant ids: %w", err)
	}
	varsJSON, err := json.Marshal(g.SharedVariables)
	if err != nil {
		return fmt.Errorf("failed to marshal shared variables: %w", err)
	}
	metaJSON, err := json.Marshal(g.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal group metadata: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, query,
		g.ID,
		g.BotID,
		g.FlowID,
		string(membersJSON),
		string(varsJSON),
		g.CurrentNodeID,
		string(g.Status),
		string(metaJSON),
		g.CreatedAt.UTC().Format(time.RFC3339),
		g.LastActivity.UTC().Format(time.RFC3339),
	)
	database.CheckAndLogSlowQuery(r.logger, "GROUP_UPSERT", time.Since(start), tenantID)
	return err
}

// FindByID retrieves a group by ID. A nil group with nil error means not found.
func (r *Repository) FindByID(ctx context.Context, tenantID, groupID string) (*group.Group, error) {
	const query = `
		SELECT id, bot_id, flow_id, participant_ids, shared_variables, current_node_id, status, metadata, created_at, last_activity
		FROM groups
		WHERE id = ?`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	g, err := scanGroup(r.db.QueryRowContext(ctx, query, groupID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

// FindActiveByBot retrieves all active groups for a bot.
func (r *Repository) FindActiveByBot(ctx context.Context, tenantID, botID string) ([]*group.Group, error) {
	const query = `
		SELECT id, bot_id, flow_id, participant_ids, shared_variables, current_node_id, status, metadata, created_at, last_activity
		FROM groups
		WHERE bot_id = ? AND status = ?
		ORDER BY created_at DESC`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, botID, string(group.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*group.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountActiveByBot counts active groups for a bot, for the per-bot cap.
func (r *Repository) CountActiveByBot(ctx context.Context, tenantID, botID string) (int, error) {
	const query = `SELECT COUNT(*) FROM groups WHERE bot_id = ? AND status = ?`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int
	err := r.db.QueryRowContext(ctx, query, botID, string(group.StatusActive)).Scan(&n)
	return n, err
}

// ArchiveInactive archives active groups idle since the cutoff.
func (r *Repository) ArchiveInactive(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	const query = `
		UPDATE groups SET status = ?
		WHERE status = ? AND last_activity < ?`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query,
		string(group.StatusArchived),
		string(group.StatusActive),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(s rowScanner) (*group.Group, error) {
	var g group.Group
	var membersJSON, varsJSON, statusStr, metaJSON, createdAtStr, lastActivityStr string

	err := s.Scan(
		&g.ID,
		&g.BotID,
		&g.FlowID,
		&membersJSON,
		&varsJSON,
		&g.CurrentNodeID,
		&statusStr,
		&metaJSON,
		&createdAtStr,
		&lastActivityStr,
	)
	if err != nil {
		return nil, err
	}

	g.Status = group.Status(statusStr)
	if err := json.Unmarshal([]byte(membersJSON), &g.ParticipantIDs); err != nil {
		return nil, fmt.Errorf("failed to parse participant ids: %w", err)
	}
	if err := json.Unmarshal([]byte(varsJSON), &g.SharedVariables); err != nil {
		return nil, fmt.Errorf("failed to parse shared variables: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &g.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse group metadata: %w", err)
	}
	if g.CreatedAt, err = database.ParseTimestamp(createdAtStr); err != nil {
		return nil, err
	}
	if g.LastActivity, err = database.ParseTimestamp(lastActivityStr); err != nil {
		return nil, err
	}
	return &g, nil
}
