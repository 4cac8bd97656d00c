// Package sessions provides the SQL-backed durable tier for conversation
// sessions. The cache tier is authoritative for hot reads; this repository
// exists so sessions survive restarts and long delays.
package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/domain/variables"
	"github.com/botforgehq/botforge-go/internal/infrastructure/persistence/database"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

const queryTimeout = 5 * time.Second

// Repository is the SQL-based session store.
type Repository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

// NewRepository creates a new instance of the repository.
func NewRepository(db *sql.DB, logger *logging.ChanneledLogger) *Repository {
	return &Repository{db: db, logger: logger}
}

// EnsureSchema creates the sessions table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS sessions (
			session_key TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			flow_id TEXT NOT NULL,
			current_node_id TEXT NOT NULL DEFAULT '',
			variables TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'active',
			pending_wait TEXT,
			group_ref TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			last_activity TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_bot ON sessions(bot_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity);`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Upsert writes a session row, replacing any previous state.
func (r *Repository) Upsert(ctx context.Context, tenantID string, sess *session.Session) error {
	start := time.Now()
	const query = `
		INSERT INTO sessions
			(session_key, bot_id, participant_id, flow_id, current_node_id, variables, status, pending_wait, group_ref, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			flow_id = excluded.flow_id,
			current_node_id = excluded.current_node_id,
			variables = excluded.variables,
			status = excluded.status,
			pending_wait = excluded.pending_wait,
			group_ref = excluded.group_ref,
			last_activity = excluded.last_activity`

	varsJSON, err := json.Marshal(sess.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal session variables: %w", err)
	}

	var waitJSON any
	if sess.PendingWait != nil {
		data, err := json.Marshal(sess.PendingWait)
		if err != nil {
			return fmt.Errorf("failed to marshal pending wait: %w", err)
		}
		waitJSON = string(data)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, query,
		sess.SessionKey,
		sess.BotID,
		sess.ParticipantID,
		sess.FlowID,
		sess.CurrentNodeID,
		string(varsJSON),
		string(sess.Status),
		waitJSON,
		sess.GroupRef,
		sess.CreatedAt.UTC().Format(time.RFC3339),
		sess.LastActivity.UTC().Format(time.RFC3339),
	)
	database.CheckAndLogSlowQuery(r.logger, "SESSION_UPSERT", time.Since(start), tenantID)
	return err
}

// FindByKey retrieves a session by its key. A nil session with nil error
// means not found.
func (r *Repository) FindByKey(ctx context.Context, tenantID, sessionKey string) (*session.Session, error) {
	start := time.Now()
	const query = `
		SELECT session_key, bot_id, participant_id, flow_id, current_node_id, variables, status, pending_wait, group_ref, created_at, last_activity
		FROM sessions
		WHERE session_key = ?`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, query, sessionKey)
	sess, err := scanSession(row)
	database.CheckAndLogSlowQuery(r.logger, "SESSION_FIND_BY_KEY", time.Since(start), tenantID)
	return sess, err
}

// FindByBot retrieves all session rows for a bot.
func (r *Repository) FindByBot(ctx context.Context, tenantID, botID string) ([]*session.Session, error) {
	const query = `
		SELECT session_key, bot_id, participant_id, flow_id, current_node_id, variables, status, pending_wait, group_ref, created_at, last_activity
		FROM sessions
		WHERE bot_id = ?
		ORDER BY last_activity DESC`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSessionFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Delete logically removes a session: the row is kept for audit but the
// status flips so loads treat it as absent.
func (r *Repository) Delete(ctx context.Context, tenantID, sessionKey string) error {
	const query = `UPDATE sessions SET status = ? WHERE session_key = ?`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, query, string(session.StatusExpired), sessionKey)
	return err
}

// ExpireBefore marks sessions idle since the cutoff as expired. Rows are
// kept for audit; the status flips so loads treat them as absent.
func (r *Repository) ExpireBefore(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	start := time.Now()
	const query = `
		UPDATE sessions SET status = ?
		WHERE status = ? AND last_activity < ?`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query,
		string(session.StatusExpired),
		string(session.StatusActive),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	database.CheckAndLogSlowQuery(r.logger, "SESSION_EXPIRE_BEFORE", time.Since(start), tenantID)
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner) (*session.Session, error) {
	var sess session.Session
	var varsJSON, statusStr, createdAtStr, lastActivityStr string
	var waitJSON sql.NullString

	err := s.Scan(
		&sess.SessionKey,
		&sess.BotID,
		&sess.ParticipantID,
		&sess.FlowID,
		&sess.CurrentNodeID,
		&varsJSON,
		&statusStr,
		&waitJSON,
		&sess.GroupRef,
		&createdAtStr,
		&lastActivityStr,
	)
	if err != nil {
		return nil, err
	}

	sess.Status = session.Status(statusStr)
	sess.Variables = variables.NewBag()
	if err := json.Unmarshal([]byte(varsJSON), &sess.Variables); err != nil {
		return nil, fmt.Errorf("failed to parse session variables: %w", err)
	}
	if waitJSON.Valid && waitJSON.String != "" {
		var wait session.PendingWait
		if err := json.Unmarshal([]byte(waitJSON.String), &wait); err != nil {
			return nil, fmt.Errorf("failed to parse pending wait: %w", err)
		}
		sess.PendingWait = &wait
	}
	if sess.CreatedAt, err = database.ParseTimestamp(createdAtStr); err != nil {
		return nil, err
	}
	if sess.LastActivity, err = database.ParseTimestamp(lastActivityStr); err != nil {
		return nil, err
	}
	return &sess, nil
}

func scanSession(row *sql.Row) (*session.Session, error) {
	sess, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	return sess, err
}

func scanSessionFromRows(rows *sql.Rows) (*session.Session, error) {
	return scanRow(rows)
}
