// Package participants tracks which participants have interacted with each
// bot, backing broadcast audience resolution.
package participants

import (
	"context"
	"database/sql"
	"time"

	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/persistence/database"
)

const queryTimeout = 5 * time.Second

// Participant is one known (bot, participant) pair.
type Participant struct {
	BotID         string
	ParticipantID string
	FirstSeen     time.Time
	LastActivity  time.Time
}

// Repository is the SQL-based participant store.
type Repository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

// NewRepository creates a new instance of the repository.
func NewRepository(db *sql.DB, logger *logging.ChanneledLogger) *Repository {
	return &Repository{db: db, logger: logger}
}

// EnsureSchema creates the participants table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS participants (
			bot_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			first_seen TEXT NOT NULL,
			last_activity TEXT NOT NULL,
			PRIMARY KEY (bot_id, participant_id)
		);
		CREATE INDEX IF NOT EXISTS idx_participants_activity ON participants(bot_id, last_activity);`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Touch records activity for a participant, inserting on first contact.
func (r *Repository) Touch(ctx context.Context, tenantID, botID, participantID string, at time.Time) error {
	start := time.Now()
	const query = `
		INSERT INTO participants (bot_id, participant_id, first_seen, last_activity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(bot_id, participant_id) DO UPDATE SET
			last_activity = excluded.last_activity`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ts := at.UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, query, botID, participantID, ts, ts)
	database.CheckAndLogSlowQuery(r.logger, "PARTICIPANT_TOUCH", time.Since(start), tenantID)
	return err
}

// ListByBot returns all participant IDs known to a bot.
func (r *Repository) ListByBot(ctx context.Context, tenantID, botID string) ([]string, error) {
	const query = `SELECT participant_id FROM participants WHERE bot_id = ? ORDER BY last_activity DESC`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// ListActiveSince returns participant IDs active after the cutoff.
func (r *Repository) ListActiveSince(ctx context.Context, tenantID, botID string, cutoff time.Time) ([]string, error) {
	const query = `
		SELECT participant_id FROM participants
		WHERE bot_id = ? AND last_activity >= ?
		ORDER BY last_activity DESC`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, botID, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
