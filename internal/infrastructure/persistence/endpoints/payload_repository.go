// Package endpoints provides the audit store for payloads ingested through
// the endpoint bridge.
package endpoints

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/persistence/database"
	"github.com/botforgehq/botforge-go/internal/infrastructure/security"
)

const queryTimeout = 5 * time.Second

// Record is one ingested endpoint payload.
type Record struct {
	ID            string
	BotID         string
	ParticipantID string
	NodeID        string
	Payload       map[string]any
	ReceivedAt    time.Time
}

// Repository is the SQL-based endpoint payload store.
type Repository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

// NewRepository creates a new instance of the repository.
func NewRepository(db *sql.DB, logger *logging.ChanneledLogger) *Repository {
	return &Repository{db: db, logger: logger}
}

// EnsureSchema creates the endpoint_payloads table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS endpoint_payloads (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			received_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_endpoint_payloads_bot ON endpoint_payloads(bot_id, received_at);`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Insert records an ingested payload and returns its generated ID.
func (r *Repository) Insert(ctx context.Context, tenantID, botID, participantID, nodeID string, payload map[string]any) (string, error) {
	start := time.Now()
	const query = `
		INSERT INTO endpoint_payloads (id, bot_id, participant_id, node_id, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal endpoint payload: %w", err)
	}

	id := security.GenerateULID()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, query,
		id, botID, participantID, nodeID, string(data),
		time.Now().UTC().Format(time.RFC3339))
	database.CheckAndLogSlowQuery(r.logger, "ENDPOINT_PAYLOAD_INSERT", time.Since(start), tenantID)
	return id, err
}

// ListByParticipant returns recent payload records for a (bot, participant)
// pair, newest first.
func (r *Repository) ListByParticipant(ctx context.Context, tenantID, botID, participantID string, limit int) ([]*Record, error) {
	const query = `
		SELECT id, bot_id, participant_id, node_id, payload, received_at
		FROM endpoint_payloads
		WHERE bot_id = ? AND participant_id = ?
		ORDER BY received_at DESC
		LIMIT ?`

	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, botID, participantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		var payloadJSON, receivedAtStr string
		if err := rows.Scan(&rec.ID, &rec.BotID, &rec.ParticipantID, &rec.NodeID, &payloadJSON, &receivedAtStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to parse stored payload: %w", err)
		}
		if rec.ReceivedAt, err = database.ParseTimestamp(receivedAtStr); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
