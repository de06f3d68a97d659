// Package postgres persists finished and in-flight session summaries.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fitsession/internal/observability"
	"example.com/fitsession/internal/session"
)

// ErrSessionNotFound is returned when no row matches the session ID.
var ErrSessionNotFound = errors.New("session not found")

// Schema creates the session table. Applied at startup; every statement
// is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS fitness_sessions (
    session_id        TEXT PRIMARY KEY,
    started_at        TIMESTAMPTZ NOT NULL,
    ended_at          TIMESTAMPTZ,
    interval_ms       BIGINT NOT NULL,
    interval_count    INTEGER NOT NULL,
    participant_count INTEGER NOT NULL,
    total_coins       INTEGER NOT NULL,
    summary           JSONB NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS fitness_sessions_started_at_idx
    ON fitness_sessions (started_at DESC);
`

// SessionRecord is the list-view projection of one stored session.
type SessionRecord struct {
	SessionID        string     `json:"session_id"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	ParticipantCount int        `json:"participant_count"`
	TotalCoins       int        `json:"total_coins"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Repository provides Postgres-backed persistence for session summaries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema applies the session table schema.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}

// PersistSession upserts the summary keyed by session ID. Autosaves and
// the final save write through the same path, so re-saving an existing
// session only moves updated_at forward.
func (r *Repository) PersistSession(ctx context.Context, summary session.Summary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO fitness_sessions
        (session_id, started_at, ended_at, interval_ms, interval_count, participant_count, total_coins, summary, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
        ON CONFLICT (session_id) DO UPDATE SET
            ended_at          = EXCLUDED.ended_at,
            interval_count    = EXCLUDED.interval_count,
            participant_count = EXCLUDED.participant_count,
            total_coins       = EXCLUDED.total_coins,
            summary           = EXCLUDED.summary,
            updated_at        = now()`

	_, err = r.pool.Exec(ctx, stmt,
		summary.SessionID,
		summary.StartedAt,
		summary.EndedAt,
		summary.Timebase.IntervalMs,
		summary.Timebase.IntervalCount,
		len(summary.Participants),
		summary.TreasureBox.TotalCoins,
		body,
	)
	if err != nil {
		return err
	}
	observability.RecordSessionPersisted(time.Now().UTC())
	return nil
}

// GetSession retrieves one stored summary by session ID.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (session.Summary, error) {
	const query = `SELECT summary FROM fitness_sessions WHERE session_id=$1`

	var body []byte
	if err := r.pool.QueryRow(ctx, query, sessionID).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Summary{}, ErrSessionNotFound
		}
		return session.Summary{}, err
	}

	var summary session.Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		return session.Summary{}, err
	}
	return summary, nil
}

// ListSessions returns stored sessions newest first.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `SELECT session_id, started_at, ended_at, participant_count, total_coins, updated_at
        FROM fitness_sessions ORDER BY started_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]SessionRecord, 0, limit)
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.SessionID, &rec.StartedAt, &rec.EndedAt, &rec.ParticipantCount, &rec.TotalCoins, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteSession removes one stored session.
func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM fitness_sessions WHERE session_id=$1`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
