package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ TurnArchive = (*PostgresArchive)(nil)

// ddlTurns creates the turns table. Idempotent, safe to run on every start.
const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id         BIGSERIAL PRIMARY KEY,
    session_id TEXT        NOT NULL,
    role       TEXT        NOT NULL,
    content    TEXT        NOT NULL,
    timestamp  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS turns_session_ts_idx ON turns (session_id, timestamp);
`

// PostgresArchive is a TurnArchive backed by a PostgreSQL turns table.
// All methods are safe for concurrent use.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive connects to the database at dsn, verifies the connection
// and ensures the turns table exists.
func NewPostgresArchive(ctx context.Context, dsn string) (*PostgresArchive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &PostgresArchive{pool: pool}, nil
}

// Record implements [TurnArchive].
func (a *PostgresArchive) Record(ctx context.Context, turn Turn) error {
	const q = `
		INSERT INTO turns (session_id, role, content, timestamp)
		VALUES ($1, $2, $3, $4)`

	_, err := a.pool.Exec(ctx, q, turn.SessionID, turn.Role, turn.Content, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("archive: record turn: %w", err)
	}
	return nil
}

// Recent implements [TurnArchive]. It returns the limit most recent turns of
// sessionID in chronological order.
func (a *PostgresArchive) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	const q = `
		SELECT session_id, role, content, timestamp
		FROM   (SELECT session_id, role, content, timestamp
		        FROM   turns
		        WHERE  session_id = $1
		        ORDER  BY timestamp DESC
		        LIMIT  $2) latest
		ORDER  BY timestamp`

	rows, err := a.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var t Turn
		err := row.Scan(&t.SessionID, &t.Role, &t.Content, &t.Timestamp)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan rows: %w", err)
	}
	return turns, nil
}

// Ping reports whether the database is reachable, for readiness checks.
func (a *PostgresArchive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Close releases the connection pool.
func (a *PostgresArchive) Close() {
	a.pool.Close()
}
