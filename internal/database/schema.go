package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// HistoryTable holds one row per recorded stats change.
const HistoryTable = "queue_stats_history"

// historySchema is safe to run on every start.
var historySchema = []string{
	`CREATE TABLE IF NOT EXISTS queue_stats_history (
		recorded_at   TIMESTAMPTZ NOT NULL,
		instance_id   TEXT        NOT NULL,
		total_waiting INTEGER     NOT NULL,
		average_wait  DOUBLE PRECISION NOT NULL,
		longest_wait  INTEGER,
		queue_length  INTEGER     NOT NULL,
		source        TEXT        NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS queue_stats_history_recorded_at_idx
		ON queue_stats_history (instance_id, recorded_at DESC)`,
}

// Execer is the subset of pgxpool.Pool used for schema setup.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the history table and its index if missing.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range historySchema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
