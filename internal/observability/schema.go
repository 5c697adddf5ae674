package observability

import (
	"context"
	"fmt"

	"github.com/flowgrid/platform/internal/platform/db"
)

// EnsureSchema creates the executions/node_executions tables if they do
// not already exist. Wired into bootstrap.WithDBInitHook by cmd binaries
// that need the durable run-log store.
func EnsureSchema(ctx context.Context, database *db.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS executions (
			execution_id        TEXT PRIMARY KEY,
			workflow_id         TEXT NOT NULL,
			user_id             TEXT NOT NULL,
			status              TEXT NOT NULL,
			start_time          TIMESTAMPTZ NOT NULL,
			end_time            TIMESTAMPTZ,
			duration_ms         BIGINT,
			trigger_type        TEXT,
			trigger_data        JSONB,
			total_nodes         INT NOT NULL DEFAULT 0,
			completed_nodes     INT NOT NULL DEFAULT 0,
			failed_nodes        INT NOT NULL DEFAULT 0,
			final_output        JSONB,
			error               TEXT,
			correlation_id      TEXT,
			parent_execution_id TEXT,
			metadata            JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS executions_workflow_id_idx ON executions (workflow_id)`,
		`CREATE INDEX IF NOT EXISTS executions_user_id_idx ON executions (user_id)`,
		`CREATE INDEX IF NOT EXISTS executions_status_idx ON executions (status)`,
		`CREATE INDEX IF NOT EXISTS executions_start_time_idx ON executions (start_time)`,
		`CREATE TABLE IF NOT EXISTS node_executions (
			execution_id    TEXT NOT NULL,
			node_id         TEXT NOT NULL,
			node_type       TEXT NOT NULL,
			status          TEXT NOT NULL,
			start_time      TIMESTAMPTZ NOT NULL,
			end_time        TIMESTAMPTZ,
			duration_ms     BIGINT,
			attempt         INT NOT NULL DEFAULT 1,
			max_attempts    INT NOT NULL DEFAULT 1,
			input           JSONB,
			output          JSONB,
			error           TEXT,
			correlation_id  TEXT,
			retry_history   JSONB,
			metadata        JSONB,
			PRIMARY KEY (execution_id, node_id)
		)`,
		`CREATE INDEX IF NOT EXISTS node_executions_execution_id_idx ON node_executions (execution_id)`,
		`CREATE TABLE IF NOT EXISTS stats_rollups (
			bucket_start    TIMESTAMPTZ PRIMARY KEY,
			count           INT NOT NULL DEFAULT 0,
			succeeded       INT NOT NULL DEFAULT 0,
			failed          INT NOT NULL DEFAULT 0,
			partial         INT NOT NULL DEFAULT 0,
			total_cost_usd  DOUBLE PRECISION NOT NULL DEFAULT 0,
			cache_eligible  INT NOT NULL DEFAULT 0,
			cache_hits      INT NOT NULL DEFAULT 0,
			sum_duration_ms BIGINT NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
