// Package observability persists Execution and NodeExecution records to
// the durable Postgres run-log store and serves the dashboard's query
// and stats read-path. It satisfies runtime.Store so the Runner can
// write through it without importing observability's query surface.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	obsmodel "github.com/flowgrid/platform/internal/observability/model"
	"github.com/flowgrid/platform/internal/platform/db"
	"github.com/flowgrid/platform/internal/platform/logger"
)

// Store is the Postgres-backed cold store for executions and node
// executions, generalized from the teacher's pgx-based run repository.
type Store struct {
	db  *db.DB
	log *logger.Logger
}

// New builds a Store.
func New(database *db.DB, log *logger.Logger) *Store {
	return &Store{db: database, log: log}
}

// SaveExecution upserts an Execution, matching spec's "append-mostly;
// only endTime, status, retryHistory mutate after initial insert" by
// writing the full row idempotently keyed on execution_id.
func (s *Store) SaveExecution(ctx context.Context, exec *obsmodel.Execution) error {
	triggerData, err := marshalJSON(exec.TriggerData)
	if err != nil {
		return fmt.Errorf("marshal trigger data: %w", err)
	}
	finalOutput, err := marshalJSON(exec.FinalOutput)
	if err != nil {
		return fmt.Errorf("marshal final output: %w", err)
	}
	metadata, err := marshalJSON(exec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal execution metadata: %w", err)
	}

	var durationMs *int64
	if exec.Duration != nil {
		ms := exec.Duration.Milliseconds()
		durationMs = &ms
	}

	const query = `
		INSERT INTO executions (
			execution_id, workflow_id, user_id, status, start_time, end_time,
			duration_ms, trigger_type, trigger_data, total_nodes, completed_nodes,
			failed_nodes, final_output, error, correlation_id, parent_execution_id,
			metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13::jsonb,
			$14, $15, $16, $17::jsonb
		)
		ON CONFLICT (execution_id) DO UPDATE SET
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time,
			duration_ms = EXCLUDED.duration_ms,
			total_nodes = EXCLUDED.total_nodes,
			completed_nodes = EXCLUDED.completed_nodes,
			failed_nodes = EXCLUDED.failed_nodes,
			final_output = EXCLUDED.final_output,
			error = EXCLUDED.error,
			metadata = EXCLUDED.metadata
	`

	_, err = s.db.Exec(ctx, query,
		exec.ExecutionID, exec.WorkflowID, exec.UserID, string(exec.Status),
		exec.StartTime, exec.EndTime, durationMs, exec.TriggerType, triggerData,
		exec.TotalNodes, exec.CompletedNodes, exec.FailedNodes, finalOutput,
		exec.Error, exec.CorrelationID, exec.ParentExecutionID, metadata,
	)
	if err != nil {
		return fmt.Errorf("upsert execution: %w", err)
	}
	return nil
}

// SaveNodeExecution upserts a NodeExecution row, keyed on
// (execution_id, node_id) so repeated saves across attempts mutate the
// same record rather than appending new ones.
func (s *Store) SaveNodeExecution(ctx context.Context, ne *obsmodel.NodeExecution) error {
	input, err := marshalJSON(ne.Input)
	if err != nil {
		return fmt.Errorf("marshal node input: %w", err)
	}
	output, err := marshalJSON(ne.Output)
	if err != nil {
		return fmt.Errorf("marshal node output: %w", err)
	}
	retryHistory, err := marshalJSON(ne.RetryHistory)
	if err != nil {
		return fmt.Errorf("marshal retry history: %w", err)
	}
	metadata, err := marshalJSON(ne.Metadata)
	if err != nil {
		return fmt.Errorf("marshal node metadata: %w", err)
	}

	var durationMs *int64
	if ne.Duration != nil {
		ms := ne.Duration.Milliseconds()
		durationMs = &ms
	}

	const query = `
		INSERT INTO node_executions (
			execution_id, node_id, node_type, status, start_time, end_time,
			duration_ms, attempt, max_attempts, input, output, error,
			correlation_id, retry_history, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb, $12, $13,
			$14::jsonb, $15::jsonb
		)
		ON CONFLICT (execution_id, node_id) DO UPDATE SET
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time,
			duration_ms = EXCLUDED.duration_ms,
			attempt = EXCLUDED.attempt,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			retry_history = EXCLUDED.retry_history,
			metadata = EXCLUDED.metadata
	`

	_, err = s.db.Exec(ctx, query,
		ne.ExecutionID, ne.NodeID, ne.NodeType, string(ne.Status), ne.StartTime,
		ne.EndTime, durationMs, ne.Attempt, ne.MaxAttempts, input, output,
		ne.Error, ne.CorrelationID, retryHistory, metadata,
	)
	if err != nil {
		return fmt.Errorf("upsert node execution: %w", err)
	}
	return nil
}

// GetExecution fetches one Execution by id, or (nil, nil) if absent.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*obsmodel.Execution, error) {
	const query = `
		SELECT execution_id, workflow_id, user_id, status, start_time, end_time,
			duration_ms, trigger_type, trigger_data, total_nodes, completed_nodes,
			failed_nodes, final_output, error, correlation_id, parent_execution_id,
			metadata
		FROM executions WHERE execution_id = $1
	`
	row := s.db.QueryRow(ctx, query, executionID)
	exec, err := scanExecution(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return exec, nil
}

// QueryFilter narrows QueryExecutions, mapping 1:1 to the runtime
// control API's GET /executions query parameters.
type QueryFilter struct {
	ExecutionID string
	WorkflowID  string
	UserID      string
	Status      string
	Since       *time.Time
	Until       *time.Time
	SortBy      string // start_time|duration_ms, defaults to start_time
	SortOrder   string // asc|desc, defaults to desc
	Limit       int
	Offset      int
}

// QueryResult is queryExecutions' paginated response.
type QueryResult struct {
	Items []obsmodel.Execution
	Total int
}

var allowedSortColumns = map[string]string{
	"start_time":  "start_time",
	"duration_ms": "duration_ms",
	"status":      "status",
}

// QueryExecutions implements spec's queryExecutions read-path.
func (s *Store) QueryExecutions(ctx context.Context, f QueryFilter) (QueryResult, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.ExecutionID != "" {
		add("execution_id = $%d", f.ExecutionID)
	}
	if f.WorkflowID != "" {
		add("workflow_id = $%d", f.WorkflowID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Since != nil {
		add("start_time >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("start_time <= $%d", *f.Until)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	sortCol, ok := allowedSortColumns[f.SortBy]
	if !ok {
		sortCol = "start_time"
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	countQuery := fmt.Sprintf(`SELECT count(*) FROM executions %s`, whereClause)
	var total int
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return QueryResult{}, fmt.Errorf("count executions: %w", err)
	}

	listArgs := append(append([]any{}, args...), limit, f.Offset)
	listQuery := fmt.Sprintf(`
		SELECT execution_id, workflow_id, user_id, status, start_time, end_time,
			duration_ms, trigger_type, trigger_data, total_nodes, completed_nodes,
			failed_nodes, final_output, error, correlation_id, parent_execution_id,
			metadata
		FROM executions %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, whereClause, sortCol, sortOrder, len(listArgs)-1, len(listArgs))

	rows, err := s.db.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var items []obsmodel.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return QueryResult{}, fmt.Errorf("scan execution: %w", err)
		}
		items = append(items, *exec)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("iterate executions: %w", err)
	}

	return QueryResult{Items: items, Total: total}, nil
}

// ListNodeExecutions returns every NodeExecution recorded for an execution.
func (s *Store) ListNodeExecutions(ctx context.Context, executionID string) ([]obsmodel.NodeExecution, error) {
	const query = `
		SELECT execution_id, node_id, node_type, status, start_time, end_time,
			duration_ms, attempt, max_attempts, input, output, error,
			correlation_id, retry_history, metadata
		FROM node_executions WHERE execution_id = $1 ORDER BY start_time ASC
	`
	rows, err := s.db.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list node executions: %w", err)
	}
	defer rows.Close()

	var items []obsmodel.NodeExecution
	for rows.Next() {
		ne, err := scanNodeExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node execution: %w", err)
		}
		items = append(items, *ne)
	}
	return items, rows.Err()
}

type rollupAgg struct {
	count           int
	succeeded       int
	failed          int
	partial         int
	totalCostUSD    float64
	cacheEligible   int
	cacheHits       int
	sumDurationMs   int64
}

func (a rollupAgg) avgDuration() time.Duration {
	if a.count == 0 {
		return 0
	}
	return time.Duration(a.sumDurationMs/int64(a.count)) * time.Millisecond
}

// flushRollup folds a batch of evicted samples into their hourly bucket
// rows, upserting additively so concurrent flushes don't clobber.
func (s *Store) flushRollup(ctx context.Context, samples []sample) error {
	buckets := make(map[time.Time]rollupAgg)
	for _, smp := range samples {
		bucket := smp.at.Truncate(time.Hour)
		agg := buckets[bucket]
		agg.count++
		if smp.succeeded {
			agg.succeeded++
		}
		if smp.failed {
			agg.failed++
		}
		if smp.partial {
			agg.partial++
		}
		agg.totalCostUSD += smp.costUSD
		agg.sumDurationMs += smp.duration.Milliseconds()
		if smp.llmNode {
			agg.cacheEligible++
			if smp.cacheHit {
				agg.cacheHits++
			}
		}
		buckets[bucket] = agg
	}

	const query = `
		INSERT INTO stats_rollups (
			bucket_start, count, succeeded, failed, partial, total_cost_usd,
			cache_eligible, cache_hits, sum_duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (bucket_start) DO UPDATE SET
			count = stats_rollups.count + EXCLUDED.count,
			succeeded = stats_rollups.succeeded + EXCLUDED.succeeded,
			failed = stats_rollups.failed + EXCLUDED.failed,
			partial = stats_rollups.partial + EXCLUDED.partial,
			total_cost_usd = stats_rollups.total_cost_usd + EXCLUDED.total_cost_usd,
			cache_eligible = stats_rollups.cache_eligible + EXCLUDED.cache_eligible,
			cache_hits = stats_rollups.cache_hits + EXCLUDED.cache_hits,
			sum_duration_ms = stats_rollups.sum_duration_ms + EXCLUDED.sum_duration_ms
	`

	for bucket, agg := range buckets {
		_, err := s.db.Exec(ctx, query, bucket, agg.count, agg.succeeded, agg.failed,
			agg.partial, agg.totalCostUSD, agg.cacheEligible, agg.cacheHits, agg.sumDurationMs)
		if err != nil {
			return fmt.Errorf("upsert stats rollup bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// rollupAggregate sums every bucket at or after cutoff.
func (s *Store) rollupAggregate(ctx context.Context, cutoff time.Time) (rollupAgg, error) {
	const query = `
		SELECT coalesce(sum(count), 0), coalesce(sum(succeeded), 0), coalesce(sum(failed), 0),
			coalesce(sum(partial), 0), coalesce(sum(total_cost_usd), 0),
			coalesce(sum(cache_eligible), 0), coalesce(sum(cache_hits), 0),
			coalesce(sum(sum_duration_ms), 0)
		FROM stats_rollups WHERE bucket_start >= $1
	`
	var agg rollupAgg
	err := s.db.QueryRow(ctx, query, cutoff.Truncate(time.Hour)).Scan(
		&agg.count, &agg.succeeded, &agg.failed, &agg.partial, &agg.totalCostUSD,
		&agg.cacheEligible, &agg.cacheHits, &agg.sumDurationMs,
	)
	if err != nil {
		return rollupAgg{}, err
	}
	return agg, nil
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
