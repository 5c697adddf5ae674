package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	obsmodel "github.com/flowgrid/platform/internal/observability/model"
	"github.com/flowgrid/platform/internal/platform/logger"
)

// Manager records scheduled retries on a Redis sorted set keyed by
// next-attempt time (dlq:retry_at), which DueAttempts drains, and
// maintains the dead-letter queue for exhausted nodes.
type Manager struct {
	rdb *redis.Client
	log *logger.Logger
}

// New builds a Manager.
func New(rdb *redis.Client, log *logger.Logger) *Manager {
	return &Manager{rdb: rdb, log: log}
}

const retryScheduleKey = "dlq:retry_at"

func dlqKey(executionID, nodeID string) string {
	return fmt.Sprintf("dlq/%s/%s", executionID, nodeID)
}

// ScheduleAttempt enqueues the (executionID, nodeID) pair to run again at
// now+delay via a sorted set scored by the absolute fire time.
func (m *Manager) ScheduleAttempt(ctx context.Context, executionID, nodeID string, delay time.Duration) error {
	member := fmt.Sprintf("%s|%s", executionID, nodeID)
	score := float64(time.Now().Add(delay).UnixMilli())
	return m.rdb.ZAdd(ctx, retryScheduleKey, redis.Z{Score: score, Member: member}).Err()
}

// DueAttempts pops every scheduled (executionID, nodeID) pair whose fire
// time has passed, removing each from the schedule. A pair is returned
// only to the caller whose ZREM removed it, so concurrent callers never
// receive the same pair.
func (m *Manager) DueAttempts(ctx context.Context) ([]string, error) {
	now := float64(time.Now().UnixMilli())

	members, err := m.rdb.ZRangeByScore(ctx, retryScheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query due retries: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	due := make([]string, 0, len(members))
	for _, member := range members {
		removed, err := m.rdb.ZRem(ctx, retryScheduleKey, member).Result()
		if err != nil {
			return nil, fmt.Errorf("remove due retries: %w", err)
		}
		if removed == 1 {
			due = append(due, member)
		}
	}

	return due, nil
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// MoveToDLQ persists a DLQItem once retries exhaust.
func (m *Manager) MoveToDLQ(ctx context.Context, item obsmodel.DLQItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal dlq item: %w", err)
	}
	if err := m.rdb.Set(ctx, dlqKey(item.ExecutionID, item.NodeID), data, 0).Err(); err != nil {
		return fmt.Errorf("persist dlq item: %w", err)
	}
	return m.rdb.SAdd(ctx, "dlq:index", dlqKey(item.ExecutionID, item.NodeID)).Err()
}

// Get fetches a DLQItem by execution/node id.
func (m *Manager) Get(ctx context.Context, executionID, nodeID string) (*obsmodel.DLQItem, error) {
	raw, err := m.rdb.Get(ctx, dlqKey(executionID, nodeID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch dlq item: %w", err)
	}

	var item obsmodel.DLQItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("unmarshal dlq item: %w", err)
	}
	return &item, nil
}

// List returns every DLQ entry. It does no workflow filtering: the index
// is workflow-agnostic (matching the abstract exec/dlq namespace in §6),
// and observability's ListDLQ narrows by workflow by joining against the
// executions table.
func (m *Manager) List(ctx context.Context) ([]obsmodel.DLQItem, error) {
	keys, err := m.rdb.SMembers(ctx, "dlq:index").Result()
	if err != nil {
		return nil, fmt.Errorf("list dlq index: %w", err)
	}

	items := make([]obsmodel.DLQItem, 0, len(keys))
	for _, key := range keys {
		raw, err := m.rdb.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			m.log.Warn("failed to read dlq entry", "key", key, "error", err)
			continue
		}
		var item obsmodel.DLQItem
		if err := json.Unmarshal(raw, &item); err != nil {
			m.log.Warn("failed to unmarshal dlq entry", "key", key, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Replay removes a DLQItem and returns its payload so the caller can
// re-enqueue the node with attempt=1 and a fresh correlation id.
func (m *Manager) Replay(ctx context.Context, executionID, nodeID string) (*obsmodel.DLQItem, error) {
	item, err := m.Get(ctx, executionID, nodeID)
	if err != nil || item == nil {
		return item, err
	}

	key := dlqKey(executionID, nodeID)
	if err := m.rdb.Del(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("delete dlq item: %w", err)
	}
	if err := m.rdb.SRem(ctx, "dlq:index", key).Err(); err != nil {
		return nil, fmt.Errorf("remove dlq index entry: %w", err)
	}

	return item, nil
}
