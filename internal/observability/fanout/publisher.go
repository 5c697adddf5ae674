package fanout

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/runtime"
)

const channelPrefix = "executions:events:"

func channelFor(executionID string) string {
	return channelPrefix + executionID
}

// Publisher implements runtime.Timeline by publishing each event to a
// per-execution Redis pub/sub channel, consumed by Subscriber and
// rebroadcast to websocket clients.
type Publisher struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewPublisher builds a Publisher.
func NewPublisher(rdb *redis.Client, log *logger.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: log}
}

// Publish satisfies runtime.Timeline. Failures are logged, never
// propagated — a dashboard blip must not fail a node execution.
func (p *Publisher) Publish(evt runtime.TimelineEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		p.log.Warn("failed to marshal timeline event", "error", err)
		return
	}
	if err := p.rdb.Publish(context.Background(), channelFor(evt.ExecutionID), data).Err(); err != nil {
		p.log.Warn("failed to publish timeline event", "execution_id", evt.ExecutionID, "error", err)
	}
}
