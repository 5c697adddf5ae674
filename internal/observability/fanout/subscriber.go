package fanout

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/flowgrid/platform/internal/platform/logger"
)

// Subscriber listens to Redis pub/sub and forwards timeline events to
// the Hub for the matching execution's websocket subscribers.
type Subscriber struct {
	rdb *redis.Client
	hub *Hub
	log *logger.Logger
}

// NewSubscriber builds a Subscriber.
func NewSubscriber(rdb *redis.Client, hub *Hub, log *logger.Logger) *Subscriber {
	return &Subscriber{rdb: rdb, hub: hub, log: log}
}

// Start subscribes to every executions:events:* channel and forwards
// messages to the hub until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	pubsub := s.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	s.log.Info("fanout subscriber started", "pattern", channelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("fanout subscriber stopping")
			return ctx.Err()
		case msg := <-ch:
			if msg == nil {
				continue
			}
			executionID := strings.TrimPrefix(msg.Channel, channelPrefix)
			if executionID == "" {
				continue
			}
			s.hub.Broadcast(&Message{ExecutionID: executionID, Data: []byte(msg.Payload)})
		}
	}
}
