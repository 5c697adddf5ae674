// Package redisclient wraps the hot-path Redis client shared by the
// ingress dedupe set, the DLQ scheduler, and the LLM fingerprint cache.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowgrid/platform/internal/platform/config"
	"github.com/flowgrid/platform/internal/platform/logger"
)

// Client wraps *redis.Client with the platform's connection defaults.
type Client struct {
	*redis.Client
	log *logger.Logger
}

// New connects to Redis and verifies connectivity with PING.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info("redis connected", "addr", cfg.Redis.Addr)

	return &Client{Client: rdb, log: log}, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	c.log.Info("closing redis connection")
	return c.Client.Close()
}

// Health reports whether Redis answers PING.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.Client.Ping(ctx).Err()
}
