// Package ratelimit provides workflow-aware rate limiting for the runtime
// control API, backed by Redis and an atomic fixed-window Lua script.
package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flowgrid/platform/internal/platform/logger"
)

//go:embed rate_limit.lua
var script string

// Result is the outcome of a single rate-limit check.
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limiter checks fixed-window request limits keyed by an arbitrary bucket
// name, sharing one Redis-resident Lua script across all buckets.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
	log    *logger.Logger
}

func New(rdb *redis.Client, log *logger.Logger) *Limiter {
	return &Limiter{redis: rdb, script: redis.NewScript(script), log: log}
}

// CheckGlobal enforces a single service-wide bucket.
func (l *Limiter) CheckGlobal(ctx context.Context, limit int64, windowSec int) (*Result, error) {
	return l.check(ctx, "ratelimit:global", limit, windowSec)
}

// CheckTenant enforces a per-tenant bucket.
func (l *Limiter) CheckTenant(ctx context.Context, tenantID string, limit int64, windowSec int) (*Result, error) {
	key := fmt.Sprintf("ratelimit:tenant:%s", tenantID)
	return l.check(ctx, key, limit, windowSec)
}

// CheckTier enforces a per-tenant bucket scoped to a workflow complexity
// tier, so a tenant's heavy (LLM-heavy) workflows can't starve out its
// simple ones sharing the same account.
func (l *Limiter) CheckTier(ctx context.Context, tenantID string, tier Tier) (*Result, error) {
	key := fmt.Sprintf("ratelimit:tenant:%s:tier:%s", tenantID, tier)
	cfg := ConfigFor(tier)
	return l.check(ctx, key, cfg.Limit, cfg.WindowSeconds)
}

func (l *Limiter) check(ctx context.Context, key string, limit int64, windowSec int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script result")
	}

	res := &Result{
		Allowed:           vals[0].(int64) == 1,
		CurrentCount:      vals[1].(int64),
		Limit:             vals[2].(int64),
		RetryAfterSeconds: vals[3].(int64),
	}

	if !res.Allowed {
		l.log.Warn("rate limit exceeded", "key", key, "current", res.CurrentCount, "limit", res.Limit)
	}

	return res, nil
}
