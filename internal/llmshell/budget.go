package llmshell

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/flowgrid/platform/internal/platform/errs"
)

// BudgetGate enforces a per-user daily USD cap, backed by a Redis counter
// that expires at the next UTC midnight, with a local token bucket per
// user smoothing bursts before they reach Redis.
type BudgetGate struct {
	rdb       *redis.Client
	dailyCap  float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewBudgetGate builds a BudgetGate with the given per-user daily cap.
func NewBudgetGate(rdb *redis.Client, dailyCapUSD float64) *BudgetGate {
	return &BudgetGate{
		rdb:      rdb,
		dailyCap: dailyCapUSD,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (b *BudgetGate) limiterFor(userID string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.limiters[userID]
	if !ok {
		// 5 LLM calls/sec sustained, burst of 10 — smooths local traffic
		// before it reaches the shared Redis counter.
		l = rate.NewLimiter(rate.Limit(5), 10)
		b.limiters[userID] = l
	}
	return l
}

func dailyKey(userID string) string {
	return fmt.Sprintf("llm:budget:%s:%s", userID, time.Now().UTC().Format("2006-01-02"))
}

// Check reports whether estimatedCostUSD may be spent by userID today.
// Returns a *errs.Error with Kind=BudgetExceeded when denied.
func (b *BudgetGate) Check(ctx context.Context, estimatedCostUSD float64, userID, workflowID string) error {
	if !b.limiterFor(userID).Allow() {
		return errs.New(errs.RateLimited, "llm call rate exceeded for user").WithCorrelationID(workflowID)
	}

	key := dailyKey(userID)
	spent, err := b.rdb.Get(ctx, key).Float64()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read daily spend: %w", err)
	}

	if spent+estimatedCostUSD > b.dailyCap {
		return errs.New(errs.BudgetExceeded, fmt.Sprintf("daily llm budget of $%.2f exceeded for user", b.dailyCap))
	}

	return nil
}

// Record adds actualCostUSD to userID's daily spend, creating the key with
// a TTL through the next UTC midnight on first write.
func (b *BudgetGate) Record(ctx context.Context, actualCostUSD float64, userID string) error {
	key := dailyKey(userID)

	newTotal, err := b.rdb.IncrByFloat(ctx, key, actualCostUSD).Result()
	if err != nil {
		return fmt.Errorf("record daily spend: %w", err)
	}
	if newTotal == actualCostUSD {
		midnight := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		b.rdb.ExpireAt(ctx, key, midnight)
	}
	return nil
}
