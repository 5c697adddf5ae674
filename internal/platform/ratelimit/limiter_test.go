package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/runtime/model"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, logger.New("error", "json"))
}

func TestCheckGlobalAllowsUpToLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.CheckGlobal(ctx, 3, 60)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.CheckGlobal(ctx, 3, 60)
	require.NoError(t, err)
	require.False(t, result.Allowed)
	require.Positive(t, result.RetryAfterSeconds)
}

func TestCheckTenantIsolatesBuckets(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	result, err := limiter.CheckTenant(ctx, "tenant-a", 1, 60)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = limiter.CheckTenant(ctx, "tenant-a", 1, 60)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	result, err = limiter.CheckTenant(ctx, "tenant-b", 1, 60)
	require.NoError(t, err)
	require.True(t, result.Allowed)
}

func TestTierOfClassifiesByLLMNodeCount(t *testing.T) {
	graph := func(llmNodes int) *model.WorkflowGraph {
		nodes := map[string]*model.Node{
			"trigger": {ID: "trigger", Type: "trigger.core:manual"},
		}
		for i := 0; i < llmNodes; i++ {
			id := "llm" + string(rune('a'+i))
			nodes[id] = &model.Node{ID: id, Type: "llm.core:complete"}
		}
		return &model.WorkflowGraph{Nodes: nodes}
	}

	require.Equal(t, TierSimple, TierOf(graph(0)))
	require.Equal(t, TierStandard, TierOf(graph(2)))
	require.Equal(t, TierHeavy, TierOf(graph(3)))
}
