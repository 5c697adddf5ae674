package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	obsmodel "github.com/flowgrid/platform/internal/observability/model"
	"github.com/flowgrid/platform/internal/platform/logger"
)

func TestRecorderStatsComputesPercentilesAndCacheRate(t *testing.T) {
	rec := NewRecorder(nil, logger.New("error", "json"))
	ctx := context.Background()

	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for i, d := range durations {
		exec := &obsmodel.Execution{
			ExecutionID: "e",
			Status:      obsmodel.ExecutionSucceeded,
			Duration:    &d,
			Metadata:    obsmodel.ExecutionMetadata{TotalCostUSD: 0.01},
		}
		nodes := []obsmodel.NodeExecution{{
			Metadata: obsmodel.NodeExecutionMetadata{CostUSD: 0.01, CacheHit: i%2 == 0},
		}}
		rec.RecordExecution(ctx, exec, nodes)
	}

	stats, err := rec.Stats(ctx, "hour")
	require.NoError(t, err)
	require.Equal(t, 5, stats.Total)
	require.Equal(t, 5, stats.Succeeded)
	require.InDelta(t, 0.05, stats.TotalCostUSD, 0.0001)
	require.InDelta(t, 0.6, stats.CacheHitRate, 0.0001)
	require.Equal(t, 50*time.Millisecond, stats.P99)
}

func TestRecorderStatsEmptyWindowReturnsZeroValue(t *testing.T) {
	rec := NewRecorder(nil, logger.New("error", "json"))
	stats, err := rec.Stats(context.Background(), "day")
	require.NoError(t, err)
	require.Equal(t, 0, stats.Total)
	require.Equal(t, time.Duration(0), stats.P50)
}

func TestRecorderStatsRejectsUnknownWindow(t *testing.T) {
	rec := NewRecorder(nil, logger.New("error", "json"))
	_, err := rec.Stats(context.Background(), "fortnight")
	require.Error(t, err)
}

func TestRecorderIgnoresNonTerminalExecutions(t *testing.T) {
	rec := NewRecorder(nil, logger.New("error", "json"))
	rec.RecordExecution(context.Background(), &obsmodel.Execution{Status: obsmodel.ExecutionRunning}, nil)

	stats, err := rec.Stats(context.Background(), "hour")
	require.NoError(t, err)
	require.Equal(t, 0, stats.Total)
}
