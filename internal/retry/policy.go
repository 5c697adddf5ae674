package retry

import (
	"context"
	"time"

	obsmodel "github.com/flowgrid/platform/internal/observability/model"
	"github.com/flowgrid/platform/internal/runtime/model"
)

// Outcome is the decision Decide returns for a failed node attempt.
type Outcome struct {
	ScheduleRetry bool
	Delay         time.Duration
	MoveToDLQ     bool
}

// Decide implements the §4.4 algorithm: on failure, if attempt < maxAttempts
// and the error is retryable, schedule the next attempt with backoff+jitter
// (honoring Retry-After verbatim for 429s); otherwise move to DLQ.
func Decide(policy *model.RetryPolicy, attempt int, class Classification) Outcome {
	if !class.Retryable || attempt >= policy.MaxAttempts {
		return Outcome{MoveToDLQ: true}
	}

	return Outcome{
		ScheduleRetry: true,
		Delay:         NextBackoff(policy, attempt, class.RetryAfter),
	}
}

// Apply runs Decide and carries out its effect against the node execution
// record and the DLQ manager, mutating ne in place.
func (m *Manager) Apply(ctx context.Context, policy *model.RetryPolicy, ne *obsmodel.NodeExecution, class Classification, payload map[string]any) (Outcome, error) {
	outcome := Decide(policy, ne.Attempt, class)

	if outcome.ScheduleRetry {
		ne.Status = obsmodel.NodeExecRetrying
		if err := m.ScheduleAttempt(ctx, ne.ExecutionID, ne.NodeID, outcome.Delay); err != nil {
			return outcome, err
		}
		return outcome, nil
	}

	ne.Status = obsmodel.NodeExecDLQ
	now := time.Now()
	item := obsmodel.DLQItem{
		ExecutionID:   ne.ExecutionID,
		NodeID:        ne.NodeID,
		Attempts:      ne.Attempt,
		FirstFailedAt: firstFailure(ne, now),
		LastFailedAt:  now,
		Payload:       payload,
	}
	if ne.Error != nil {
		item.LastError = *ne.Error
	}

	return outcome, m.MoveToDLQ(ctx, item)
}

func firstFailure(ne *obsmodel.NodeExecution, fallback time.Time) time.Time {
	if len(ne.RetryHistory) > 0 {
		return ne.RetryHistory[0].FailedAt
	}
	return fallback
}
