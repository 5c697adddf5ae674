package runtime

import (
	"context"
	"fmt"
	"time"

	obsmodel "github.com/flowgrid/platform/internal/observability/model"
	"github.com/flowgrid/platform/internal/platform/errs"
	"github.com/flowgrid/platform/internal/retry"
	"github.com/flowgrid/platform/internal/runtime/model"
)

// RetryDLQNode re-enqueues a single node that previously exhausted retries
// and landed in the dead-letter queue. It replays the DLQ item (which
// carries the node's already-resolved params, so no sibling output lookup
// is needed) and drives a fresh attempt sequence starting at Attempt=1,
// persisting through the usual node-execution lifecycle.
func (r *Runner) RetryDLQNode(ctx context.Context, graph *model.WorkflowGraph, nodeID string, exec *obsmodel.Execution) (*obsmodel.NodeExecution, error) {
	node, ok := graph.Nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %q not found in graph", nodeID)
	}

	item, err := r.retryMgr.Replay(ctx, exec.ExecutionID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("replay dlq item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("no dlq entry for execution %q node %q", exec.ExecutionID, nodeID)
	}

	policy := node.RetryPolicy
	if policy == nil {
		policy = model.DefaultRetryPolicy()
	}

	state := newExecState(graph)
	now := time.Now()
	ne := &obsmodel.NodeExecution{
		ExecutionID:   exec.ExecutionID,
		NodeID:        node.ID,
		NodeType:      node.Type,
		Status:        obsmodel.NodeExecRunning,
		StartTime:     now,
		Attempt:       1,
		MaxAttempts:   policy.MaxAttempts,
		CorrelationID: exec.CorrelationID,
		Input:         item.Payload,
	}
	state.setNodeExec(node.ID, ne)
	r.timeline.Publish(TimelineEvent{ExecutionID: exec.ExecutionID, NodeID: node.ID, Status: ne.Status, At: now})

	for {
		select {
		case <-ctx.Done():
			ne.Metadata.Cancelled = true
			return ne, r.failTerminal(ctx, node, ne, exec, ctx.Err())
		default:
		}

		output, httpStatus, dispatchErr := r.dispatch(ctx, graph, node, item.Payload, state, exec, ne)
		if dispatchErr == nil {
			r.succeedNode(ctx, node, ne, exec, state, output)
			return ne, nil
		}

		var retryAfter *time.Duration
		if e, ok := errs.As(dispatchErr); ok {
			retryAfter = e.RetryableAfter
		}
		class := retry.Classify(dispatchErr, httpStatus, retryAfter)

		outcome, applyErr := r.retryMgr.Apply(ctx, policy, ne, class, item.Payload)
		if applyErr != nil {
			r.log.Warn("retry manager apply failed", "node_id", node.ID, "error", applyErr)
		}

		if outcome.MoveToDLQ {
			errMsg := dispatchErr.Error()
			ne.Error = &errMsg
			end := time.Now()
			ne.EndTime = &end
			d := end.Sub(ne.StartTime)
			ne.Duration = &d
			r.persist(ctx, ne)
			r.timeline.Publish(TimelineEvent{ExecutionID: exec.ExecutionID, NodeID: node.ID, Status: ne.Status, At: end})
			return ne, nil
		}

		ne.AppendRetry(dispatchErr.Error(), class.Retryable, time.Now())

		ne.Status = obsmodel.NodeExecRetrying
		r.persist(ctx, ne)
		r.timeline.Publish(TimelineEvent{ExecutionID: exec.ExecutionID, NodeID: node.ID, Status: ne.Status, At: time.Now()})

		timer := time.NewTimer(outcome.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			ne.Metadata.Cancelled = true
			return ne, r.failTerminal(ctx, node, ne, exec, ctx.Err())
		case <-timer.C:
		}
		ne.Status = obsmodel.NodeExecRunning
	}
}
