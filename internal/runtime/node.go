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

// executeNode resolves a node's parameters, dispatches it, and drives the
// attempt/backoff loop to completion. It returns a non-nil error only for
// failures that should abort the whole execution (context cancellation);
// a node that exhausts retries and lands in the DLQ returns nil so
// sibling branches keep running.
func (r *Runner) executeNode(ctx context.Context, graph *model.WorkflowGraph, node *model.Node, state *execState, exec *obsmodel.Execution) error {
	policy := node.RetryPolicy
	if policy == nil {
		policy = model.DefaultRetryPolicy()
	}

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
	}
	state.setNodeExec(node.ID, ne)
	r.timeline.Publish(TimelineEvent{ExecutionID: exec.ExecutionID, NodeID: node.ID, Status: ne.Status, At: now})

	res := &resolver{
		mu:         &state.mu,
		outputs:    state.outputs,
		shell:      r.shell,
		userID:     exec.UserID,
		workflowID: exec.WorkflowID,
	}

	params := make(map[string]any, len(node.Params))
	for name, pv := range node.Params {
		value, err := pv.Resolve(ctx, res)
		if err != nil {
			_ = r.failTerminal(ctx, node, ne, exec, fmt.Errorf("resolve param %q: %w", name, err))
			return nil
		}
		params[name] = value
	}
	ne.Input = params

	idemKey, err := RenderKey(node.IdempotencyKey, params)
	if err != nil {
		r.log.Warn("idempotency key render failed, proceeding without short-circuit", "node_id", node.ID, "error", err)
		idemKey = ""
	}
	ne.Metadata.IdempotencyKey = idemKey

	if idemKey != "" {
		if cached, hit, lookupErr := r.idempotency.Lookup(ctx, exec.WorkflowID, node.ID, idemKey); lookupErr != nil {
			r.log.Warn("idempotency lookup failed", "node_id", node.ID, "error", lookupErr)
		} else if hit {
			r.succeedNode(ctx, node, ne, exec, state, cached)
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			ne.Metadata.Cancelled = true
			return r.failTerminal(ctx, node, ne, exec, ctx.Err())
		default:
		}

		output, httpStatus, dispatchErr := r.dispatch(ctx, graph, node, params, state, exec, ne)
		if dispatchErr == nil {
			r.succeedNode(ctx, node, ne, exec, state, output)
			if idemKey != "" {
				if err := r.idempotency.Store(ctx, exec.WorkflowID, node.ID, idemKey, output); err != nil {
					r.log.Warn("failed to store idempotency record", "node_id", node.ID, "error", err)
				}
			}
			return nil
		}

		var retryAfter *time.Duration
		if e, ok := errs.As(dispatchErr); ok {
			retryAfter = e.RetryableAfter
		}

		class := retry.Classify(dispatchErr, httpStatus, retryAfter)

		// Apply reads ne.Attempt to decide, so it must run against the
		// attempt that just failed, before AppendRetry advances the counter.
		outcome, applyErr := r.retryMgr.Apply(ctx, policy, ne, class, params)
		if applyErr != nil {
			r.log.Warn("retry manager apply failed", "node_id", node.ID, "error", applyErr)
		}

		if outcome.MoveToDLQ {
			errMsg := dispatchErr.Error()
			ne.Error = &errMsg
			now := time.Now()
			ne.EndTime = &now
			d := now.Sub(ne.StartTime)
			ne.Duration = &d
			r.persist(ctx, ne)
			r.timeline.Publish(TimelineEvent{ExecutionID: exec.ExecutionID, NodeID: node.ID, Status: ne.Status, At: now})
			return nil
		}

		// Only a retry that will actually run again joins RetryHistory and
		// advances Attempt — the attempt that exhausts the policy and moves
		// to DLQ is recorded by the branch above instead, not here.
		ne.AppendRetry(dispatchErr.Error(), class.Retryable, time.Now())

		ne.Status = obsmodel.NodeExecRetrying
		r.persist(ctx, ne)
		r.timeline.Publish(TimelineEvent{ExecutionID: exec.ExecutionID, NodeID: node.ID, Status: ne.Status, At: time.Now()})

		timer := time.NewTimer(outcome.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			ne.Metadata.Cancelled = true
			return r.failTerminal(ctx, node, ne, exec, ctx.Err())
		case <-timer.C:
		}

		ne.Status = obsmodel.NodeExecRunning
	}
}

func (r *Runner) succeedNode(ctx context.Context, node *model.Node, ne *obsmodel.NodeExecution, exec *obsmodel.Execution, state *execState, output any) {
	ne.Status = obsmodel.NodeExecSucceeded
	ne.Output = output
	now := time.Now()
	ne.EndTime = &now
	d := now.Sub(ne.StartTime)
	ne.Duration = &d

	state.setOutput(node.ID, output)
	r.persist(ctx, ne)
	r.timeline.Publish(TimelineEvent{ExecutionID: exec.ExecutionID, NodeID: node.ID, Status: ne.Status, At: now})
}

func (r *Runner) failTerminal(ctx context.Context, node *model.Node, ne *obsmodel.NodeExecution, exec *obsmodel.Execution, err error) error {
	ne.Status = obsmodel.NodeExecFailed
	msg := err.Error()
	ne.Error = &msg
	now := time.Now()
	ne.EndTime = &now
	d := now.Sub(ne.StartTime)
	ne.Duration = &d

	r.persist(ctx, ne)
	r.timeline.Publish(TimelineEvent{ExecutionID: exec.ExecutionID, NodeID: node.ID, Status: ne.Status, At: now})
	return err
}

func (r *Runner) persist(ctx context.Context, ne *obsmodel.NodeExecution) {
	if err := r.store.SaveNodeExecution(ctx, ne); err != nil {
		r.log.Warn("failed to persist node execution", "node_id", ne.NodeID, "error", err)
	}
}

// dispatch runs one attempt of node's body and returns its output, the
// HTTP status code if applicable (for retry classification), and any
// error. It also writes role-specific fields (HTTPStatusCode for actions;
// CostUSD, TokensUsed, CacheHit for LLM calls) directly onto ne.Metadata
// as a side effect, since those values only exist inside this function.
func (r *Runner) dispatch(ctx context.Context, graph *model.WorkflowGraph, node *model.Node, params map[string]any, state *execState, exec *obsmodel.Execution, ne *obsmodel.NodeExecution) (any, int, error) {
	if r.nodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.nodeTimeout)
		defer cancel()
	}

	switch node.Role() {
	case model.RoleAction:
		appID, opID, err := node.AppOperation()
		if err != nil {
			return nil, 0, errs.Wrap(errs.ValidationError, "malformed action node type", err)
		}

		creds, err := r.creds.Credentials(ctx, exec.UserID, appID)
		if err != nil {
			return nil, 0, errs.Wrap(errs.CredentialError, "failed to resolve credentials", err)
		}

		result, err := r.invoker.Invoke(ctx, InvokeRequest{
			AppID:          appID,
			OperationID:    opID,
			Params:         params,
			Credentials:    creds,
			ExecutionID:    exec.ExecutionID,
			NodeID:         node.ID,
			CorrelationID:  exec.CorrelationID,
			IdempotencyKey: ne.Metadata.IdempotencyKey,
		})
		ne.Metadata.HTTPStatusCode = result.HTTPStatusCode
		if len(result.Headers) > 0 {
			ne.Metadata.Headers = result.Headers
		}
		if err != nil {
			return nil, result.HTTPStatusCode, err
		}
		return result.Output, result.HTTPStatusCode, nil

	case model.RoleTransform:
		_, opID, err := node.AppOperation()
		if err != nil {
			return nil, 0, errs.Wrap(errs.ValidationError, "malformed transform node type", err)
		}
		out, err := runTransform(opID, params)
		if err != nil {
			return nil, 0, errs.Wrap(errs.ValidationError, "transform failed", err)
		}
		return out, 0, nil

	case model.RoleBranch:
		if node.Branch == nil {
			return nil, 0, errs.New(errs.ValidationError, "branch node missing branch config")
		}
		depOutput := singleDependencyOutput(node, state)
		execCtx := map[string]any{
			"triggerData": exec.TriggerData,
			"workflowId":  exec.WorkflowID,
		}
		label, err := selectBranch(r.cond, node.Branch, depOutput, execCtx)
		if err != nil {
			return nil, 0, errs.Wrap(errs.ValidationError, "branch evaluation failed", err)
		}
		state.pruneOtherBranches(graph, node.ID, label)
		return map[string]any{"label": label}, 0, nil

	case model.RoleLLM:
		lp := model.LLMParam{
			Provider: stringParam(params, "provider"),
			Model:    stringParam(params, "model"),
			Prompt:   stringParam(params, "prompt"),
			System:   stringParam(params, "system"),
		}
		if schema, ok := params["jsonSchema"].(map[string]any); ok {
			lp.JSONSchema = schema
		}
		res := &resolver{mu: &state.mu, outputs: state.outputs, shell: r.shell, userID: exec.UserID, workflowID: exec.WorkflowID}
		out, resp, err := res.CallLLMFull(ctx, lp)
		ne.Metadata.CostUSD = resp.CostUSD
		ne.Metadata.TokensUsed = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
		ne.Metadata.CacheHit = resp.CacheHit
		return out, 0, err

	default:
		return nil, 0, errs.New(errs.ValidationError, fmt.Sprintf("unknown node role for type %q", node.Type))
	}
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// singleDependencyOutput returns the output of a branch node's first
// dependency, the conventional input a branch condition evaluates against.
func singleDependencyOutput(node *model.Node, state *execState) any {
	if len(node.Dependencies) == 0 {
		return nil
	}
	out, _ := state.getOutput(node.Dependencies[0])
	return out
}
