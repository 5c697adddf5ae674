package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	obsmodel "github.com/flowgrid/platform/internal/observability/model"
	"github.com/flowgrid/platform/internal/platform/errs"
	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/retry"
	"github.com/flowgrid/platform/internal/runtime/model"
)

func newTestRunner(t *testing.T, invoker *fakeInvoker) (*Runner, *fakeStore, *fakeTimeline) {
	t.Helper()
	rdb := newTestRedis(t)
	log := logger.New("error", "json")

	store := &fakeStore{}
	timeline := &fakeTimeline{}
	retryMgr := retry.New(rdb, log)
	idem := NewIdempotencyStore(rdb, time.Minute)

	runner := NewRunner(
		newTestRegistry(t),
		invoker,
		nil,
		retryMgr,
		idem,
		fakeCreds{},
		store,
		timeline,
		log,
		4,
		time.Second,
	)
	return runner, store, timeline
}

func baseExecution() *obsmodel.Execution {
	return &obsmodel.Execution{
		ExecutionID:   "exec-1",
		WorkflowID:    "wf-1",
		UserID:        "user-1",
		CorrelationID: "corr-1",
		StartTime:     time.Now(),
		TriggerData:   map[string]any{"url": "https://example.com", "status": "ok"},
	}
}

func TestExecuteHappyPathLinearGraph(t *testing.T) {
	invoker := &fakeInvoker{failCounts: map[string]int{}, output: "done"}
	runner, store, _ := newTestRunner(t, invoker)

	graph := &model.WorkflowGraph{
		WorkflowID: "wf-1",
		Nodes: map[string]*model.Node{
			"trig": {ID: "trig", Type: "trigger.core:manual"},
			"a1": {
				ID:   "a1",
				Type: "action.core:http",
				Params: map[string]model.ParamValue{
					"path": model.NewRefParam("trig", "$.url"),
				},
			},
		},
		Edges: []model.Edge{{From: "trig", To: "a1"}},
	}

	exec := baseExecution()
	err := runner.Execute(context.Background(), graph, exec)
	require.NoError(t, err)
	require.Equal(t, obsmodel.ExecutionSucceeded, exec.Status)
	require.Equal(t, 1, exec.CompletedNodes)
	require.Equal(t, 0, exec.FailedNodes)

	ne := store.latest("a1")
	require.NotNil(t, ne)
	require.Equal(t, obsmodel.NodeExecSucceeded, ne.Status)
	require.Equal(t, "done", ne.Output)
}

func TestExecuteRetryThenDLQ(t *testing.T) {
	invoker := &fakeInvoker{
		failCounts: map[string]int{"a1": 10},
		failErr:    errs.Wrap(errs.TransientTransportError, "boom", nil),
	}
	runner, store, _ := newTestRunner(t, invoker)

	policy := &model.RetryPolicy{
		MaxAttempts:       2,
		InitialBackoffMs:  1,
		MaxBackoffMs:      2,
		BackoffMultiplier: 1,
		Jitter:            model.JitterNone,
	}

	graph := &model.WorkflowGraph{
		WorkflowID: "wf-1",
		Nodes: map[string]*model.Node{
			"trig": {ID: "trig", Type: "trigger.core:manual"},
			"a1": {
				ID:          "a1",
				Type:        "action.core:http",
				RetryPolicy: policy,
			},
		},
		Edges: []model.Edge{{From: "trig", To: "a1"}},
	}

	exec := baseExecution()
	err := runner.Execute(context.Background(), graph, exec)
	require.NoError(t, err)
	require.Equal(t, obsmodel.ExecutionFailed, exec.Status)
	require.Equal(t, 1, exec.FailedNodes)

	ne := store.latest("a1")
	require.NotNil(t, ne)
	require.Equal(t, obsmodel.NodeExecDLQ, ne.Status)
	require.Equal(t, policy.MaxAttempts, ne.Attempt)
	require.Len(t, ne.RetryHistory, policy.MaxAttempts-1)
}

func TestExecuteBranchPrunesUnselectedEdge(t *testing.T) {
	invoker := &fakeInvoker{failCounts: map[string]int{}, output: "ok"}
	runner, store, _ := newTestRunner(t, invoker)

	graph := &model.WorkflowGraph{
		WorkflowID: "wf-1",
		Nodes: map[string]*model.Node{
			"trig": {ID: "trig", Type: "trigger.core:manual"},
			"br": {
				ID:   "br",
				Type: "branch.core:route",
				Branch: &model.BranchConfig{
					Rules:   []model.BranchRule{{Expression: `$.status == "ok"`, Label: "success"}},
					Default: "failure",
				},
			},
			"a_success": {ID: "a_success", Type: "action.core:http"},
			"a_failure": {ID: "a_failure", Type: "action.core:http"},
		},
		Edges: []model.Edge{
			{From: "trig", To: "br"},
			{From: "br", To: "a_success", Label: "success"},
			{From: "br", To: "a_failure", Label: "failure"},
		},
	}

	exec := baseExecution()
	err := runner.Execute(context.Background(), graph, exec)
	require.NoError(t, err)
	require.Equal(t, obsmodel.ExecutionSucceeded, exec.Status)

	require.NotNil(t, store.latest("a_success"))
	require.Equal(t, obsmodel.NodeExecSucceeded, store.latest("a_success").Status)
	require.Nil(t, store.latest("a_failure"))
}
