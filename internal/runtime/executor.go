// Package runtime is the workflow execution engine: topological/wavefront
// scheduling, parameter resolution, node dispatch, and retry/DLQ
// integration. See internal/runtime/model for the graph and parameter
// types it executes.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowgrid/platform/internal/llmshell"
	obsmodel "github.com/flowgrid/platform/internal/observability/model"
	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/registry"
	"github.com/flowgrid/platform/internal/retry"
	"github.com/flowgrid/platform/internal/runtime/model"
)

// Store persists Execution and NodeExecution records. The runtime is the
// sole writer; everything else reads through internal/observability.
type Store interface {
	SaveExecution(ctx context.Context, exec *obsmodel.Execution) error
	SaveNodeExecution(ctx context.Context, ne *obsmodel.NodeExecution) error
}

// TimelineEvent is one step change broadcast for live run dashboards.
type TimelineEvent struct {
	ExecutionID string
	NodeID      string
	Status      obsmodel.NodeExecutionStatus
	At          time.Time
}

// Timeline streams TimelineEvents to subscribers. Publish must not block
// the caller on a slow subscriber.
type Timeline interface {
	Publish(evt TimelineEvent)
}

// CredentialResolver looks up a user's stored credentials for an appId.
type CredentialResolver interface {
	Credentials(ctx context.Context, userID, appID string) (map[string]string, error)
}

// Runner executes a single WorkflowGraph per call to Execute. A Runner is
// safe for concurrent use across different executions.
type Runner struct {
	registry    *registry.Registry
	invoker     Invoker
	shell       *llmshell.Shell
	retryMgr    *retry.Manager
	idempotency *IdempotencyStore
	creds       CredentialResolver
	store       Store
	timeline    Timeline
	cond        *ConditionEvaluator
	log         *logger.Logger

	maxParallelNodes int
	nodeTimeout      time.Duration
}

// NewRunner builds a Runner.
func NewRunner(
	reg *registry.Registry,
	invoker Invoker,
	shell *llmshell.Shell,
	retryMgr *retry.Manager,
	idempotency *IdempotencyStore,
	creds CredentialResolver,
	store Store,
	timeline Timeline,
	log *logger.Logger,
	maxParallelNodes int,
	nodeTimeout time.Duration,
) *Runner {
	return &Runner{
		registry:         reg,
		invoker:          invoker,
		shell:            shell,
		retryMgr:         retryMgr,
		idempotency:      idempotency,
		creds:            creds,
		store:            store,
		timeline:         timeline,
		cond:             NewConditionEvaluator(),
		log:              log,
		maxParallelNodes: maxParallelNodes,
		nodeTimeout:      nodeTimeout,
	}
}

// execState is the mutable scratch space for one Execute call: node
// outputs, branch pruning decisions, and per-node records. Every field is
// guarded by mu.
type execState struct {
	mu       sync.Mutex
	outputs  map[string]any
	pruned   map[string]bool
	skipped  map[string]bool
	nodeExec map[string]*obsmodel.NodeExecution
	incoming map[string][]model.Edge
}

func edgeKey(e model.Edge) string {
	return e.From + "->" + e.To
}

func newExecState(graph *model.WorkflowGraph) *execState {
	incoming := make(map[string][]model.Edge, len(graph.Nodes))
	for _, e := range graph.Edges {
		incoming[e.To] = append(incoming[e.To], e)
	}
	return &execState{
		outputs:  make(map[string]any, len(graph.Nodes)),
		pruned:   make(map[string]bool),
		skipped:  make(map[string]bool),
		nodeExec: make(map[string]*obsmodel.NodeExecution, len(graph.Nodes)),
		incoming: incoming,
	}
}

func (s *execState) setOutput(nodeID string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[nodeID] = value
}

func (s *execState) getOutput(nodeID string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.outputs[nodeID]
	return v, ok
}

func (s *execState) isSkipped(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	edges := s.incoming[nodeID]
	if len(edges) == 0 {
		return false
	}
	for _, e := range edges {
		if s.pruned[edgeKey(e)] || s.skipped[e.From] {
			continue
		}
		return false
	}
	return true
}

func (s *execState) markSkipped(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped[nodeID] = true
}

func (s *execState) pruneOtherBranches(graph *model.WorkflowGraph, fromNodeID, chosenLabel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range graph.Edges {
		if e.From == fromNodeID && e.Label != "" && e.Label != chosenLabel {
			s.pruned[edgeKey(e)] = true
		}
	}
}

func (s *execState) setNodeExec(nodeID string, ne *obsmodel.NodeExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeExec[nodeID] = ne
}

func (s *execState) getNodeExec(nodeID string) *obsmodel.NodeExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeExec[nodeID]
}

// Execute runs graph to completion against the given Execution record,
// mutating it in place and persisting the terminal Execution and every
// NodeExecution along the way. It implements the topological/wavefront
// execution algorithm: parameters resolve per node, nodes dispatch to a
// connector, an in-process transform/branch handler, or the LLM shell,
// and failures are routed through the retry/DLQ manager.
func (r *Runner) Execute(ctx context.Context, graph *model.WorkflowGraph, exec *obsmodel.Execution) error {
	model.BuildAdjacency(graph)
	waves, err := model.Wavefronts(graph)
	if err != nil {
		return fmt.Errorf("compute execution order: %w", err)
	}

	var triggerNodeID string
	for id, n := range graph.Nodes {
		if n.Role() == model.RoleTrigger {
			triggerNodeID = id
		}
		if !r.registry.IsValidNodeType(n.Type) {
			return fmt.Errorf("node %q has unregistered type %q", n.ID, n.Type)
		}
	}

	state := newExecState(graph)
	state.setOutput(triggerNodeID, exec.TriggerData)

	exec.Status = obsmodel.ExecutionRunning
	exec.TotalNodes = len(graph.Nodes)
	_ = r.store.SaveExecution(ctx, exec)

	for _, wave := range waves {
		sem := make(chan struct{}, r.maxParallelNodes)
		g, gctx := errgroup.WithContext(ctx)

		for _, nodeID := range wave {
			nodeID := nodeID
			node := graph.Nodes[nodeID]

			if node.Role() == model.RoleTrigger {
				continue
			}

			g.Go(func() error {
				sem <- struct{}{}
				defer func() { <-sem }()

				if state.isSkipped(nodeID) {
					state.markSkipped(nodeID)
					return nil
				}

				return r.executeNode(gctx, graph, node, state, exec)
			})
		}

		if err := g.Wait(); err != nil {
			exec.Error = strPtr(err.Error())
			r.finalize(ctx, graph, exec, state)
			return err
		}
	}

	r.finalize(ctx, graph, exec, state)
	return nil
}

func (r *Runner) finalize(ctx context.Context, graph *model.WorkflowGraph, exec *obsmodel.Execution, state *execState) {
	completed, failed := 0, 0
	anyTerminalSucceeded := false

	var retryCount, llmNodes, llmCacheHits int
	var totalCostUSD float64
	var totalTokens int
	var totalDuration time.Duration
	var durationSamples int

	for id, n := range graph.Nodes {
		if n.Role() == model.RoleTrigger {
			continue
		}
		state.mu.Lock()
		skipped := state.skipped[id]
		ne := state.nodeExec[id]
		state.mu.Unlock()

		if skipped {
			continue
		}
		if ne == nil {
			continue
		}
		switch ne.Status {
		case obsmodel.NodeExecSucceeded:
			completed++
			if n.IsTerminal {
				anyTerminalSucceeded = true
			}
		case obsmodel.NodeExecFailed, obsmodel.NodeExecDLQ:
			failed++
		}

		retryCount += len(ne.RetryHistory)
		totalCostUSD += ne.Metadata.CostUSD
		totalTokens += ne.Metadata.TokensUsed
		if n.Role() == model.RoleLLM {
			llmNodes++
			if ne.Metadata.CacheHit {
				llmCacheHits++
			}
		}
		if ne.Duration != nil {
			totalDuration += *ne.Duration
			durationSamples++
		}
	}

	exec.CompletedNodes = completed
	exec.FailedNodes = failed
	exec.Metadata.RetryCount = retryCount
	exec.Metadata.TotalCostUSD = totalCostUSD
	exec.Metadata.TotalTokensUsed = totalTokens
	if llmNodes > 0 {
		exec.Metadata.CacheHitRate = float64(llmCacheHits) / float64(llmNodes)
	}
	if durationSamples > 0 {
		exec.Metadata.AvgNodeDuration = totalDuration / time.Duration(durationSamples)
	}

	status := obsmodel.ExecutionSucceeded
	if failed > 0 {
		if anyTerminalSucceeded {
			status = obsmodel.ExecutionPartial
		} else {
			status = obsmodel.ExecutionFailed
		}
	}

	exec.Close(status, time.Now())
	if err := r.store.SaveExecution(ctx, exec); err != nil {
		r.log.Warn("failed to persist terminal execution", "execution_id", exec.ExecutionID, "error", err)
	}
}

func strPtr(s string) *string { return &s }
