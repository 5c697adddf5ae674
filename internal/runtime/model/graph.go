// Package model defines the workflow graph types the runtime executes:
// WorkflowGraph, Node, Edge, and the ParamValue tagged union.
package model

import (
	"fmt"
	"strings"
)

// WorkflowGraph is identified by (WorkflowID, Version) and contains a DAG
// of Nodes connected by Edges. Exactly one node has RoleTrigger.
type WorkflowGraph struct {
	WorkflowID string
	Version    int
	Nodes      map[string]*Node
	Edges      []Edge
	Metadata   map[string]any
}

// Edge is a directed happens-before relation between two nodes, optionally
// labeled (branch nodes route by label).
type Edge struct {
	From  string
	To    string
	Label string
}

// Role is derived from a Node's Type prefix.
type Role string

const (
	RoleTrigger   Role = "trigger"
	RoleAction    Role = "action"
	RoleTransform Role = "transform"
	RoleBranch    Role = "branch"
	RoleLLM       Role = "llm"
)

// Node is a single step in a WorkflowGraph.
type Node struct {
	ID             string
	Type           string // "{role}.{appId}:{opId}"
	Params         map[string]ParamValue
	RetryPolicy    *RetryPolicy // nil means DefaultRetryPolicy applies; the registry is not consulted
	IdempotencyKey string       // template string, may reference params

	// Dependencies/Dependents are precomputed adjacency, derived from Edges
	// at graph build time, used by the topological wavefront scheduler.
	Dependencies []string
	Dependents   []string

	// IsTerminal marks nodes with no dependents. The executor's finalize
	// uses it to tell partial from failed: a run with failed nodes is
	// partial when at least one terminal node succeeded.
	IsTerminal bool

	Branch *BranchConfig
}

// Role returns the node's role, derived from the "{role}." prefix of Type.
func (n *Node) Role() Role {
	idx := strings.IndexByte(n.Type, '.')
	if idx < 0 {
		return ""
	}
	return Role(n.Type[:idx])
}

// AppOperation splits a node's type into its appId:opId suffix.
func (n *Node) AppOperation() (appID, opID string, err error) {
	idx := strings.IndexByte(n.Type, '.')
	if idx < 0 || idx == len(n.Type)-1 {
		return "", "", fmt.Errorf("malformed node type %q", n.Type)
	}
	rest := n.Type[idx+1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", "", fmt.Errorf("malformed node type %q: missing operation", n.Type)
	}
	return rest[:colon], rest[colon+1:], nil
}

// BranchConfig picks an outgoing edge label based on a condition.
type BranchConfig struct {
	Rules   []BranchRule
	Default string
}

// BranchRule pairs a CEL expression with the edge label taken when it's true.
type BranchRule struct {
	Expression string
	Label      string
}

// RetryPolicy governs per-node retry behavior. See internal/retry for the
// classification and scheduling logic that consumes it.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoffMs  int
	MaxBackoffMs      int
	BackoffMultiplier float64
	Jitter            JitterMode
	RetryOn           RetryOn
}

// JitterMode controls how backoff durations are randomized.
type JitterMode string

const (
	JitterFull  JitterMode = "full"
	JitterEqual JitterMode = "equal"
	JitterNone  JitterMode = "none"
)

// RetryOn lists per-node retryable failure categories. retry.Classify and
// retry.Decide do not read it: whether a failure is retried is decided by
// Classify alone.
type RetryOn struct {
	Transient    bool
	RateLimited  bool
	NetworkError bool
	HTTPStatuses []int
}

// DefaultRetryPolicy matches the platform defaults.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoffMs:  500,
		MaxBackoffMs:      30000,
		BackoffMultiplier: 2,
		Jitter:            JitterEqual,
	}
}

// Validate checks the DAG invariants: acyclic, every edge endpoint exists,
// exactly one trigger node.
func (g *WorkflowGraph) Validate() error {
	triggerCount := 0
	for _, n := range g.Nodes {
		if n.Role() == RoleTrigger {
			triggerCount++
		}
	}
	if triggerCount != 1 {
		return fmt.Errorf("graph must have exactly one trigger node, found %d", triggerCount)
	}

	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.From]; !ok {
			return fmt.Errorf("edge references unknown node %q", e.From)
		}
		if _, ok := g.Nodes[e.To]; !ok {
			return fmt.Errorf("edge references unknown node %q", e.To)
		}
	}

	if _, err := TopologicalOrder(g); err != nil {
		return err
	}

	return nil
}

// TopologicalOrder computes a topological ordering of g's nodes, returning
// an error if a cycle exists.
func TopologicalOrder(g *WorkflowGraph) ([]string, error) {
	indegree := make(map[string]int, len(g.Nodes))
	adj := make(map[string][]string, len(g.Nodes))
	for id := range g.Nodes {
		indegree[id] = 0
	}
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
		indegree[e.To]++
	}

	queue := make([]string, 0, len(g.Nodes))
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, fmt.Errorf("graph contains a cycle")
	}

	return order, nil
}

// BuildAdjacency populates each Node's Dependencies, Dependents, and
// IsTerminal fields from g.Edges. Call once after loading a graph.
func BuildAdjacency(g *WorkflowGraph) {
	for _, n := range g.Nodes {
		n.Dependencies = nil
		n.Dependents = nil
	}
	for _, e := range g.Edges {
		if from, ok := g.Nodes[e.From]; ok {
			from.Dependents = append(from.Dependents, e.To)
		}
		if to, ok := g.Nodes[e.To]; ok {
			to.Dependencies = append(to.Dependencies, e.From)
		}
	}
	for _, n := range g.Nodes {
		n.IsTerminal = len(n.Dependents) == 0
	}
}

// Wavefronts groups nodes into waves that can each execute in parallel,
// every node in wave i depending only on nodes in waves < i.
func Wavefronts(g *WorkflowGraph) ([][]string, error) {
	indegree := make(map[string]int, len(g.Nodes))
	adj := make(map[string][]string, len(g.Nodes))
	for id := range g.Nodes {
		indegree[id] = 0
	}
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
		indegree[e.To]++
	}

	var waves [][]string
	remaining := len(g.Nodes)
	current := make([]string, 0)
	for id, d := range indegree {
		if d == 0 {
			current = append(current, id)
		}
	}

	for len(current) > 0 {
		waves = append(waves, current)
		remaining -= len(current)
		next := make([]string, 0)
		for _, id := range current {
			for _, dep := range adj[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if remaining != 0 {
		return nil, fmt.Errorf("graph contains a cycle")
	}

	return waves, nil
}
