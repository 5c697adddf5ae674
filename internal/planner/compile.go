package planner

import (
	"fmt"

	"github.com/flowgrid/platform/internal/registry"
	"github.com/flowgrid/platform/internal/runtime/model"
)

const triggerNodeID = "trigger"

// Compile normalizes appIds, rejects steps whose (app, operation) does not
// resolve against reg, linearizes Steps into nodes connected by edges, sets
// each node's params from its literal Params plus any MissingInputs answers
// keyed by step id, and sets the trigger node's type to
// "trigger.{app}:{operation}". It never calls an LLM.
func Compile(plan Plan, reg *registry.Registry) (*model.WorkflowGraph, error) {
	graph := &model.WorkflowGraph{
		Nodes:    make(map[string]*model.Node),
		Metadata: map[string]any{},
	}

	triggerAppID := registry.NormalizeAppID(plan.Trigger.App)
	triggerType := fmt.Sprintf("%s.%s:%s", model.RoleTrigger, triggerAppID, plan.Trigger.Operation)
	if !reg.IsValidNodeType(triggerType) {
		return nil, fmt.Errorf("trigger %s:%s does not resolve against the registry", plan.Trigger.App, plan.Trigger.Operation)
	}
	graph.Nodes[triggerNodeID] = &model.Node{
		ID:     triggerNodeID,
		Type:   triggerType,
		Params: paramsFromLiterals(plan.Trigger.Params),
	}

	missingByStep := make(map[string][]MissingInput, len(plan.MissingInputs))
	for _, mi := range plan.MissingInputs {
		missingByStep[mi.StepID] = append(missingByStep[mi.StepID], mi)
	}

	for _, step := range plan.Steps {
		if step.ID == "" || step.ID == triggerNodeID {
			return nil, fmt.Errorf("step has invalid id %q", step.ID)
		}
		if _, exists := graph.Nodes[step.ID]; exists {
			return nil, fmt.Errorf("duplicate step id %q", step.ID)
		}

		role := step.Role
		if role == "" {
			role = string(model.RoleAction)
		}
		appID := registry.NormalizeAppID(step.App)
		nodeType := fmt.Sprintf("%s.%s:%s", role, appID, step.Operation)
		if !reg.IsValidNodeType(nodeType) {
			return nil, fmt.Errorf("step %q: %s:%s does not resolve against the registry", step.ID, step.App, step.Operation)
		}

		params := paramsFromLiterals(step.Params)
		for _, mi := range missingByStep[step.ID] {
			if mi.Answer != nil {
				params[mi.Key] = model.NewStaticParam(mi.Answer)
			}
		}

		node := &model.Node{ID: step.ID, Type: nodeType, Params: params}
		if role == string(model.RoleBranch) {
			if step.Branch == nil {
				return nil, fmt.Errorf("step %q: branch role requires a branch spec", step.ID)
			}
			branch := &model.BranchConfig{Default: step.Branch.Default}
			for _, r := range step.Branch.Rules {
				branch.Rules = append(branch.Rules, model.BranchRule{Expression: r.Expression, Label: r.Label})
			}
			node.Branch = branch
		}
		graph.Nodes[step.ID] = node
	}

	if err := linearize(graph, plan.Steps); err != nil {
		return nil, err
	}

	model.BuildAdjacency(graph)
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("compiled graph invalid: %w", err)
	}
	if err := checkReachable(graph); err != nil {
		return nil, err
	}

	return graph, nil
}

// linearize connects each step to the previous one in plan order, the
// literal reading of "linearizes steps into nodes connected by edges". A
// branch step breaks the implicit chain: its own NextByLabel targets decide
// what follows, and the step immediately after it in Steps is never chained
// to it automatically. A step that no NextByLabel entry names is left
// without an incoming edge and is rejected later by checkReachable.
func linearize(graph *model.WorkflowGraph, steps []PlanStep) error {
	prev := triggerNodeID
	for _, step := range steps {
		node := graph.Nodes[step.ID]

		if prev != "" {
			graph.Edges = append(graph.Edges, model.Edge{From: prev, To: step.ID})
		}

		if node.Branch != nil {
			for label, nextID := range step.Branch.NextByLabel {
				if _, ok := graph.Nodes[nextID]; !ok {
					return fmt.Errorf("step %q: branch target %q does not exist", step.ID, nextID)
				}
				graph.Edges = append(graph.Edges, model.Edge{From: step.ID, To: nextID, Label: label})
			}
			prev = ""
			continue
		}

		prev = step.ID
	}
	return nil
}

// checkReachable rejects a compiled graph containing a node unreachable
// from the trigger, the one connectivity guarantee WorkflowGraph.Validate
// does not itself enforce.
func checkReachable(graph *model.WorkflowGraph) error {
	seen := map[string]bool{triggerNodeID: true}
	queue := []string{triggerNodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range graph.Nodes[id].Dependents {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	for id := range graph.Nodes {
		if !seen[id] {
			return fmt.Errorf("node %q is unreachable from the trigger", id)
		}
	}
	return nil
}

func paramsFromLiterals(literals map[string]any) map[string]model.ParamValue {
	params := make(map[string]model.ParamValue, len(literals))
	for k, v := range literals {
		params[k] = model.NewStaticParam(v)
	}
	return params
}
