package planner

import (
	"fmt"

	"github.com/flowgrid/platform/internal/runtime/model"
)

// Decompile recovers a Plan from a compiled WorkflowGraph. It exists to
// prove the round-trip property: Compile(Decompile(g)) must reproduce g's
// app/operation identity and parameter references, since nothing in Compile
// discards information needed to walk the graph back into plan form.
func Decompile(graph *model.WorkflowGraph) (Plan, error) {
	var triggerNode *model.Node
	for _, n := range graph.Nodes {
		if n.Role() == model.RoleTrigger {
			triggerNode = n
			break
		}
	}
	if triggerNode == nil {
		return Plan{}, fmt.Errorf("graph has no trigger node")
	}

	triggerApp, triggerOp, err := triggerNode.AppOperation()
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{
		Trigger: PlanTrigger{App: triggerApp, Operation: triggerOp, Params: literalsFromParams(triggerNode.Params)},
	}

	order, err := model.TopologicalOrder(graph)
	if err != nil {
		return Plan{}, err
	}

	branchLabels := make(map[string]map[string]string) // nodeID -> label -> target
	for _, e := range graph.Edges {
		if e.Label == "" {
			continue
		}
		if branchLabels[e.From] == nil {
			branchLabels[e.From] = make(map[string]string)
		}
		branchLabels[e.From][e.Label] = e.To
	}

	apps := map[string]bool{triggerApp: true}
	for _, id := range order {
		if id == triggerNode.ID {
			continue
		}
		node := graph.Nodes[id]
		appID, opID, err := node.AppOperation()
		if err != nil {
			return Plan{}, err
		}
		apps[appID] = true

		step := PlanStep{
			ID:        node.ID,
			App:       appID,
			Operation: opID,
			Role:      string(node.Role()),
			Params:    literalsFromParams(node.Params),
		}
		if node.Branch != nil {
			spec := &BranchSpec{Default: node.Branch.Default, NextByLabel: branchLabels[node.ID]}
			for _, r := range node.Branch.Rules {
				spec.Rules = append(spec.Rules, BranchRuleSpec{Expression: r.Expression, Label: r.Label})
			}
			step.Branch = spec
		}
		plan.Steps = append(plan.Steps, step)
	}

	for app := range apps {
		plan.Apps = append(plan.Apps, app)
	}

	return plan, nil
}

// literalsFromParams converts static params back to plain values. Ref and
// LLM params, which Compile never produces from plan literals directly,
// are rendered as descriptive placeholders rather than dropped silently.
func literalsFromParams(params map[string]model.ParamValue) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, p := range params {
		switch p.Kind {
		case model.ParamStatic:
			out[k] = p.Static.Value
		case model.ParamRef:
			out[k] = map[string]any{"$ref": p.Ref.NodeID, "path": p.Ref.Path}
		case model.ParamLLM:
			out[k] = map[string]any{"$llm": p.LLM.Provider + ":" + p.LLM.Model}
		}
	}
	return out
}
