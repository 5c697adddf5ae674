package planner_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/platform/internal/planner"
	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/registry"
	"github.com/flowgrid/platform/internal/runtime/model"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	sheetsYAML := `
id: sheets
name: Google Sheets
category: productivity
actions:
  - id: append_row
    params:
      - name: values
        type: array
        required: true
triggers:
  - id: row_added
`
	slackYAML := `
id: slack
name: Slack
category: messaging
actions:
  - id: post_message
    params:
      - name: text
        type: string
        required: true
triggers:
  - id: message
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sheets.yaml"), []byte(sheetsYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slack.yaml"), []byte(slackYAML), 0o644))

	reg := registry.New(dir, logger.New("error", "json"))
	_, err := reg.Load()
	require.NoError(t, err)
	return reg
}

func samplePlan() planner.Plan {
	return planner.Plan{
		Apps:    []string{"slack", "sheets"},
		Trigger: planner.PlanTrigger{App: "Slack", Operation: "message", Params: map[string]any{"channel": "#general"}},
		Steps: []planner.PlanStep{
			{ID: "append", App: "Google Sheets", Operation: "append_row", Params: map[string]any{"values": []any{"a", "b"}}},
			{ID: "notify", App: "slack", Operation: "post_message", Params: map[string]any{"text": "done"}},
		},
	}
}

func TestCompileLinearizesStepsIntoAChain(t *testing.T) {
	reg := testRegistry(t)
	graph, err := planner.Compile(samplePlan(), reg)
	require.NoError(t, err)

	require.Len(t, graph.Nodes, 3)
	require.Equal(t, "trigger.slack:message", graph.Nodes["trigger"].Type)
	require.Equal(t, "action.sheets:append_row", graph.Nodes["append"].Type)
	require.Equal(t, "action.slack:post_message", graph.Nodes["notify"].Type)

	require.ElementsMatch(t, []model.Edge{
		{From: "trigger", To: "append"},
		{From: "append", To: "notify"},
	}, graph.Edges)

	require.True(t, graph.Nodes["notify"].IsTerminal)
	require.False(t, graph.Nodes["trigger"].IsTerminal)
	require.Equal(t, []string{"trigger"}, graph.Nodes["append"].Dependencies)
}

func TestCompileMergesMissingInputAnswersIntoStepParams(t *testing.T) {
	reg := testRegistry(t)
	plan := samplePlan()
	plan.MissingInputs = []planner.MissingInput{
		{StepID: "notify", Key: "text", Answer: "overridden"},
		{StepID: "notify", Key: "channel", Answer: "#eng"},
		{StepID: "append", Key: "unanswered", Answer: nil},
	}

	graph, err := planner.Compile(plan, reg)
	require.NoError(t, err)

	notify := graph.Nodes["notify"]
	require.Equal(t, "overridden", notify.Params["text"].Static.Value)
	require.Equal(t, "#eng", notify.Params["channel"].Static.Value)
	_, hasUnanswered := graph.Nodes["append"].Params["unanswered"]
	require.False(t, hasUnanswered)
}

func TestCompileRejectsUnresolvableStep(t *testing.T) {
	reg := testRegistry(t)
	plan := samplePlan()
	plan.Steps[1].Operation = "send_dm"

	_, err := planner.Compile(plan, reg)
	require.Error(t, err)
}

func TestCompileRejectsUnresolvableTrigger(t *testing.T) {
	reg := testRegistry(t)
	plan := samplePlan()
	plan.Trigger.Operation = "mention"

	_, err := planner.Compile(plan, reg)
	require.Error(t, err)
}

func TestCompileRejectsDanglingBranchTarget(t *testing.T) {
	reg := testRegistry(t)
	plan := samplePlan()
	plan.Steps[0].Role = "branch"
	plan.Steps[0].Branch = &planner.BranchSpec{
		Rules:       []planner.BranchRuleSpec{{Expression: "true", Label: "ok"}},
		NextByLabel: map[string]string{"ok": "does-not-exist"},
	}

	_, err := planner.Compile(plan, reg)
	require.Error(t, err)
}

func TestCompileProducesAValidGraph(t *testing.T) {
	reg := testRegistry(t)
	graph, err := planner.Compile(samplePlan(), reg)
	require.NoError(t, err)
	require.NoError(t, graph.Validate())
}

// TestRoundTripPreservesAppOperationAndParams proves the testable property
// that decompiling a compiled plan and recompiling it yields an equivalent
// graph: identical node types and static parameter values.
func TestRoundTripPreservesAppOperationAndParams(t *testing.T) {
	reg := testRegistry(t)
	original := samplePlan()

	graph, err := planner.Compile(original, reg)
	require.NoError(t, err)

	recovered, err := planner.Decompile(graph)
	require.NoError(t, err)

	graph2, err := planner.Compile(recovered, reg)
	require.NoError(t, err)

	a := canonicalNodes(graph)
	b := canonicalNodes(graph2)
	require.True(t, jsonpatch.Equal(a, b), "round trip changed node identity: %s vs %s", a, b)
}

// canonicalNodes renders each node's type and static parameter values as
// a nodeID-keyed JSON document.
func canonicalNodes(g *model.WorkflowGraph) []byte {
	nodes := make(map[string]any, len(g.Nodes))
	for id, n := range g.Nodes {
		params := make(map[string]any, len(n.Params))
		for k, p := range n.Params {
			if p.Kind == model.ParamStatic {
				params[k] = p.Static.Value
			}
		}
		nodes[id] = map[string]any{"type": n.Type, "params": params}
	}
	data, _ := json.Marshal(nodes)
	return data
}
