package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowgrid/platform/internal/runtime/model"
)

func TestTransformMapSelectsAndRenamesFields(t *testing.T) {
	params := map[string]any{
		"input": map[string]any{
			"first_name": "Ada",
			"meta":       map[string]any{"id": "42"},
		},
		"fields": map[string]any{
			"name":   "$.first_name",
			"userId": "$.meta.id",
		},
	}

	out, err := runTransform("map", params)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": "Ada", "userId": "42"}, out)
}

func TestTransformMergeLaterSourceWins(t *testing.T) {
	params := map[string]any{
		"sources": []any{
			map[string]any{"a": 1, "b": 1},
			map[string]any{"b": 2},
		},
	}
	out, err := runTransform("merge", params)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": 1, "b": 2}, out)
}

func TestTransformFilterKeepsMatchingItems(t *testing.T) {
	params := map[string]any{
		"input":      []any{map[string]any{"amount": 50.0}, map[string]any{"amount": 150.0}},
		"expression": "output.amount > 100",
	}
	out, err := runTransform("filter", params)
	require.NoError(t, err)
	kept := out.([]any)
	require.Len(t, kept, 1)
}

func TestSelectBranchFirstMatchingRuleWins(t *testing.T) {
	cond := NewConditionEvaluator()
	branch := &model.BranchConfig{
		Rules: []model.BranchRule{
			{Expression: `$.status == "ok"`, Label: "success"},
			{Expression: `$.status == "failed"`, Label: "failure"},
		},
		Default: "unknown",
	}

	label, err := selectBranch(cond, branch, map[string]any{"status": "failed"}, nil)
	require.NoError(t, err)
	require.Equal(t, "failure", label)
}

func TestSelectBranchFallsBackToDefault(t *testing.T) {
	cond := NewConditionEvaluator()
	branch := &model.BranchConfig{
		Rules:   []model.BranchRule{{Expression: `$.status == "ok"`, Label: "success"}},
		Default: "unknown",
	}

	label, err := selectBranch(cond, branch, map[string]any{"status": "pending"}, nil)
	require.NoError(t, err)
	require.Equal(t, "unknown", label)
}
