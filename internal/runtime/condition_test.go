package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConditionEvaluatorDollarPathNormalization(t *testing.T) {
	e := NewConditionEvaluator()

	ok, err := e.Evaluate(`$.status == "ok"`, map[string]any{"status": "ok"}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate(`$.status == "ok"`, map[string]any{"status": "failed"}, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConditionEvaluatorCachesCompiledProgram(t *testing.T) {
	e := NewConditionEvaluator()
	expr := `output.amount > 100`

	_, err := e.Evaluate(expr, map[string]any{"amount": 50}, nil)
	require.NoError(t, err)
	require.Len(t, e.cache, 1)

	_, err = e.Evaluate(expr, map[string]any{"amount": 200}, nil)
	require.NoError(t, err)
	require.Len(t, e.cache, 1)
}

func TestConditionEvaluatorNonBooleanErrors(t *testing.T) {
	e := NewConditionEvaluator()
	_, err := e.Evaluate(`output.amount`, map[string]any{"amount": 5}, nil)
	require.Error(t, err)
}
