package runtime

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// ConditionEvaluator compiles and caches CEL programs for branch rules.
type ConditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewConditionEvaluator builds an empty, ready-to-use evaluator.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{cache: make(map[string]cel.Program)}
}

// Evaluate runs expr against a node's output and the execution-wide
// context map, returning the boolean result.
func (e *ConditionEvaluator) Evaluate(expr string, output any, ctx map[string]any) (bool, error) {
	prg, err := e.program(normalizeExpr(expr))
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{
		"output": output,
		"ctx":    ctx,
	})
	if err != nil {
		return false, fmt.Errorf("cel evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel expression did not return a boolean, got %T", out.Value())
	}
	return result, nil
}

// normalizeExpr rewrites the "$.field" shorthand used in ref paths and
// branch rules to the "output.field" form CEL can resolve against the
// declared env variable.
func normalizeExpr(expr string) string {
	return strings.ReplaceAll(expr, "$.", "output.")
}

func (e *ConditionEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("output", cel.DynType),
		cel.Variable("ctx", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compilation error: %w", issues.Err())
	}

	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create cel program: %w", err)
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()

	return prg, nil
}
