package runtime

import (
	"fmt"

	"github.com/flowgrid/platform/internal/runtime/model"
)

// runTransform dispatches a transform.core:{op} node to a pure in-process
// handler. params are already fully resolved.
func runTransform(opID string, params map[string]any) (any, error) {
	switch opID {
	case "map":
		return transformMap(params)
	case "merge":
		return transformMerge(params)
	case "filter":
		return transformFilter(params)
	case "pick":
		return transformPick(params)
	default:
		return nil, fmt.Errorf("unknown transform operation %q", opID)
	}
}

// transformMap renames/selects fields from "input" according to a
// {outputField: sourcePath} mapping in "fields".
func transformMap(params map[string]any) (any, error) {
	input := params["input"]
	fields, ok := params["fields"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("map transform requires a \"fields\" object")
	}

	out := make(map[string]any, len(fields))
	for outKey, rawPath := range fields {
		path, ok := rawPath.(string)
		if !ok {
			return nil, fmt.Errorf("map transform field %q path must be a string", outKey)
		}
		value, err := ResolvePath(input, path)
		if err != nil {
			out[outKey] = nil
			continue
		}
		out[outKey] = value
	}
	return out, nil
}

// transformMerge shallow-merges every object in "sources" in order, later
// sources overwriting earlier ones on key collision.
func transformMerge(params map[string]any) (any, error) {
	sources, ok := params["sources"].([]any)
	if !ok {
		return nil, fmt.Errorf("merge transform requires a \"sources\" array")
	}

	out := make(map[string]any)
	for _, s := range sources {
		obj, ok := s.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("merge transform source is not an object")
		}
		for k, v := range obj {
			out[k] = v
		}
	}
	return out, nil
}

// transformFilter keeps only the items in "input" for which "expression"
// evaluates true, using the same CEL dialect as branch conditions.
func transformFilter(params map[string]any) (any, error) {
	items, ok := params["input"].([]any)
	if !ok {
		return nil, fmt.Errorf("filter transform requires an \"input\" array")
	}
	expr, ok := params["expression"].(string)
	if !ok {
		return nil, fmt.Errorf("filter transform requires a string \"expression\"")
	}

	evaluator := NewConditionEvaluator()
	kept := make([]any, 0, len(items))
	for _, item := range items {
		ok, err := evaluator.Evaluate(expr, item, nil)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

// transformPick extracts a single path from "input".
func transformPick(params map[string]any) (any, error) {
	path, ok := params["path"].(string)
	if !ok {
		return nil, fmt.Errorf("pick transform requires a string \"path\"")
	}
	return ResolvePath(params["input"], path)
}

// selectBranch evaluates a branch node's rules in order against output and
// ctx, returning the first matching label or the configured default.
func selectBranch(cond *ConditionEvaluator, branch *model.BranchConfig, output any, ctx map[string]any) (string, error) {
	for _, rule := range branch.Rules {
		matched, err := cond.Evaluate(rule.Expression, output, ctx)
		if err != nil {
			return "", fmt.Errorf("branch rule %q: %w", rule.Expression, err)
		}
		if matched {
			return rule.Label, nil
		}
	}
	if branch.Default != "" {
		return branch.Default, nil
	}
	return "", fmt.Errorf("no branch rule matched and no default label configured")
}
