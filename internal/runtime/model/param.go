package model

import (
	"context"
	"fmt"
)

// ParamKind discriminates the three ParamValue shapes.
type ParamKind string

const (
	ParamStatic ParamKind = "static"
	ParamRef    ParamKind = "ref"
	ParamLLM    ParamKind = "llm"
)

// ParamValue is a tagged variant: exactly one of the three payload fields
// is meaningful, selected by Kind. Unknown kinds are rejected by Validate;
// there is no untyped fallback.
type ParamValue struct {
	Kind   ParamKind
	Static *StaticParam
	Ref    *RefParam
	LLM    *LLMParam
}

// StaticParam carries a literal value.
type StaticParam struct {
	Value any
}

// RefParam resolves to another node's output at Path. Path is a dot
// expression with integer indices and a leading "$" for root, evaluated
// with gjson-style path syntax.
type RefParam struct {
	NodeID string
	Path   string
}

// LLMParam describes an inline LLM call used to resolve a parameter value.
type LLMParam struct {
	Provider    string
	Model       string
	Prompt      string
	System      string
	Temperature *float64
	MaxTokens   *int
	JSONSchema  map[string]any
	CacheTTLSec *int
}

// NewStaticParam builds a static ParamValue.
func NewStaticParam(value any) ParamValue {
	return ParamValue{Kind: ParamStatic, Static: &StaticParam{Value: value}}
}

// NewRefParam builds a ref ParamValue.
func NewRefParam(nodeID, path string) ParamValue {
	return ParamValue{Kind: ParamRef, Ref: &RefParam{NodeID: nodeID, Path: path}}
}

// NewLLMParam builds an llm ParamValue.
func NewLLMParam(p LLMParam) ParamValue {
	return ParamValue{Kind: ParamLLM, LLM: &p}
}

// Validate rejects a ParamValue whose Kind has no matching payload —
// the load-time check REDESIGN demands in place of an untyped bag.
func (p ParamValue) Validate() error {
	switch p.Kind {
	case ParamStatic:
		if p.Static == nil {
			return fmt.Errorf("static param missing payload")
		}
	case ParamRef:
		if p.Ref == nil || p.Ref.NodeID == "" || p.Ref.Path == "" {
			return fmt.Errorf("ref param missing nodeId or path")
		}
	case ParamLLM:
		if p.LLM == nil || p.LLM.Provider == "" || p.LLM.Model == "" {
			return fmt.Errorf("llm param missing provider or model")
		}
	default:
		return fmt.Errorf("unknown param kind %q", p.Kind)
	}
	return nil
}

// Resolver supplies the two effects ParamValue.Resolve needs without
// ParamValue importing the runtime or the LLM shell directly.
type Resolver interface {
	// NodeOutput returns the recorded output of a node that has already
	// executed in the current execution.
	NodeOutput(nodeID string) (any, bool)
	// ResolvePath evaluates a dot/integer-index/$ path expression against value.
	ResolvePath(value any, path string) (any, error)
	// CallLLM invokes the LLM call shell and returns the resolved value
	// (parsedJson if present, else text).
	CallLLM(ctx context.Context, p LLMParam) (any, error)
}

// Resolve produces the concrete value for this parameter.
func (p ParamValue) Resolve(ctx context.Context, r Resolver) (any, error) {
	switch p.Kind {
	case ParamStatic:
		return p.Static.Value, nil

	case ParamRef:
		output, ok := r.NodeOutput(p.Ref.NodeID)
		if !ok {
			return nil, fmt.Errorf("ref to node %q has no output yet", p.Ref.NodeID)
		}
		return r.ResolvePath(output, p.Ref.Path)

	case ParamLLM:
		return r.CallLLM(ctx, *p.LLM)

	default:
		return nil, fmt.Errorf("unknown param kind %q", p.Kind)
	}
}
