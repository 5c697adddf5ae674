package ratelimit

import "github.com/flowgrid/platform/internal/runtime/model"

// Tier buckets a workflow graph by how much LLM work it does per run, so
// heavy LLM workflows can't starve a tenant's lightweight ones out of the
// same per-tenant budget.
type Tier string

const (
	TierSimple   Tier = "simple"   // no llm nodes
	TierStandard Tier = "standard" // 1-2 llm nodes
	TierHeavy    Tier = "heavy"    // 3+ llm nodes
)

// tierConfig is the per-minute limit for executions launched against a
// graph of a given tier.
type tierConfig struct {
	Limit         int64
	WindowSeconds int
}

var tierConfigs = map[Tier]tierConfig{
	TierSimple:   {Limit: 100, WindowSeconds: 60},
	TierStandard: {Limit: 20, WindowSeconds: 60},
	TierHeavy:    {Limit: 5, WindowSeconds: 60},
}

func ConfigFor(tier Tier) tierConfig {
	if cfg, ok := tierConfigs[tier]; ok {
		return cfg
	}
	return tierConfigs[TierHeavy]
}

// TierOf inspects a compiled graph's node composition and returns its
// rate-limit tier.
func TierOf(graph *model.WorkflowGraph) Tier {
	llmCount := 0
	for _, node := range graph.Nodes {
		if node.Role() == model.RoleLLM {
			llmCount++
		}
	}

	switch {
	case llmCount == 0:
		return TierSimple
	case llmCount <= 2:
		return TierStandard
	default:
		return TierHeavy
	}
}
