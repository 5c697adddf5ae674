package runtime

import (
	"context"
	"sync"

	"github.com/flowgrid/platform/internal/llmshell"
	"github.com/flowgrid/platform/internal/runtime/model"
)

// resolver implements model.Resolver against a single execution's live
// outputs map and the LLM Call Shell, so ParamValue.Resolve never needs
// to import either the runtime or llmshell package directly.
type resolver struct {
	mu         *sync.Mutex
	outputs    map[string]any
	shell      *llmshell.Shell
	userID     string
	workflowID string
}

func (r *resolver) NodeOutput(nodeID string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.outputs[nodeID]
	return v, ok
}

func (r *resolver) ResolvePath(value any, path string) (any, error) {
	return ResolvePath(value, path)
}

func (r *resolver) CallLLM(ctx context.Context, p model.LLMParam) (any, error) {
	out, _, err := r.CallLLMFull(ctx, p)
	return out, err
}

// CallLLMFull is the same call as CallLLM but also returns the shell's full
// Response so callers that track cost/usage/cache metadata (the RoleLLM
// dispatch path) don't have to re-call the shell to get it.
func (r *resolver) CallLLMFull(ctx context.Context, p model.LLMParam) (any, llmshell.Response, error) {
	messages := make([]llmshell.Message, 0, 2)
	if p.System != "" {
		messages = append(messages, llmshell.Message{Role: "system", Content: p.System})
	}
	messages = append(messages, llmshell.Message{Role: "user", Content: p.Prompt})

	resp, err := r.shell.Call(ctx, llmshell.Request{
		Provider:    p.Provider,
		Model:       p.Model,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		JSONSchema:  p.JSONSchema,
		CacheTTLSec: p.CacheTTLSec,
		UserID:      r.userID,
		WorkflowID:  r.workflowID,
	})
	if err != nil {
		return nil, llmshell.Response{}, err
	}
	if resp.ParsedJSON != nil {
		return resp.ParsedJSON, resp, nil
	}
	return resp.Text, resp, nil
}
