package main

import (
	"context"
	"fmt"

	"github.com/flowgrid/platform/internal/ingress"
	"github.com/flowgrid/platform/internal/llmshell"
	"github.com/flowgrid/platform/internal/runtime"
)

// stubInvoker answers an action.{app} node with a deterministic echo of its
// params. httpInvoker falls back to it for any operation whose catalog
// entry has no BaseURL configured yet; first-party SDK adapters (as
// opposed to the generic REST path httpInvoker covers) are out of scope.
type stubInvoker struct{}

func (stubInvoker) Invoke(ctx context.Context, req runtime.InvokeRequest) (runtime.InvokeResult, error) {
	return runtime.InvokeResult{
		Output: map[string]any{
			"app":       req.AppID,
			"operation": req.OperationID,
			"echoed":    req.Params,
		},
		HTTPStatusCode: 200,
	}, nil
}

// stubProvider answers every llm.* call with a canned response instead of
// calling out to a real provider SDK, which is out of scope here.
type stubProvider struct{}

func (stubProvider) Generate(req llmshell.ProviderRequest) (llmshell.ProviderResponse, error) {
	return llmshell.ProviderResponse{
		Text: fmt.Sprintf("stub response from %s/%s", req.Provider, req.Model),
	}, nil
}

// stubCredentials returns an empty credential set for every (userID, appID)
// pair. Real credential storage and OAuth refresh flows are out of scope;
// this is the seam a concrete CredentialResolver plugs into.
type stubCredentials struct{}

func (stubCredentials) Credentials(ctx context.Context, userID, appID string) (map[string]string, error) {
	return map[string]string{}, nil
}

// stubPoller answers every poll tick with no new items. Real polling
// connector logic is out of scope here; this is the seam a concrete
// Poller plugs into.
type stubPoller struct{}

func (stubPoller) Poll(appID, triggerID string, cursor map[string]any) ([]ingress.PollResult, map[string]any, error) {
	return nil, cursor, nil
}
