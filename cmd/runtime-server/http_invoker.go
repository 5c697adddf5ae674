package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowgrid/platform/cmd/http-worker/security"
	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/registry"
	"github.com/flowgrid/platform/internal/runtime"
)

// httpInvoker dispatches action.{app}:{op} nodes as real outbound HTTP
// calls against the operation's configured BaseURL/Path/Method, gated by
// cmd/http-worker/security's protocol/SSRF/path validation before any
// request leaves the process. Operations that carry no BaseURL (catalog
// entries with no REST target wired up yet) fall through to next.
type httpInvoker struct {
	registry  *registry.Registry
	validator interface{ Validate(string) error }
	client    *http.Client
	next      runtime.Invoker
	log       *logger.Logger
}

// newHTTPInvoker builds an httpInvoker, falling back to next for any
// operation without a configured BaseURL.
func newHTTPInvoker(reg *registry.Registry, next runtime.Invoker, log *logger.Logger) *httpInvoker {
	return &httpInvoker{
		registry:  reg,
		validator: security.NewURLValidator(),
		client:    &http.Client{Timeout: 30 * time.Second},
		next:      next,
		log:       log,
	}
}

func (h *httpInvoker) Invoke(ctx context.Context, req runtime.InvokeRequest) (runtime.InvokeResult, error) {
	op := h.lookupOperation(req.AppID, req.OperationID)
	if op == nil || op.BaseURL == "" {
		return h.next.Invoke(ctx, req)
	}

	target := op.BaseURL + renderPath(op.Path, req.Params)
	if err := h.validator.Validate(target); err != nil {
		return runtime.InvokeResult{}, fmt.Errorf("outbound URL rejected for %s/%s: %w", req.AppID, req.OperationID, err)
	}

	method := op.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		payload, err := json.Marshal(req.Params)
		if err != nil {
			return runtime.InvokeResult{}, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return runtime.InvokeResult{}, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token, ok := req.Credentials["token"]; ok && token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)
	}
	httpReq.Header.Set("X-Correlation-Id", req.CorrelationID)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return runtime.InvokeResult{}, fmt.Errorf("connector request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return runtime.InvokeResult{HTTPStatusCode: resp.StatusCode}, fmt.Errorf("read response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	var output any
	if len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, &output); jsonErr != nil {
			output = string(raw)
		}
	}

	result := runtime.InvokeResult{Output: output, HTTPStatusCode: resp.StatusCode, Headers: headers}
	if resp.StatusCode >= 400 {
		return result, fmt.Errorf("connector %s/%s returned HTTP %d", req.AppID, req.OperationID, resp.StatusCode)
	}
	return result, nil
}

func (h *httpInvoker) lookupOperation(appID, opID string) *registry.OperationDef {
	conn, ok := h.registry.GetConnector(appID)
	if !ok {
		return nil
	}
	for i := range conn.Actions {
		if conn.Actions[i].ID == opID {
			return &conn.Actions[i]
		}
	}
	return nil
}

// renderPath substitutes "{name}" placeholders in path with the string
// form of params[name], the same convention the registry's param specs
// use for referring to action inputs.
func renderPath(path string, params map[string]any) string {
	out := path
	for k, v := range params {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return out
}
