package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/registry"
	"github.com/flowgrid/platform/internal/runtime"
)

func writeConnectorDef(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// allowAllURLs stands in for the SSRF validator so the dispatch test can
// reach its loopback httptest server, which the real validator rejects.
type allowAllURLs struct{}

func (allowAllURLs) Validate(string) error { return nil }

func TestHTTPInvokerDispatchesConfiguredAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme-repo/issues", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number": 42}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeConnectorDef(t, dir, "github.yaml", fmt.Sprintf(`
id: github
name: GitHub
category: developer_tools
actions:
  - id: create_issue
    baseUrl: %s
    path: /repos/{repo}/issues
    method: POST
`, srv.URL))

	log := logger.New("error", "json")
	reg := registry.New(dir, log)
	_, err := reg.Load()
	require.NoError(t, err)

	invoker := newHTTPInvoker(reg, stubInvoker{}, log)
	invoker.validator = allowAllURLs{}
	result, err := invoker.Invoke(context.Background(), runtime.InvokeRequest{
		AppID:       "github",
		OperationID: "create_issue",
		Params:      map[string]any{"repo": "acme-repo", "title": "bug"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, result.HTTPStatusCode)
	require.Equal(t, map[string]any{"number": float64(42)}, result.Output)
}

func TestHTTPInvokerFallsBackWithoutBaseURL(t *testing.T) {
	dir := t.TempDir()
	writeConnectorDef(t, dir, "slack.yaml", `
id: slack
name: Slack
category: messaging
actions:
  - id: post_message
`)

	log := logger.New("error", "json")
	reg := registry.New(dir, log)
	_, err := reg.Load()
	require.NoError(t, err)

	invoker := newHTTPInvoker(reg, stubInvoker{}, log)
	result, err := invoker.Invoke(context.Background(), runtime.InvokeRequest{
		AppID:       "slack",
		OperationID: "post_message",
		Params:      map[string]any{"channel": "#general"},
	})
	require.NoError(t, err)
	require.Equal(t, 200, result.HTTPStatusCode)

	echoed, ok := result.Output.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "slack", echoed["app"])
}

func TestHTTPInvokerRejectsSSRFTarget(t *testing.T) {
	dir := t.TempDir()
	writeConnectorDef(t, dir, "internal.yaml", `
id: internal
name: Internal
category: misc
actions:
  - id: probe
    baseUrl: http://127.0.0.1:9
    path: /admin
    method: GET
`)

	log := logger.New("error", "json")
	reg := registry.New(dir, log)
	_, err := reg.Load()
	require.NoError(t, err)

	invoker := newHTTPInvoker(reg, stubInvoker{}, log)
	_, err = invoker.Invoke(context.Background(), runtime.InvokeRequest{
		AppID:       "internal",
		OperationID: "probe",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "outbound URL rejected")
}
