package llmshell

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/platform/internal/platform/logger"
)

type stubProvider struct {
	calls int
	text  string
}

func (s *stubProvider) Generate(req ProviderRequest) (ProviderResponse, error) {
	s.calls++
	return ProviderResponse{Text: s.text, CostUSD: 0.02, Usage: Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
}

func newTestShell(t *testing.T, provider Provider, dailyCap float64) (*Shell, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cache := NewCache(rdb)
	budget := NewBudgetGate(rdb, dailyCap)
	validator := NewSchemaValidator()
	log := logger.New("error", "json")

	shell := NewShell(provider, cache, budget, validator, log, 5*time.Minute, func(Request) float64 { return 0.02 })
	return shell, rdb
}

func TestShellCacheHitOnSecondIdenticalCall(t *testing.T) {
	provider := &stubProvider{text: `{"ok":true}`}
	shell, _ := newTestShell(t, provider, 10)

	req := Request{Provider: "openai", Model: "gpt-4", Messages: []Message{{Role: "user", Content: "hi"}}, UserID: "u1"}

	first, err := shell.Call(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := shell.Call(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, 1, provider.calls)
	require.Equal(t, first.Text, second.Text)
}

func TestShellBudgetDenialMakesNoUpstreamCall(t *testing.T) {
	provider := &stubProvider{text: `{"ok":true}`}
	shell, _ := newTestShell(t, provider, 0.01)

	req := Request{Provider: "openai", Model: "gpt-4", Messages: []Message{{Role: "user", Content: "hi"}}, UserID: "u1"}

	_, err := shell.Call(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, 0, provider.calls)
}

func TestFingerprintStableAcrossSchemaKeyOrder(t *testing.T) {
	req1 := Request{Provider: "openai", Model: "gpt-4", JSONSchema: map[string]any{"a": 1, "b": 2}}
	req2 := Request{Provider: "openai", Model: "gpt-4", JSONSchema: map[string]any{"b": 2, "a": 1}}

	require.Equal(t, Fingerprint(req1), Fingerprint(req2))
}
