package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore caches a node's output under (workflowId, nodeId, key)
// so repeated executions within the dedupe window short-circuit to the
// stored result instead of re-invoking the node.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdempotencyStore builds an IdempotencyStore with the given retention
// window for stored outputs.
func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func idempotencyKey(workflowID, nodeID, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", workflowID, nodeID, key)
}

// RenderKey evaluates an idempotencyKey template (Go text/template syntax)
// against a node's resolved parameters, e.g. "{{.email}}-{{.threadId}}".
func RenderKey(tmpl string, params map[string]any) (string, error) {
	if tmpl == "" {
		return "", nil
	}

	t, err := template.New("idempotency").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse idempotency key template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("render idempotency key template: %w", err)
	}

	return buf.String(), nil
}

// Lookup returns the previously stored output for this key, if any.
func (s *IdempotencyStore) Lookup(ctx context.Context, workflowID, nodeID, key string) (any, bool, error) {
	if key == "" {
		return nil, false, nil
	}

	raw, err := s.rdb.Get(ctx, idempotencyKey(workflowID, nodeID, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read idempotency record: %w", err)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("unmarshal idempotency record: %w", err)
	}
	return value, true, nil
}

// Store records output under this key for the configured TTL.
func (s *IdempotencyStore) Store(ctx context.Context, workflowID, nodeID, key string, output any) error {
	if key == "" {
		return nil
	}

	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	return s.rdb.Set(ctx, idempotencyKey(workflowID, nodeID, key), data, s.ttl).Err()
}
