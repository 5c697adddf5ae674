package llmshell

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint computes H(provider, model, canonicalized messages,
// temperature, maxTokens, jsonSchema) per §4.5. Schema keys are sorted so
// the fingerprint is stable across map iteration order.
func Fingerprint(req Request) string {
	canonical := struct {
		Provider    string
		Model       string
		Messages    []Message
		Temperature *float64
		MaxTokens   *int
		JSONSchema  string
	}{
		Provider:    req.Provider,
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		JSONSchema:  canonicalizeSchema(req.JSONSchema),
	}

	raw, _ := json.Marshal(canonical)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func canonicalizeSchema(schema map[string]any) string {
	if schema == nil {
		return ""
	}
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := json.Marshal(schema[k])
		ordered = append(ordered, fmt.Sprintf("%s=%s", k, v))
	}

	raw, _ := json.Marshal(ordered)
	return string(raw)
}
