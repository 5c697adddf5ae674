package llmshell

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flowgrid/platform/internal/platform/errs"
	"github.com/flowgrid/platform/internal/platform/logger"
)

// Validator validates a JSON value against a schema, returning a
// human-readable reason on mismatch.
type Validator interface {
	Validate(schema map[string]any, value any) (ok bool, reason string)
}

// Shell is the LLM call boundary: fingerprint cache, single-flight
// dedup, budget gate, and one repair round trip on schema mismatch.
type Shell struct {
	provider  Provider
	cache     *Cache
	budget    *BudgetGate
	validator Validator
	log       *logger.Logger

	group          singleflight.Group
	defaultTTL     time.Duration
	estimatorUSD   func(Request) float64
}

// NewShell builds a Shell. estimateCost estimates the USD cost of a
// request before the upstream call, used by the budget gate.
func NewShell(provider Provider, cache *Cache, budget *BudgetGate, validator Validator, log *logger.Logger, defaultTTL time.Duration, estimateCost func(Request) float64) *Shell {
	return &Shell{
		provider:     provider,
		cache:        cache,
		budget:       budget,
		validator:    validator,
		log:          log,
		defaultTTL:   defaultTTL,
		estimatorUSD: estimateCost,
	}
}

// Call runs the full fingerprint-cache / budget-gate / validate-and-repair
// pipeline for a single LLM request.
func (s *Shell) Call(ctx context.Context, req Request) (Response, error) {
	fingerprint := Fingerprint(req)

	if cached, hit, err := s.cache.Get(ctx, fingerprint); err != nil {
		s.log.Warn("llm cache read failed", "error", err)
	} else if hit {
		cached.CacheHit = true
		return *cached, nil
	}

	// Concurrent identical requests collapse to one upstream call.
	result, err, _ := s.group.Do(fingerprint, func() (any, error) {
		return s.callUpstream(ctx, req, fingerprint)
	})
	if err != nil {
		return Response{}, err
	}

	return result.(Response), nil
}

func (s *Shell) callUpstream(ctx context.Context, req Request, fingerprint string) (Response, error) {
	// Re-check the cache: an earlier call for this same fingerprint may
	// have finished and written the entry between the initial Get and Do
	// dispatch.
	if cached, hit, _ := s.cache.Get(ctx, fingerprint); hit {
		cached.CacheHit = true
		return *cached, nil
	}

	estimated := s.estimatorUSD(req)
	if err := s.budget.Check(ctx, estimated, req.UserID, req.WorkflowID); err != nil {
		return Response{}, err
	}

	providerResp, err := s.provider.Generate(ProviderRequest{
		Provider:    req.Provider,
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		JSONSchema:  req.JSONSchema,
	})
	if err != nil {
		return Response{}, errs.Wrap(errs.TransientTransportError, "llm provider call failed", err)
	}

	resp := Response{
		Text:    providerResp.Text,
		Usage:   providerResp.Usage,
		CostUSD: providerResp.CostUSD,
	}

	if req.JSONSchema != nil {
		parsed, err := s.validateAndRepair(ctx, req, providerResp.Text)
		if err != nil {
			return Response{}, err
		}
		resp.ParsedJSON = parsed
	}

	if err := s.budget.Record(ctx, resp.CostUSD, req.UserID); err != nil {
		s.log.Warn("failed to record llm spend", "error", err)
	}

	ttl := s.defaultTTL
	if req.CacheTTLSec != nil {
		ttl = time.Duration(*req.CacheTTLSec) * time.Second
	}
	if err := s.cache.Put(ctx, fingerprint, resp, ttl); err != nil {
		s.log.Warn("failed to write llm cache entry", "error", err)
	}

	return resp, nil
}

// validateAndRepair parses text as JSON against req.JSONSchema, attempting
// one repair round trip on mismatch before failing terminally.
func (s *Shell) validateAndRepair(ctx context.Context, req Request, text string) (any, error) {
	parsed, ok, reason := s.parseAndValidate(req.JSONSchema, text)
	if ok {
		return parsed, nil
	}

	repairPrompt := fmt.Sprintf(
		"the previous output failed schema validation because %s; return only valid JSON matching the schema",
		reason,
	)
	repairReq := ProviderRequest{
		Provider:    req.Provider,
		Model:       req.Model,
		Messages:    append(append([]Message{}, req.Messages...), Message{Role: "user", Content: repairPrompt}),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		JSONSchema:  req.JSONSchema,
	}

	repaired, err := s.provider.Generate(repairReq)
	if err != nil {
		return nil, errs.Wrap(errs.TransientTransportError, "llm repair call failed", err)
	}

	parsed, ok, reason = s.parseAndValidate(req.JSONSchema, repaired.Text)
	if !ok {
		return nil, errs.New(errs.SchemaValidationFailed, fmt.Sprintf("schema validation failed after repair: %s", reason))
	}

	return parsed, nil
}

func (s *Shell) parseAndValidate(schema map[string]any, text string) (any, bool, string) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, false, fmt.Sprintf("output is not valid JSON: %v", err)
	}

	ok, reason := s.validator.Validate(schema, value)
	if !ok {
		return nil, false, reason
	}

	return value, true, ""
}
