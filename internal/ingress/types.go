// Package ingress implements webhook intake, event deduplication, and the
// polling scheduler that together seed new workflow executions.
package ingress

import "time"

// TriggerEvent is the payload a webhook or poll produces, handed to the
// runtime as the seed for a new execution.
type TriggerEvent struct {
	WebhookID  string
	PollID     string
	AppID      string
	TriggerID  string
	Payload    map[string]any
	Headers    map[string]string
	Timestamp  time.Time
	Signature  string
	DedupeHash string
}

// WebhookTrigger is a registered inbound webhook endpoint.
type WebhookTrigger struct {
	ID         string
	AppID      string
	TriggerID  string
	WorkflowID string
	Secret     string
	IsActive   bool
	Metadata   map[string]any
}

// PollingTrigger is a registered polling source, driven by the scheduler.
type PollingTrigger struct {
	ID         string
	AppID      string
	TriggerID  string
	WorkflowID string
	Interval   time.Duration
	NextPoll   time.Time
	IsActive   bool
	DedupeKey  string
	Metadata   map[string]any
}

// PollResult is one item a connector's poll operation returned.
type PollResult struct {
	Item map[string]any
}

// Poller is the connector-side operation ingress calls on each tick.
type Poller interface {
	Poll(appID, triggerID string, cursor map[string]any) ([]PollResult, map[string]any, error)
}

// Sink receives newly accepted, deduplicated trigger events.
type Sink interface {
	Accept(event TriggerEvent) error
}
