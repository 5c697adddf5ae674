// Package model defines the records the runtime writes and dashboards
// query: Execution, NodeExecution, and DLQItem.
package model

import "time"

// ExecutionStatus is the terminal or in-flight state of an Execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionPartial   ExecutionStatus = "partial"
)

// Terminal reports whether status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionSucceeded, ExecutionFailed, ExecutionPartial:
		return true
	default:
		return false
	}
}

// ExecutionMetadata accumulates cost/cache statistics across a run's nodes.
type ExecutionMetadata struct {
	RetryCount     int
	TotalCostUSD   float64
	TotalTokensUsed int
	CacheHitRate   float64
	AvgNodeDuration time.Duration
}

// Execution is one run of a workflow. Created on trigger, mutated only by
// the runtime, terminal at Succeeded|Failed|Partial and never reopened —
// retries create a new Execution linked via ParentExecutionID.
type Execution struct {
	ExecutionID       string
	WorkflowID        string
	UserID            string
	Status            ExecutionStatus
	StartTime         time.Time
	EndTime           *time.Time
	Duration          *time.Duration
	TriggerType       string
	TriggerData       map[string]any
	TotalNodes        int
	CompletedNodes    int
	FailedNodes       int
	FinalOutput       any
	Error             *string
	CorrelationID     string
	ParentExecutionID *string
	Metadata          ExecutionMetadata
}

// Close finalizes the execution's EndTime and Duration given a status.
func (e *Execution) Close(status ExecutionStatus, now time.Time) {
	e.Status = status
	e.EndTime = &now
	d := now.Sub(e.StartTime)
	e.Duration = &d
}

// NodeExecutionStatus is the state of a single node attempt sequence.
type NodeExecutionStatus string

const (
	NodeExecPending  NodeExecutionStatus = "pending"
	NodeExecRunning  NodeExecutionStatus = "running"
	NodeExecSucceeded NodeExecutionStatus = "succeeded"
	NodeExecFailed   NodeExecutionStatus = "failed"
	NodeExecRetrying NodeExecutionStatus = "retrying"
	NodeExecDLQ      NodeExecutionStatus = "dlq"
)

// Terminal reports whether status admits no further attempts.
func (s NodeExecutionStatus) Terminal() bool {
	switch s {
	case NodeExecSucceeded, NodeExecFailed, NodeExecDLQ:
		return true
	default:
		return false
	}
}

// RetryAttempt records one failed attempt prior to the current state.
type RetryAttempt struct {
	Attempt   int
	Error     string
	FailedAt  time.Time
	Retryable bool
}

// NodeExecutionMetadata carries per-node cost/cache/HTTP bookkeeping.
type NodeExecutionMetadata struct {
	IdempotencyKey string
	CacheHit       bool
	CostUSD        float64
	TokensUsed     int
	HTTPStatusCode int
	Headers        map[string]string
	Cancelled      bool
}

// NodeExecution tracks one node's execution across all of its attempts.
// Created when the runtime schedules the node; each attempt appends to
// RetryHistory but mutates this same record.
type NodeExecution struct {
	ExecutionID   string
	NodeID        string
	NodeType      string
	Status        NodeExecutionStatus
	StartTime     time.Time
	EndTime       *time.Time
	Duration      *time.Duration
	Attempt       int
	MaxAttempts   int
	Input         map[string]any
	Output        any
	Error         *string
	CorrelationID string
	RetryHistory  []RetryAttempt
	Metadata      NodeExecutionMetadata
}

// AppendRetry records a failed attempt and advances Attempt.
func (n *NodeExecution) AppendRetry(err string, retryable bool, at time.Time) {
	n.RetryHistory = append(n.RetryHistory, RetryAttempt{
		Attempt:   n.Attempt,
		Error:     err,
		FailedAt:  at,
		Retryable: retryable,
	})
	n.Attempt++
}

// DLQItem holds a node attempt sequence that exhausted retries. Read-only
// except RetryableAfter and deletion on manual replay.
type DLQItem struct {
	ExecutionID    string
	NodeID         string
	LastError      string
	Attempts       int
	FirstFailedAt  time.Time
	LastFailedAt   time.Time
	RetryableAfter *time.Time
	Payload        map[string]any
}
