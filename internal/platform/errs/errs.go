// Package errs defines the closed error taxonomy that every connector
// invocation, webhook verification, and LLM call is classified into.
// The workflow runtime is the sole authority that translates a Kind
// into a node/execution status transition.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind is a closed classification of failure causes.
type Kind string

const (
	ValidationError         Kind = "validation_error"
	CredentialError          Kind = "credential_error"
	SignatureError           Kind = "signature_error"
	RateLimited              Kind = "rate_limited"
	TransientTransportError  Kind = "transient_transport_error"
	TimeoutError             Kind = "timeout_error"
	SchemaValidationFailed   Kind = "schema_validation_failed"
	BudgetExceeded           Kind = "budget_exceeded"
	Cancelled                Kind = "cancelled"
	Internal                 Kind = "internal"
)

// Error is the carrier type for every classified failure in the platform.
type Error struct {
	Kind           Kind
	Message        string
	RetryableAfter *time.Duration
	CorrelationID  string
	cause          error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a classified error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error under kind, preserving it as the cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithRetryAfter attaches a retry-after duration, used by the retry
// manager to schedule the next attempt.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryableAfter = &d
	return e
}

// WithCorrelationID attaches the execution's correlation id for log joins.
func (e *Error) WithCorrelationID(id string) *Error {
	e.CorrelationID = id
	return e
}

// Retryable reports whether this kind of failure is worth retrying at all.
// ValidationError, CredentialError, SignatureError, SchemaValidationFailed,
// BudgetExceeded, and Cancelled are terminal by construction.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case RateLimited, TransientTransportError, TimeoutError:
		return true
	default:
		return false
	}
}

// As extracts a *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}
