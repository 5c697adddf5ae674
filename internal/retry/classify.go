// Package retry implements the per-node retry policy, backoff scheduling,
// and dead-letter queue described for the workflow runtime.
package retry

import (
	"math/rand"
	"time"

	"github.com/flowgrid/platform/internal/platform/errs"
	"github.com/flowgrid/platform/internal/runtime/model"
)

// Category buckets a classified failure for logging and policy overrides.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryTimeout    Category = "timeout"
	CategoryServerError Category = "server_error"
	CategoryRateLimited Category = "rate_limited"
	CategoryTerminal   Category = "terminal"
)

// Classification is the decision classify() returns for a failed attempt.
type Classification struct {
	Retryable  bool
	Category   Category
	RetryAfter *time.Duration // honored directly when set, e.g. a 429's Retry-After
}

// Classify maps an error and optional HTTP status to a retry decision.
// Network errors, timeouts, 5xx, 408, 425, and 429 are retryable; other
// 4xx, schema-validation errors, and signature failures are terminal.
func Classify(err error, httpStatus int, retryAfter *time.Duration) Classification {
	kind := errs.KindOf(err)

	switch kind {
	case errs.RateLimited:
		return Classification{Retryable: true, Category: CategoryRateLimited, RetryAfter: retryAfter}
	case errs.TransientTransportError:
		return Classification{Retryable: true, Category: CategoryNetwork}
	case errs.TimeoutError:
		return Classification{Retryable: true, Category: CategoryTimeout}
	case errs.ValidationError, errs.CredentialError, errs.SignatureError,
		errs.SchemaValidationFailed, errs.BudgetExceeded, errs.Cancelled:
		return Classification{Retryable: false, Category: CategoryTerminal}
	}

	switch {
	case httpStatus == 408 || httpStatus == 425 || httpStatus == 429:
		return Classification{Retryable: true, Category: CategoryRateLimited, RetryAfter: retryAfter}
	case httpStatus >= 500 && httpStatus < 600:
		return Classification{Retryable: true, Category: CategoryServerError}
	case httpStatus >= 400 && httpStatus < 500:
		return Classification{Retryable: false, Category: CategoryTerminal}
	}

	return Classification{Retryable: false, Category: CategoryTerminal}
}

// NextBackoff computes the delay before the next attempt given a policy
// and the attempt number that just failed (1-indexed).
func NextBackoff(policy *model.RetryPolicy, attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil {
		return *retryAfter
	}

	base := float64(policy.InitialBackoffMs) * pow(policy.BackoffMultiplier, attempt-1)
	if base > float64(policy.MaxBackoffMs) {
		base = float64(policy.MaxBackoffMs)
	}

	delay := time.Duration(base) * time.Millisecond

	switch policy.Jitter {
	case model.JitterFull:
		delay = time.Duration(rand.Int63n(int64(delay) + 1))
	case model.JitterEqual:
		half := delay / 2
		delay = half + time.Duration(rand.Int63n(int64(half)+1))
	case model.JitterNone:
	}

	return delay
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
