package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowgrid/platform/internal/platform/errs"
	"github.com/flowgrid/platform/internal/runtime/model"
)

func TestClassifyHTTPStatuses(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{408, true}, {425, true}, {429, true},
		{500, true}, {503, true},
		{400, false}, {404, false}, {422, false},
	}
	for _, c := range cases {
		got := Classify(nil, c.status, nil)
		require.Equal(t, c.retryable, got.Retryable, "status %d", c.status)
	}
}

func TestClassifyErrorKinds(t *testing.T) {
	require.True(t, Classify(errs.New(errs.TransientTransportError, "boom"), 0, nil).Retryable)
	require.True(t, Classify(errs.New(errs.TimeoutError, "boom"), 0, nil).Retryable)
	require.False(t, Classify(errs.New(errs.SignatureError, "boom"), 0, nil).Retryable)
	require.False(t, Classify(errs.New(errs.SchemaValidationFailed, "boom"), 0, nil).Retryable)
}

func TestRetryAfterHonoredVerbatim(t *testing.T) {
	retryAfter := 7 * time.Second
	class := Classify(nil, 429, &retryAfter)
	policy := model.DefaultRetryPolicy()

	delay := NextBackoff(policy, 1, class.RetryAfter)
	require.Equal(t, 7*time.Second, delay)
}

func TestDecideMovesToDLQAfterMaxAttempts(t *testing.T) {
	policy := model.DefaultRetryPolicy()
	class := Classify(nil, 500, nil)

	outcome := Decide(policy, policy.MaxAttempts, class)
	require.True(t, outcome.MoveToDLQ)
	require.False(t, outcome.ScheduleRetry)
}

func TestDecideSchedulesRetryUnderMaxAttempts(t *testing.T) {
	policy := model.DefaultRetryPolicy()
	class := Classify(nil, 500, nil)

	outcome := Decide(policy, 1, class)
	require.True(t, outcome.ScheduleRetry)
	require.False(t, outcome.MoveToDLQ)
	require.Greater(t, outcome.Delay, time.Duration(0))
}

func TestDecideTerminalErrorSkipsRetry(t *testing.T) {
	policy := model.DefaultRetryPolicy()
	class := Classify(errs.New(errs.ValidationError, "bad graph"), 0, nil)

	outcome := Decide(policy, 1, class)
	require.True(t, outcome.MoveToDLQ)
}
