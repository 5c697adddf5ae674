package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathDotAndIndex(t *testing.T) {
	value := map[string]any{
		"user": map[string]any{
			"emails": []any{"a@example.com", "b@example.com"},
		},
	}

	got, err := ResolvePath(value, "$.user.emails.1")
	require.NoError(t, err)
	require.Equal(t, "b@example.com", got)
}

func TestResolvePathRoot(t *testing.T) {
	value := map[string]any{"a": 1}
	got, err := ResolvePath(value, "$")
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestResolvePathMissingFieldErrors(t *testing.T) {
	value := map[string]any{"a": 1}
	_, err := ResolvePath(value, "$.missing")
	require.Error(t, err)
}
