package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDedupeSeenOrRecord(t *testing.T) {
	rdb := newMiniRedis(t)
	dedupe := NewDedupe(rdb, 1000)
	ctx := context.Background()

	hash := Hash("wh1", []byte(`{"a":1}`))

	dup, err := dedupe.SeenOrRecord(ctx, NamespaceWebhook, "gmail", hash)
	require.NoError(t, err)
	require.False(t, dup)

	dup, err = dedupe.SeenOrRecord(ctx, NamespaceWebhook, "gmail", hash)
	require.NoError(t, err)
	require.True(t, dup)
}

// TestHashIsStableAcrossArrivalTime asserts two independent Hash calls for
// the identical raw body (a vendor's retried delivery, arriving at a later
// wall-clock time) collide, so SeenOrRecord can actually catch the second
// one as a duplicate.
func TestHashIsStableAcrossArrivalTime(t *testing.T) {
	body := []byte(`{"a":1}`)
	first := Hash("wh1", body)
	time.Sleep(time.Millisecond)
	second := Hash("wh1", body)
	require.Equal(t, first, second)

	rdb := newMiniRedis(t)
	dedupe := NewDedupe(rdb, 1000)
	ctx := context.Background()

	dup, err := dedupe.SeenOrRecord(ctx, NamespaceWebhook, "gmail", first)
	require.NoError(t, err)
	require.False(t, dup)

	dup, err = dedupe.SeenOrRecord(ctx, NamespaceWebhook, "gmail", second)
	require.NoError(t, err)
	require.True(t, dup)
}

func TestDedupeNamespacesAreSeparate(t *testing.T) {
	rdb := newMiniRedis(t)
	dedupe := NewDedupe(rdb, 1000)
	ctx := context.Background()

	hash := "shared-hash"

	dup, err := dedupe.SeenOrRecord(ctx, NamespaceWebhook, "shard", hash)
	require.NoError(t, err)
	require.False(t, dup)

	// Same hash in the polling namespace is a distinct key space.
	dup, err = dedupe.SeenOrRecord(ctx, NamespacePolling, "shard", hash)
	require.NoError(t, err)
	require.False(t, dup)
}
