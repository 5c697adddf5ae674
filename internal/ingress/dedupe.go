package ingress

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedupe is a bounded, recency-ordered set of seen dedupe hashes, backed by
// a Redis sorted set scored by arrival time and trimmed to a fixed size.
// Webhook and polling events are kept in separate namespaces, matching the
// source's behavior — the source hashes them separately and nothing in the
// platform forces a merge.
type Dedupe struct {
	rdb    *redis.Client
	window int
}

// NewDedupe builds a Dedupe bounded to window entries per namespace.
func NewDedupe(rdb *redis.Client, window int) *Dedupe {
	return &Dedupe{rdb: rdb, window: window}
}

// Namespace identifies which dedupe set a hash belongs to.
type Namespace string

const (
	NamespaceWebhook Namespace = "webhook"
	NamespacePolling Namespace = "poll"
)

func (d *Dedupe) key(ns Namespace, shard string) string {
	return fmt.Sprintf("seen:%s:%s", ns, shard)
}

// SeenOrRecord reports whether hash was already recorded in ns/shard; if
// not, it records it and trims the set to the configured window.
func (d *Dedupe) SeenOrRecord(ctx context.Context, ns Namespace, shard, hash string) (bool, error) {
	key := d.key(ns, shard)

	added, err := d.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: hash,
	}).Result()
	if err != nil {
		return false, fmt.Errorf("record dedupe hash: %w", err)
	}

	if added == 0 {
		// ZADD with default semantics returns 0 when the member already
		// existed (score is still updated) — treat that as a duplicate.
		return true, nil
	}

	if err := d.rdb.ZRemRangeByRank(ctx, key, 0, int64(-d.window-1)).Err(); err != nil {
		return false, fmt.Errorf("trim dedupe set: %w", err)
	}

	return false, nil
}

// Hash computes dedupeHash = H(webhookId, body). Deliberately excludes
// arrival time: two real deliveries of the identical raw body (a vendor's
// own retry) must hash identically, or dedupe can never fire.
func Hash(webhookID string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(webhookID))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// PollHash computes H(triggerId, item[dedupeKey]) per §4.3.
func PollHash(triggerID, dedupeKeyValue string) string {
	h := sha256.New()
	h.Write([]byte(triggerID))
	h.Write([]byte(dedupeKeyValue))
	return hex.EncodeToString(h.Sum(nil))
}
