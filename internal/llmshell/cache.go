package llmshell

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the fingerprint cache backing llmcache/{fingerprint}.
type Cache struct {
	rdb *redis.Client
}

// NewCache builds a Cache.
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func cacheKey(fingerprint string) string {
	return fmt.Sprintf("llmcache/%s", fingerprint)
}

// Get returns a non-expired cached Response, if any.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*Response, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch llm cache entry: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("unmarshal llm cache entry: %w", err)
	}
	return &resp, true, nil
}

// Put stores resp under fingerprint with the given TTL.
func (c *Cache) Put(ctx context.Context, fingerprint string, resp Response, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal llm cache entry: %w", err)
	}
	return c.rdb.Set(ctx, cacheKey(fingerprint), raw, ttl).Err()
}
