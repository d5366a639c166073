package erp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const lookupKeyPrefix = "serial:lookup:"

// LookupCache keeps recent serial lookup results in Redis so repeated
// scans of the same serial do not hit the external system again.
type LookupCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLookupCache instantiates the cache helper.
func NewLookupCache(client *redis.Client, ttl time.Duration) *LookupCache {
	return &LookupCache{client: client, ttl: ttl}
}

// Get returns cached lookups for the given serials. Serials without a
// cached entry are simply absent from the result.
func (c *LookupCache) Get(ctx context.Context, serials []string) (map[string]SerialLookup, error) {
	if c == nil || c.client == nil || len(serials) == 0 {
		return map[string]SerialLookup{}, nil
	}
	keys := make([]string, len(serials))
	for i, serial := range serials {
		keys[i] = lookupKeyPrefix + serial
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]SerialLookup{}, nil
		}
		return nil, err
	}
	results := make(map[string]SerialLookup)
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var lookup SerialLookup
		if err := json.Unmarshal([]byte(raw), &lookup); err != nil {
			continue
		}
		results[serials[i]] = lookup
	}
	return results, nil
}

// Put stores lookup results with the configured TTL.
func (c *LookupCache) Put(ctx context.Context, lookups map[string]SerialLookup) error {
	if c == nil || c.client == nil || len(lookups) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for serial, lookup := range lookups {
		raw, err := json.Marshal(lookup)
		if err != nil {
			return err
		}
		pipe.Set(ctx, lookupKeyPrefix+serial, raw, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Purge removes all cached lookups. Used by the cleanup cron.
func (c *LookupCache) Purge(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	var removed int64
	iter := c.client.Scan(ctx, 0, lookupKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}
