// Package cache holds computed aggregates in Redis. Entries are keyed by a
// generation number; bumping the generation after any ledger write makes
// every earlier entry unreachable, and the TTL reclaims them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix     = "rackline:stats:"
	generationKey = keyPrefix + "generation"
)

// StatsCache is a generation-keyed JSON cache.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New returns a cache over client. A ttl of zero means one minute.
func New(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &StatsCache{client: client, ttl: ttl}
}

// Dial connects to the Redis server at addr and pings it.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*StatsCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, ttl), nil
}

// Close closes the Redis client.
func (c *StatsCache) Close() error {
	return c.client.Close()
}

func (c *StatsCache) generation(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func entryKey(gen int64, kind, id string) string {
	return fmt.Sprintf("%s%d:%s:%s", keyPrefix, gen, kind, id)
}

// Get decodes the cached value for kind/id into dest. It reports false on a
// miss. The returned generation is the one the lookup ran under; pass it to
// Set so a value computed across an Invalidate lands in a dead generation.
func (c *StatsCache) Get(ctx context.Context, kind, id string, dest any) (int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return 0, false, err
	}
	data, err := c.client.Get(ctx, entryKey(gen, kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gen, false, nil
	}
	if err != nil {
		return gen, false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return gen, false, fmt.Errorf("decode cached %s: %w", kind, err)
	}
	return gen, true, nil
}

// Set stores v for kind/id under generation gen.
func (c *StatsCache) Set(ctx context.Context, gen int64, kind, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	return c.client.Set(ctx, entryKey(gen, kind, id), data, c.ttl).Err()
}

// Invalidate advances the generation.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}
