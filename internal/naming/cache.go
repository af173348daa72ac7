package naming

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ttauveron/gcp-iam-watcher/internal/platform/metrics"
	"github.com/ttauveron/gcp-iam-watcher/pkg/platform/sentinel"
)

const redisKeyPrefix = "naming:"

// CachedResolver memoizes an inner Resolver. Entries live in-process for the
// configured TTL; when a Redis client is provided the cache is additionally
// shared across instances. A circuit breaker short-circuits inner lookups
// during outages so callers degrade to fallback naming without waiting.
//
// The zero value is not usable; construct with NewCachedResolver. The resolver
// is safe for reuse across sequential messages.
type CachedResolver struct {
	inner   Resolver
	ttl     time.Duration
	rdb     *redis.Client // nil when Redis is not configured
	breaker *CircuitBreaker
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	local map[string]cacheEntry
}

type cacheEntry struct {
	res     Resource
	expires time.Time
}

// NewCachedResolver wraps inner with memoization. rdb may be nil.
func NewCachedResolver(inner Resolver, ttl time.Duration, rdb *redis.Client, log *slog.Logger, m *metrics.Metrics) *CachedResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedResolver{
		inner:   inner,
		ttl:     ttl,
		rdb:     rdb,
		breaker: NewCircuitBreaker(5, time.Minute),
		log:     log,
		metrics: m,
		local:   make(map[string]cacheEntry),
	}
}

// Resolve returns the cached resource for ancestor, consulting Redis and then
// the inner resolver on a miss.
func (c *CachedResolver) Resolve(ctx context.Context, ancestor string) (Resource, error) {
	if res, ok := c.fromLocal(ancestor); ok {
		return res, nil
	}
	if res, ok := c.fromRedis(ctx, ancestor); ok {
		c.storeLocal(ancestor, res)
		return res, nil
	}

	if !c.breaker.Allow() {
		return Resource{}, fmt.Errorf("naming lookup for %s: %w", ancestor, sentinel.ErrUnavailable)
	}

	res, err := c.inner.Resolve(ctx, ancestor)
	if err != nil {
		c.breaker.RecordFailure()
		c.metrics.SetNamingBreakerOpen(c.breaker.IsOpen())
		return Resource{}, err
	}

	c.breaker.RecordSuccess()
	c.metrics.SetNamingBreakerOpen(false)
	c.storeLocal(ancestor, res)
	c.storeRedis(ctx, ancestor, res)
	return res, nil
}

func (c *CachedResolver) fromLocal(ancestor string) (Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[ancestor]
	if !ok || time.Now().After(entry.expires) {
		return Resource{}, false
	}
	return entry.res, true
}

func (c *CachedResolver) storeLocal(ancestor string, res Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[ancestor] = cacheEntry{res: res, expires: time.Now().Add(c.ttl)}
}

func (c *CachedResolver) fromRedis(ctx context.Context, ancestor string) (Resource, bool) {
	if c.rdb == nil {
		return Resource{}, false
	}
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+ancestor).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("naming cache read failed", "ancestor", ancestor, "error", err)
		}
		return Resource{}, false
	}
	var res Resource
	if err := json.Unmarshal(raw, &res); err != nil {
		c.log.Debug("naming cache entry corrupt, ignoring", "ancestor", ancestor, "error", err)
		return Resource{}, false
	}
	return res, true
}

func (c *CachedResolver) storeRedis(ctx context.Context, ancestor string, res Resource) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+ancestor, raw, c.ttl).Err(); err != nil {
		c.log.Debug("naming cache write failed", "ancestor", ancestor, "error", err)
	}
}
