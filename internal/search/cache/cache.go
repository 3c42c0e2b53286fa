// Package cache is the Redis-backed result cache for search queries.
// Concurrent identical misses are collapsed with singleflight so one
// ranking pass serves all of them. Redis calls go through a circuit
// breaker: when Redis is down, queries skip the cache immediately
// instead of waiting out connection timeouts. The cache is invalidated
// whenever a new snapshot is installed; stale hits across snapshots are
// otherwise possible because keys do not encode the snapshot identity.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/searchlite/searchlite/internal/search"
	"github.com/searchlite/searchlite/pkg/metrics"
	pkgredis "github.com/searchlite/searchlite/pkg/redis"
	"github.com/searchlite/searchlite/pkg/resilience"
)

const keyPrefix = "search:"

// QueryCache caches full search responses keyed on the normalised query
// and result count.
type QueryCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a QueryCache. m may be nil.
func New(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client:  client,
		ttl:     ttl,
		metrics: m,
		breaker: resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for (query, topK), if any. A missing
// key is an ordinary miss; a Redis failure counts against the circuit
// breaker so a down Redis stops being probed on every query.
func (c *QueryCache) Get(ctx context.Context, query string, topK int) (*search.Result, bool) {
	key := c.buildKey(query, topK)
	var data string
	found := false
	err := c.breaker.Execute(func() error {
		v, err := c.client.Get(ctx, key)
		if err != nil {
			if pkgredis.IsNilError(err) {
				return nil
			}
			return err
		}
		data = v
		found = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	var result search.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	return &result, true
}

// Set stores a result. Truncated results are never cached: a retry after
// the deadline pressure passes should get the full ranking.
func (c *QueryCache) Set(ctx context.Context, query string, topK int, result *search.Result) {
	if result.Truncated {
		return
	}
	key := c.buildKey(query, topK)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes and caches it,
// collapsing concurrent identical queries into one computation. The
// second return value reports whether the result came from cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	topK int,
	computeFn func() (*search.Result, error),
) (*search.Result, bool, error) {
	if result, ok := c.Get(ctx, query, topK); ok {
		return result, true, nil
	}
	key := c.buildKey(query, topK)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, query, topK); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, topK, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*search.Result), false, nil
}

// Invalidate drops every cached search result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counts since startup.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) buildKey(query string, topK int) string {
	raw := fmt.Sprintf("%s:k=%d", strings.ToLower(strings.TrimSpace(query)), topK)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
