// Package cache memoizes list counts. Entries live in redis when a client
// is configured, so every instance shares them, and in process memory
// otherwise. A count may read any number of tables, so a write anywhere
// drops every entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ResourceAPI/internal/logger"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "count:"
	sweepFreq = time.Minute
)

type entry struct {
	value     int64
	expiresAt time.Time
}

// Counts caches COUNT results by statement. A nil *Counts
// never caches.
type Counts struct {
	rdb *redis.Client
	ttl time.Duration

	mu        sync.Mutex
	items     map[string]entry
	lastSweep time.Time
	now       func() time.Time
}

// New returns nil when ttl is not positive. rdb may be nil.
func New(rdb *redis.Client, ttl time.Duration) *Counts {
	if ttl <= 0 {
		return nil
	}
	return &Counts{
		rdb:   rdb,
		ttl:   ttl,
		items: make(map[string]entry),
		now:   time.Now,
	}
}

// Key derives the cache key of a count statement.
func Key(sql string, args []any) (string, error) {
	data, err := canonicalJSON(map[string]any{"sql": sql, "args": args})
	if err != nil {
		return "", fmt.Errorf("count cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return keyPrefix + hex.EncodeToString(sum[:]), nil
}

// GetOrCount returns the cached count under key or runs count and stores its result.
func (c *Counts) GetOrCount(ctx context.Context, key string, count func() (int64, error)) (int64, error) {
	if c == nil {
		return count()
	}
	if c.rdb == nil {
		if n, ok := c.getLocal(key); ok {
			return n, nil
		}
	} else if n, ok := c.getRedis(ctx, key); ok {
		return n, nil
	}

	n, err := count()
	if err != nil {
		return 0, err
	}
	if c.rdb == nil {
		c.setLocal(key, n)
		return n, nil
	}
	if err := c.rdb.Set(ctx, key, n, c.ttl).Err(); err != nil {
		logger.Warn("count_cache_store_failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
	return n, nil
}

// Flush drops every cached count.
func (c *Counts) Flush(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.rdb == nil {
		c.mu.Lock()
		clear(c.items)
		c.mu.Unlock()
		return nil
	}
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan error: %w", err)
	}
	return nil
}

func (c *Counts) getLocal(key string) (int64, bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeSweepLocked(now)
	e, ok := c.items[key]
	if !ok {
		return 0, false
	}
	if now.After(e.expiresAt) {
		delete(c.items, key)
		return 0, false
	}
	return e.value, true
}

func (c *Counts) setLocal(key string, n int64) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeSweepLocked(now)
	c.items[key] = entry{value: n, expiresAt: now.Add(c.ttl)}
}

func (c *Counts) maybeSweepLocked(now time.Time) {
	if !c.lastSweep.IsZero() && now.Sub(c.lastSweep) < sweepFreq {
		return
	}
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}
	c.lastSweep = now
}

func (c *Counts) getRedis(ctx context.Context, key string) (int64, bool) {
	if c.rdb == nil {
		return 0, false
	}
	s, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("count_cache_read_failed", map[string]any{
				"key":   key,
				"error": err.Error(),
			})
		}
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		logger.Warn("count_cache_invalid_value", map[string]any{
			"key":   key,
			"value": s,
		})
		return 0, false
	}
	return n, true
}
