package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// New creates a cache from configuration.
// "memory" returns an LRU cache. "redis" returns a Redis cache, wrapped in a
// TwoPhaseCache with a local LRU in front when two-phase is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
		}
		return remote, nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a local L1 cache into a shared L2 cache.
// L1 entries live at most l1TTL so lookups refreshed on another node become
// visible here within that bound.
type TwoPhaseCache struct {
	local  *LRUCache
	remote domain.Cache
	l1TTL  time.Duration
}

// NewTwoPhaseCache wraps remote with local. A zero l1TTL defaults to five minutes.
func NewTwoPhaseCache(local *LRUCache, remote domain.Cache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// ttlReader is implemented by caches that report the time left on an entry.
type ttlReader interface {
	TTL(ctx context.Context, namespace string, key string) (time.Duration, error)
}

// Get checks L1 first, then L2. An L2 hit populates L1 for no longer than
// the L2 entry has left.
func (c *TwoPhaseCache) Get(ctx context.Context, namespace string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		if ttl := c.backfillTTL(ctx, namespace, key); ttl > 0 {
			_ = c.local.Set(ctx, namespace, key, val, ttl)
		}
	}
	return val, nil
}

// backfillTTL bounds the L1 copy of an L2 entry. Zero skips the copy: the
// entry expired in between or its remaining time could not be read.
func (c *TwoPhaseCache) backfillTTL(ctx context.Context, namespace string, key string) time.Duration {
	r, ok := c.remote.(ttlReader)
	if !ok {
		return c.l1TTL
	}
	remaining, err := r.TTL(ctx, namespace, key)
	if err != nil {
		return 0
	}
	if remaining < 0 {
		return c.l1TTL
	}
	return min(remaining, c.l1TTL)
}

// Set writes to both layers. L1 keeps the shorter of ttl and its own bound.
func (c *TwoPhaseCache) Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error {
	l1TTL := min(ttl, c.l1TTL)
	if err := c.local.Set(ctx, namespace, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, namespace, key, value, ttl)
}

// Delete removes from both layers.
func (c *TwoPhaseCache) Delete(ctx context.Context, namespace string, key string) error {
	if err := c.local.Delete(ctx, namespace, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, namespace, key)
}

// Ping checks both layers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both layers.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}

func requireNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	return nil
}
