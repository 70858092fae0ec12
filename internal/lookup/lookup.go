// Package lookup provides the external collaborators used by lookup rules:
// read-through caching wrappers backed by domain.Cache and implementations
// over the repository.
package lookup

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Namespace is the cache namespace shared by every lookup entry.
const Namespace = "lookup"

// Observer receives cache hit and miss notifications per lookup kind.
type Observer interface {
	LookupCache(kind string, hit bool)
}

// TTLs holds the cache lifetime of each lookup family.
type TTLs struct {
	Registry   time.Duration
	Financials time.Duration
	Contracts  time.Duration
}

// TTLsFromConfig reads lookup lifetimes from the scoring configuration.
func TTLsFromConfig(cfg domain.ScoringConfig) TTLs {
	return TTLs{
		Registry:   cfg.RegistryTTL,
		Financials: cfg.FinancialsTTL,
		Contracts:  cfg.ContractsTTL,
	}
}

// Option configures the caching wrappers.
type Option func(*readThrough)

// WithObserver reports cache hits and misses.
func WithObserver(o Observer) Option {
	return func(rt *readThrough) { rt.observer = o }
}

// WithLogger sets the logger used for cache backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(rt *readThrough) { rt.logger = l }
}

// Cached wraps every non-nil collaborator in l with read-through caching.
func Cached(l domain.Lookups, cache domain.Cache, ttls TTLs, opts ...Option) domain.Lookups {
	out := domain.Lookups{}
	if l.Registry != nil {
		out.Registry = NewCachedRegistry(l.Registry, cache, ttls.Registry, opts...)
	}
	if l.Financials != nil {
		out.Financials = NewCachedFinancials(l.Financials, cache, ttls.Financials, opts...)
	}
	if l.Contracts != nil {
		out.Contracts = NewCachedContracts(l.Contracts, cache, ttls.Contracts, opts...)
	}
	return out
}

// readThrough is the cache plumbing shared by the wrappers.
// Backend failures degrade to a direct call; they never fail a lookup.
type readThrough struct {
	cache    domain.Cache
	ttl      time.Duration
	observer Observer
	logger   *slog.Logger
}

func newReadThrough(cache domain.Cache, ttl time.Duration, opts []Option) readThrough {
	rt := readThrough{cache: cache, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		opt(&rt)
	}
	return rt
}

// fetch returns the cached value under key or calls load and caches its result.
// Concurrent misses both load; the later Set wins. Load errors are not cached.
func fetch[T any](ctx context.Context, rt readThrough, kind, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	hit := false
	if data := rt.read(ctx, key); data != nil {
		if err := json.Unmarshal(data, &v); err != nil {
			rt.logger.Warn("discarding malformed lookup cache entry", "key", key, "error", err)
		} else {
			hit = true
		}
	}
	if rt.observer != nil {
		rt.observer.LookupCache(kind, hit)
	}
	if hit {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	rt.set(ctx, key, v)
	return v, nil
}

func (rt readThrough) read(ctx context.Context, key string) []byte {
	data, err := rt.cache.Get(ctx, Namespace, key)
	if err != nil {
		rt.logger.Warn("lookup cache read failed", "key", key, "error", err)
		return nil
	}
	return data
}

func (rt readThrough) set(ctx context.Context, key string, v any) {
	if rt.ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		rt.logger.Warn("lookup cache encode failed", "key", key, "error", err)
		return
	}
	if err := rt.cache.Set(ctx, Namespace, key, data, rt.ttl); err != nil {
		rt.logger.Warn("lookup cache write failed", "key", key, "error", err)
	}
}
