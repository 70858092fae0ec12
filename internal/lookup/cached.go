package lookup

import (
	"context"
	"strconv"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Lookup kinds reported to Observer besides the registry kinds.
const (
	KindFinancials = "financials"
	KindContracts  = "contracts"
)

// CachedRegistry caches registry verdicts under "<kind>:<subject>".
type CachedRegistry struct {
	next domain.RegistryChecker
	rt   readThrough
}

// NewCachedRegistry wraps next. A non-positive ttl disables caching writes.
func NewCachedRegistry(next domain.RegistryChecker, cache domain.Cache, ttl time.Duration, opts ...Option) *CachedRegistry {
	return &CachedRegistry{next: next, rt: newReadThrough(cache, ttl, opts)}
}

func (c *CachedRegistry) Check(ctx context.Context, kind domain.RegistryKind, subject string) (*domain.RegistryVerdict, error) {
	key := string(kind) + ":" + subject
	return fetch(ctx, c.rt, string(kind), key, func(ctx context.Context) (*domain.RegistryVerdict, error) {
		return c.next.Check(ctx, kind, subject)
	})
}

// CachedFinancials caches statement lines under "financials:<inn>:<code>".
// Unreported lines are cached too.
type CachedFinancials struct {
	next domain.FinancialStatements
	rt   readThrough
}

type quarterEntry struct {
	Value float64 `json:"value"`
	Found bool    `json:"found"`
}

// NewCachedFinancials wraps next.
func NewCachedFinancials(next domain.FinancialStatements, cache domain.Cache, ttl time.Duration, opts ...Option) *CachedFinancials {
	return &CachedFinancials{next: next, rt: newReadThrough(cache, ttl, opts)}
}

func (c *CachedFinancials) QuarterValue(ctx context.Context, inn string, code int) (float64, bool, error) {
	key := KindFinancials + ":" + inn + ":" + strconv.Itoa(code)
	e, err := fetch(ctx, c.rt, KindFinancials, key, func(ctx context.Context) (quarterEntry, error) {
		v, found, err := c.next.QuarterValue(ctx, inn, code)
		return quarterEntry{Value: v, Found: found}, err
	})
	if err != nil {
		return 0, false, err
	}
	return e.Value, e.Found, nil
}

// CachedContracts caches contract history under "contracts:<inn>".
type CachedContracts struct {
	next domain.ContractHistory
	rt   readThrough
}

// NewCachedContracts wraps next.
func NewCachedContracts(next domain.ContractHistory, cache domain.Cache, ttl time.Duration, opts ...Option) *CachedContracts {
	return &CachedContracts{next: next, rt: newReadThrough(cache, ttl, opts)}
}

func (c *CachedContracts) Contracts(ctx context.Context, inn string) ([]domain.Contract, error) {
	return fetch(ctx, c.rt, KindContracts, KindContracts+":"+inn, func(ctx context.Context) ([]domain.Contract, error) {
		return c.next.Contracts(ctx, inn)
	})
}
