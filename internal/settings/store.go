// Package settings holds the live scoring configuration: the global kill
// switch with the common rule list and every bank's own settings. Snapshots
// are loaded from a Source, validated against the rule registry and swapped
// atomically; readers never see a partially loaded configuration.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
)

var (
	// ErrReadOnly is returned when writing through a source that cannot persist.
	ErrReadOnly = errors.New("settings source is read-only")

	// ErrUnknownBank is returned for bank codes absent from the snapshot.
	ErrUnknownBank = errors.New("unknown bank")
)

// Snapshot is an immutable view of the scoring configuration.
type Snapshot struct {
	Global   domain.GlobalSettings
	Banks    map[string]domain.BankSettings
	LoadedAt time.Time
}

// Bank returns the settings of one bank.
func (s *Snapshot) Bank(code string) (domain.BankSettings, bool) {
	b, ok := s.Banks[code]
	return b, ok
}

// BankCodes returns the configured bank codes in sorted order.
func (s *Snapshot) BankCodes() []string {
	codes := make([]string, 0, len(s.Banks))
	for code := range s.Banks {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// DefaultGlobal is used until global settings are first saved.
func DefaultGlobal() domain.GlobalSettings {
	return domain.GlobalSettings{Enabled: true, CommonRules: []domain.RuleConfig{}}
}

// Source loads scoring configuration.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
	Name() string
}

// Writer is implemented by sources that can persist changes.
type Writer interface {
	SaveBank(ctx context.Context, s *domain.BankSettings) error
	SaveGlobal(ctx context.Context, s *domain.GlobalSettings) error
	DeleteBank(ctx context.Context, code string) error
}

// Store serves the current snapshot and reloads it from its source.
type Store struct {
	source   Source
	registry *rules.Registry
	maxDepth int
	logger   *slog.Logger
	onReload []func(*Snapshot)
	onWrite  []func(*Snapshot)
	observe  func(error)

	reloadMu sync.Mutex
	mu       sync.RWMutex
	snap     *Snapshot
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithOnReload registers a callback run after every successful swap.
func WithOnReload(fn func(*Snapshot)) StoreOption {
	return func(s *Store) { s.onReload = append(s.onReload, fn) }
}

// WithOnWrite registers a callback run after a write through the store has
// been persisted and reloaded. Reloads triggered elsewhere do not run it.
func WithOnWrite(fn func(*Snapshot)) StoreOption {
	return func(s *Store) { s.onWrite = append(s.onWrite, fn) }
}

// WithReloadObserver receives the outcome of every reload attempt.
func WithReloadObserver(fn func(error)) StoreOption {
	return func(s *Store) { s.observe = fn }
}

// WithMaxDepth sets the nesting limit rule lists are validated against. It
// should match the evaluator's limit.
func WithMaxDepth(depth int) StoreOption {
	return func(s *Store) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// NewStore creates a store with an empty snapshot. Call Reload to load.
func NewStore(source Source, registry *rules.Registry, opts ...StoreOption) *Store {
	s := &Store{
		source:   source,
		registry: registry,
		maxDepth: domain.DefaultMaxDepth,
		logger:   slog.Default(),
		snap:     &Snapshot{Global: DefaultGlobal(), Banks: map[string]domain.BankSettings{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current configuration. The result must not be modified.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Source returns the store's source.
func (s *Store) Source() Source { return s.source }

// Reload loads, validates and swaps in a new snapshot. On any error the
// current snapshot stays in place.
func (s *Store) Reload(ctx context.Context) error {
	err := s.reload(ctx)
	if s.observe != nil {
		s.observe(err)
	}
	return err
}

func (s *Store) reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	snap, err := s.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings from %s: %w", s.source.Name(), err)
	}
	if err := Validate(s.registry, snap, s.maxDepth); err != nil {
		return fmt.Errorf("invalid settings from %s: %w", s.source.Name(), err)
	}
	if snap.LoadedAt.IsZero() {
		snap.LoadedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.logger.Info("settings reloaded",
		"source", s.source.Name(),
		"banks", len(snap.Banks),
		"common_rules", len(snap.Global.CommonRules),
		"global_enabled", snap.Global.Enabled,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	for _, fn := range s.onReload {
		fn(snap)
	}
	return nil
}

// SaveBank validates and persists a bank's settings, then reloads.
func (s *Store) SaveBank(ctx context.Context, b *domain.BankSettings) error {
	w, ok := s.source.(Writer)
	if !ok {
		return ErrReadOnly
	}
	if err := s.ValidateRules(b.Rules); err != nil {
		return fmt.Errorf("bank %s: %w", b.Code, err)
	}
	if err := w.SaveBank(ctx, b); err != nil {
		return err
	}
	return s.written(ctx)
}

// DeleteBank removes a bank's settings, then reloads.
func (s *Store) DeleteBank(ctx context.Context, code string) error {
	w, ok := s.source.(Writer)
	if !ok {
		return ErrReadOnly
	}
	if _, ok := s.Snapshot().Bank(code); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBank, code)
	}
	if err := w.DeleteBank(ctx, code); err != nil {
		return err
	}
	return s.written(ctx)
}

// SaveGlobal validates and persists the global settings, then reloads.
func (s *Store) SaveGlobal(ctx context.Context, g *domain.GlobalSettings) error {
	w, ok := s.source.(Writer)
	if !ok {
		return ErrReadOnly
	}
	if err := s.ValidateRules(g.CommonRules); err != nil {
		return fmt.Errorf("common rules: %w", err)
	}
	if err := w.SaveGlobal(ctx, g); err != nil {
		return err
	}
	return s.written(ctx)
}

// ValidateRules checks one rule list with the store's nesting limit.
func (s *Store) ValidateRules(cfgs []domain.RuleConfig) error {
	return s.registry.ValidateDepth(cfgs, s.maxDepth)
}

// Validate checks every rule list of snap against registry. Errors carry the
// path of the offending rule, e.g. "bank alfa[2].then_conditionals[0]".
func Validate(registry *rules.Registry, snap *Snapshot, maxDepth int) error {
	if err := registry.ValidateDepth(snap.Global.CommonRules, maxDepth); err != nil {
		return fmt.Errorf("common rules%w", err)
	}
	for _, code := range snap.BankCodes() {
		if err := registry.ValidateDepth(snap.Banks[code].Rules, maxDepth); err != nil {
			return fmt.Errorf("bank %s%w", code, err)
		}
	}
	return nil
}

func (s *Store) written(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	snap := s.Snapshot()
	for _, fn := range s.onWrite {
		fn(snap)
	}
	return nil
}
