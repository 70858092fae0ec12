// Underwriter - Rule-based bank eligibility scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/opensource-finance/underwriter/internal/api"
	"github.com/opensource-finance/underwriter/internal/bus"
	"github.com/opensource-finance/underwriter/internal/cache"
	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/lookup"
	"github.com/opensource-finance/underwriter/internal/metrics"
	"github.com/opensource-finance/underwriter/internal/repository"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/settings"
	"github.com/opensource-finance/underwriter/internal/telemetry"
	"github.com/opensource-finance/underwriter/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := domain.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting underwriter",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"settings_source", cfg.Settings.Source,
		"strict", cfg.Scoring.Strict,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("underwriter failed", "error", err)
		os.Exit(1)
	}
	slog.Info("underwriter shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config, logger *slog.Logger) error {
	tel, err := telemetry.Init(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	registry := rules.NewDefaultRegistry()
	evaluator := rules.NewEvaluator(registry,
		rules.WithLogger(logger),
		rules.WithStrict(cfg.Scoring.Strict),
		rules.WithMaxDepth(cfg.Scoring.MaxDepth),
		rules.WithRecorder(m),
		rules.WithTracer(tel.Tracer),
	)

	lookups := lookup.Cached(lookup.FromRepository(repo), cacheImpl, lookup.TTLsFromConfig(cfg.Scoring),
		lookup.WithObserver(m),
		lookup.WithLogger(logger),
	)

	instanceID := uuid.New().String()
	source, err := newSettingsSource(cfg.Settings, repo)
	if err != nil {
		return err
	}
	store := settings.NewStore(source, registry,
		settings.WithLogger(logger),
		settings.WithMaxDepth(evaluator.MaxDepth()),
		settings.WithReloadObserver(m.SettingsReloaded),
		settings.WithOnWrite(func(snap *settings.Snapshot) {
			notifySettingsChanged(busImpl, instanceID, snap)
		}),
	)
	if err := store.Reload(ctx); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	slog.Info("settings loaded", "source", source.Name(), "banks", len(store.Snapshot().Banks))

	if cfg.Settings.Watch {
		fs, ok := source.(*settings.FileSource)
		if !ok {
			return fmt.Errorf("settings watch requires the file source")
		}
		watcher, err := settings.NewWatcher(store, fs.Dir(), settings.DefaultDebounce, logger)
		if err != nil {
			return fmt.Errorf("start settings watcher: %w", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("settings watcher stopped", "error", err)
			}
		}()
	}

	scheduler := settings.NewScheduler(store, cfg.Settings.ReloadSchedule, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start reload scheduler: %w", err)
	}
	defer scheduler.Stop()

	scorer := decision.NewService(evaluator, store, lookups,
		decision.WithStore(repo),
		decision.WithObserver(m),
		decision.WithLogger(logger),
	)

	// An in-process bus has no other consumer, so it always gets a worker.
	var asyncWorker *worker.Worker
	if runWorker(cfg) {
		asyncWorker = worker.NewWorker(busImpl, scorer, logger)
		if err := asyncWorker.Start(worker.Config{Reloader: store, InstanceID: instanceID}); err != nil {
			return fmt.Errorf("start async worker: %w", err)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Scorer:   scorer,
		Settings: store,
		Registry: registry,
		Metrics:  m,
		Logger:   logger,
		Version:  Version,
		Workers:  asyncWorker != nil,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("underwriter is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"rule_classes", registry.Len(),
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

func runWorker(cfg *domain.Config) bool {
	switch {
	case cfg.EventBus.Type == "" || cfg.EventBus.Type == "channel":
		return true
	case cfg.Tier == domain.TierPro:
		return true
	default:
		return os.Getenv("UNDERWRITER_ASYNC_WORKER") == "true"
	}
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newSettingsSource(cfg domain.SettingsConfig, repo domain.Repository) (settings.Source, error) {
	switch cfg.Source {
	case "repository", "":
		return settings.NewRepositorySource(repo), nil
	case "file":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("settings dir is required for the file source")
		}
		return settings.NewFileSource(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("unsupported settings source: %s", cfg.Source)
	}
}

// notifySettingsChanged tells other instances to reload.
func notifySettingsChanged(b domain.EventBus, instanceID string, snap *settings.Snapshot) {
	payload, err := json.Marshal(domain.SettingsChanged{
		Origin:   instanceID,
		Banks:    len(snap.Banks),
		LoadedAt: snap.LoadedAt,
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Publish(ctx, domain.TopicSettingsChanged, payload); err != nil {
		slog.Warn("failed to publish settings change", "error", err)
	}
}
