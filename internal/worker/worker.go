// Package worker scores submitted requests asynchronously from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/underwriter/internal/bus"
	"github.com/opensource-finance/underwriter/internal/domain"
)

// Scorer checks a request against every configured bank.
type Scorer interface {
	CheckAll(ctx context.Context, req *domain.Request, useCommon *bool) (*domain.Evaluation, error)
}

// Reloader reloads rule settings.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Worker consumes submitted requests and publishes their decisions.
type Worker struct {
	bus    domain.EventBus
	scorer Scorer
	logger *slog.Logger

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Reloader, when set, is invoked on settings changes published by other
	// instances.
	Reloader Reloader

	// InstanceID identifies this process in settings notifications.
	InstanceID string

	// QueueGroup shares submitted requests between instances. Defaults to
	// DefaultQueueGroup.
	QueueGroup string
}

// DefaultQueueGroup is the queue group scoring workers join.
const DefaultQueueGroup = "underwriter-workers"

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, scorer Scorer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    eventBus,
		scorer: scorer,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start joins the submitted-request queue group and, with cfg.Reloader,
// subscribes to settings notifications. Notifications fan out to every
// instance while each request is scored once.
func (w *Worker) Start(cfg Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	queue := cfg.QueueGroup
	if queue == "" {
		queue = DefaultQueueGroup
	}
	sub, err := w.bus.QueueSubscribe(w.ctx, domain.TopicRequestSubmitted, queue, w.processRequest)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicRequestSubmitted, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	if cfg.Reloader != nil {
		sub, err := w.bus.Subscribe(w.ctx, domain.TopicSettingsChanged, func(ctx context.Context, msg *domain.Message) error {
			return w.settingsChanged(ctx, cfg, msg)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", domain.TopicSettingsChanged, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	w.logger.Info("worker started", "subscriptions", len(w.subscriptions))
	return nil
}

// processRequest scores one submitted request. Decisions go to
// TopicRequestScored, one TopicBankEligible event per allowed bank, and to
// the reply topic when the message was sent with Request. A request that
// cannot be scored is answered on the reply topic with domain.ScoringFailed.
func (w *Worker) processRequest(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var submitted domain.SubmittedRequest
	if err := json.Unmarshal(msg.Payload, &submitted); err != nil {
		err = fmt.Errorf("parse submitted request %s: %w", msg.ID, err)
		w.replyFailure(ctx, msg, "", err)
		return err
	}
	if submitted.Request == nil {
		err := fmt.Errorf("submitted message %s has no request", msg.ID)
		w.replyFailure(ctx, msg, "", err)
		return err
	}

	eval, err := w.scorer.CheckAll(ctx, submitted.Request, submitted.UseCommonRules)
	if err != nil {
		w.logger.Error("request scoring failed",
			"request_id", submitted.Request.ID,
			"message_id", msg.ID,
			"error", err,
		)
		w.replyFailure(ctx, msg, submitted.Request.ID, err)
		return err
	}

	payload, err := json.Marshal(eval.ToResponse())
	if err != nil {
		return fmt.Errorf("encode evaluation: %w", err)
	}

	if reply := bus.ReplyTopic(msg); reply != "" {
		if err := w.bus.Publish(ctx, reply, payload); err != nil {
			w.logger.Error("failed to publish reply", "request_id", eval.RequestID, "error", err)
		}
	}

	if err := w.bus.Publish(ctx, domain.TopicRequestScored, payload); err != nil {
		w.logger.Error("failed to publish decision", "request_id", eval.RequestID, "error", err)
	}

	for _, code := range eval.Allowed {
		event, _ := json.Marshal(domain.BankEligible{
			EvaluationID: eval.ID,
			RequestID:    eval.RequestID,
			BankCode:     code,
		})
		if err := w.bus.Publish(ctx, domain.TopicBankEligible, event); err != nil {
			w.logger.Error("failed to publish eligible bank",
				"request_id", eval.RequestID,
				"bank_code", code,
				"error", err,
			)
		}
	}

	w.logger.Info("submitted request processed",
		"request_id", eval.RequestID,
		"evaluation_id", eval.ID,
		"allowed", len(eval.Allowed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) replyFailure(ctx context.Context, msg *domain.Message, requestID string, cause error) {
	reply := bus.ReplyTopic(msg)
	if reply == "" {
		return
	}
	payload, err := json.Marshal(domain.ScoringFailed{RequestID: requestID, Error: cause.Error()})
	if err != nil {
		return
	}
	if err := w.bus.Publish(ctx, reply, payload); err != nil {
		w.logger.Error("failed to publish failure reply", "request_id", requestID, "error", err)
	}
}

func (w *Worker) settingsChanged(ctx context.Context, cfg Config, msg *domain.Message) error {
	var event domain.SettingsChanged
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("parse settings notification: %w", err)
	}
	if event.Origin != "" && event.Origin == cfg.InstanceID {
		return nil
	}

	w.logger.Info("settings changed elsewhere, reloading", "origin", event.Origin)
	return cfg.Reloader.Reload(ctx)
}

// Stop unsubscribes and cancels in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.logger.Info("worker stopped")
	return nil
}

// Stats reports the worker's subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
