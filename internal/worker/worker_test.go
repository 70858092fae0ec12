package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/underwriter/internal/bus"
	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/settings"
)

type staticSettings struct{ snap *settings.Snapshot }

func (s staticSettings) Snapshot() *settings.Snapshot { return s.snap }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newScorer() *decision.Service {
	snap := &settings.Snapshot{
		Global: domain.GlobalSettings{Enabled: true},
		Banks: map[string]domain.BankSettings{
			"alfa": {Code: "alfa", Enabled: true, Rules: []domain.RuleConfig{
				domain.NewRuleConfig("FieldEqualScoring", map[string]any{"field": "request.interval", "operation": "<=", "value": 1140}),
			}},
			"sber": {Code: "sber", Enabled: true, Rules: []domain.RuleConfig{
				domain.NewRuleConfig("FieldEqualScoring", map[string]any{"field": "request.interval", "operation": "<=", "value": 365}),
			}},
		},
	}
	evaluator := rules.NewEvaluator(rules.NewDefaultRegistry(), rules.WithLogger(quietLogger()))
	return decision.NewService(evaluator, staticSettings{snap}, domain.Lookups{}, decision.WithLogger(quietLogger()))
}

func submit(t *testing.T, b domain.EventBus, req *domain.Request) {
	t.Helper()
	payload, _ := json.Marshal(domain.SubmittedRequest{Request: req})
	if err := b.Publish(context.Background(), domain.TopicRequestSubmitted, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestWorker_StartAndStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, newScorer(), quietLogger())
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicRequestSubmitted {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("stop: %v", err)
	}
	if w.GetStats().SubscriptionCount != 0 {
		t.Error("expected no subscriptions after stop")
	}
}

func TestWorker_ProcessRequest(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, newScorer(), quietLogger())
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	ctx := context.Background()
	scored := make(chan domain.EvaluationResponse, 1)
	eventBus.Subscribe(ctx, domain.TopicRequestScored, func(ctx context.Context, msg *domain.Message) error {
		var resp domain.EvaluationResponse
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			return err
		}
		scored <- resp
		return nil
	})

	var mu sync.Mutex
	var eligible []string
	eventBus.Subscribe(ctx, domain.TopicBankEligible, func(ctx context.Context, msg *domain.Message) error {
		var e domain.BankEligible
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return err
		}
		mu.Lock()
		eligible = append(eligible, e.BankCode)
		mu.Unlock()
		return nil
	})

	submit(t, eventBus, &domain.Request{ID: "req-001", Kind: domain.KindGuarantee, Interval: 400})

	select {
	case resp := <-scored:
		if resp.RequestID != "req-001" || resp.Status != domain.StatusEligible {
			t.Errorf("unexpected response %+v", resp)
		}
		if !slices.Equal(resp.Allowed, []string{"alfa"}) {
			t.Errorf("expected only alfa allowed, got %v", resp.Allowed)
		}
		if resp.Reasons["sber"] == "" {
			t.Error("expected a rejection reason for sber")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for scored event")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(eligible)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected one eligible event, got %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorker_QueueGroup(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	for range 2 {
		w := NewWorker(eventBus, newScorer(), quietLogger())
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer w.Stop()
	}

	var scored atomic.Int64
	eventBus.Subscribe(context.Background(), domain.TopicRequestScored, func(ctx context.Context, msg *domain.Message) error {
		scored.Add(1)
		return nil
	})

	const n = 6
	for i := range n {
		submit(t, eventBus, &domain.Request{ID: fmt.Sprintf("req-q%d", i), Kind: domain.KindGuarantee, Interval: 100})
	}

	deadline := time.Now().Add(2 * time.Second)
	for scored.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d scored events, got %d", n, scored.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := scored.Load(); got != n {
		t.Errorf("expected each request scored once, got %d events for %d requests", got, n)
	}
}

func TestWorker_RequestReply(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, newScorer(), quietLogger())
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, _ := json.Marshal(domain.SubmittedRequest{Request: &domain.Request{ID: "req-sync", Interval: 2000}})
	reply, err := eventBus.Request(ctx, domain.TopicRequestSubmitted, payload)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var resp domain.EvaluationResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if resp.Status != domain.StatusIneligible || len(resp.Reasons) != 2 {
		t.Errorf("expected both banks to reject, got %+v", resp)
	}
}

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (r *countingReloader) Reload(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestWorker_SettingsChanged(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	reloader := &countingReloader{}
	w := NewWorker(eventBus, newScorer(), quietLogger())
	if err := w.Start(Config{Reloader: reloader, InstanceID: "node-a"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if got := w.GetStats().SubscriptionCount; got != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", got)
	}

	ctx := context.Background()
	own, _ := json.Marshal(domain.SettingsChanged{Origin: "node-a"})
	other, _ := json.Marshal(domain.SettingsChanged{Origin: "node-b"})
	eventBus.Publish(ctx, domain.TopicSettingsChanged, own)
	eventBus.Publish(ctx, domain.TopicSettingsChanged, other)

	deadline := time.Now().Add(2 * time.Second)
	for reloader.calls.Load() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("expected a reload for the foreign notification")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if got := reloader.calls.Load(); got != 1 {
		t.Errorf("expected exactly one reload, got %d", got)
	}
}

type failingScorer struct{}

func (failingScorer) CheckAll(context.Context, *domain.Request, *bool) (*domain.Evaluation, error) {
	return nil, errors.New("strict mode defect")
}

func TestWorker_ProcessRequestErrors(t *testing.T) {
	w := NewWorker(bus.NewChannelBus(10), failingScorer{}, quietLogger())
	ctx := context.Background()

	tests := []struct {
		name    string
		payload string
	}{
		{"invalid json", "{"},
		{"missing request", "{}"},
		{"scorer error", `{"request": {"id": "r1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &domain.Message{ID: "m1", Payload: []byte(tt.payload)}
			if err := w.processRequest(ctx, msg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWorker_RequestReplyFailure(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, failingScorer{}, quietLogger())
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	tests := []struct {
		name      string
		payload   string
		requestID string
		contains  string
	}{
		{"scorer error", `{"request": {"id": "req-strict"}}`, "req-strict", "strict mode defect"},
		{"invalid json", "{", "", "parse submitted request"},
		{"missing request", "{}", "", "has no request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			reply, err := eventBus.Request(ctx, domain.TopicRequestSubmitted, []byte(tt.payload))
			if err != nil {
				t.Fatalf("expected a failure reply instead of %v", err)
			}
			var failed domain.ScoringFailed
			if err := json.Unmarshal(reply, &failed); err != nil {
				t.Fatalf("decode reply: %v", err)
			}
			if failed.RequestID != tt.requestID {
				t.Errorf("expected request id %q, got %q", tt.requestID, failed.RequestID)
			}
			if !strings.Contains(failed.Error, tt.contains) {
				t.Errorf("expected %q in %q", tt.contains, failed.Error)
			}
		})
	}
}
