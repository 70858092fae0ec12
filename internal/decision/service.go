package decision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/settings"
)

// SettingsProvider supplies the current rule settings.
type SettingsProvider interface {
	Snapshot() *settings.Snapshot
}

// EvaluationStore persists evaluations.
type EvaluationStore interface {
	SaveEvaluation(ctx context.Context, eval *domain.Evaluation) error
}

// Observer receives per-bank decisions.
type Observer interface {
	BankDecision(bank string, passed bool)
}

// Service checks requests against bank settings and records the outcome.
type Service struct {
	evaluator *rules.Evaluator
	settings  SettingsProvider
	lookups   domain.Lookups
	store     EvaluationStore
	processor *Processor
	observer  Observer
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithObserver sets the decision observer.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithStore persists every evaluation.
func WithStore(store EvaluationStore) ServiceOption {
	return func(s *Service) { s.store = store }
}

// NewService creates a decision service. Collaborators missing from lookups
// make the rules that need them fail as defects.
func NewService(evaluator *rules.Evaluator, provider SettingsProvider, lookups domain.Lookups, opts ...ServiceOption) *Service {
	s := &Service{
		evaluator: evaluator,
		settings:  provider,
		lookups:   lookups,
		processor: NewProcessor(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckBank checks req against a single bank. useCommon overrides the
// bank's UseCommonRules default when not nil.
func (s *Service) CheckBank(ctx context.Context, req *domain.Request, bankCode string, useCommon *bool) (*domain.Evaluation, error) {
	snap := s.settings.Snapshot()
	bank, ok := snap.Bank(bankCode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", settings.ErrUnknownBank, bankCode)
	}
	return s.run(ctx, req, snap.Global, []domain.BankSettings{bank}, useCommon)
}

// CheckAll checks req against every configured bank, in code order.
func (s *Service) CheckAll(ctx context.Context, req *domain.Request, useCommon *bool) (*domain.Evaluation, error) {
	snap := s.settings.Snapshot()
	codes := snap.BankCodes()
	banks := make([]domain.BankSettings, 0, len(codes))
	for _, code := range codes {
		banks = append(banks, snap.Banks[code])
	}
	return s.run(ctx, req, snap.Global, banks, useCommon)
}

func (s *Service) run(ctx context.Context, req *domain.Request, global domain.GlobalSettings, banks []domain.BankSettings, useCommon *bool) (*domain.Evaluation, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	start := time.Now()
	outcomes := make([]BankOutcome, 0, len(banks))
	for _, bank := range banks {
		o, err := s.checkOne(ctx, req, global, bank, useCommon)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
		if s.observer != nil {
			s.observer.BankDecision(bank.Code, o.Result.IsSuccess())
		}
	}

	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	eval := s.processor.Process(ctx, &Input{
		RequestID: req.ID,
		Kind:      req.Kind,
		TraceID:   traceID,
		Outcomes:  outcomes,
		StartTime: start,
	})

	if s.store != nil {
		if err := s.store.SaveEvaluation(ctx, eval); err != nil {
			return nil, fmt.Errorf("save evaluation: %w", err)
		}
	}

	s.logger.Info("request scored",
		"request_id", req.ID,
		"evaluation_id", eval.ID,
		"banks", len(eval.Banks),
		"allowed", len(eval.Allowed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return eval, nil
}

func (s *Service) checkOne(ctx context.Context, req *domain.Request, global domain.GlobalSettings, bank domain.BankSettings, useCommon *bool) (BankOutcome, error) {
	common := bank.UseCommonRules
	if useCommon != nil {
		common = *useCommon
	}

	start := time.Now()
	env := rules.NewEnv(bank.Bank(), req, s.lookups)
	res, err := s.evaluator.Check(ctx, env, global, bank, common)
	if err != nil {
		return BankOutcome{}, fmt.Errorf("bank %s: %w", bank.Code, err)
	}

	o := BankOutcome{
		BankCode: bank.Code,
		Result:   res,
		Bypassed: !global.Enabled || !bank.Enabled,
		Duration: time.Since(start),
	}
	if !o.Bypassed {
		o.RulesEvaluated = countActive(bank.Rules)
		if common {
			o.RulesEvaluated += countActive(global.CommonRules)
		}
	}
	return o, nil
}

func countActive(cfgs []domain.RuleConfig) int {
	n := 0
	for _, c := range cfgs {
		if c.Active {
			n++
		}
	}
	return n
}
