package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Recorder receives evaluation measurements.
type Recorder interface {
	RuleEvaluated(class, outcome string, d time.Duration)
	BatchEvaluated(mode string, passed bool, d time.Duration)
}

// Rule outcome labels passed to Recorder.
const (
	OutcomePass    = "pass"
	OutcomeFail    = "fail"
	OutcomeDefect  = "defect"
	OutcomeSkipped = "skipped"
)

type nopRecorder struct{}

func (nopRecorder) RuleEvaluated(string, string, time.Duration) {}
func (nopRecorder) BatchEvaluated(string, bool, time.Duration)  {}

// Evaluator runs rule sets against an evaluation context.
// It holds no per-evaluation state and is safe for concurrent use.
type Evaluator struct {
	registry *Registry
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
	strict   bool
	maxDepth int

	// compiled ExpressionScoring programs
	expressions *ExpressionEngine
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for rule defects.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithStrict makes defects propagate as errors instead of generic failures.
func WithStrict(strict bool) Option {
	return func(e *Evaluator) { e.strict = strict }
}

// WithMaxDepth bounds nested rule set evaluation.
func WithMaxDepth(depth int) Option {
	return func(e *Evaluator) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) { e.recorder = r }
}

// WithExpressionCacheSize bounds the number of cached CEL programs.
func WithExpressionCacheSize(n int) Option {
	return func(e *Evaluator) { e.expressions = NewExpressionEngine(n) }
}

// WithTracer sets the tracer used for top-level spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Evaluator) { e.tracer = t }
}

// NewEvaluator creates an evaluator over registry.
func NewEvaluator(registry *Registry, opts ...Option) *Evaluator {
	e := &Evaluator{
		registry: registry,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer("underwriter/rules"),
		maxDepth: domain.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.expressions == nil {
		e.expressions = NewExpressionEngine(DefaultExpressionCacheSize)
	}
	return e
}

// Registry returns the registry rules are built from.
func (e *Evaluator) Registry() *Registry { return e.registry }

// Strict reports whether defects propagate as errors.
func (e *Evaluator) Strict() bool { return e.strict }

// MaxDepth returns the nesting limit of rule sets.
func (e *Evaluator) MaxDepth() int { return e.maxDepth }

// Evaluate runs cfgs in collect-all mode: every failure is reported with the
// index of the rule that produced it.
func (e *Evaluator) Evaluate(ctx context.Context, env *Env, cfgs []domain.RuleConfig) (Result, error) {
	return e.EvaluateBatch(ctx, env, cfgs, true)
}

// EvaluateShortCircuit runs cfgs until the first failure and returns it as is.
func (e *Evaluator) EvaluateShortCircuit(ctx context.Context, env *Env, cfgs []domain.RuleConfig) (Result, error) {
	return e.EvaluateBatch(ctx, env, cfgs, false)
}

// EvaluateBatch runs cfgs in order against env. Inactive rules are skipped.
//
// In non-strict mode an error is returned only for a nil env; rule defects
// become a single UnexpectedErrorMessage failure. In strict mode the first
// defect is returned as an error.
func (e *Evaluator) EvaluateBatch(ctx context.Context, env *Env, cfgs []domain.RuleConfig, asAgent bool) (Result, error) {
	if env == nil {
		return Result{}, fmt.Errorf("evaluation context is required")
	}

	mode := "short_circuit"
	if asAgent {
		mode = "agent"
	}

	ctx, span := e.tracer.Start(ctx, "rules.EvaluateBatch", trace.WithAttributes(
		attribute.String("rules.mode", mode),
		attribute.Int("rules.count", len(cfgs)),
	))
	defer span.End()

	start := time.Now()
	run := *env
	run.evaluator = e
	run.depth = 0

	res, err := e.batch(ctx, &run, cfgs, asAgent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Bool("rules.passed", res.IsSuccess()),
		attribute.Int("rules.failures", len(res.errors)),
	)
	e.recorder.BatchEvaluated(mode, res.IsSuccess(), time.Since(start))
	return res, nil
}

// Check evaluates a bank's rules for env. It passes without evaluating when
// either the global or the bank switch is off. With useCommon the global
// common rules are evaluated after the bank's own rules in the same batch.
func (e *Evaluator) Check(ctx context.Context, env *Env, global domain.GlobalSettings, bank domain.BankSettings, useCommon bool) (Result, error) {
	if !global.Enabled || !bank.Enabled {
		e.logger.Debug("scoring disabled, skipping checks",
			"bank_code", bank.Code,
			"global_enabled", global.Enabled,
			"bank_enabled", bank.Enabled,
		)
		return Success(), nil
	}

	if env == nil {
		return Result{}, fmt.Errorf("evaluation context is required")
	}

	cfgs := slices.Clone(bank.Rules)
	if useCommon {
		cfgs = append(cfgs, global.CommonRules...)
	}

	run := *env
	if run.Bank == nil {
		run.Bank = bank.Bank()
	}
	return e.EvaluateBatch(ctx, &run, cfgs, true)
}

func (e *Evaluator) batch(ctx context.Context, env *Env, cfgs []domain.RuleConfig, asAgent bool) (Result, error) {
	if env.depth > e.maxDepth {
		return Result{}, fmt.Errorf("%w: depth %d exceeds %d", ErrRecursionLimit, env.depth, e.maxDepth)
	}

	result := Success()
	for i, cfg := range cfgs {
		if !cfg.Active {
			continue
		}

		res, err := e.evaluateRule(ctx, env, cfg, i)
		if err != nil {
			return Result{}, err
		}
		if res.IsSuccess() {
			continue
		}
		if !asAgent {
			return res, nil
		}
		result = result.Append(res, i)
	}
	return result, nil
}

// evaluateRule builds and runs one rule in a guarded region. Errors and
// panics are logged with the rule's parameters and become a defect result,
// or are returned in strict mode. ErrRecursionLimit raised inside nested
// branches is passed up unchanged so the whole top-level rule fails closed.
func (e *Evaluator) evaluateRule(ctx context.Context, env *Env, cfg domain.RuleConfig, index int) (res Result, err error) {
	start := time.Now()
	skipped := false

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrRulePanic, p)
			e.logger.Debug("rule panic stack", "rule_class", cfg.Class, "stack", string(debug.Stack()))
		}

		outcome := OutcomePass
		switch {
		case skipped:
			outcome = OutcomeSkipped
		case err != nil:
			outcome = OutcomeDefect
		case res.IsFail():
			outcome = OutcomeFail
		}
		e.recorder.RuleEvaluated(cfg.Class, outcome, time.Since(start))

		if err == nil {
			return
		}
		// Nesting overflow fails the top-level rule, not the branch that hit it.
		if errors.Is(err, ErrRecursionLimit) && env.depth > 0 {
			return
		}
		err = fmt.Errorf("rule %d (%s): %w", index, cfg.Class, err)
		if e.strict {
			return
		}
		e.logger.Error("scoring rule failed",
			"rule_class", cfg.Class,
			"rule_index", index,
			"depth", env.depth,
			"params", cfg.Params,
			"error", err,
		)
		res, err = defectResult(), nil
	}()

	rule, def, err := e.registry.Build(cfg)
	if err != nil {
		return Result{}, err
	}
	if def.LoanExempt && env.Request.IsLoan() {
		skipped = true
		return Success(), nil
	}
	return rule.Evaluate(ctx, env)
}
