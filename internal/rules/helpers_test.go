package rules

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rule(class string, params map[string]any) domain.RuleConfig {
	return domain.NewRuleConfig(class, params)
}

func pass() domain.RuleConfig {
	return rule("AlwaysPassScoring", nil)
}

func fail(msg string) domain.RuleConfig {
	c := rule("AlwaysFailScoring", nil)
	c.ErrorMessage = msg
	return c
}

func conditional(ifs, thens, elses []domain.RuleConfig) domain.RuleConfig {
	params := map[string]any{"if_conditionals": ifs, "then_conditionals": thens}
	if elses != nil {
		params["else_conditionals"] = elses
	}
	return rule("ConditionalScoring", params)
}

// countingScoring fails with "counted" and records every call.
type countingScoring struct {
	Base
	calls *atomic.Int32
}

func (r *countingScoring) Evaluate(context.Context, *Env) (Result, error) {
	r.calls.Add(1)
	return r.FailWith("counted"), nil
}

// panicScoring panics when evaluated.
type panicScoring struct {
	Base
}

func (r *panicScoring) Evaluate(context.Context, *Env) (Result, error) {
	panic("boom")
}

type testHarness struct {
	registry *Registry
	calls    *atomic.Int32
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{registry: NewDefaultRegistry(), calls: &atomic.Int32{}}
	defs := []Definition{
		{Name: "CountingScoring", New: func() Rule { return &countingScoring{calls: h.calls} }},
		{Name: "PanicScoring", New: func() Rule { return &panicScoring{} }},
	}
	for _, def := range defs {
		if err := h.registry.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}
	return h
}

func (h *testHarness) evaluator(opts ...Option) *Evaluator {
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return NewEvaluator(h.registry, opts...)
}

func guaranteeRequest() *domain.Request {
	return &domain.Request{
		ID:             "req-1",
		Kind:           domain.KindGuarantee,
		Interval:       66,
		RequiredAmount: 10000,
		Targets:        []string{domain.TargetExecution},
		Tender:         &domain.Tender{Price: 20000, Law: "44-ФЗ"},
		Client: &domain.Client{
			INN: "7701234567",
			Profile: &domain.Profile{
				RegINN:       "7701234567",
				MainOKVED:    "2130",
				LegalAddress: "Москва, ул. Тверская, 1",
			},
		},
	}
}

func newEnv(req *domain.Request) *Env {
	return NewEnv(&domain.Bank{Code: "alfa"}, req, domain.Lookups{})
}
