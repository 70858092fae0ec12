// Package decision turns per-bank rule results into persisted eligibility
// evaluations.
package decision

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
)

// EngineVersion is stamped on every evaluation.
const EngineVersion = "underwriter-1.0"

// BankOutcome is the result of checking a request against one bank.
type BankOutcome struct {
	BankCode string
	Result   rules.Result

	// Bypassed is set when a kill switch skipped the bank's rules.
	Bypassed bool

	RulesEvaluated int
	Duration       time.Duration
}

// Input contains everything needed for a decision.
type Input struct {
	RequestID string
	Kind      domain.ProductKind
	TraceID   string
	Outcomes  []BankOutcome
	StartTime time.Time
}

// Processor aggregates bank outcomes into an Evaluation.
type Processor struct {
	EngineVersion string
	now           func() time.Time
}

// NewProcessor creates a processor with default settings.
func NewProcessor() *Processor {
	return &Processor{EngineVersion: EngineVersion, now: time.Now}
}

// Process builds the evaluation for input. Banks keep the order of
// input.Outcomes; Allowed lists the passing ones in the same order.
func (p *Processor) Process(ctx context.Context, input *Input) *domain.Evaluation {
	eval := &domain.Evaluation{
		ID:        uuid.New().String(),
		RequestID: input.RequestID,
		Kind:      input.Kind,
		Timestamp: p.now().UTC(),
		Banks:     make([]domain.BankDecision, 0, len(input.Outcomes)),
		Allowed:   []string{},
	}

	rulesEvaluated := 0
	for _, o := range input.Outcomes {
		d := domain.BankDecision{
			BankCode:  o.BankCode,
			Passed:    o.Result.IsSuccess(),
			Bypassed:  o.Bypassed,
			ProcessMs: o.Duration.Milliseconds(),
		}
		if !d.Passed {
			d.Errors = o.Result.Errors()
			d.ErrorIndices = o.Result.ErrorIndices()
			d.FirstError = o.Result.FirstError()
			d.Defect = o.Result.HasDefect()
		} else {
			eval.Allowed = append(eval.Allowed, o.BankCode)
		}
		eval.Banks = append(eval.Banks, d)
		rulesEvaluated += o.RulesEvaluated
	}

	var totalMs int64
	if !input.StartTime.IsZero() {
		totalMs = p.now().Sub(input.StartTime).Milliseconds()
	}

	eval.Metadata = domain.EvaluationMetadata{
		TraceID:        input.TraceID,
		TotalMs:        totalMs,
		BanksEvaluated: len(input.Outcomes),
		RulesEvaluated: rulesEvaluated,
		EngineVersion:  p.EngineVersion,
	}
	return eval
}

// IsEligible reports whether at least one bank accepted the request.
func IsEligible(eval *domain.Evaluation) bool {
	return len(eval.Allowed) > 0
}

// Reasons lists "bank: first error" for every rejecting bank.
func Reasons(eval *domain.Evaluation) []string {
	var reasons []string
	for _, b := range eval.Banks {
		if b.Passed || b.FirstError == "" {
			continue
		}
		reasons = append(reasons, b.BankCode+": "+b.FirstError)
	}
	return reasons
}
