package rules

import (
	"context"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// ConditionalScoring branches over nested rule sets. The if branch is
// evaluated in short-circuit mode; on success the then branch decides the
// result, otherwise the else branch does. A missing else branch passes.
// Failures propagate the branch's own message unless an override is configured.
type ConditionalScoring struct {
	Base
	If   []domain.RuleConfig `json:"if_conditionals"`
	Then []domain.RuleConfig `json:"then_conditionals"`
	Else []domain.RuleConfig `json:"else_conditionals"`
}

func (r *ConditionalScoring) Evaluate(ctx context.Context, env *Env) (Result, error) {
	cond, err := env.Evaluate(ctx, r.If, false)
	if err != nil {
		return Result{}, err
	}

	branch := r.Then
	if cond.IsFail() {
		if len(r.Else) == 0 {
			return Success(), nil
		}
		branch = r.Else
	}

	res, err := env.Evaluate(ctx, branch, false)
	if err != nil {
		return Result{}, err
	}
	return res.withMessage(r.override), nil
}

func (r *ConditionalScoring) branches() map[string][]domain.RuleConfig {
	return map[string][]domain.RuleConfig{
		"if_conditionals":   r.If,
		"then_conditionals": r.Then,
		"else_conditionals": r.Else,
	}
}
