package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Env is the context a rule set is evaluated against.
type Env struct {
	Bank    *domain.Bank
	Request *domain.Request
	Lookups domain.Lookups

	// Now is the evaluation clock. Nil means time.Now.
	Now func() time.Time

	evaluator *Evaluator
	depth     int
}

// NewEnv creates an evaluation context.
func NewEnv(bank *domain.Bank, req *domain.Request, lookups domain.Lookups) *Env {
	return &Env{Bank: bank, Request: req, Lookups: lookups}
}

// Depth returns the nesting level of the rule set being evaluated.
func (e *Env) Depth() int { return e.depth }

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate runs a nested rule set one level deeper than the current one.
// Composite rules use it for their branches.
func (e *Env) Evaluate(ctx context.Context, cfgs []domain.RuleConfig, asAgent bool) (Result, error) {
	if e.evaluator == nil {
		return Result{}, fmt.Errorf("nested rule set evaluated outside an evaluator")
	}
	child := *e
	child.depth++
	return e.evaluator.batch(ctx, &child, cfgs, asAgent)
}

// Resolve returns the value at a dotted path such as "request.interval" or
// "profile.reg_inn". Unknown roots and missing segments resolve to nil.
func (e *Env) Resolve(path string) any {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	segs := strings.Split(path, ".")

	cur := e.root(segs[0])
	for _, seg := range segs[1:] {
		if cur == nil {
			return nil
		}
		switch v := cur.(type) {
		case domain.Fielder:
			cur, _ = v.Field(seg)
		case map[string]any:
			cur = v[seg]
		default:
			return nil
		}
	}
	return cur
}

func (e *Env) root(name string) any {
	switch name {
	case "request":
		if e.Request != nil {
			return e.Request
		}
	case "profile", "anketa":
		if p := e.Request.Profile(); p != nil {
			return p
		}
	case "client":
		if e.Request != nil && e.Request.Client != nil {
			return e.Request.Client
		}
	case "tender":
		if e.Request != nil && e.Request.Tender != nil {
			return e.Request.Tender
		}
	case "bank":
		if e.Bank != nil {
			return e.Bank
		}
	}
	return nil
}

// clientINN returns the applicant's tax id from the client or the profile.
func (e *Env) clientINN() string {
	if e.Request == nil {
		return ""
	}
	if c := e.Request.Client; c != nil && c.INN != "" {
		return c.INN
	}
	if p := e.Request.Profile(); p != nil {
		return p.RegINN
	}
	return ""
}
