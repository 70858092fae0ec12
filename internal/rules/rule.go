// Package rules implements the declarative scoring engine: rule results,
// the rule registry, context resolution, the concrete rule catalogue and the
// rule-set evaluator.
package rules

import (
	"context"
)

// Rule is a parameterized predicate over an evaluation context.
//
// Evaluate returns a failing Result for business failures. A returned error
// means the rule itself is defective (bad parameters, collaborator failure).
// Instances are built fresh for each evaluation and never reused.
type Rule interface {
	Evaluate(ctx context.Context, env *Env) (Result, error)
}

// Validator is implemented by rules that can check their parameters once
// they are applied.
type Validator interface {
	Validate() error
}

// Base carries the failure message shared by every rule. Concrete rules
// embed it and call Fail or FailWith.
type Base struct {
	override string
	message  string
}

func (b *Base) base() *Base { return b }

// Fail returns a failure carrying the configured override or the rule's
// default message.
func (b *Base) Fail() Result {
	return Fail(b.Message())
}

// FailWith returns a failure with a message computed during evaluation.
// A configured override still wins.
func (b *Base) FailWith(msg string) Result {
	if b.override != "" {
		return Fail(b.override)
	}
	return Fail(msg)
}

// Message returns the effective static failure message.
func (b *Base) Message() string {
	if b.override != "" {
		return b.override
	}
	return b.message
}

type baser interface {
	base() *Base
}
