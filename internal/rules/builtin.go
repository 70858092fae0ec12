package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// AlwaysPassScoring always succeeds.
type AlwaysPassScoring struct {
	Base
}

func (r *AlwaysPassScoring) Evaluate(context.Context, *Env) (Result, error) {
	return Success(), nil
}

// AlwaysFailScoring always fails with its message.
type AlwaysFailScoring struct {
	Base
}

func (r *AlwaysFailScoring) Evaluate(context.Context, *Env) (Result, error) {
	return r.Fail(), nil
}

// FieldEqualScoring compares a context field with a configured value or
// with another context field.
type FieldEqualScoring struct {
	Base
	Field      string `json:"field"`
	Operation  string `json:"operation"`
	Value      any    `json:"value"`
	ValueField string `json:"value_field"`

	op Operator
}

func (r *FieldEqualScoring) Validate() error {
	if r.Field == "" {
		return fmt.Errorf("field is required")
	}
	op, err := ParseOperator(r.Operation)
	if err != nil {
		return err
	}
	r.op = op
	return nil
}

func (r *FieldEqualScoring) Evaluate(_ context.Context, env *Env) (Result, error) {
	expected := r.Value
	if r.ValueField != "" {
		expected = env.Resolve(r.ValueField)
	}

	ok, err := Compare(r.op, env.Resolve(r.Field), expected)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", r.Field, r.op, err)
	}
	if !ok {
		return r.Fail(), nil
	}
	return Success(), nil
}

// regexFields holds the parameters shared by the regex rules.
type regexFields struct {
	Fields  []string `json:"fields"`
	Pattern string   `json:"pattern"`

	re *regexp.Regexp
}

func (r *regexFields) validate() error {
	if len(r.Fields) == 0 {
		return fmt.Errorf("fields are required")
	}
	re, err := regexp.Compile(`^(?:` + r.Pattern + `)`)
	if err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	r.re = re
	return nil
}

// anyMatch reports whether any resolved field value matches at its start.
// Absent values never match; list values match if any element does.
func (r *regexFields) anyMatch(env *Env) bool {
	for _, f := range r.Fields {
		for _, s := range matchCandidates(normalize(env.Resolve(f))) {
			if r.re.MatchString(s) {
				return true
			}
		}
	}
	return false
}

func matchCandidates(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		var out []string
		for _, e := range x {
			out = append(out, matchCandidates(e)...)
		}
		return out
	}
	s, err := toString(v)
	if err != nil {
		return []string{fmt.Sprint(v)}
	}
	return []string{strings.TrimSpace(s.(string))}
}

// RegexFieldsMatchScoring fails when any of the fields matches the pattern.
type RegexFieldsMatchScoring struct {
	Base
	regexFields
}

func (r *RegexFieldsMatchScoring) Validate() error { return r.validate() }

func (r *RegexFieldsMatchScoring) Evaluate(_ context.Context, env *Env) (Result, error) {
	if r.anyMatch(env) {
		return r.Fail(), nil
	}
	return Success(), nil
}

// RegexFieldsNotMatchScoring fails when none of the fields matches the pattern.
type RegexFieldsNotMatchScoring struct {
	Base
	regexFields
}

func (r *RegexFieldsNotMatchScoring) Validate() error { return r.validate() }

func (r *RegexFieldsNotMatchScoring) Evaluate(_ context.Context, env *Env) (Result, error) {
	if !r.anyMatch(env) {
		return r.Fail(), nil
	}
	return Success(), nil
}
