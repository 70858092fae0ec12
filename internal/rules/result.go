package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
)

// UnexpectedErrorMessage replaces the detail of a rule defect in non-strict mode.
const UnexpectedErrorMessage = "Непредвиденная ошибка в скоринге"

// Result is the outcome of evaluating a rule or a rule set.
// The zero value is a success. Results are immutable.
type Result struct {
	errors  []string
	indices []int
	defect  bool
}

// Success returns a passing result.
func Success() Result {
	return Result{}
}

// Fail returns a failing result with a single message.
func Fail(message string) Result {
	return Result{errors: []string{message}}
}

// FailAll returns a failing result with every message in order.
// An empty list yields a success.
func FailAll(messages ...string) Result {
	if len(messages) == 0 {
		return Success()
	}
	return Result{errors: slices.Clone(messages)}
}

func defectResult() Result {
	return Result{errors: []string{UnexpectedErrorMessage}, defect: true}
}

// NewResult builds a result from a dynamically typed value: nil, a string,
// or a list of strings. Booleans, maps and lists holding anything but
// strings are rejected with ErrInvalidResult. indices, when given, must be
// parallel to the messages.
func NewResult(v any, indices ...int) (Result, error) {
	var msgs []string

	switch x := v.(type) {
	case nil:
	case string:
		msgs = []string{x}
	case []string:
		msgs = slices.Clone(x)
	case bool:
		return Result{}, fmt.Errorf("%w: got bool %v, use Success or Fail", ErrInvalidResult, x)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			msgs = make([]string, 0, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				s, ok := rv.Index(i).Interface().(string)
				if !ok {
					return Result{}, fmt.Errorf("%w: element %d is %T, not string", ErrInvalidResult, i, rv.Index(i).Interface())
				}
				msgs = append(msgs, s)
			}
		default:
			return Result{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidResult, v)
		}
	}

	if len(indices) > 0 && len(indices) != len(msgs) {
		return Result{}, fmt.Errorf("%w: %d indices for %d messages", ErrInvalidResult, len(indices), len(msgs))
	}

	r := Result{errors: msgs}
	if len(indices) > 0 {
		r.indices = slices.Clone(indices)
	}
	return r, nil
}

// IsSuccess reports whether the result carries no failures.
func (r Result) IsSuccess() bool { return len(r.errors) == 0 }

// IsFail reports whether the result carries at least one failure.
func (r Result) IsFail() bool { return len(r.errors) > 0 }

// Errors returns a copy of the failure messages.
func (r Result) Errors() []string { return slices.Clone(r.errors) }

// ErrorIndices returns a copy of the batch indices parallel to Errors.
// It is nil for results not produced by a collect-all batch.
func (r Result) ErrorIndices() []int { return slices.Clone(r.indices) }

// FirstError returns the first failure message, or "" on success.
func (r Result) FirstError() string {
	if len(r.errors) == 0 {
		return ""
	}
	return r.errors[0]
}

// HasDefect reports whether any failure came from a rule defect rather than
// a business check.
func (r Result) HasDefect() bool { return r.defect }

// Append returns a new result with other's messages added, each tagged with index.
func (r Result) Append(other Result, index int) Result {
	if other.IsSuccess() {
		return r
	}
	out := Result{
		errors:  make([]string, 0, len(r.errors)+len(other.errors)),
		indices: make([]int, 0, len(r.errors)+len(other.errors)),
		defect:  r.defect || other.defect,
	}
	out.errors = append(out.errors, r.errors...)
	out.indices = append(out.indices, r.indices...)
	for range r.errors[len(r.indices):] {
		out.indices = append(out.indices, -1)
	}
	out.errors = append(out.errors, other.errors...)
	for range other.errors {
		out.indices = append(out.indices, index)
	}
	return out
}

// withMessage replaces the messages of a failing result with msg.
func (r Result) withMessage(msg string) Result {
	if r.IsSuccess() || msg == "" {
		return r
	}
	return Result{errors: []string{msg}, defect: r.defect}
}

type resultJSON struct {
	Success      bool     `json:"success"`
	Errors       []string `json:"errors"`
	ErrorIndices []int    `json:"errorIndices,omitempty"`
	Defect       bool     `json:"defect,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	errs := r.errors
	if errs == nil {
		errs = []string{}
	}
	return json.Marshal(resultJSON{
		Success:      r.IsSuccess(),
		Errors:       errs,
		ErrorIndices: r.indices,
		Defect:       r.defect,
	})
}

func (r Result) String() string {
	if r.IsSuccess() {
		return "success"
	}
	return fmt.Sprintf("fail%q", r.errors)
}
