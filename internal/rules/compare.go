package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Operator is a comparison operator of the generic field comparator.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpIn           Operator = "IN"
	OpNotIn        Operator = "NOT IN"
	OpBetween      Operator = "BETWEEN"
)

// ParseOperator normalizes an operator string. "==" is accepted for "=".
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToUpper(strings.Join(strings.Fields(s), " ")))
	switch op {
	case "==":
		return OpEqual, nil
	case "<>":
		return OpNotEqual, nil
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpIn, OpNotIn, OpBetween:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOperator, s)
}

// Compare evaluates "actual op expected". The expected value is coerced to
// the type of actual before comparing. A nil actual satisfies only "=" with a
// nil expected and "!=" with a non-nil expected.
//
// Errors are configuration defects: a non-list bound for IN, a BETWEEN
// without exactly two bounds, or an expected value that cannot be coerced.
func Compare(op Operator, actual, expected any) (bool, error) {
	actual = normalize(actual)
	expected = normalize(expected)

	switch op {
	case OpIn, OpNotIn:
		list, err := asList(op, expected)
		if err != nil {
			return false, err
		}
		if actual == nil {
			return false, nil
		}
		in, err := contains(list, actual)
		if err != nil {
			return false, err
		}
		if op == OpNotIn {
			return !in, nil
		}
		return in, nil

	case OpBetween:
		bounds, err := asList(op, expected)
		if err != nil {
			return false, err
		}
		if len(bounds) != 2 {
			return false, fmt.Errorf("%w: BETWEEN requires two bounds, got %d", ErrInvalidParams, len(bounds))
		}
		if actual == nil {
			return false, nil
		}
		lo, err := order(actual, bounds[0])
		if err != nil {
			return false, err
		}
		hi, err := order(actual, bounds[1])
		if err != nil {
			return false, err
		}
		return lo >= 0 && hi <= 0, nil

	case OpEqual, OpNotEqual:
		if actual == nil || expected == nil {
			eq := actual == nil && expected == nil
			return eq == (op == OpEqual), nil
		}
		eq, err := equal(actual, expected)
		if err != nil {
			return false, err
		}
		return eq == (op == OpEqual), nil

	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		if actual == nil || expected == nil {
			return false, nil
		}
		c, err := order(actual, expected)
		if err != nil {
			return false, err
		}
		switch op {
		case OpGreater:
			return c > 0, nil
		case OpLess:
			return c < 0, nil
		case OpGreaterEqual:
			return c >= 0, nil
		default:
			return c <= 0, nil
		}
	}

	return false, fmt.Errorf("%w: %q", ErrInvalidOperator, op)
}

// normalize folds Go numeric types into int64 or float64 and slices into []any.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64, float64, string, bool, time.Time:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return uintToNumber(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return uintToNumber(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

func uintToNumber(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func asList(op Operator, v any) ([]any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires a list, got %T", ErrInvalidParams, op, v)
	}
	return list, nil
}

// coerce converts v to the type of ref.
func coerce(ref, v any) (any, error) {
	switch ref.(type) {
	case int64, float64:
		return toNumber(v)
	case string:
		return toString(v)
	case bool:
		return toBool(v)
	case time.Time:
		return toTime(v)
	}
	return v, nil
}

func toNumber(v any) (any, error) {
	switch x := v.(type) {
	case int64, float64:
		return x, nil
	case string:
		if n, ok := parseNumber(x); ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot compare %T %v as a number", ErrInvalidParams, v, v)
}

func parseNumber(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.Format(time.RFC3339), nil
	}
	return nil, fmt.Errorf("%w: cannot compare %T as a string", ErrInvalidParams, v)
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b, nil
		}
	case int64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot compare %T %v as a boolean", ErrInvalidParams, v, v)
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "02.01.2006"}

func toTime(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(x)); err == nil {
				return t, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: cannot compare %T %v as a date", ErrInvalidParams, v, v)
}

// equal compares actual with expected coerced to actual's type.
func equal(actual, expected any) (bool, error) {
	if list, ok := actual.([]any); ok {
		other, ok := expected.([]any)
		if !ok {
			return false, nil
		}
		if len(list) != len(other) {
			return false, nil
		}
		for i := range list {
			eq, err := equal(list[i], other[i])
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	}

	switch actual.(type) {
	case int64, float64, string, time.Time:
		c, err := order(actual, expected)
		if err != nil {
			return false, err
		}
		return c == 0, nil
	case bool:
		b, err := toBool(expected)
		if err != nil {
			return false, err
		}
		return actual == b, nil
	}
	return reflect.DeepEqual(actual, expected), nil
}

// order returns -1, 0 or 1 comparing actual with expected coerced to
// actual's type. Strings that both parse as numbers compare numerically.
func order(actual, expected any) (int, error) {
	e, err := coerce(actual, expected)
	if err != nil {
		return 0, err
	}

	switch a := actual.(type) {
	case int64, float64:
		return compareNumbers(a, e), nil
	case string:
		b := e.(string)
		if na, ok := parseNumber(a); ok {
			if nb, ok := parseNumber(b); ok {
				return compareNumbers(na, nb), nil
			}
		}
		return strings.Compare(a, b), nil
	case time.Time:
		return a.Compare(e.(time.Time)), nil
	}
	return 0, fmt.Errorf("%w: values of type %T are not ordered", ErrInvalidParams, actual)
}

func compareNumbers(a, b any) int {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	af, bf := toFloat(a), toFloat(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return math.NaN()
}

// contains reports whether actual is in list. A list actual must be a subset.
func contains(list []any, actual any) (bool, error) {
	if items, ok := actual.([]any); ok {
		for _, item := range items {
			in, err := contains(list, item)
			if err != nil || !in {
				return false, err
			}
		}
		return true, nil
	}
	return slices.ContainsFunc(list, func(e any) bool {
		eq, err := equal(actual, e)
		return err == nil && eq
	}), nil
}
