// internal/rules/operators.go
package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/solatis/oasconform/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Every operator in types.Operator has exactly one entry in operatorTable.
 * Lookup failure is an evaluation error, never a silent false.
 *
 * Definedness:
 *   - exists/does_not_exists look only at whether the path resolved
 *   - is_empty/is_not_empty on a missing value are errors
 *   - every other operator on a missing value evaluates to false
 *
 * Strings compare case-insensitively on both sides, including membership
 * tests against array elements. Numbers from JSON (float64), YAML (int) and
 * json.Number compare numerically. Ordering operators accept number/number
 * or string/string pairs; anything else is an error.
 */

// operatorFunc evaluates one operator. found reports whether the path resolved.
type operatorFunc func(value any, found bool, target any) (bool, error)

var operatorTable = map[types.Operator]operatorFunc{
	types.OpExists:         func(_ any, found bool, _ any) (bool, error) { return found, nil },
	types.OpDoesNotExist:   func(_ any, found bool, _ any) (bool, error) { return !found, nil },
	types.OpIsEmpty:        requireDefined(isEmpty),
	types.OpIsNotEmpty:     requireDefined(negate(isEmpty)),
	types.OpEq:             whenDefined(func(v, t any) (bool, error) { return equal(v, t), nil }),
	types.OpNeq:            whenDefined(func(v, t any) (bool, error) { return !equal(v, t), nil }),
	types.OpLt:             whenDefined(ordered(func(c int) bool { return c < 0 })),
	types.OpLte:            whenDefined(ordered(func(c int) bool { return c <= 0 })),
	types.OpGt:             whenDefined(ordered(func(c int) bool { return c > 0 })),
	types.OpGte:            whenDefined(ordered(func(c int) bool { return c >= 0 })),
	types.OpContains:       whenDefined(contains),
	types.OpDoesNotContain: whenDefined(negate(contains)),
	types.OpIsContained:    whenDefined(func(v, t any) (bool, error) { return contains(t, v) }),
	types.OpIn:             whenDefined(in),
	types.OpNotIn:          whenDefined(negate(in)),
}

// Compare applies op to the resolved value and the comparison target.
func Compare(op types.Operator, value any, found bool, target any) (bool, error) {
	fn, ok := operatorTable[op]
	if !ok {
		return false, fmt.Errorf("%w: %q", types.ErrUnknownOperator, op)
	}
	return fn(value, found, target)
}

// KnownOperator reports whether op is in the closed set.
func KnownOperator(op types.Operator) bool {
	_, ok := operatorTable[op]
	return ok
}

func requireDefined(fn func(v, t any) (bool, error)) operatorFunc {
	return func(value any, found bool, target any) (bool, error) {
		if !found {
			return false, fmt.Errorf("%w: value is undefined", types.ErrRuleEvaluation)
		}
		return fn(value, target)
	}
}

func whenDefined(fn func(v, t any) (bool, error)) operatorFunc {
	return func(value any, found bool, target any) (bool, error) {
		if !found {
			return false, nil
		}
		return fn(value, target)
	}
}

func negate(fn func(v, t any) (bool, error)) func(v, t any) (bool, error) {
	return func(v, t any) (bool, error) {
		ok, err := fn(v, t)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// isEmpty tests length for strings, arrays and objects.
func isEmpty(v, _ any) (bool, error) {
	switch x := v.(type) {
	case string:
		return utf8.RuneCountInString(x) == 0, nil
	case []any:
		return len(x) == 0, nil
	case map[string]any:
		return len(x) == 0, nil
	default:
		return false, fmt.Errorf("%w: length of %T is undefined", types.ErrRuleEvaluation, v)
	}
}

// equal compares numbers numerically, strings case-insensitively, and
// everything else structurally.
func equal(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	sa, oka := a.(string)
	sb, okb := b.(string)
	if oka && okb {
		return strings.EqualFold(sa, sb)
	}
	return reflect.DeepEqual(a, b)
}

// ordered builds an ordering operator from a three-way comparison predicate.
func ordered(pred func(int) bool) func(v, t any) (bool, error) {
	return func(v, t any) (bool, error) {
		c, err := compareOrdered(v, t)
		if err != nil {
			return false, err
		}
		return pred(c), nil
	}
}

// compareOrdered performs three-way comparison (-1/0/1) on numbers or strings.
func compareOrdered(a, b any) (int, error) {
	if na, nb, ok := asNumbers(a, b); ok {
		switch {
		case na < nb:
			return -1, nil
		case na > nb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	sa, oka := a.(string)
	sb, okb := b.(string)
	if oka && okb {
		return strings.Compare(strings.ToLower(sa), strings.ToLower(sb)), nil
	}
	return 0, fmt.Errorf("%w: cannot order %T against %T", types.ErrRuleEvaluation, a, b)
}

// contains tests substring for strings and membership for arrays.
func contains(haystack, needle any) (bool, error) {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("%w: cannot search string for %T", types.ErrRuleEvaluation, needle)
		}
		return strings.Contains(strings.ToLower(h), strings.ToLower(n)), nil
	case []any:
		return member(h, needle), nil
	default:
		return false, fmt.Errorf("%w: cannot search %T", types.ErrRuleEvaluation, haystack)
	}
}

// in tests membership of value in an array comparison value.
func in(value, set any) (bool, error) {
	arr, ok := set.([]any)
	if !ok {
		return false, fmt.Errorf("%w: in/not_in expects an array, got %T", types.ErrRuleEvaluation, set)
	}
	return member(arr, value), nil
}

func member(arr []any, value any) bool {
	for _, elem := range arr {
		if equal(elem, value) {
			return true
		}
	}
	return false
}

// asNumbers attempts to convert both values to float64.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// toFloat64 converts numeric values produced by JSON and YAML decoders.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
