package property

import (
	"fmt"
	"reflect"
	"strings"
)

// Operator names a comparison.
type Operator string

// Comparison operators. Long-form aliases are accepted by Compare.
const (
	OpTrue    Operator = "true"
	OpFalse   Operator = "false"
	OpNull    Operator = "null"
	OpNotNull Operator = "nnull"
	OpEmpty   Operator = "empty"
	OpNEmpty  Operator = "nempty"
	OpEqual   Operator = "=="
	OpNEqual  Operator = "!="
	OpLess    Operator = "<"
	OpLessEq  Operator = "<="
	OpGreater Operator = ">"
	OpGreatEq Operator = ">="
	OpBetween Operator = "between"
	OpOutside Operator = "outside"
	OpContain Operator = "contain"
)

var operatorAliases = map[Operator]Operator{
	"equal":  OpEqual,
	"nequal": OpNEqual,
	"lt":     OpLess,
	"lte":    OpLessEq,
	"gt":     OpGreater,
	"gte":    OpGreatEq,
	"=":      OpEqual,
	"<>":     OpNEqual,
}

// Canonical maps an alias to its operator.
func (op Operator) Canonical() Operator {
	if c, ok := operatorAliases[op]; ok {
		return c
	}
	return op
}

// NeedsThreshold reports whether op compares against a second value.
func NeedsThreshold(op Operator) bool {
	switch op.Canonical() {
	case OpTrue, OpFalse, OpNull, OpNotNull, OpEmpty, OpNEmpty:
		return false
	}
	return true
}

// Comparator evaluates operators. The zero value is ready to use.
type Comparator struct{}

// Compare evaluates "a op b".
//
// Ordering operators require both sides to be numeric. between and outside
// take b as a two-element list or a "lo,hi" / "lo..hi" string; bounds are
// inclusive and a range with lo > hi wraps (e.g. 22..6 for night hours).
func (Comparator) Compare(a any, op Operator, b any) (bool, error) {
	return Compare(a, op, b)
}

// Compare is the package-level form of Comparator.Compare.
func Compare(a any, op Operator, b any) (bool, error) {
	switch op.Canonical() {
	case OpTrue:
		return IsTrue(a), nil
	case OpFalse:
		return IsFalse(a), nil
	case OpNull:
		return a == nil, nil
	case OpNotNull:
		return a != nil, nil
	case OpEmpty:
		return isEmptyValue(a), nil
	case OpNEmpty:
		return !isEmptyValue(a), nil
	case OpEqual:
		return equalValues(a, b), nil
	case OpNEqual:
		return !equalValues(a, b), nil
	case OpLess, OpLessEq, OpGreater, OpGreatEq:
		x, okA := ToFloat(a)
		y, okB := ToFloat(b)
		if !okA || !okB {
			return false, fmt.Errorf("%w: %v %s %v", ErrNotNumeric, a, op, b)
		}
		switch op.Canonical() {
		case OpLess:
			return x < y, nil
		case OpLessEq:
			return x <= y, nil
		case OpGreater:
			return x > y, nil
		default:
			return x >= y, nil
		}
	case OpBetween, OpOutside:
		x, ok := ToFloat(a)
		if !ok {
			return false, fmt.Errorf("%w: %v", ErrNotNumeric, a)
		}
		lo, hi, err := parseRange(b)
		if err != nil {
			return false, err
		}
		var in bool
		if lo <= hi {
			in = x >= lo && x <= hi
		} else {
			in = x >= lo || x <= hi
		}
		if op.Canonical() == OpOutside {
			return !in, nil
		}
		return in, nil
	case OpContain:
		return containsValue(a, b), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
}

func equalValues(a, b any) bool {
	x, okA := ToFloat(a)
	y, okB := ToFloat(b)
	if okA && okB {
		return x == y
	}
	return toString(a) == toString(b)
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() { //nolint:exhaustive // only containers have a length
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func containsValue(a, b any) bool {
	if list, ok := a.([]any); ok {
		for _, el := range list {
			if equalValues(el, b) {
				return true
			}
		}
		return false
	}
	return strings.Contains(toString(a), toString(b))
}

func parseRange(b any) (lo, hi float64, err error) {
	var parts []any
	switch r := b.(type) {
	case []any:
		parts = r
	case []float64:
		for _, f := range r {
			parts = append(parts, f)
		}
	case string:
		sep := ","
		if strings.Contains(r, "..") {
			sep = ".."
		}
		for _, p := range strings.Split(r, sep) {
			parts = append(parts, strings.TrimSpace(p))
		}
	default:
		return 0, 0, fmt.Errorf("%w: range %v", ErrNotNumeric, b)
	}
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: range needs two bounds, got %v", ErrNotNumeric, b)
	}
	var okLo, okHi bool
	lo, okLo = ToFloat(parts[0])
	hi, okHi = ToFloat(parts[1])
	if !okLo || !okHi {
		return 0, 0, fmt.Errorf("%w: range %v", ErrNotNumeric, b)
	}
	return lo, hi, nil
}
