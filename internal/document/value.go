package document

import (
	"encoding/json"
	"strconv"
)

// Number converts a numeric scalar to float64. Strings are not numbers.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// Compare orders two numeric scalars, returning -1, 0 or +1. Two integers
// compare exactly; any float operand falls back to float64.
func Compare(a, b any) (int, bool) {
	if ai, ok := integer(a); ok {
		if bi, ok := integer(b); ok {
			switch {
			case ai < bi:
				return -1, true
			case ai > bi:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	af, ok := Number(a)
	if !ok {
		return 0, false
	}
	bf, ok := Number(b)
	if !ok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	case af == bf:
		return 0, true
	default:
		// NaN
		return 0, false
	}
}

// Equal compares two scalars. Numbers compare numerically; values of
// different kinds are never equal. Collections are never equal.
func Equal(a, b any) bool {
	if _, ok := Number(a); ok {
		c, ok := Compare(a, b)
		return ok && c == 0
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

// Format renders a value for human-readable messages.
func Format(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	case nil:
		return "null"
	default:
		data, err := json.Marshal(n)
		if err != nil {
			return "<unprintable>"
		}
		return string(data)
	}
}
