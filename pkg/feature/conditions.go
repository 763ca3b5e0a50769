package feature

import (
	"reflect"
	"strconv"
)

// conditionsMatch reports whether every condition equals the attribute of
// the same name. Empty conditions always match.
func conditionsMatch(conditions, attrs map[string]any) bool {
	for k, want := range conditions {
		got, ok := attrs[k]
		if !ok || !valuesEqual(want, got) {
			return false
		}
	}
	return true
}

// valuesEqual compares decoded JSON values. Numbers compare by value so an
// int from a fixture equals a float64 from a request body.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// rolloutIdentifier picks the identity hashed for percentage rollouts: the
// userId attribute when it is a non-empty string or non-zero number,
// otherwise the org.
func rolloutIdentifier(ec EvalContext) string {
	switch id := ec.Attributes["userId"].(type) {
	case string:
		if id != "" {
			return id
		}
	default:
		if f, ok := toFloat(id); ok && f != 0 {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return ec.OrgID
}
