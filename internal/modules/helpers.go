package modules

import (
	"math"

	"github.com/go-faster/errors"
)

// StringParam returns params[key] as a string, or "" when absent.
func StringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// IntParam returns params[key] as an int. JSON numbers arrive as float64.
func IntParam(params map[string]any, key string) (int, bool) {
	f, ok := params[key].(float64)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// RequireInt is IntParam for required parameters.
func RequireInt(params map[string]any, key string) (int, error) {
	n, ok := IntParam(params, key)
	if !ok {
		return 0, errors.Errorf("parameter %q must be an integer", key)
	}
	return n, nil
}

// Int64Param returns params[key] as an int64, or def when absent.
func Int64Param(params map[string]any, key string, def int64) (int64, error) {
	v, exists := params[key]
	if !exists || v == nil {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("parameter %q must be an integer", key)
	}
	return int64(f), nil
}

// BoolParam returns params[key] as a bool, or def when absent.
func BoolParam(params map[string]any, key string, def bool) bool {
	b, ok := params[key].(bool)
	if !ok {
		return def
	}
	return b
}

// IntSliceParam converts a JSON array of numbers to []int.
func IntSliceParam(params map[string]any, key string) ([]int, error) {
	raw, ok := params[key].([]any)
	if !ok {
		return nil, errors.Errorf("parameter %q must be an array of integers", key)
	}
	out := make([]int, 0, len(raw))
	for i, item := range raw {
		f, ok := item.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, errors.Errorf("parameter %q: element %d is not an integer", key, i)
		}
		out = append(out, int(f))
	}
	return out, nil
}
