package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Float coerces a decoded JSON value to float64.
// Numbers, numeric strings and booleans coerce; everything else reports false.
// NaN and infinities never coerce.
func Float(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int coerces a decoded JSON value to int. Fractional values truncate toward
// zero; values beyond the int range saturate.
func Int(v any) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), true
		}
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		return 0, false
	}
	f, ok := Float(v)
	if !ok {
		return 0, false
	}
	return truncate(f), true
}

// truncate converts a finite float to int toward zero, saturating at the int bounds.
func truncate(f float64) int {
	switch {
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	}
	return int(f)
}

// truthy mirrors the usual JSON notion of an empty value: null, false, 0, "", [] and {}.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

// rgbFrom reads a colour triple, padding missing or non-numeric components with 0.
// Values outside [0,255] are kept.
func rgbFrom(v any) ([3]int, bool) {
	var out [3]int
	list, ok := v.([]any)
	if !ok {
		return out, false
	}
	for i := 0; i < len(out) && i < len(list); i++ {
		if n, ok := Int(list[i]); ok {
			out[i] = n
		}
	}
	return out, true
}
