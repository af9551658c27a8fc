package telemetry

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numberPattern matches the first signed decimal in a string like "571 mm" or "-3.6kg"
var numberPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// ParseNumber normalizes a loosely typed payload value to a float.
// Numbers pass through. Strings have decimal commas replaced by periods and the
// first signed decimal extracted. Anything else, including nil and booleans,
// yields no value. It never panics.
func ParseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		return parseString(n.String())
	case string:
		return parseString(n)
	}
	return 0, false
}

func parseString(s string) (float64, bool) {
	m := numberPattern.FindString(strings.ReplaceAll(s, ",", "."))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseInt coerces v through ParseNumber and truncates toward zero
func ParseInt(v any) (int, bool) {
	f, ok := ParseNumber(v)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// firstNumber returns the first of keys whose value parses
func firstNumber(body map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := ParseNumber(body[k]); ok {
			return v, true
		}
	}
	return 0, false
}

// ParseGrams reads weight_g, falling back to weight_kg × 1000 when grams are absent
func ParseGrams(body map[string]any) (float64, bool) {
	if g, ok := ParseNumber(body[KeyWeightGrams]); ok {
		return g, true
	}
	if kg, ok := ParseNumber(body[KeyWeightKilograms]); ok {
		return kg * 1000, true
	}
	return 0, false
}
