package melcloud

import "math"

// Raw record field names shared across device types.
const (
	fieldEffectiveFlags    = "EffectiveFlags"
	fieldHasPendingCommand = "HasPendingCommand"
	fieldPower             = "Power"
)

// asMap returns v as a JSON object, or an empty map when it is not one.
// Missing structure in a cloud response degrades to "no data" rather
// than a panic.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asMapSlice returns v as a list of JSON objects.
func asMapSlice(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// asInt extracts an integer from a decoded JSON value.
// encoding/json decodes numbers as float64; records built in tests may
// carry native ints.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// asFloat extracts a float from a decoded JSON value.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// recordFlags reads the EffectiveFlags accumulator from a state record.
//
// The largest flag in use is 0x1000000000020 (2^48 range), well inside
// float64's exact integer range, so a JSON-decoded value loses nothing.
func recordFlags(state map[string]any) uint64 {
	switch n := state[fieldEffectiveFlags].(type) {
	case uint64:
		return n
	case float64:
		return uint64(n)
	case int:
		return uint64(n)
	case int64:
		return uint64(n)
	default:
		return 0
	}
}

// setRecordFlags writes the EffectiveFlags accumulator on a state record.
func setRecordFlags(state map[string]any, flags uint64) {
	state[fieldEffectiveFlags] = flags
}

// cloneRecord makes a shallow copy of a state record. Writes mutate the
// copy; the authoritative record is only replaced by a poll or a
// submission response.
func cloneRecord(state map[string]any) map[string]any {
	clone := make(map[string]any, len(state))
	for k, v := range state {
		clone[k] = v
	}
	return clone
}

// roundToIncrement rounds a temperature to the nearest multiple of the
// increment, half away from zero. MELCloud setpoints move in 0.5 or 1
// degree steps; half-to-even rounding would drift a 24.25 request down
// to 24.0 instead of up to 24.5.
func roundToIncrement(temperature, increment float64) float64 {
	if increment <= 0 {
		return temperature
	}
	steps := temperature / increment
	if steps >= 0 {
		return math.Floor(steps+0.5) * increment
	}
	return math.Ceil(steps-0.5) * increment
}
