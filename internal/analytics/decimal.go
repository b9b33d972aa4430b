package analytics

import (
	"github.com/shopspring/decimal"
)

// ToDecimal recursively walks v (maps, slices, and scalars) and replaces
// every binary float64 with a fixed-precision decimal.Decimal, because
// the KV store rejects binary floats (spec.md §4.10, §6 "all numeric
// fractional values stored as fixed-precision decimal").
func ToDecimal(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ToDecimal(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ToDecimal(item)
		}
		return out
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat32(val)
	default:
		return v
	}
}
