// Package convert turns loosely typed wire values into numbers. Bridge
// responses decode into any and the binance SDK reports amounts as
// strings, so both shapes land here.
package convert

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ToFloat64 converts a decoded JSON value to float64. Unsupported types
// and parse failures yield 0.
func ToFloat64(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}
