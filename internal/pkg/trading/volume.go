// Package trading provides order sizing helpers.
package trading

import (
	"github.com/shopspring/decimal"
)

// NormalizeVolume rounds volume down to the nearest multiple of step and
// clamps the result into [min, max]. A non-positive step leaves the volume
// unrounded. Returns 0 when the volume cannot satisfy the minimum.
func NormalizeVolume(volume, step, min, max float64) float64 {
	if volume <= 0 {
		return 0
	}
	v := decimal.NewFromFloat(volume)
	if step > 0 {
		st := decimal.NewFromFloat(step)
		v = v.Div(st).Floor().Mul(st)
	}
	if max > 0 {
		mx := decimal.NewFromFloat(max)
		if v.GreaterThan(mx) {
			v = mx
		}
	}
	if min > 0 {
		mn := decimal.NewFromFloat(min)
		if v.LessThan(mn) {
			return 0
		}
	}
	f, _ := v.Float64()
	return f
}
