package comparison

import "github.com/shopspring/decimal"

// MinorUnitPlaces is the currency precision applied when a figure is surfaced.
const MinorUnitPlaces = 2

// Round2 rounds a monetary figure half away from zero to minor-unit precision.
// Only call it on final figures; sums must be taken on unrounded values.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(MinorUnitPlaces).InexactFloat64()
}
