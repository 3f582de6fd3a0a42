package levels

import "github.com/shopspring/decimal"

// RoundToTick snaps price to the nearest multiple of tick (half away from
// zero) and trims the result to the tick's own decimal places, so 0.01 ticks
// give two-decimal prices. A non-positive tick returns price unchanged.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	q := decimal.NewFromFloat(price).Div(t).Round(0).Mul(t).Round(tickPlaces(t))
	f, _ := q.Float64()
	return f
}

func tickPlaces(t decimal.Decimal) int32 {
	if exp := t.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

// withinTolerance compares two already-quantized prices in decimal space so
// that 0.1+0.2 style drift cannot split a cluster.
func withinTolerance(a, b, tol float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(tol))
}
