package indicator

import (
	"math"

	"github.com/thrasher-corp/gct-ta/indicators"
)

// RSI returns the relative strength index at the final price. It is false
// until period+1 prices are available. A flat window reads as 50.
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) <= period {
		return 0, false
	}
	if isFlat(prices[len(prices)-period-1:]) {
		return 50, true
	}
	out := indicators.RSI(prices, period)
	if len(out) == 0 {
		return 0, false
	}
	v := out[len(out)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 50, true
	}
	return math.Min(100, math.Max(0, v)), true
}

// ATR returns the average true range at the final price for a close-only
// series, where each bar's range is the move from the previous close.
func ATR(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) <= period {
		return 0, false
	}
	out := indicators.ATR(closes, closes, closes, period)
	if len(out) == 0 {
		return 0, false
	}
	v := out[len(out)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

func isFlat(prices []float64) bool {
	for _, p := range prices[1:] {
		if p != prices[0] {
			return false
		}
	}
	return true
}
