package backtest

import (
	"math"
	"testing"

	"github.com/newthinker/backtester/internal/core"
	"github.com/newthinker/backtester/internal/portfolio"
	"github.com/stretchr/testify/assert"
)

func curve(initial float64, equities ...float64) []portfolio.EquityPoint {
	out := make([]portfolio.EquityPoint, len(equities))
	peak := initial
	for i, e := range equities {
		if e > peak {
			peak = e
		}
		out[i] = portfolio.EquityPoint{
			Timestamp:   ts0 + int64(i)*86400,
			Bar:         i,
			Equity:      e,
			Cash:        e,
			DrawdownPct: (peak - e) / peak * 100,
		}
	}
	return out
}

func TestCalculateStats_Empty(t *testing.T) {
	s := CalculateStats(StatsInput{InitialCapital: 1000, Interval: core.Interval1d})

	assert.Equal(t, 1000.0, s.FinalEquity)
	assert.Zero(t, s.TotalReturnPct)
	assert.Zero(t, s.AnnualizedReturnPct)
	assert.Zero(t, s.SharpeRatio)
	assert.Zero(t, s.SortinoRatio)
	assert.Zero(t, s.CalmarRatio)
	assert.Zero(t, s.ProfitFactor)
	assert.Zero(t, s.TotalTrades)
	assert.NotNil(t, s.ExitReasons)
}

func TestCalculateStats_Curve(t *testing.T) {
	in := StatsInput{
		InitialCapital: 100,
		Interval:       core.Interval1d,
		Curve:          curve(100, 110, 99, 121),
	}
	s := CalculateStats(in)

	assert.InDelta(t, 121.0, s.FinalEquity, 1e-9)
	assert.InDelta(t, 21.0, s.TotalReturnPct, 1e-9)
	assert.InDelta(t, 10.0, s.MaxDrawdownPct, 1e-9)
	assert.Equal(t, 1, s.MaxDrawdownDuration)

	years := 3.0 / 365
	wantCAGR := (math.Pow(1.21, 1/years) - 1) * 100
	assert.InDelta(t, wantCAGR, s.AnnualizedReturnPct, wantCAGR*1e-9)

	returns := []float64{0.1, -0.1, 121.0/99 - 1}
	mean := (returns[0] + returns[1] + returns[2]) / 3
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	wantVol := math.Sqrt(variance/3) * math.Sqrt(365) * 100
	wantDown := math.Sqrt(0.01/3) * math.Sqrt(365) * 100

	assert.InDelta(t, wantVol, s.VolatilityPct, 1e-9)
	assert.InDelta(t, wantDown, s.DownsideDevPct, 1e-9)
	assert.InDelta(t, s.AnnualizedReturnPct/s.VolatilityPct, s.SharpeRatio, 1e-9)
	assert.InDelta(t, s.AnnualizedReturnPct/s.DownsideDevPct, s.SortinoRatio, 1e-9)
	assert.InDelta(t, s.AnnualizedReturnPct/s.MaxDrawdownPct, s.CalmarRatio, 1e-9)
}

func TestCalculateStats_ZeroVolatility(t *testing.T) {
	// Constant 10% per bar: no dispersion, no downside, no drawdown
	s := CalculateStats(StatsInput{
		InitialCapital: 100,
		Interval:       core.Interval1d,
		Curve:          curve(100, 110, 121),
	})

	assert.InDelta(t, 0, s.VolatilityPct, 1e-9)
	assert.True(t, math.IsInf(s.SortinoRatio, 1))
	assert.True(t, math.IsInf(s.CalmarRatio, 1))

	// Flat equity resolves every ratio to zero
	flat := CalculateStats(StatsInput{
		InitialCapital: 100,
		Interval:       core.Interval1d,
		Curve:          curve(100, 100, 100, 100),
	})
	assert.Zero(t, flat.SharpeRatio)
	assert.Zero(t, flat.SortinoRatio)
	assert.Zero(t, flat.CalmarRatio)
	assert.Zero(t, flat.MaxDrawdownDuration)
}

func TestCalculateStats_TotalLoss(t *testing.T) {
	s := CalculateStats(StatsInput{
		InitialCapital: 100,
		Interval:       core.Interval1h,
		Curve:          curve(100, 50, 0),
	})
	assert.Equal(t, -100.0, s.AnnualizedReturnPct)
	assert.InDelta(t, 100.0, s.MaxDrawdownPct, 1e-9)
}

func TestCalculateStats_DrawdownDuration(t *testing.T) {
	// Two underwater runs of 2 and 3 bars
	s := CalculateStats(StatsInput{
		InitialCapital: 100,
		Interval:       core.Interval1h,
		Curve:          curve(100, 100, 95, 96, 101, 99, 98, 97, 102),
	})
	assert.Equal(t, 3, s.MaxDrawdownDuration)
}

func TestCalculateStats_Trades(t *testing.T) {
	trades := []portfolio.ClosedTrade{
		{PnL: 100, PnLPercent: 10, HoldingBars: 4, Fees: 2, ExitReason: core.ExitTakeProfit},
		{PnL: 50, PnLPercent: 5, HoldingBars: 2, Fees: 2, ExitReason: core.ExitSignal},
		{PnL: -30, PnLPercent: -3, HoldingBars: 6, Fees: 2, ExitReason: core.ExitStopLoss},
		{PnL: 0, PnLPercent: 0, HoldingBars: 0, Fees: 1, ExitReason: core.ExitEndOfData},
	}
	s := CalculateStats(StatsInput{InitialCapital: 1000, Interval: core.Interval1h, Trades: trades})

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	// Breakeven counts as a loss
	assert.Equal(t, 2, s.LosingTrades)
	assert.InDelta(t, 50.0, s.WinRatePct, 1e-9)
	assert.InDelta(t, 150.0/30, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 7.5, s.AvgWinPct, 1e-9)
	assert.InDelta(t, -1.5, s.AvgLossPct, 1e-9)
	assert.InDelta(t, 10.0, s.LargestWinPct, 1e-9)
	assert.InDelta(t, -3.0, s.LargestLossPct, 1e-9)
	assert.InDelta(t, 3.0, s.AvgHoldingBars, 1e-9)
	assert.InDelta(t, 7.0, s.TotalFees, 1e-9)
	assert.Equal(t, 1, s.ExitReasons[core.ExitStopLoss])
	assert.Equal(t, 1, s.ExitReasons[core.ExitEndOfData])
}

func TestCalculateStats_ProfitFactorSentinels(t *testing.T) {
	tests := []struct {
		name   string
		trades []portfolio.ClosedTrade
		inf    bool
	}{
		{name: "no losses", trades: []portfolio.ClosedTrade{{PnL: 10}, {PnL: 5}}, inf: true},
		{name: "only losses", trades: []portfolio.ClosedTrade{{PnL: -10}}},
		{name: "no trades"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := CalculateStats(StatsInput{InitialCapital: 100, Interval: core.Interval1h, Trades: tt.trades})
			if tt.inf {
				assert.True(t, math.IsInf(s.ProfitFactor, 1))
				return
			}
			assert.Zero(t, s.ProfitFactor)
		})
	}
}

func TestCalculateStats_Benchmark(t *testing.T) {
	s := CalculateStats(StatsInput{
		InitialCapital: 100,
		Interval:       core.Interval1d,
		Curve:          curve(100, 105, 112),
		BenchmarkFirst: 200,
		BenchmarkLast:  220,
	})
	assert.InDelta(t, 10.0, s.BuyAndHoldReturnPct, 1e-9)
	assert.InDelta(t, 2.0, s.AlphaPct, 1e-9)

	// Missing benchmark leaves buy-and-hold at zero
	s = CalculateStats(StatsInput{InitialCapital: 100, Interval: core.Interval1d, Curve: curve(100, 90)})
	assert.Zero(t, s.BuyAndHoldReturnPct)
	assert.InDelta(t, -10.0, s.AlphaPct, 1e-9)
}
