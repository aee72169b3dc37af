package backtest

import (
	"math"

	"github.com/newthinker/backtester/internal/core"
)

// CalculateStats reduces an equity curve and trade log to performance
// statistics. It always returns a result; undefined ratios resolve to the
// sentinels documented on Stats.
func CalculateStats(in StatsInput) Stats {
	s := Stats{
		InitialCapital: in.InitialCapital,
		FinalEquity:    in.InitialCapital,
		ExitReasons:    make(map[core.ExitReason]int),
	}
	if n := len(in.Curve); n > 0 {
		s.FinalEquity = in.Curve[n-1].Equity
	}

	if in.InitialCapital > 0 {
		s.TotalReturnPct = (s.FinalEquity/in.InitialCapital - 1) * 100
	}
	barsPerYear := in.Interval.BarsPerYear()
	s.AnnualizedReturnPct = annualizedReturn(in.InitialCapital, s.FinalEquity, len(in.Curve), barsPerYear)

	s.MaxDrawdownPct, s.MaxDrawdownDuration = maxDrawdown(in)

	returns := barReturns(in)
	annualize := math.Sqrt(barsPerYear)
	s.VolatilityPct = stdDev(returns) * annualize * 100
	s.DownsideDevPct = downsideDeviation(returns) * annualize * 100

	s.SharpeRatio = ratio(s.AnnualizedReturnPct, s.VolatilityPct)
	s.SortinoRatio = ratio(s.AnnualizedReturnPct, s.DownsideDevPct)
	s.CalmarRatio = ratio(s.AnnualizedReturnPct, s.MaxDrawdownPct)

	tradeStats(&s, in)

	if in.BenchmarkFirst > 0 && in.BenchmarkLast > 0 {
		s.BuyAndHoldReturnPct = (in.BenchmarkLast/in.BenchmarkFirst - 1) * 100
	}
	s.AlphaPct = s.TotalReturnPct - s.BuyAndHoldReturnPct

	return s
}

// ratio divides, resolving a zero denominator to +Inf for a positive
// numerator and 0 otherwise.
func ratio(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) {
		if num > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return num / den
}

// annualizedReturn is the compound annual growth rate in percent over bars
// periods.
func annualizedReturn(initial, final float64, bars int, barsPerYear float64) float64 {
	if initial <= 0 || bars == 0 || barsPerYear <= 0 {
		return 0
	}
	if final <= 0 {
		return -100
	}
	years := float64(bars) / barsPerYear
	return (math.Pow(final/initial, 1/years) - 1) * 100
}

// maxDrawdown returns the deepest recorded drawdown and the longest run of
// bars spent below a prior peak.
func maxDrawdown(in StatsInput) (float64, int) {
	var maxDD float64
	var longest, current int
	for _, pt := range in.Curve {
		if pt.DrawdownPct > maxDD {
			maxDD = pt.DrawdownPct
		}
		if pt.DrawdownPct > 0 {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return maxDD, longest
}

// barReturns computes bar-to-bar equity returns, starting from initial
// capital.
func barReturns(in StatsInput) []float64 {
	if len(in.Curve) == 0 {
		return nil
	}
	returns := make([]float64, 0, len(in.Curve))
	prev := in.InitialCapital
	for _, pt := range in.Curve {
		if prev > 0 {
			returns = append(returns, pt.Equity/prev-1)
		}
		prev = pt.Equity
	}
	return returns
}

// stdDev is the population standard deviation
func stdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	return math.Sqrt(variance / float64(len(xs)))
}

// downsideDeviation accumulates only negative returns, over all N
func downsideDeviation(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		if x < 0 {
			sum += x * x
		}
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func tradeStats(s *Stats, in StatsInput) {
	s.TotalTrades = len(in.Trades)
	if s.TotalTrades == 0 {
		return
	}

	var grossProfit, grossLoss, winPctSum, lossPctSum float64
	var holding int
	for _, t := range in.Trades {
		s.ExitReasons[t.ExitReason]++
		s.TotalFees += t.Fees
		holding += t.HoldingBars

		if t.IsWin() {
			s.WinningTrades++
			grossProfit += t.PnL
			winPctSum += t.PnLPercent
			if t.PnLPercent > s.LargestWinPct {
				s.LargestWinPct = t.PnLPercent
			}
			continue
		}
		s.LosingTrades++
		grossLoss += -t.PnL
		lossPctSum += t.PnLPercent
		if t.PnLPercent < s.LargestLossPct {
			s.LargestLossPct = t.PnLPercent
		}
	}

	s.WinRatePct = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	s.ProfitFactor = ratio(grossProfit, grossLoss)
	if s.WinningTrades > 0 {
		s.AvgWinPct = winPctSum / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLossPct = lossPctSum / float64(s.LosingTrades)
	}
	s.AvgHoldingBars = float64(holding) / float64(s.TotalTrades)
}
