package backtest

import (
	"time"

	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/core"
	"github.com/newthinker/backtester/internal/portfolio"
)

// Run statuses reported to a Recorder
const (
	StatusSuccess = "success"
	StatusHalted  = "halted"
	StatusFailed  = "failed"
)

// Result holds the complete backtest output
type Result struct {
	Label         string
	Strategy      string
	Config        config.BacktestConfig
	Stats         Stats
	EquityCurve   []portfolio.EquityPoint
	Trades        []portfolio.ClosedTrade
	Drawdowns     []float64 // percent, one per equity point
	BarsProcessed int
	Halted        bool
	HaltBar       int // -1 unless Halted
	StartTime     time.Time
	EndTime       time.Time
}

// FinalEquity returns the last recorded equity, or initial capital if no
// bar was processed.
func (r *Result) FinalEquity() float64 {
	if len(r.EquityCurve) == 0 {
		return r.Config.InitialCapital
	}
	return r.EquityCurve[len(r.EquityCurve)-1].Equity
}

// Status returns how the run ended
func (r *Result) Status() string {
	if r.Halted {
		return StatusHalted
	}
	return StatusSuccess
}

// Stats holds performance statistics. Percent fields are in percent units.
// Ratios with a zero denominator are +Inf when the numerator is positive,
// otherwise 0.
type Stats struct {
	InitialCapital float64
	FinalEquity    float64

	TotalReturnPct      float64
	AnnualizedReturnPct float64
	MaxDrawdownPct      float64
	MaxDrawdownDuration int // bars
	VolatilityPct       float64
	DownsideDevPct      float64
	SharpeRatio         float64
	SortinoRatio        float64
	CalmarRatio         float64

	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRatePct     float64
	ProfitFactor   float64
	AvgWinPct      float64
	AvgLossPct     float64
	LargestWinPct  float64
	LargestLossPct float64
	AvgHoldingBars float64
	TotalFees      float64 // closing legs
	ExitReasons    map[core.ExitReason]int

	BuyAndHoldReturnPct float64
	AlphaPct            float64
}

// StatsInput is everything the analyzer reduces.
type StatsInput struct {
	InitialCapital float64
	Interval       core.Interval
	Curve          []portfolio.EquityPoint
	Trades         []portfolio.ClosedTrade

	// Benchmark prices; zero when the benchmark token had no data
	BenchmarkFirst float64
	BenchmarkLast  float64
}

// Recorder receives run events, typically for metrics.
type Recorder interface {
	RecordBars(n int)
	RecordTrade(trade portfolio.ClosedTrade)
	RecordRun(status string, duration time.Duration, finalEquity float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordBars(int)                           {}
func (nopRecorder) RecordTrade(portfolio.ClosedTrade)        {}
func (nopRecorder) RecordRun(string, time.Duration, float64) {}
