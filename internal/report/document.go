package report

import (
	"time"

	"github.com/newthinker/backtester/internal/backtest"
	"github.com/newthinker/backtester/internal/core"
	"github.com/newthinker/backtester/internal/portfolio"
)

// Decimal places used when rounding.
const (
	moneyPlaces   = 2
	percentPlaces = 4
	ratioPlaces   = 4
)

// Document is the stable JSON shape of a backtest result.
type Document struct {
	RunID         string    `json:"run_id,omitempty"`
	Label         string    `json:"label"`
	Strategy      string    `json:"strategy"`
	Status        string    `json:"status"`
	HaltBar       int       `json:"halt_bar"` // -1 unless halted
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	BarsProcessed int       `json:"bars_processed"`

	Setup       Setup                   `json:"setup"`
	Stats       StatsDocument           `json:"stats"`
	Trades      []portfolio.ClosedTrade `json:"trades"`
	EquityCurve []portfolio.EquityPoint `json:"equity_curve"`
}

// Setup is the part of the configuration needed to reproduce a run.
type Setup struct {
	Tokens         []string `json:"tokens"`
	QuoteToken     string   `json:"quote_token"`
	Benchmark      string   `json:"benchmark"`
	Interval       string   `json:"interval"`
	InitialCapital Number   `json:"initial_capital"`

	EntryThreshold      Number `json:"entry_threshold"`
	ExitThreshold       Number `json:"exit_threshold"`
	EnableShorts        bool   `json:"enable_shorts"`
	ShortEntryThreshold Number `json:"short_entry_threshold"`
	ShortExitThreshold  Number `json:"short_exit_threshold"`
	MaxPositions        int    `json:"max_positions"`
	LookbackBars        int    `json:"lookback_bars"`
	TrendFilterPeriod   int    `json:"trend_filter_period"`

	SlippageModel  string `json:"slippage_model"`
	SlippageBps    Number `json:"slippage_bps"`
	SwapFeeBps     Number `json:"swap_fee_bps"`
	GasPerTradeUSD Number `json:"gas_per_trade_usd"`

	MaxPositionPct        Number `json:"max_position_pct"`
	StopLossATRMultiple   Number `json:"stop_loss_atr_multiple"`
	TakeProfitATRMultiple Number `json:"take_profit_atr_multiple"`
	MaxDrawdownPct        Number `json:"max_drawdown_pct"`
	TrailingStopPct       Number `json:"trailing_stop_pct"`
}

// StatsDocument mirrors backtest.Stats with rounded values.
type StatsDocument struct {
	InitialCapital Number `json:"initial_capital"`
	FinalEquity    Number `json:"final_equity"`

	TotalReturnPct      Number `json:"total_return_pct"`
	AnnualizedReturnPct Number `json:"annualized_return_pct"`
	MaxDrawdownPct      Number `json:"max_drawdown_pct"`
	MaxDrawdownDuration int    `json:"max_drawdown_duration_bars"`
	VolatilityPct       Number `json:"volatility_pct"`
	DownsideDevPct      Number `json:"downside_deviation_pct"`
	SharpeRatio         Number `json:"sharpe_ratio"`
	SortinoRatio        Number `json:"sortino_ratio"`
	CalmarRatio         Number `json:"calmar_ratio"`

	TotalTrades    int                     `json:"total_trades"`
	WinningTrades  int                     `json:"winning_trades"`
	LosingTrades   int                     `json:"losing_trades"`
	WinRatePct     Number                  `json:"win_rate_pct"`
	ProfitFactor   Number                  `json:"profit_factor"`
	AvgWinPct      Number                  `json:"avg_win_pct"`
	AvgLossPct     Number                  `json:"avg_loss_pct"`
	LargestWinPct  Number                  `json:"largest_win_pct"`
	LargestLossPct Number                  `json:"largest_loss_pct"`
	AvgHoldingBars Number                  `json:"avg_holding_bars"`
	TotalFees      Number                  `json:"total_fees"`
	ExitReasons    map[core.ExitReason]int `json:"exit_reasons"`

	BuyAndHoldReturnPct Number `json:"buy_and_hold_return_pct"`
	AlphaPct            Number `json:"alpha_pct"`
}

// NewDocument converts a result into its JSON shape.
func NewDocument(res *backtest.Result) Document {
	cfg := res.Config

	tokens := make([]string, len(cfg.Tokens))
	for i, t := range cfg.Tokens {
		tokens[i] = t.ID
	}

	trades := res.Trades
	if trades == nil {
		trades = []portfolio.ClosedTrade{}
	}
	curve := res.EquityCurve
	if curve == nil {
		curve = []portfolio.EquityPoint{}
	}

	return Document{
		Label:         res.Label,
		Strategy:      res.Strategy,
		Status:        res.Status(),
		HaltBar:       res.HaltBar,
		StartTime:     res.StartTime,
		EndTime:       res.EndTime,
		BarsProcessed: res.BarsProcessed,
		Setup: Setup{
			Tokens:                tokens,
			QuoteToken:            cfg.QuoteToken,
			Benchmark:             cfg.BenchmarkToken(),
			Interval:              cfg.Interval,
			InitialCapital:        Round(cfg.InitialCapital, moneyPlaces),
			EntryThreshold:        Round(cfg.Strategy.EntryThreshold, ratioPlaces),
			ExitThreshold:         Round(cfg.Strategy.ExitThreshold, ratioPlaces),
			EnableShorts:          cfg.Strategy.EnableShorts,
			ShortEntryThreshold:   Round(cfg.Strategy.ShortEntryThreshold, ratioPlaces),
			ShortExitThreshold:    Round(cfg.Strategy.ShortExitThreshold, ratioPlaces),
			MaxPositions:          cfg.Strategy.MaxPositions,
			LookbackBars:          cfg.Strategy.LookbackBars,
			TrendFilterPeriod:     cfg.Strategy.TrendFilterPeriod,
			SlippageModel:         cfg.Execution.SlippageModel,
			SlippageBps:           Round(cfg.Execution.SlippageBps, ratioPlaces),
			SwapFeeBps:            Round(cfg.Execution.SwapFeeBps, ratioPlaces),
			GasPerTradeUSD:        Round(cfg.Execution.GasPerTradeUSD, moneyPlaces),
			MaxPositionPct:        Round(cfg.Risk.MaxPositionPct, percentPlaces),
			StopLossATRMultiple:   Round(cfg.Risk.StopLossATRMultiple, ratioPlaces),
			TakeProfitATRMultiple: Round(cfg.Risk.TakeProfitATRMultiple, ratioPlaces),
			MaxDrawdownPct:        Round(cfg.Risk.MaxDrawdownPct, percentPlaces),
			TrailingStopPct:       Round(cfg.Risk.TrailingStopPct, percentPlaces),
		},
		Stats:       newStatsDocument(res.Stats),
		Trades:      trades,
		EquityCurve: curve,
	}
}

func newStatsDocument(s backtest.Stats) StatsDocument {
	reasons := s.ExitReasons
	if reasons == nil {
		reasons = map[core.ExitReason]int{}
	}
	return StatsDocument{
		InitialCapital:      Round(s.InitialCapital, moneyPlaces),
		FinalEquity:         Round(s.FinalEquity, moneyPlaces),
		TotalReturnPct:      Round(s.TotalReturnPct, percentPlaces),
		AnnualizedReturnPct: Round(s.AnnualizedReturnPct, percentPlaces),
		MaxDrawdownPct:      Round(s.MaxDrawdownPct, percentPlaces),
		MaxDrawdownDuration: s.MaxDrawdownDuration,
		VolatilityPct:       Round(s.VolatilityPct, percentPlaces),
		DownsideDevPct:      Round(s.DownsideDevPct, percentPlaces),
		SharpeRatio:         Round(s.SharpeRatio, ratioPlaces),
		SortinoRatio:        Round(s.SortinoRatio, ratioPlaces),
		CalmarRatio:         Round(s.CalmarRatio, ratioPlaces),
		TotalTrades:         s.TotalTrades,
		WinningTrades:       s.WinningTrades,
		LosingTrades:        s.LosingTrades,
		WinRatePct:          Round(s.WinRatePct, percentPlaces),
		ProfitFactor:        Round(s.ProfitFactor, ratioPlaces),
		AvgWinPct:           Round(s.AvgWinPct, percentPlaces),
		AvgLossPct:          Round(s.AvgLossPct, percentPlaces),
		LargestWinPct:       Round(s.LargestWinPct, percentPlaces),
		LargestLossPct:      Round(s.LargestLossPct, percentPlaces),
		AvgHoldingBars:      Round(s.AvgHoldingBars, ratioPlaces),
		TotalFees:           Round(s.TotalFees, moneyPlaces),
		ExitReasons:         reasons,
		BuyAndHoldReturnPct: Round(s.BuyAndHoldReturnPct, percentPlaces),
		AlphaPct:            Round(s.AlphaPct, percentPlaces),
	}
}
