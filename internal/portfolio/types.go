package portfolio

import "github.com/newthinker/backtester/internal/core"

// Position is an open exposure. It closes all at once.
type Position struct {
	ID             string
	Token          string
	Symbol         string
	Direction      core.Direction
	EntryPrice     float64 // fill price, slippage included
	EntryBar       int
	EntryTimestamp int64
	Size           float64
	CostBasis      float64 // Size * EntryPrice
	EntryFees      float64
	StopLoss       float64
	TakeProfit     float64
	TrailingStop   core.Level
}

// Value marks the position at price. A short gains what the price loses.
func (p *Position) Value(price float64) float64 {
	if p.Direction == core.Short {
		return p.Size * (2*p.EntryPrice - price)
	}
	return p.Size * price
}

// ClosedTrade is the immutable record of a closed position.
type ClosedTrade struct {
	PositionID     string          `json:"position_id"`
	Token          string          `json:"token"`
	Symbol         string          `json:"symbol"`
	Direction      core.Direction  `json:"direction"`
	EntryPrice     float64         `json:"entry_price"`
	ExitPrice      float64         `json:"exit_price"`
	EntryTimestamp int64           `json:"entry_timestamp"`
	ExitTimestamp  int64           `json:"exit_timestamp"`
	EntryBar       int             `json:"entry_bar"`
	ExitBar        int             `json:"exit_bar"`
	Size           float64         `json:"size"`
	PnL            float64         `json:"pnl"`
	PnLPercent     float64         `json:"pnl_pct"`
	HoldingBars    int             `json:"holding_bars"`
	ExitReason     core.ExitReason `json:"exit_reason"`
	Fees           float64         `json:"fees"` // closing leg only
}

// IsWin reports whether the trade made money after fees.
func (t ClosedTrade) IsWin() bool {
	return t.PnL > 0
}

// EquityPoint is the mark-to-market snapshot for one bar.
type EquityPoint struct {
	Timestamp      int64   `json:"timestamp"`
	Bar            int     `json:"bar"`
	Equity         float64 `json:"equity"`
	Cash           float64 `json:"cash"`
	PositionsValue float64 `json:"positions_value"`
	DrawdownPct    float64 `json:"drawdown_pct"`
}

// OpenRequest carries everything needed to open a position.
type OpenRequest struct {
	Token         string
	Symbol        string
	Direction     core.Direction
	Price         float64
	EquityPct     float64
	CurrentEquity float64
	ATR           float64
	BarIndex      int
	Timestamp     int64
}
