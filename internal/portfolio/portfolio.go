// Package portfolio owns cash and open positions for one simulated run.
package portfolio

import (
	"fmt"
	"math"

	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/core"
	"github.com/newthinker/backtester/internal/exchange"
	"go.uber.org/zap"
)

// minATRFraction is the ATR floor as a fraction of price
const minATRFraction = 0.02

// costBasisTolerance is the relative drift allowed between CostBasis and
// Size*EntryPrice before it is reported
const costBasisTolerance = 1e-9

// Portfolio tracks cash, open positions, closed trades and the equity curve.
// It is not safe for concurrent use; one run owns one Portfolio.
type Portfolio struct {
	exchange *exchange.Simulator
	risk     config.RiskConfig
	logger   *zap.Logger

	cash       float64
	open       []*Position
	index      map[string]*Position // position id -> position
	closed     []ClosedTrade
	curve      []EquityPoint
	peak       float64
	lastPrices map[string]float64
	seq        int
}

// Option configures a Portfolio.
type Option func(*Portfolio)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Portfolio) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a portfolio holding initialCapital in cash.
func New(initialCapital float64, ex *exchange.Simulator, risk config.RiskConfig, opts ...Option) *Portfolio {
	p := &Portfolio{
		exchange:   ex,
		risk:       risk,
		logger:     zap.NewNop(),
		cash:       initialCapital,
		index:      make(map[string]*Position),
		peak:       initialCapital,
		lastPrices: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenPosition allocates EquityPct of CurrentEquity to a new position. It
// returns false, leaving state untouched, when the allocation is not
// positive, exceeds cash, or would be consumed by fees.
func (p *Portfolio) OpenPosition(req OpenRequest) (*Position, bool) {
	if !req.Direction.Valid() || req.Price <= 0 {
		return nil, false
	}
	allocation := req.CurrentEquity * req.EquityPct / 100
	if allocation <= 0 || allocation > p.cash {
		return nil, false
	}

	var (
		fill exchange.FillResult
		err  error
	)
	if req.Direction == core.Long {
		fill, err = p.exchange.SimulateBuy(req.Price, allocation)
	} else {
		fill, err = p.exchange.SimulateSell(req.Price, allocation)
	}
	if err != nil || allocation <= fill.TotalFees {
		return nil, false
	}

	size := (allocation - fill.TotalFees) / fill.FillPrice
	atr := req.ATR
	if atr <= 0 || math.IsNaN(atr) {
		atr = req.Price * minATRFraction
	}

	p.seq++
	pos := &Position{
		ID:             fmt.Sprintf("pos-%d", p.seq),
		Token:          req.Token,
		Symbol:         req.Symbol,
		Direction:      req.Direction,
		EntryPrice:     fill.FillPrice,
		EntryBar:       req.BarIndex,
		EntryTimestamp: req.Timestamp,
		Size:           size,
		CostBasis:      size * fill.FillPrice,
		EntryFees:      fill.TotalFees,
	}

	trail, hasTrail := p.risk.TrailingStop()
	if req.Direction == core.Long {
		pos.StopLoss = fill.FillPrice - atr*p.risk.StopLossATRMultiple
		pos.TakeProfit = fill.FillPrice + atr*p.risk.TakeProfitATRMultiple
		if hasTrail {
			pos.TrailingStop = core.SomeLevel(fill.FillPrice * (1 - trail/100))
		}
	} else {
		pos.StopLoss = fill.FillPrice + atr*p.risk.StopLossATRMultiple
		pos.TakeProfit = fill.FillPrice - atr*p.risk.TakeProfitATRMultiple
		if hasTrail {
			pos.TrailingStop = core.SomeLevel(fill.FillPrice * (1 + trail/100))
		}
	}

	p.cash -= allocation
	p.open = append(p.open, pos)
	p.index[pos.ID] = pos
	p.lastPrices[req.Token] = req.Price

	p.logger.Debug("position opened",
		zap.String("id", pos.ID),
		zap.String("token", pos.Token),
		zap.String("direction", string(pos.Direction)),
		zap.Float64("fill_price", pos.EntryPrice),
		zap.Float64("size", pos.Size),
		zap.Float64("stop_loss", pos.StopLoss),
		zap.Float64("take_profit", pos.TakeProfit),
	)

	return pos, true
}

// ClosePosition fills the opposite side of position id at exitPrice and
// records the trade. An unknown id returns false.
func (p *Portfolio) ClosePosition(id string, exitPrice float64, reason core.ExitReason, barIndex int, timestamp int64) (*ClosedTrade, bool) {
	trade, ok := p.closeOne(id, exitPrice, reason, barIndex, timestamp)
	if !ok {
		return nil, false
	}
	p.compact()
	return trade, true
}

// closeOne settles a position without compacting the open list, so callers
// scanning p.open can close several positions in one pass.
func (p *Portfolio) closeOne(id string, exitPrice float64, reason core.ExitReason, barIndex int, timestamp int64) (*ClosedTrade, bool) {
	pos, ok := p.index[id]
	if !ok {
		return nil, false
	}

	notional := pos.Size * exitPrice
	var (
		fill exchange.FillResult
		err  error
	)
	if pos.Direction == core.Long {
		fill, err = p.exchange.SimulateSell(exitPrice, notional)
	} else {
		fill, err = p.exchange.SimulateBuy(exitPrice, notional)
	}
	if err != nil {
		p.logger.Warn("close rejected",
			zap.String("id", id),
			zap.Float64("exit_price", exitPrice),
			zap.Error(err),
		)
		return nil, false
	}

	var pnl float64
	if pos.Direction == core.Long {
		pnl = pos.Size*fill.FillPrice - pos.CostBasis - fill.TotalFees
	} else {
		p.verifyCostBasis(pos)
		pnl = pos.CostBasis - pos.Size*fill.FillPrice - fill.TotalFees
	}

	pnlPct := 0.0
	if pos.CostBasis > 0 {
		pnlPct = pnl / pos.CostBasis * 100
	}

	trade := ClosedTrade{
		PositionID:     pos.ID,
		Token:          pos.Token,
		Symbol:         pos.Symbol,
		Direction:      pos.Direction,
		EntryPrice:     pos.EntryPrice,
		ExitPrice:      fill.FillPrice,
		EntryTimestamp: pos.EntryTimestamp,
		ExitTimestamp:  timestamp,
		EntryBar:       pos.EntryBar,
		ExitBar:        barIndex,
		Size:           pos.Size,
		PnL:            pnl,
		PnLPercent:     pnlPct,
		HoldingBars:    barIndex - pos.EntryBar,
		ExitReason:     reason,
		Fees:           fill.TotalFees,
	}

	p.cash += pos.CostBasis + pnl
	delete(p.index, id)
	p.closed = append(p.closed, trade)
	p.lastPrices[pos.Token] = exitPrice

	p.logger.Debug("position closed",
		zap.String("id", pos.ID),
		zap.String("token", pos.Token),
		zap.String("reason", string(reason)),
		zap.Float64("exit_price", trade.ExitPrice),
		zap.Float64("pnl", pnl),
	)

	return &trade, true
}

// verifyCostBasis reports drift between the stored cost basis and the one
// implied by size and entry price. Drift means sizing went wrong at entry.
func (p *Portfolio) verifyCostBasis(pos *Position) {
	implied := pos.Size * pos.EntryPrice
	if pos.CostBasis == 0 && implied == 0 {
		return
	}
	drift := math.Abs(pos.CostBasis-implied) / math.Max(math.Abs(pos.CostBasis), math.Abs(implied))
	if drift > costBasisTolerance {
		p.logger.Error("short position cost basis drift",
			zap.String("id", pos.ID),
			zap.Float64("cost_basis", pos.CostBasis),
			zap.Float64("implied", implied),
			zap.Float64("relative_drift", drift),
		)
	}
}

// compact drops closed positions from the open list, keeping entry order.
func (p *Portfolio) compact() {
	kept := p.open[:0]
	for _, pos := range p.open {
		if _, ok := p.index[pos.ID]; ok {
			kept = append(kept, pos)
		}
	}
	for i := len(kept); i < len(p.open); i++ {
		p.open[i] = nil
	}
	p.open = kept
}

// CloseAllPositions closes every open position with reason. Each position
// exits at its token's price in prices, else the last known price, else its
// entry price.
func (p *Portfolio) CloseAllPositions(prices map[string]float64, barIndex int, timestamp int64, reason core.ExitReason) []ClosedTrade {
	var trades []ClosedTrade
	for _, pos := range p.open {
		price := p.markPrice(pos, prices)
		if trade, ok := p.closeOne(pos.ID, price, reason, barIndex, timestamp); ok {
			trades = append(trades, *trade)
		}
	}
	p.compact()
	return trades
}

func (p *Portfolio) markPrice(pos *Position, prices map[string]float64) float64 {
	if px, ok := prices[pos.Token]; ok && px > 0 {
		return px
	}
	if px, ok := p.lastPrices[pos.Token]; ok && px > 0 {
		return px
	}
	return pos.EntryPrice
}

// Equity returns cash plus open positions marked at prices. A position with
// no price is marked at its entry price.
func (p *Portfolio) Equity(prices map[string]float64) float64 {
	return p.cash + p.positionsValue(prices)
}

func (p *Portfolio) positionsValue(prices map[string]float64) float64 {
	var total float64
	for _, pos := range p.open {
		price, ok := prices[pos.Token]
		if !ok || price <= 0 {
			price = pos.EntryPrice
		}
		total += pos.Value(price)
	}
	return total
}

// RecordEquityPoint appends the bar's mark-to-market snapshot and updates
// the running peak.
func (p *Portfolio) RecordEquityPoint(prices map[string]float64, barIndex int, timestamp int64) EquityPoint {
	for token, px := range prices {
		if px > 0 {
			p.lastPrices[token] = px
		}
	}

	posValue := p.positionsValue(prices)
	equity := p.cash + posValue
	if equity > p.peak {
		p.peak = equity
	}

	pt := EquityPoint{
		Timestamp:      timestamp,
		Bar:            barIndex,
		Equity:         equity,
		Cash:           p.cash,
		PositionsValue: posValue,
		DrawdownPct:    drawdownPct(p.peak, equity),
	}
	p.curve = append(p.curve, pt)
	return pt
}

// DrawdownAt returns the drawdown the portfolio would record at prices,
// without appending a point.
func (p *Portfolio) DrawdownAt(prices map[string]float64) float64 {
	equity := p.Equity(prices)
	return drawdownPct(math.Max(p.peak, equity), equity)
}

// IsCircuitBreakerTriggered reports whether the latest recorded drawdown
// reached maxDrawdownPct.
func (p *Portfolio) IsCircuitBreakerTriggered(maxDrawdownPct float64) bool {
	if len(p.curve) == 0 {
		return false
	}
	return p.curve[len(p.curve)-1].DrawdownPct >= maxDrawdownPct
}

func drawdownPct(peak, equity float64) float64 {
	if peak <= 0 {
		return 0
	}
	dd := (peak - equity) / peak * 100
	return math.Min(100, math.Max(0, dd))
}

// Cash returns uninvested cash.
func (p *Portfolio) Cash() float64 {
	return p.cash
}

// PeakEquity returns the highest recorded equity, starting at initial capital.
func (p *Portfolio) PeakEquity() float64 {
	return p.peak
}

// OpenCount returns the number of open positions.
func (p *Portfolio) OpenCount() int {
	return len(p.open)
}

// OpenPositions returns copies of the open positions in entry order.
func (p *Portfolio) OpenPositions() []Position {
	out := make([]Position, 0, len(p.open))
	for _, pos := range p.open {
		out = append(out, *pos)
	}
	return out
}

// PositionFor returns the open position on token, if any.
func (p *Portfolio) PositionFor(token string) (Position, bool) {
	for _, pos := range p.open {
		if pos.Token == token {
			return *pos, true
		}
	}
	return Position{}, false
}

// HasPosition reports whether token has an open position.
func (p *Portfolio) HasPosition(token string) bool {
	_, ok := p.PositionFor(token)
	return ok
}

// ClosedTrades returns the trade log in close order.
func (p *Portfolio) ClosedTrades() []ClosedTrade {
	out := make([]ClosedTrade, len(p.closed))
	copy(out, p.closed)
	return out
}

// EquityCurve returns the recorded equity points.
func (p *Portfolio) EquityCurve() []EquityPoint {
	out := make([]EquityPoint, len(p.curve))
	copy(out, p.curve)
	return out
}
