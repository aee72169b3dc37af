package portfolio

import (
	"math"

	"github.com/newthinker/backtester/internal/core"
)

// CheckOrders evaluates protective exits for every open position with a
// price in prices. The trailing stop is tightened first, then the first
// satisfied of stop-loss, take-profit and trailing stop closes the position
// at the bar price. Positions without a price are left alone.
func (p *Portfolio) CheckOrders(prices map[string]float64, barIndex int, timestamp int64) []ClosedTrade {
	trail, hasTrail := p.risk.TrailingStop()

	var trades []ClosedTrade
	for _, pos := range p.open {
		price, ok := prices[pos.Token]
		if !ok || price <= 0 {
			continue
		}
		if hasTrail {
			tightenTrailingStop(pos, price, trail)
		}
		reason, hit := triggered(pos, price)
		if !hit {
			continue
		}
		if trade, ok := p.closeOne(pos.ID, price, reason, barIndex, timestamp); ok {
			trades = append(trades, *trade)
		}
	}
	p.compact()
	return trades
}

// tightenTrailingStop moves the stop toward price. A long's stop only rises,
// a short's only falls.
func tightenTrailingStop(pos *Position, price, pct float64) {
	current, ok := pos.TrailingStop.Get()
	if !ok {
		return
	}
	if pos.Direction == core.Long {
		pos.TrailingStop = core.SomeLevel(math.Max(current, price*(1-pct/100)))
		return
	}
	pos.TrailingStop = core.SomeLevel(math.Min(current, price*(1+pct/100)))
}

// triggered applies the precedence stop-loss > take-profit > trailing stop.
func triggered(pos *Position, price float64) (core.ExitReason, bool) {
	trail, hasTrail := pos.TrailingStop.Get()

	if pos.Direction == core.Long {
		switch {
		case price <= pos.StopLoss:
			return core.ExitStopLoss, true
		case price >= pos.TakeProfit:
			return core.ExitTakeProfit, true
		case hasTrail && price <= trail:
			return core.ExitTrailingStop, true
		}
		return "", false
	}

	switch {
	case price >= pos.StopLoss:
		return core.ExitStopLoss, true
	case price <= pos.TakeProfit:
		return core.ExitTakeProfit, true
	case hasTrail && price >= trail:
		return core.ExitTrailingStop, true
	}
	return "", false
}
