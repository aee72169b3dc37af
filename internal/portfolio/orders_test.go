package portfolio

import (
	"testing"

	"github.com/newthinker/backtester/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOrders_StopLossAndTakeProfit(t *testing.T) {
	p := newTestPortfolio(t, testRisk())
	_, ok := p.OpenPosition(openReq("eth", core.Long, 100)) // SL 96.3, TP 108.3
	require.True(t, ok)
	_, ok = p.OpenPosition(openReq("btc", core.Long, 100))
	require.True(t, ok)

	trades := p.CheckOrders(map[string]float64{"eth": 96, "btc": 100}, 1, 10)
	require.Len(t, trades, 1)
	assert.Equal(t, core.ExitStopLoss, trades[0].ExitReason)
	assert.Equal(t, "eth", trades[0].Token)

	trades = p.CheckOrders(map[string]float64{"btc": 109}, 2, 20)
	require.Len(t, trades, 1)
	assert.Equal(t, core.ExitTakeProfit, trades[0].ExitReason)
	assert.Equal(t, 0, p.OpenCount())
}

func TestCheckOrders_Precedence(t *testing.T) {
	tests := []struct {
		name       string
		dir        core.Direction
		stopLoss   float64
		takeProfit float64
		trailing   core.Level
		price      float64
		want       core.ExitReason
	}{
		{"long stop-loss beats take-profit", core.Long, 105, 95, core.Level{}, 100, core.ExitStopLoss},
		{"long stop-loss beats trailing", core.Long, 101, 200, core.SomeLevel(102), 100, core.ExitStopLoss},
		{"long take-profit beats trailing", core.Long, 50, 95, core.SomeLevel(110), 100, core.ExitTakeProfit},
		{"short stop-loss beats take-profit", core.Short, 95, 105, core.Level{}, 100, core.ExitStopLoss},
		{"short take-profit beats trailing", core.Short, 150, 105, core.SomeLevel(90), 100, core.ExitTakeProfit},
		{"short trailing only", core.Short, 150, 50, core.SomeLevel(99), 100, core.ExitTrailingStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPortfolio(t, testRisk())
			pos, ok := p.OpenPosition(openReq("eth", tt.dir, 100))
			require.True(t, ok)
			open := p.index[pos.ID]
			open.StopLoss = tt.stopLoss
			open.TakeProfit = tt.takeProfit
			open.TrailingStop = tt.trailing

			trades := p.CheckOrders(map[string]float64{"eth": tt.price}, 1, 0)
			require.Len(t, trades, 1)
			assert.Equal(t, tt.want, trades[0].ExitReason)
		})
	}
}

func TestCheckOrders_MissingPriceUntouched(t *testing.T) {
	p := newTestPortfolio(t, testRisk())
	_, ok := p.OpenPosition(openReq("eth", core.Long, 100))
	require.True(t, ok)

	trades := p.CheckOrders(map[string]float64{"btc": 1}, 1, 0)
	assert.Empty(t, trades)
	assert.Equal(t, 1, p.OpenCount())
}

func TestCheckOrders_MultipleSameBar(t *testing.T) {
	p := newTestPortfolio(t, testRisk())
	for _, token := range []string{"a", "b", "c"} {
		_, ok := p.OpenPosition(openReq(token, core.Long, 100))
		require.True(t, ok)
	}

	trades := p.CheckOrders(map[string]float64{"a": 90, "b": 101, "c": 90}, 1, 0)
	require.Len(t, trades, 2)
	assert.Equal(t, "a", trades[0].Token)
	assert.Equal(t, "c", trades[1].Token)

	open := p.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "b", open[0].Token)
}

func TestTrailingStop_LongOnlyRises(t *testing.T) {
	risk := testRisk()
	risk.TrailingStopPct = 5
	risk.TakeProfitATRMultiple = 100
	p := newTestPortfolio(t, risk)

	pos, ok := p.OpenPosition(openReq("eth", core.Long, 100))
	require.True(t, ok)
	id := pos.ID

	last, _ := p.index[id].TrailingStop.Get()
	for i, px := range []float64{103, 106, 104.9} {
		trades := p.CheckOrders(map[string]float64{"eth": px}, i+1, 0)
		require.Empty(t, trades)
		cur, ok := p.index[id].TrailingStop.Get()
		require.True(t, ok)
		assert.GreaterOrEqual(t, cur, last)
		last = cur
	}
	assert.InDelta(t, 106*0.95, last, 1e-9)

	trades := p.CheckOrders(map[string]float64{"eth": 100.5}, 4, 0)
	require.Len(t, trades, 1)
	assert.Equal(t, core.ExitTrailingStop, trades[0].ExitReason)
}

func TestTrailingStop_ShortOnlyFalls(t *testing.T) {
	risk := testRisk()
	risk.TrailingStopPct = 5
	risk.TakeProfitATRMultiple = 100
	p := newTestPortfolio(t, risk)

	pos, ok := p.OpenPosition(openReq("eth", core.Short, 100))
	require.True(t, ok)
	id := pos.ID

	last, _ := p.index[id].TrailingStop.Get()
	for i, px := range []float64{95, 97} {
		trades := p.CheckOrders(map[string]float64{"eth": px}, i+1, 0)
		require.Empty(t, trades)
		cur, _ := p.index[id].TrailingStop.Get()
		assert.LessOrEqual(t, cur, last)
		last = cur
	}
	assert.InDelta(t, 95*1.05, last, 1e-9)

	trades := p.CheckOrders(map[string]float64{"eth": 100}, 3, 0)
	require.Len(t, trades, 1)
	assert.Equal(t, core.ExitTrailingStop, trades[0].ExitReason)
}
