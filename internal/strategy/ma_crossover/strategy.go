package ma_crossover

import (
	"fmt"

	"github.com/newthinker/backtester/internal/core"
	"github.com/newthinker/backtester/internal/indicator"
	"github.com/newthinker/backtester/internal/strategy"
)

// Name is the registry name of the generator
const Name = "ma_crossover"

// Score levels. A fresh cross starts at crossBase, which clears the default
// entry thresholds (65 long, 70 short), and grows with divergence up to
// crossCap. A cross outside the RSI band scores gatedScore: high enough to
// exit an opposing position under the default exit threshold of 55, too low
// to open one. Between crosses the side of the fast average scores
// holdScore, which neither enters nor exits.
const (
	crossBase  = 71
	crossCap   = 95
	gatedScore = 60
	holdScore  = 40
)

// Config holds the averaging periods and the RSI band that gates entries.
type Config struct {
	FastPeriod    int
	SlowPeriod    int
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64
}

// DefaultConfig returns 9/21 averages gated by a 14 period RSI in [30, 70].
func DefaultConfig() Config {
	return Config{
		FastPeriod:    9,
		SlowPeriod:    21,
		RSIPeriod:     14,
		RSIOversold:   30,
		RSIOverbought: 70,
	}
}

// MACrossover scores moving average crossovers
type MACrossover struct {
	cfg Config
}

// New creates a new MA Crossover generator
func New(cfg Config) (*MACrossover, error) {
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= cfg.FastPeriod {
		return nil, fmt.Errorf("need 0 < fast_period < slow_period, got %d/%d", cfg.FastPeriod, cfg.SlowPeriod)
	}
	if cfg.RSIPeriod <= 1 {
		return nil, fmt.Errorf("rsi_period must be > 1, got %d", cfg.RSIPeriod)
	}
	if cfg.RSIOversold < 0 || cfg.RSIOverbought > 100 || cfg.RSIOversold >= cfg.RSIOverbought {
		return nil, fmt.Errorf("need 0 <= rsi_oversold < rsi_overbought <= 100, got %g/%g", cfg.RSIOversold, cfg.RSIOverbought)
	}
	return &MACrossover{cfg: cfg}, nil
}

// Factory builds the generator from params, falling back to DefaultConfig.
func Factory(p strategy.Params) (strategy.Generator, error) {
	cfg := DefaultConfig()
	var err error
	if cfg.FastPeriod, err = p.Int("fast_period", cfg.FastPeriod); err != nil {
		return nil, err
	}
	if cfg.SlowPeriod, err = p.Int("slow_period", cfg.SlowPeriod); err != nil {
		return nil, err
	}
	if cfg.RSIPeriod, err = p.Int("rsi_period", cfg.RSIPeriod); err != nil {
		return nil, err
	}
	if cfg.RSIOversold, err = p.Float("rsi_oversold", cfg.RSIOversold); err != nil {
		return nil, err
	}
	if cfg.RSIOverbought, err = p.Float("rsi_overbought", cfg.RSIOverbought); err != nil {
		return nil, err
	}
	return New(cfg)
}

func (m *MACrossover) Name() string {
	return Name
}

// MinHistory is the number of prices needed before Evaluate scores.
func (m *MACrossover) MinHistory() int {
	n := m.cfg.SlowPeriod + 1
	if m.cfg.RSIPeriod+1 > n {
		n = m.cfg.RSIPeriod + 1
	}
	return n
}

// Evaluate scores a golden cross as a long signal and a death cross as a
// short signal, scaled by how far the averages diverge. Crosses only reach
// entry strength while RSI sits inside the oversold/overbought band.
func (m *MACrossover) Evaluate(in strategy.Input) (core.SignalResult, error) {
	prices := in.Prices
	if need := m.MinHistory(); len(prices) < need {
		return core.SignalResult{}, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("%s: have %d prices, need %d", Name, len(prices), need))
	}

	fastMA := indicator.SMA(prices, m.cfg.FastPeriod)
	slowMA := indicator.SMA(prices, m.cfg.SlowPeriod)

	currFast := fastMA[len(fastMA)-1]
	prevFast := fastMA[len(fastMA)-2]
	currSlow := slowMA[len(slowMA)-1]
	prevSlow := slowMA[len(slowMA)-2]

	rsi, _ := indicator.RSI(prices, m.cfg.RSIPeriod)
	atr, _ := indicator.ATR(prices, m.cfg.SlowPeriod)
	res := core.SignalResult{
		ATR: atr,
		Indicators: map[string]float64{
			"fast_ma": currFast,
			"slow_ma": currSlow,
			"rsi":     rsi,
		},
	}

	switch {
	case prevFast <= prevSlow && currFast > currSlow:
		// Golden Cross: fast crosses above slow
		res.LongScore = m.crossScore(currFast, currSlow, rsi)
	case prevFast >= prevSlow && currFast < currSlow:
		// Death Cross: fast crosses below slow
		res.ShortScore = m.crossScore(currFast, currSlow, rsi)
	case currFast > currSlow:
		res.LongScore = holdScore
	case currFast < currSlow:
		res.ShortScore = holdScore
	}

	return res, nil
}

// crossScore returns a higher score for larger divergence, in
// [crossBase, crossCap], or gatedScore when RSI is outside the band.
func (m *MACrossover) crossScore(fast, slow, rsi float64) float64 {
	if rsi < m.cfg.RSIOversold || rsi > m.cfg.RSIOverbought {
		return gatedScore
	}

	diff := (fast - slow) / slow
	if diff < 0 {
		diff = -diff
	}

	score := crossBase + diff*1000
	if score > crossCap {
		score = crossCap
	}
	return score
}
