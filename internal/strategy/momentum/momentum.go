// Package momentum scores tokens on moving average trend and RSI.
package momentum

import (
	"fmt"

	"github.com/newthinker/backtester/internal/core"
	"github.com/newthinker/backtester/internal/indicator"
	"github.com/newthinker/backtester/internal/strategy"
)

// Name is the registry name of the generator
const Name = "momentum"

// Component weights, in score points
const (
	trendWeight     = 25.0
	rsiWeight       = 25.0
	agreementWeight = 10.0
	// trendScale maps the fast/slow spread in percent to trend points
	trendScale = 10.0
)

// Config holds the indicator periods.
type Config struct {
	FastPeriod int
	SlowPeriod int
	RSIPeriod  int
	ATRPeriod  int
}

// DefaultConfig returns the default periods.
func DefaultConfig() Config {
	return Config{
		FastPeriod: 9,
		SlowPeriod: 21,
		RSIPeriod:  14,
		ATRPeriod:  14,
	}
}

// Generator combines three components around a neutral 50:
// the fast/slow SMA spread, RSI distance from 50, and agreement with the
// trend filter when one is supplied. Long and short scores mirror each other.
type Generator struct {
	cfg Config
}

// New creates a momentum generator.
func New(cfg Config) (*Generator, error) {
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= cfg.FastPeriod {
		return nil, fmt.Errorf("need 0 < fast_period < slow_period, got %d/%d", cfg.FastPeriod, cfg.SlowPeriod)
	}
	if cfg.RSIPeriod <= 1 || cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("rsi_period must be > 1 and atr_period > 0, got %d/%d", cfg.RSIPeriod, cfg.ATRPeriod)
	}
	return &Generator{cfg: cfg}, nil
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
	if cfg.ATRPeriod, err = p.Int("atr_period", cfg.ATRPeriod); err != nil {
		return nil, err
	}
	return New(cfg)
}

func (g *Generator) Name() string {
	return Name
}

// MinHistory is the number of prices needed before Evaluate scores.
func (g *Generator) MinHistory() int {
	n := g.cfg.SlowPeriod
	if g.cfg.RSIPeriod+1 > n {
		n = g.cfg.RSIPeriod + 1
	}
	if g.cfg.ATRPeriod+1 > n {
		n = g.cfg.ATRPeriod + 1
	}
	return n
}

func (g *Generator) Evaluate(in strategy.Input) (core.SignalResult, error) {
	if need := g.MinHistory(); len(in.Prices) < need {
		return core.SignalResult{}, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("%s %s: have %d prices, need %d", Name, in.Token.ID, len(in.Prices), need))
	}

	fast, _ := indicator.LastSMA(in.Prices, g.cfg.FastPeriod)
	slow, _ := indicator.LastSMA(in.Prices, g.cfg.SlowPeriod)
	rsi, _ := indicator.RSI(in.Prices, g.cfg.RSIPeriod)
	atr, _ := indicator.ATR(in.Prices, g.cfg.ATRPeriod)

	spreadPct := 0.0
	if slow > 0 {
		spreadPct = (fast - slow) / slow * 100
	}
	trend := bound(spreadPct*trendScale, trendWeight)
	momentum := bound((rsi-50)/50*rsiWeight, rsiWeight)

	long := 50 + trend + momentum
	short := 50 - trend - momentum

	if ma, ok := in.TrendMA.Get(); ok {
		if in.Last() > ma {
			long += agreementWeight
			short -= agreementWeight
		} else if in.Last() < ma {
			long -= agreementWeight
			short += agreementWeight
		}
	}

	res := core.SignalResult{
		LongScore:  strategy.Clamp(long),
		ShortScore: strategy.Clamp(short),
		ATR:        atr,
		Indicators: map[string]float64{
			"sma_fast":   fast,
			"sma_slow":   slow,
			"spread_pct": spreadPct,
			"rsi":        rsi,
			"atr":        atr,
		},
	}
	if ma, ok := in.TrendMA.Get(); ok {
		res.Indicators["trend_ma"] = ma
	}
	return res, nil
}

func bound(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
