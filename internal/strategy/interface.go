// Package strategy defines the signal generator contract consumed by the
// backtest loop.
package strategy

import (
	"fmt"

	"github.com/newthinker/backtester/internal/core"
)

// Input is the history a generator sees for one token on one bar. Prices
// never extend past the current bar.
type Input struct {
	Token     core.Token
	Prices    []float64 // oldest first; the last entry is the current bar
	Timestamp int64     // current bar, unix seconds
	TrendMA   core.Level
}

// Last returns the current bar's price, or 0 for an empty window.
func (in Input) Last() float64 {
	if len(in.Prices) == 0 {
		return 0
	}
	return in.Prices[len(in.Prices)-1]
}

// Generator scores a token for entry and exit.
type Generator interface {
	Name() string
	Evaluate(in Input) (core.SignalResult, error)
}

// Params holds generator settings from configuration
type Params map[string]any

// Int returns the integer param at key, or def when absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("param %s: %v is not an integer", key, v)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("param %s: unsupported type %T", key, v)
}

// Float returns the numeric param at key, or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("param %s: unsupported type %T", key, v)
}

// Factory builds a generator from params.
type Factory func(Params) (Generator, error)

// Clamp limits a score to [0, 100].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
