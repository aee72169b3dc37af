package exchange

import (
	"fmt"
	"math"

	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/core"
)

// ReferenceLiquidityUSD is the pool depth the sqrt model scales impact against.
const ReferenceLiquidityUSD = 1_000_000

// SlippageModel returns the price impact of a trade as a fraction of price.
type SlippageModel interface {
	Fraction(notionalUSD float64) float64
}

// FixedSlippage applies the same impact regardless of size.
type FixedSlippage struct{ Bps float64 }

func (m FixedSlippage) Fraction(_ float64) float64 {
	return m.Bps / 10000
}

// SqrtSlippage grows impact with the square root of size relative to
// ReferenceLiquidityUSD, the usual approximation for AMM pools.
type SqrtSlippage struct{ Bps float64 }

func (m SqrtSlippage) Fraction(notionalUSD float64) float64 {
	if notionalUSD <= 0 {
		return 0
	}
	return m.Bps / 10000 * math.Sqrt(notionalUSD/ReferenceLiquidityUSD)
}

// NewSlippageModel maps a config name to a model.
func NewSlippageModel(name string, bps float64) (SlippageModel, error) {
	switch name {
	case config.SlippageFixed:
		return FixedSlippage{Bps: bps}, nil
	case config.SlippageSqrt:
		return SqrtSlippage{Bps: bps}, nil
	}
	return nil, core.WrapError(core.ErrUnknownSlippageModel, fmt.Errorf("%q", name))
}
