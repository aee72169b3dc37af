// Package exchange turns a desired notional trade into a realized fill.
package exchange

import (
	"fmt"
	"math"

	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/core"
)

// FillResult is the outcome of one simulated swap.
type FillResult struct {
	FillPrice float64
	Slippage  float64 // fraction of market price
	SwapFee   float64
	GasFee    float64
	TotalFees float64
	Notional  float64
}

// Simulator fills orders against a slippage model with swap and gas fees.
// It holds no mutable state.
type Simulator struct {
	cfg      config.ExecutionConfig
	slippage SlippageModel
}

// New builds a simulator for the given execution settings.
func New(cfg config.ExecutionConfig) (*Simulator, error) {
	model, err := NewSlippageModel(cfg.SlippageModel, cfg.SlippageBps)
	if err != nil {
		return nil, err
	}
	return &Simulator{cfg: cfg, slippage: model}, nil
}

// NewWithModel builds a simulator with an explicit slippage model.
func NewWithModel(cfg config.ExecutionConfig, model SlippageModel) *Simulator {
	return &Simulator{cfg: cfg, slippage: model}
}

// Config returns the execution settings the simulator was built with.
func (s *Simulator) Config() config.ExecutionConfig {
	return s.cfg
}

// SimulateBuy fills a buy above the market price.
func (s *Simulator) SimulateBuy(marketPrice, notionalUSD float64) (FillResult, error) {
	return s.fill(marketPrice, notionalUSD, 1)
}

// SimulateSell fills a sell below the market price.
func (s *Simulator) SimulateSell(marketPrice, notionalUSD float64) (FillResult, error) {
	return s.fill(marketPrice, notionalUSD, -1)
}

func (s *Simulator) fill(marketPrice, notionalUSD, sign float64) (FillResult, error) {
	if marketPrice <= 0 || math.IsNaN(marketPrice) || math.IsInf(marketPrice, 0) {
		return FillResult{}, core.WrapError(core.ErrInvalidPrice, fmt.Errorf("got %v", marketPrice))
	}
	if notionalUSD < 0 || math.IsNaN(notionalUSD) {
		return FillResult{}, core.WrapError(core.ErrInvalidNotional, fmt.Errorf("got %v", notionalUSD))
	}
	if notionalUSD == 0 {
		return FillResult{FillPrice: marketPrice}, nil
	}

	slip := s.slippage.Fraction(notionalUSD)
	swapFee := math.Max(0, s.cfg.SwapFeeBps/10000*notionalUSD)
	gasFee := math.Max(0, s.cfg.GasPerTradeUSD)

	return FillResult{
		FillPrice: marketPrice * (1 + sign*slip),
		Slippage:  slip,
		SwapFee:   swapFee,
		GasFee:    gasFee,
		TotalFees: swapFee + gasFee,
		Notional:  notionalUSD,
	}, nil
}
