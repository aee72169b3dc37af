package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/core"
	"github.com/newthinker/backtester/internal/strategy"
	"golang.org/x/sync/errgroup"
)

// Variant is one configuration in a parameter sweep
type Variant struct {
	Label  string
	Config config.BacktestConfig
}

// GeneratorFactory builds a fresh generator for a variant
type GeneratorFactory func(cfg config.BacktestConfig) (strategy.Generator, error)

// Grid expands base over every combination of entry threshold and stop-loss
// ATR multiple. Empty slices keep the base value.
func Grid(base config.BacktestConfig, entryThresholds, stopLossMultiples []float64) []Variant {
	if len(entryThresholds) == 0 {
		entryThresholds = []float64{base.Strategy.EntryThreshold}
	}
	if len(stopLossMultiples) == 0 {
		stopLossMultiples = []float64{base.Risk.StopLossATRMultiple}
	}

	variants := make([]Variant, 0, len(entryThresholds)*len(stopLossMultiples))
	for _, entry := range entryThresholds {
		for _, sl := range stopLossMultiples {
			cfg := base
			cfg.Strategy.EntryThreshold = entry
			cfg.Risk.StopLossATRMultiple = sl
			variants = append(variants, Variant{
				Label:  fmt.Sprintf("entry=%g sl=%gxATR", entry, sl),
				Config: cfg,
			})
		}
	}
	return variants
}

// RunSweep simulates every variant over the same series, at most limit at a
// time. Each variant gets its own generator and portfolio; series is shared
// read-only. Results are returned in variant order. The first error cancels
// the remaining variants.
func RunSweep(ctx context.Context, series map[string][]core.PriceBar, variants []Variant, newGenerator GeneratorFactory, limit int, opts ...Option) ([]*Result, error) {
	results := make([]*Result, len(variants))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, v := range variants {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			started := time.Now()

			gen, err := newGenerator(v.Config)
			if err != nil {
				return fmt.Errorf("variant %q: %w", v.Label, err)
			}
			vopts := append(append([]Option(nil), opts...), WithLabel(v.Label))
			bt := New(v.Config, nil, gen, vopts...)
			res, err := bt.Simulate(series)
			if err != nil {
				bt.recorder.RecordRun(StatusFailed, time.Since(started), 0)
				return fmt.Errorf("variant %q: %w", v.Label, err)
			}
			bt.recorder.RecordRun(res.Status(), time.Since(started), res.FinalEquity())
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
