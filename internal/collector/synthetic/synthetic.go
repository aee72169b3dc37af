// Package synthetic generates deterministic trend-plus-noise price series
// for running backtests without network access.
package synthetic

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/newthinker/backtester/internal/core"
)

// LCG constants for the noise generator
const (
	seedBase   uint64 = 42
	multiplier uint64 = 6364136223846793005
	increment  uint64 = 1442695040888963407
	maxUint32         = float64(^uint32(0))
	minPrice          = 0.01
)

// Config shapes the generated series.
type Config struct {
	StartPrice float64
	Volatility float64 // max per-step noise as a fraction of price
	Trend      float64 // drift per step as a fraction of price
	Step       time.Duration
}

// Source implements collector.HistorySource with generated prices. The same
// token and range always produce the same series.
type Source struct {
	cfg Config
}

// New creates a synthetic source. A zero Step defaults to one hour.
func New(cfg Config) *Source {
	if cfg.Step <= 0 {
		cfg.Step = time.Hour
	}
	return &Source{cfg: cfg}
}

func (s *Source) Name() string {
	return "synthetic"
}

// FetchHistory generates one point per Step from start through end.
func (s *Source) FetchHistory(ctx context.Context, tokenID string, start, end time.Time) ([]core.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step := int64(s.cfg.Step / time.Second)
	first := start.Unix()
	if rem := first % step; rem != 0 {
		first += step - rem
	}
	last := end.Unix()
	if last < first {
		return nil, nil
	}

	n := int((last-first)/step) + 1
	return Generate(n, first, step, s.cfg.StartPrice, s.cfg.Volatility, s.cfg.Trend, seedFor(tokenID)), nil
}

// Generate produces n points starting at ts0, spaced step seconds apart.
// Each step moves price by trend plus uniform noise in [-volatility,
// volatility], floored at 0.01.
func Generate(n int, ts0, step int64, startPrice, volatility, trend float64, seed uint64) []core.PricePoint {
	points := make([]core.PricePoint, 0, n)
	price := startPrice
	for i := 0; i < n; i++ {
		seed = seed*multiplier + increment
		noise := (float64(seed>>32)/maxUint32 - 0.5) * 2 * volatility

		price = price * (1 + trend + noise)
		if price < minPrice {
			price = minPrice
		}
		points = append(points, core.PricePoint{
			Timestamp: ts0 + int64(i)*step,
			Price:     price,
		})
	}
	return points
}

// seedFor offsets the base seed per token so tokens do not move in lockstep
func seedFor(tokenID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tokenID))
	return seedBase + h.Sum64()
}
