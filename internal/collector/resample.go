package collector

import (
	"sort"

	"github.com/newthinker/backtester/internal/core"
)

// Resample buckets points to floor(ts/interval)*interval. The last
// observation in a bucket wins; non-positive prices are dropped. The result
// is sorted by timestamp with no duplicates.
func Resample(points []core.PricePoint, interval core.Interval) []core.PriceBar {
	step := interval.Seconds()
	if step <= 0 || len(points) == 0 {
		return nil
	}

	// Stable sort keeps source order among equal timestamps, so "last" means
	// last as delivered.
	sorted := make([]core.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	bars := make([]core.PriceBar, 0, len(sorted))
	for _, p := range sorted {
		if p.Price <= 0 {
			continue
		}
		bucket := floorDiv(p.Timestamp, step) * step
		if n := len(bars); n > 0 && bars[n-1].Timestamp == bucket {
			bars[n-1].Price = p.Price
			continue
		}
		bars = append(bars, core.PriceBar{Timestamp: bucket, Price: p.Price})
	}
	return bars
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
