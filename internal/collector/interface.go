// Package collector defines the historical price source contract and the
// resampling applied before a run.
package collector

import (
	"context"
	"time"

	"github.com/newthinker/backtester/internal/core"
)

// HistorySource supplies raw price observations for a token. Fetching
// completes before the simulation loop starts.
type HistorySource interface {
	Name() string

	// FetchHistory returns observations in [start, end], oldest first. A
	// token the source knows nothing about yields an empty slice, not an error.
	FetchHistory(ctx context.Context, tokenID string, start, end time.Time) ([]core.PricePoint, error)
}
