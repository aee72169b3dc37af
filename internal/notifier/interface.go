// Package notifier announces finished backtest runs.
package notifier

import (
	"context"
	"time"

	"github.com/newthinker/backtester/internal/backtest"
	"github.com/newthinker/backtester/internal/report"
)

// Notifier delivers run summaries
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Notify sends one summary
	Notify(ctx context.Context, summary Summary) error
}

// Summary is the headline of one finished run
type Summary struct {
	Label          string        `json:"label"`
	Strategy       string        `json:"strategy"`
	Status         string        `json:"status"`
	BarsProcessed  int           `json:"bars_processed"`
	TotalTrades    int           `json:"total_trades"`
	FinalEquity    report.Number `json:"final_equity"`
	TotalReturnPct report.Number `json:"total_return_pct"`
	MaxDrawdownPct report.Number `json:"max_drawdown_pct"`
	SharpeRatio    report.Number `json:"sharpe_ratio"`
	ArchiveKey     string        `json:"archive_key,omitempty"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// NewSummary condenses res. archiveKey may be empty.
func NewSummary(res *backtest.Result, archiveKey string) Summary {
	return Summary{
		Label:          res.Label,
		Strategy:       res.Strategy,
		Status:         res.Status(),
		BarsProcessed:  res.BarsProcessed,
		TotalTrades:    res.Stats.TotalTrades,
		FinalEquity:    report.Round(res.Stats.FinalEquity, 2),
		TotalReturnPct: report.Round(res.Stats.TotalReturnPct, 4),
		MaxDrawdownPct: report.Round(res.Stats.MaxDrawdownPct, 4),
		SharpeRatio:    report.Round(res.Stats.SharpeRatio, 4),
		ArchiveKey:     archiveKey,
		FinishedAt:     res.EndTime,
	}
}
