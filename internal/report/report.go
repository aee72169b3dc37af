// Package report renders backtest results as console text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/backtester/internal/backtest"
	"github.com/newthinker/backtester/internal/core"
)

const timeLayout = "2006-01-02 15:04"

// Text writes a console summary of res.
func Text(w io.Writer, res *backtest.Result) error {
	doc := NewDocument(res)
	s := doc.Stats

	var b strings.Builder
	fmt.Fprintf(&b, "=== Backtest: %s ===\n", doc.Label)
	fmt.Fprintf(&b, "Strategy:           %s\n", doc.Strategy)
	fmt.Fprintf(&b, "Tokens:             %s\n", strings.Join(doc.Setup.Tokens, ", "))
	fmt.Fprintf(&b, "Period:             %s to %s UTC\n", doc.StartTime.Format(timeLayout), doc.EndTime.Format(timeLayout))
	fmt.Fprintf(&b, "Candles:            %d (%s)\n", doc.BarsProcessed, doc.Setup.Interval)
	if res.Halted {
		fmt.Fprintf(&b, "Status:             halted by circuit breaker at bar %d\n", doc.HaltBar)
	} else {
		fmt.Fprintf(&b, "Status:             completed\n")
	}
	fmt.Fprintf(&b, "Initial Capital:    $%s\n", s.InitialCapital.Fixed(2))
	fmt.Fprintf(&b, "Final Equity:       $%s\n", s.FinalEquity.Fixed(2))
	fmt.Fprintf(&b, "Total Trades:       %d\n", s.TotalTrades)
	fmt.Fprintf(&b, "Total Return:       %s%%\n", s.TotalReturnPct.Fixed(2))
	fmt.Fprintf(&b, "Annualized Return:  %s%%\n", s.AnnualizedReturnPct.Fixed(2))
	fmt.Fprintf(&b, "Buy-Hold Return:    %s%% (%s)\n", s.BuyAndHoldReturnPct.Fixed(2), doc.Setup.Benchmark)
	fmt.Fprintf(&b, "Alpha:              %s%%\n", s.AlphaPct.Fixed(2))
	fmt.Fprintf(&b, "Sharpe Ratio:       %s\n", s.SharpeRatio.Fixed(3))
	fmt.Fprintf(&b, "Sortino Ratio:      %s\n", s.SortinoRatio.Fixed(3))
	fmt.Fprintf(&b, "Calmar Ratio:       %s\n", s.CalmarRatio.Fixed(3))
	fmt.Fprintf(&b, "Max Drawdown:       %s%% (%d bars)\n", s.MaxDrawdownPct.Fixed(2), s.MaxDrawdownDuration)
	fmt.Fprintf(&b, "Volatility:         %s%%\n", s.VolatilityPct.Fixed(2))
	fmt.Fprintf(&b, "Win Rate:           %s%%\n", s.WinRatePct.Fixed(1))
	fmt.Fprintf(&b, "Profit Factor:      %s\n", s.ProfitFactor.Fixed(2))
	fmt.Fprintf(&b, "Avg Win / Loss:     %s%% / %s%%\n", s.AvgWinPct.Fixed(2), s.AvgLossPct.Fixed(2))
	fmt.Fprintf(&b, "Avg Trade Duration: %s candles\n", s.AvgHoldingBars.Fixed(1))
	fmt.Fprintf(&b, "Total Fees:         $%s\n", s.TotalFees.Fixed(2))
	if reasons := exitReasons(s.ExitReasons); reasons != "" {
		fmt.Fprintf(&b, "Exit Reasons:       %s\n", reasons)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// JSON writes res as an indented Document.
func JSON(w io.Writer, res *backtest.Result) error {
	return WriteDocument(w, NewDocument(res))
}

// WriteDocument writes doc as indented JSON.
func WriteDocument(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

// Table writes a one-line-per-run comparison, in the given order.
func Table(w io.Writer, results []*backtest.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tTRADES\tRETURN %\tSHARPE\tMAX DD %\tWIN %\tPROFIT FACTOR\tSTATUS")
	for _, res := range results {
		s := newStatsDocument(res.Stats)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			res.Label,
			s.TotalTrades,
			s.TotalReturnPct.Fixed(2),
			s.SharpeRatio.Fixed(3),
			s.MaxDrawdownPct.Fixed(2),
			s.WinRatePct.Fixed(1),
			s.ProfitFactor.Fixed(2),
			res.Status(),
		)
	}
	return tw.Flush()
}

// exitReasons lists non-zero counts in canonical reason order.
func exitReasons(counts map[core.ExitReason]int) string {
	var parts []string
	for _, r := range core.ExitReasons {
		if n := counts[r]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", r, n))
		}
	}
	return strings.Join(parts, " ")
}
