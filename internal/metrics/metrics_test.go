package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/backtester/internal/backtest"
	"github.com/newthinker/backtester/internal/core"
	"github.com/newthinker/backtester/internal/portfolio"
	dto "github.com/prometheus/client_model/go"
)

var _ backtest.Recorder = (*Registry)(nil)

func gather(t *testing.T, reg *Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	// Should have go runtime metrics at minimum
	if len(mfs) == 0 {
		t.Error("expected some metrics to be registered")
	}
}

func TestRegistry_RecordRun(t *testing.T) {
	reg := NewRegistry()

	reg.RecordRun(backtest.StatusSuccess, 2*time.Second, 12500)
	reg.RecordRun(backtest.StatusSuccess, time.Second, 11000)
	reg.RecordRun(backtest.StatusFailed, time.Millisecond, 0)

	mf := gather(t, reg, "backtester_runs_total")
	if mf == nil {
		t.Fatal("expected backtester_runs_total metric")
	}
	counts := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "status" {
				counts[label.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if counts["success"] != 2 || counts["failed"] != 1 {
		t.Errorf("unexpected run counts %v", counts)
	}

	eq := gather(t, reg, "backtester_final_equity")
	if eq == nil {
		t.Fatal("expected backtester_final_equity metric")
	}
	// Failed run does not clobber the last completed equity
	if got := eq.GetMetric()[0].GetGauge().GetValue(); got != 11000 {
		t.Errorf("expected final equity 11000, got %f", got)
	}

	dur := gather(t, reg, "backtester_run_duration_seconds")
	if got := dur.GetMetric()[0].GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("expected 3 duration samples, got %d", got)
	}
}

func TestRegistry_RecordTrade(t *testing.T) {
	reg := NewRegistry()

	reg.RecordTrade(portfolio.ClosedTrade{Direction: core.Long, ExitReason: core.ExitStopLoss, PnLPercent: -4})
	reg.RecordTrade(portfolio.ClosedTrade{Direction: core.Long, ExitReason: core.ExitStopLoss, PnLPercent: -3})
	reg.RecordTrade(portfolio.ClosedTrade{Direction: core.Short, ExitReason: core.ExitTakeProfit, PnLPercent: 8})
	reg.RecordBars(120)

	mf := gather(t, reg, "backtester_trades_total")
	if mf == nil {
		t.Fatal("expected backtester_trades_total metric")
	}
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	if total != 3 {
		t.Errorf("expected 3 trades, got %f", total)
	}

	bars := gather(t, reg, "backtester_bars_processed_total")
	if got := bars.GetMetric()[0].GetCounter().GetValue(); got != 120 {
		t.Errorf("expected 120 bars, got %f", got)
	}
}

func TestRegistry_WriteTextfile(t *testing.T) {
	reg := NewRegistry()
	reg.RecordRun(backtest.StatusHalted, time.Second, 7400)

	path := filepath.Join(t.TempDir(), "backtester.prom")
	if err := reg.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `backtester_runs_total{status="halted"} 1`) {
		t.Errorf("expected halted run in textfile, got:\n%s", data)
	}
}

func TestRegistry_WriteTextfile_BadPath(t *testing.T) {
	reg := NewRegistry()
	if err := reg.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Error("expected error writing into a missing directory")
	}
}
