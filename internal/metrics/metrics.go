package metrics

import (
	"fmt"
	"time"

	"github.com/newthinker/backtester/internal/portfolio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics for backtest runs. It satisfies
// backtest.Recorder and is safe for concurrent use by sweep workers.
type Registry struct {
	*prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	barsProcessed prometheus.Counter
	tradesTotal   *prometheus.CounterVec
	tradePnL      prometheus.Histogram
	finalEquity   prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtester_runs_total",
				Help: "Total number of backtest runs",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backtester_run_duration_seconds",
				Help:    "Backtest run duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		barsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backtester_bars_processed_total",
				Help: "Total number of bars simulated",
			},
		),
		tradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtester_trades_total",
				Help: "Total number of closed trades",
			},
			[]string{"direction", "exit_reason"},
		),
		tradePnL: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backtester_trade_pnl_percent",
				Help:    "Closed trade return in percent of cost basis",
				Buckets: []float64{-20, -10, -5, -2, -1, 0, 1, 2, 5, 10, 20},
			},
		),
		finalEquity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtester_final_equity",
				Help: "Final equity of the most recently completed run",
			},
		),
	}

	reg.MustRegister(r.runsTotal)
	reg.MustRegister(r.runDuration)
	reg.MustRegister(r.barsProcessed)
	reg.MustRegister(r.tradesTotal)
	reg.MustRegister(r.tradePnL)
	reg.MustRegister(r.finalEquity)

	return r
}

// RecordBars adds n simulated bars.
func (r *Registry) RecordBars(n int) {
	r.barsProcessed.Add(float64(n))
}

// RecordTrade records a closed trade.
func (r *Registry) RecordTrade(t portfolio.ClosedTrade) {
	r.tradesTotal.WithLabelValues(string(t.Direction), string(t.ExitReason)).Inc()
	r.tradePnL.Observe(t.PnLPercent)
}

// RecordRun records a run completion. Failed runs leave the equity gauge
// untouched.
func (r *Registry) RecordRun(status string, duration time.Duration, finalEquity float64) {
	r.runsTotal.WithLabelValues(status).Inc()
	r.runDuration.Observe(duration.Seconds())
	if status != "failed" {
		r.finalEquity.Set(finalEquity)
	}
}

// WriteTextfile writes every gathered metric to path in the text exposition
// format, for pickup by a node_exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
