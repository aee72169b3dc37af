package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/newthinker/backtester/internal/backtest"
	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/logger"
	"github.com/newthinker/backtester/internal/report"
	"github.com/newthinker/backtester/internal/strategy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sweepEntry    []float64
	sweepSL       []float64
	sweepParallel int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a parameter sweep",
	Long: `Fetch history once, then run the configured strategy for every combination
of entry threshold and stop-loss ATR multiple and print a comparison table`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().Float64SliceVar(&sweepEntry, "entry", nil, "entry thresholds to try (e.g. 55,65,75)")
	sweepCmd.Flags().Float64SliceVar(&sweepSL, "sl", nil, "stop-loss ATR multiples to try (e.g. 1.5,2,3)")
	sweepCmd.Flags().IntVarP(&sweepParallel, "parallel", "p", 4, "variants to simulate concurrently")

	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	source, err := newSource(cfg.Data, cfg.Backtest.QuoteToken, log)
	if err != nil {
		return err
	}
	strategies := newStrategies(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	series, err := backtest.New(cfg.Backtest, source, nil, backtest.WithLogger(log)).Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}

	variants := backtest.Grid(cfg.Backtest, sweepEntry, sweepSL)
	log.Info("starting sweep",
		zap.Int("variants", len(variants)),
		zap.Int("parallel", sweepParallel),
	)

	reg := newMetrics(cfg.Metrics)
	defer flushMetrics(reg, cfg.Metrics, log)

	opts := []backtest.Option{backtest.WithLogger(log)}
	if reg != nil {
		opts = append(opts, backtest.WithRecorder(reg))
	}

	newGenerator := func(c config.BacktestConfig) (strategy.Generator, error) {
		return strategies.New(c.Strategy.Name, strategy.Params(c.Strategy.Params))
	}
	results, err := backtest.RunSweep(ctx, series, variants, newGenerator, sweepParallel, opts...)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	if err := report.Table(cmd.OutOrStdout(), results); err != nil {
		return err
	}

	keys, err := archiveResults(ctx, cfg.Archive, log, results...)
	if err != nil {
		return err
	}
	notifyResults(ctx, cfg.Notify, log, results, keys)
	return nil
}
