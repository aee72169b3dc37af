package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/newthinker/backtester/internal/backtest"
	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/logger"
	"github.com/newthinker/backtester/internal/notifier"
	"github.com/newthinker/backtester/internal/notifier/webhook"
	"github.com/newthinker/backtester/internal/report"
	"github.com/newthinker/backtester/internal/storage/archive"
	"github.com/newthinker/backtester/internal/strategy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runFormat   string
	runLabel    string
	runStrategy string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single backtest",
	Long:  "Fetch history for the configured tokens, run the configured strategy and print performance statistics",
	RunE:  runBacktest,
}

func init() {
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "text", "output format (text or json)")
	runCmd.Flags().StringVar(&runLabel, "label", "", "run label (defaults to the strategy name)")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "override backtest.strategy.name")

	rootCmd.AddCommand(runCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	if runFormat != "text" && runFormat != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", runFormat)
	}

	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if runStrategy != "" {
		cfg.Backtest.Strategy.Name = runStrategy
	}

	source, err := newSource(cfg.Data, cfg.Backtest.QuoteToken, log)
	if err != nil {
		return err
	}
	gen, err := newStrategies(log).New(cfg.Backtest.Strategy.Name, strategy.Params(cfg.Backtest.Strategy.Params))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newMetrics(cfg.Metrics)
	defer flushMetrics(reg, cfg.Metrics, log)

	opts := []backtest.Option{backtest.WithLogger(log), backtest.WithLabel(runLabel)}
	if reg != nil {
		opts = append(opts, backtest.WithRecorder(reg))
	}

	res, err := backtest.New(cfg.Backtest, source, gen, opts...).Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if err := render(cmd.OutOrStdout(), res, runFormat); err != nil {
		return err
	}

	keys, err := archiveResults(ctx, cfg.Archive, log, res)
	if err != nil {
		return err
	}
	notifyResults(ctx, cfg.Notify, log, []*backtest.Result{res}, keys)
	return nil
}

func render(w io.Writer, res *backtest.Result, format string) error {
	if format == "json" {
		return report.JSON(w, res)
	}
	return report.Text(w, res)
}

// archiveResults saves every result when archiving is enabled and returns
// their keys, index-aligned with results.
func archiveResults(ctx context.Context, cfg config.ArchiveConfig, log *zap.Logger, results ...*backtest.Result) ([]string, error) {
	keys := make([]string, len(results))
	if !cfg.Enabled {
		return keys, nil
	}
	store, err := archive.Open(cfg)
	if err != nil {
		return nil, err
	}
	a := archive.New(store, archive.WithLogger(log))
	for i, res := range results {
		key, err := a.Save(ctx, res)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

// notifyResults posts a summary per result to the configured webhook.
// Delivery failures are logged, not returned.
func notifyResults(ctx context.Context, cfg config.NotifyConfig, log *zap.Logger, results []*backtest.Result, keys []string) {
	if cfg.Webhook.URL == "" {
		return
	}
	var n notifier.Notifier = webhook.New(cfg.Webhook.URL, cfg.Webhook.Headers,
		webhook.WithTimeout(cfg.Webhook.Timeout),
		webhook.WithLogger(log),
	)
	for i, res := range results {
		if err := n.Notify(ctx, notifier.NewSummary(res, keys[i])); err != nil {
			log.Warn("notification failed",
				zap.String("notifier", n.Name()),
				zap.String("label", res.Label),
				zap.Error(err),
			)
		}
	}
}
