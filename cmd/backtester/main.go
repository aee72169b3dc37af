package main

import (
	"fmt"
	"os"

	"github.com/newthinker/backtester/internal/collector"
	"github.com/newthinker/backtester/internal/collector/coingecko"
	"github.com/newthinker/backtester/internal/collector/synthetic"
	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/metrics"
	"github.com/newthinker/backtester/internal/strategy"
	"github.com/newthinker/backtester/internal/strategy/ma_crossover"
	"github.com/newthinker/backtester/internal/strategy/momentum"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "backtester",
	Short: "Token strategy backtester",
	Long: `backtester replays historical token prices through a signal generator,
simulating swap execution, position risk management and portfolio accounting,
and reports performance statistics.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config, or the demo config when none is given.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Demo()
		log.Warn("no config file specified, running the synthetic demo",
			zap.Int("tokens", len(cfg.Backtest.Tokens)),
			zap.String("start", cfg.Backtest.StartDate),
			zap.String("end", cfg.Backtest.EndDate),
		)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newSource returns the price source named by cfg.Data.Source.
func newSource(cfg config.DataConfig, quote string, log *zap.Logger) (collector.HistorySource, error) {
	sources := collector.NewRegistry()
	sources.Register(synthetic.New(synthetic.Config{
		StartPrice: cfg.Synthetic.StartPrice,
		Volatility: cfg.Synthetic.Volatility,
		Trend:      cfg.Synthetic.Trend,
	}))
	sources.Register(coingecko.New(cfg.CoinGecko.APIKey,
		coingecko.WithBaseURL(cfg.CoinGecko.BaseURL),
		coingecko.WithTimeout(cfg.CoinGecko.Timeout),
		coingecko.WithQuote(quote),
		coingecko.WithLogger(log),
	))
	return sources.Get(cfg.Source)
}

// newStrategies registers every built-in signal generator.
func newStrategies(log *zap.Logger) *strategy.Registry {
	reg := strategy.NewRegistry(log)
	reg.Register(momentum.Name, momentum.Factory)
	reg.Register(ma_crossover.Name, ma_crossover.Factory)
	return reg
}

// newMetrics returns a registry when metrics are enabled, otherwise nil.
func newMetrics(cfg config.MetricsConfig) *metrics.Registry {
	if !cfg.Enabled {
		return nil
	}
	return metrics.NewRegistry()
}

// flushMetrics writes the textfile export, if configured.
func flushMetrics(reg *metrics.Registry, cfg config.MetricsConfig, log *zap.Logger) {
	if reg == nil || cfg.Textfile == "" {
		return
	}
	if err := reg.WriteTextfile(cfg.Textfile); err != nil {
		log.Error("failed to write metrics", zap.Error(err))
		return
	}
	log.Debug("metrics written", zap.String("path", cfg.Textfile))
}
