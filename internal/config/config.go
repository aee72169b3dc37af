package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/backtester/internal/core"
	"github.com/spf13/viper"
)

// DateLayout is the layout for start/end dates in config files
const DateLayout = "2006-01-02"

// Slippage model names
const (
	SlippageFixed = "fixed"
	SlippageSqrt  = "sqrt"
)

type Config struct {
	Backtest BacktestConfig `mapstructure:"backtest"`
	Data     DataConfig     `mapstructure:"data"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// BacktestConfig holds the immutable parameters of one run.
type BacktestConfig struct {
	Tokens         []TokenConfig   `mapstructure:"tokens"`
	QuoteToken     string          `mapstructure:"quote_token"`
	StartDate      string          `mapstructure:"start_date"`
	EndDate        string          `mapstructure:"end_date"`
	InitialCapital float64         `mapstructure:"initial_capital"`
	Interval       string          `mapstructure:"interval"`
	Benchmark      string          `mapstructure:"benchmark"` // token id; empty means first token
	Strategy       StrategyConfig  `mapstructure:"strategy"`
	Execution      ExecutionConfig `mapstructure:"execution"`
	Risk           RiskConfig      `mapstructure:"risk"`
}

type TokenConfig struct {
	ID     string `mapstructure:"id"`
	Symbol string `mapstructure:"symbol"`
}

// StrategyConfig holds entry/exit policy parameters.
type StrategyConfig struct {
	Name                string  `mapstructure:"name"`
	EntryThreshold      float64 `mapstructure:"entry_threshold"`
	ExitThreshold       float64 `mapstructure:"exit_threshold"`
	MaxPositions        int     `mapstructure:"max_positions"`
	EnableShorts        bool    `mapstructure:"enable_shorts"`
	ShortEntryThreshold float64 `mapstructure:"short_entry_threshold"`
	ShortExitThreshold  float64 `mapstructure:"short_exit_threshold"`
	LookbackBars        int     `mapstructure:"lookback_bars"`
	TrendFilterPeriod   int     `mapstructure:"trend_filter_period"` // 0 disables the trend filter

	// Params are passed to the named signal generator
	Params map[string]any `mapstructure:"params"`
}

// ExecutionConfig holds the fill model parameters.
type ExecutionConfig struct {
	SlippageModel  string  `mapstructure:"slippage_model"` // "fixed" or "sqrt"
	SlippageBps    float64 `mapstructure:"slippage_bps"`
	SwapFeeBps     float64 `mapstructure:"swap_fee_bps"`
	GasPerTradeUSD float64 `mapstructure:"gas_per_trade_usd"`
}

// RiskConfig holds position sizing and protective exit parameters.
type RiskConfig struct {
	MaxPositionPct        float64 `mapstructure:"max_position_pct"`
	StopLossATRMultiple   float64 `mapstructure:"stop_loss_atr_multiple"`
	TakeProfitATRMultiple float64 `mapstructure:"take_profit_atr_multiple"`
	MaxDrawdownPct        float64 `mapstructure:"max_drawdown_pct"`
	TrailingStopPct       float64 `mapstructure:"trailing_stop_pct"` // 0 disables the trailing stop
}

// TrailingStop returns the trailing stop percent and whether it is configured.
func (r RiskConfig) TrailingStop() (float64, bool) {
	return r.TrailingStopPct, r.TrailingStopPct > 0
}

// DataConfig selects the price source.
type DataConfig struct {
	Source    string          `mapstructure:"source"` // "synthetic" or "coingecko"
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
	Synthetic SyntheticConfig `mapstructure:"synthetic"`
}

type CoinGeckoConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SyntheticConfig struct {
	StartPrice float64 `mapstructure:"start_price"`
	Volatility float64 `mapstructure:"volatility"`
	Trend      float64 `mapstructure:"trend"`
}

// ArchiveConfig controls where finished results are stored.
type ArchiveConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// NotifyConfig controls run-completion notifications.
type NotifyConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig posts a run summary to URL. An empty URL disables it.
type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// Load reads configuration from file on top of Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.SetEnvPrefix("BACKTEST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults. It is the only place
// default values are defined.
func Defaults() *Config {
	return &Config{
		Backtest: DefaultBacktest(),
		Data: DataConfig{
			Source: "synthetic",
			CoinGecko: CoinGeckoConfig{
				BaseURL: "https://api.coingecko.com/api/v3",
				Timeout: 10 * time.Second,
			},
			Synthetic: SyntheticConfig{
				StartPrice: 100,
				Volatility: 0.02,
				Trend:      0,
			},
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Type:    "localfs",
			Path:    "./runs",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Notify: NotifyConfig{
			Webhook: WebhookConfig{
				Timeout: 30 * time.Second,
			},
		},
	}
}

// DefaultBacktest returns the default run parameters.
func DefaultBacktest() BacktestConfig {
	return BacktestConfig{
		QuoteToken:     "USDC",
		InitialCapital: 10000,
		Interval:       string(core.Interval1h),
		Strategy: StrategyConfig{
			Name:                "momentum",
			EntryThreshold:      65,
			ExitThreshold:       55,
			MaxPositions:        3,
			EnableShorts:        false,
			ShortEntryThreshold: 70,
			ShortExitThreshold:  55,
			LookbackBars:        50,
		},
		Execution: ExecutionConfig{
			SlippageModel:  SlippageSqrt,
			SlippageBps:    30,
			SwapFeeBps:     30,
			GasPerTradeUSD: 5,
		},
		Risk: RiskConfig{
			MaxPositionPct:        20,
			StopLossATRMultiple:   2,
			TakeProfitATRMultiple: 4,
			MaxDrawdownPct:        25,
		},
	}
}

// Demo returns Defaults with a token set and a fixed date range over the
// synthetic source. It backs runs without a config file; Load decodes over
// Defaults, never Demo, so file token lists are not merged with these.
func Demo() *Config {
	cfg := Defaults()
	cfg.Data.Source = "synthetic"
	cfg.Backtest.Tokens = []TokenConfig{
		{ID: "bitcoin", Symbol: "BTC"},
		{ID: "ethereum", Symbol: "ETH"},
	}
	cfg.Backtest.StartDate = "2024-01-01"
	cfg.Backtest.EndDate = "2024-03-31"
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Backtest.Validate(); err != nil {
		return err
	}

	switch c.Data.Source {
	case "synthetic":
		if c.Data.Synthetic.StartPrice <= 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("synthetic start_price must be positive, got %f", c.Data.Synthetic.StartPrice))
		}
	case "coingecko":
		if c.Data.CoinGecko.BaseURL == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("coingecko base_url required when source is coingecko"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown data source %q", c.Data.Source))
	}

	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "localfs":
			if c.Archive.Path == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive path required when type is localfs"))
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive s3 bucket required when type is s3"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown archive type %q", c.Archive.Type))
		}
	}

	if u := c.Notify.Webhook.URL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("notify webhook url must be http(s), got %q", u))
	}

	return nil
}

// Validate checks the run parameters. Every error here is fatal before the
// simulation starts.
func (b BacktestConfig) Validate() error {
	if len(b.Tokens) == 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("at least one token is required"))
	}
	seen := make(map[string]struct{}, len(b.Tokens))
	for _, t := range b.Tokens {
		if t.ID == "" {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("token id cannot be empty"))
		}
		if _, dup := seen[t.ID]; dup {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("duplicate token %q", t.ID))
		}
		seen[t.ID] = struct{}{}
	}
	if b.Benchmark != "" {
		if _, ok := seen[b.Benchmark]; !ok {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("benchmark %q is not in the token set", b.Benchmark))
		}
	}

	if b.InitialCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %f", b.InitialCapital))
	}
	if _, err := core.ParseInterval(b.Interval); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	if _, _, err := b.DateRange(); err != nil {
		return err
	}

	s := b.Strategy
	if s.Name == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("strategy name is required"))
	}
	if s.MaxPositions <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_positions must be positive, got %d", s.MaxPositions))
	}
	if s.LookbackBars <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("lookback_bars must be positive, got %d", s.LookbackBars))
	}
	if s.TrendFilterPeriod < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("trend_filter_period cannot be negative, got %d", s.TrendFilterPeriod))
	}
	for name, v := range map[string]float64{
		"entry_threshold":       s.EntryThreshold,
		"exit_threshold":        s.ExitThreshold,
		"short_entry_threshold": s.ShortEntryThreshold,
		"short_exit_threshold":  s.ShortExitThreshold,
	} {
		if v < 0 || v > 100 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("%s must be between 0 and 100, got %f", name, v))
		}
	}

	e := b.Execution
	if e.SlippageModel != SlippageFixed && e.SlippageModel != SlippageSqrt {
		return core.WrapError(core.ErrUnknownSlippageModel,
			fmt.Errorf("%q (want fixed or sqrt)", e.SlippageModel))
	}
	if e.SlippageBps < 0 || e.SwapFeeBps < 0 || e.GasPerTradeUSD < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("slippage, swap fee and gas cost cannot be negative"))
	}

	r := b.Risk
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 100 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_position_pct must be in (0, 100], got %f", r.MaxPositionPct))
	}
	if r.StopLossATRMultiple <= 0 || r.TakeProfitATRMultiple <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("stop-loss and take-profit ATR multiples must be positive"))
	}
	if r.MaxDrawdownPct <= 0 || r.MaxDrawdownPct > 100 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_drawdown_pct must be in (0, 100], got %f", r.MaxDrawdownPct))
	}
	if r.TrailingStopPct < 0 || r.TrailingStopPct >= 100 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("trailing_stop_pct must be in [0, 100), got %f", r.TrailingStopPct))
	}

	return nil
}

// DateRange parses the configured start and end dates. End is inclusive to
// the end of that day.
func (b BacktestConfig) DateRange() (time.Time, time.Time, error) {
	if b.StartDate == "" || b.EndDate == "" {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("start_date and end_date are required"))
	}
	start, err := time.Parse(DateLayout, b.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("invalid start_date (expected YYYY-MM-DD): %w", err))
	}
	end, err := time.Parse(DateLayout, b.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("invalid end_date (expected YYYY-MM-DD): %w", err))
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("end_date must be after start_date"))
	}
	return start, end.Add(24*time.Hour - time.Second), nil
}

// BarInterval returns the parsed interval. Call Validate first.
func (b BacktestConfig) BarInterval() core.Interval {
	return core.Interval(b.Interval)
}

// BenchmarkToken returns the token used for buy-and-hold comparison.
func (b BacktestConfig) BenchmarkToken() string {
	if b.Benchmark != "" {
		return b.Benchmark
	}
	if len(b.Tokens) > 0 {
		return b.Tokens[0].ID
	}
	return ""
}

// CoreTokens converts the token list, defaulting the symbol to the id.
func (b BacktestConfig) CoreTokens() []core.Token {
	tokens := make([]core.Token, 0, len(b.Tokens))
	for _, t := range b.Tokens {
		sym := t.Symbol
		if sym == "" {
			sym = strings.ToUpper(t.ID)
		}
		tokens = append(tokens, core.Token{ID: t.ID, Symbol: sym})
	}
	return tokens
}
