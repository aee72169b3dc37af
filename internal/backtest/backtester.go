// Package backtest replays price history against a signal generator and
// reduces the outcome to performance statistics.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/backtester/internal/collector"
	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/core"
	"github.com/newthinker/backtester/internal/exchange"
	"github.com/newthinker/backtester/internal/indicator"
	"github.com/newthinker/backtester/internal/portfolio"
	"github.com/newthinker/backtester/internal/strategy"
	"go.uber.org/zap"
)

// Backtester runs one configuration against a price source and a signal
// generator.
type Backtester struct {
	cfg      config.BacktestConfig
	source   collector.HistorySource
	gen      strategy.Generator
	logger   *zap.Logger
	recorder Recorder
	label    string
}

// Option configures a Backtester.
type Option func(*Backtester)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backtester) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRecorder sets the event recorder.
func WithRecorder(r Recorder) Option {
	return func(b *Backtester) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithLabel names the run in results and logs.
func WithLabel(label string) Option {
	return func(b *Backtester) { b.label = label }
}

// New creates a Backtester. source may be nil when only Simulate is used.
func New(cfg config.BacktestConfig, source collector.HistorySource, gen strategy.Generator, opts ...Option) *Backtester {
	b := &Backtester{
		cfg:      cfg,
		source:   source,
		gen:      gen,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.label == "" && gen != nil {
		b.label = gen.Name()
	}
	return b
}

// Run validates the configuration, fetches and resamples every token's
// history, then simulates. Invalid configuration fails before any fetch.
func (b *Backtester) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	res, err := b.run(ctx)
	if err != nil {
		b.recorder.RecordRun(StatusFailed, time.Since(started), 0)
		return nil, err
	}
	b.recorder.RecordRun(res.Status(), time.Since(started), res.FinalEquity())
	return res, nil
}

func (b *Backtester) run(ctx context.Context) (*Result, error) {
	series, err := b.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return b.Simulate(series)
}

// Fetch validates the configuration, then fetches and resamples every token's
// history. Tokens without data map to an empty series.
func (b *Backtester) Fetch(ctx context.Context) (map[string][]core.PriceBar, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if b.source == nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("no price source"))
	}
	start, end, err := b.cfg.DateRange()
	if err != nil {
		return nil, err
	}
	interval := b.cfg.BarInterval()

	b.logger.Info("fetching history",
		zap.String("source", b.source.Name()),
		zap.Int("tokens", len(b.cfg.Tokens)),
		zap.Time("start", start),
		zap.Time("end", end),
	)

	series := make(map[string][]core.PriceBar, len(b.cfg.Tokens))
	for _, tok := range b.cfg.Tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		points, err := b.source.FetchHistory(ctx, tok.ID, start, end)
		if err != nil {
			return nil, core.WrapError(core.ErrSourceFailed, fmt.Errorf("%s: %w", tok.ID, err))
		}
		bars := collector.Resample(points, interval)
		if len(bars) == 0 {
			b.logger.Warn("no price data for token", zap.String("token", tok.ID))
		}
		series[tok.ID] = bars
	}
	return series, nil
}

// tokenFeed walks one token's bars in step with the merged timeline.
type tokenFeed struct {
	token   core.Token
	bars    []core.PriceBar
	next    int
	history []float64 // prices up to and including the current bar
}

// Simulate runs the bar loop over already materialized series keyed by token
// id. It is synchronous and deterministic and does not modify series.
func (b *Backtester) Simulate(series map[string][]core.PriceBar) (*Result, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if b.gen == nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("no signal generator"))
	}
	ex, err := exchange.New(b.cfg.Execution)
	if err != nil {
		return nil, err
	}

	feeds := make([]*tokenFeed, 0, len(b.cfg.Tokens))
	for _, tok := range b.cfg.CoreTokens() {
		feeds = append(feeds, &tokenFeed{token: tok, bars: validBars(series[tok.ID])})
	}
	timeline := mergeTimeline(feeds)
	if len(timeline) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bars for any of %d tokens", len(feeds)))
	}

	pf := portfolio.New(b.cfg.InitialCapital, ex, b.cfg.Risk, portfolio.WithLogger(b.logger))
	res := &Result{
		Label:    b.label,
		Strategy: b.gen.Name(),
		Config:   b.cfg,
		HaltBar:  -1,
	}

	b.logger.Info("backtest started",
		zap.String("label", b.label),
		zap.String("strategy", b.gen.Name()),
		zap.Int("bars", len(timeline)),
	)

	maxDD := b.cfg.Risk.MaxDrawdownPct
	for i, ts := range timeline {
		prices := advance(feeds, ts)
		last := i == len(timeline)-1

		// Risk exits take precedence over signals on the same bar
		riskExited := make(map[string]bool)
		for _, t := range pf.CheckOrders(prices, i, ts) {
			riskExited[t.Token] = true
			b.recorder.RecordTrade(t)
		}

		if pf.IsCircuitBreakerTriggered(maxDD) || pf.DrawdownAt(prices) >= maxDD {
			for _, t := range pf.CloseAllPositions(prices, i, ts, core.ExitCircuitBreaker) {
				b.recorder.RecordTrade(t)
			}
			pt := pf.RecordEquityPoint(prices, i, ts)
			res.Halted = true
			res.HaltBar = i
			res.BarsProcessed = i + 1
			b.logger.Warn("circuit breaker tripped, halting",
				zap.Int("bar", i),
				zap.Int64("timestamp", ts),
				zap.Float64("drawdown_pct", pt.DrawdownPct),
			)
			break
		}

		b.evaluateSignals(pf, feeds, prices, riskExited, i, ts, last)

		if last {
			for _, t := range pf.CloseAllPositions(prices, i, ts, core.ExitEndOfData) {
				b.recorder.RecordTrade(t)
			}
		}
		pf.RecordEquityPoint(prices, i, ts)
		res.BarsProcessed = i + 1
	}

	b.recorder.RecordBars(res.BarsProcessed)

	res.EquityCurve = pf.EquityCurve()
	res.Trades = pf.ClosedTrades()
	res.Drawdowns = make([]float64, len(res.EquityCurve))
	for i, pt := range res.EquityCurve {
		res.Drawdowns[i] = pt.DrawdownPct
	}
	res.StartTime = time.Unix(timeline[0], 0).UTC()
	res.EndTime = time.Unix(timeline[res.BarsProcessed-1], 0).UTC()

	in := StatsInput{
		InitialCapital: b.cfg.InitialCapital,
		Interval:       b.cfg.BarInterval(),
		Curve:          res.EquityCurve,
		Trades:         res.Trades,
	}
	if bench := validBars(series[b.cfg.BenchmarkToken()]); len(bench) > 0 {
		in.BenchmarkFirst = bench[0].Price
		in.BenchmarkLast = bench[len(bench)-1].Price
	}
	res.Stats = CalculateStats(in)

	b.logger.Info("backtest finished",
		zap.String("label", b.label),
		zap.Int("bars", res.BarsProcessed),
		zap.Int("trades", len(res.Trades)),
		zap.Bool("halted", res.Halted),
		zap.Float64("final_equity", res.Stats.FinalEquity),
		zap.Float64("total_return_pct", res.Stats.TotalReturnPct),
	)

	return res, nil
}

// evaluateSignals applies signal exits for held tokens and entries for flat
// tokens, in configured token order.
func (b *Backtester) evaluateSignals(pf *portfolio.Portfolio, feeds []*tokenFeed, prices map[string]float64, riskExited map[string]bool, bar int, ts int64, last bool) {
	sc := b.cfg.Strategy
	lookback := sc.LookbackBars

	for _, f := range feeds {
		px, ok := prices[f.token.ID]
		if !ok || riskExited[f.token.ID] {
			continue
		}
		pos, held := pf.PositionFor(f.token.ID)
		if !held && (last || pf.OpenCount() >= sc.MaxPositions) {
			continue
		}

		lo := len(f.history) - lookback
		if lo < 0 {
			lo = 0
		}
		in := strategy.Input{
			Token:     f.token,
			Prices:    f.history[lo:len(f.history):len(f.history)],
			Timestamp: ts,
		}
		if sc.TrendFilterPeriod > 0 {
			if ma, ok := indicator.LastSMA(f.history, sc.TrendFilterPeriod); ok {
				in.TrendMA = core.SomeLevel(ma)
			}
		}

		sig, err := b.gen.Evaluate(in)
		if err != nil {
			b.logger.Debug("signal skipped",
				zap.String("token", f.token.ID),
				zap.Int("bar", bar),
				zap.Error(err),
			)
			continue
		}

		if held {
			exit := false
			switch pos.Direction {
			case core.Long:
				exit = sig.ShortScore > sc.ExitThreshold
			case core.Short:
				exit = sig.LongScore > sc.ShortExitThreshold
			}
			if exit {
				if t, ok := pf.ClosePosition(pos.ID, px, core.ExitSignal, bar, ts); ok {
					b.recorder.RecordTrade(*t)
				}
			}
			continue
		}

		allowLong, allowShort := true, true
		if sc.TrendFilterPeriod > 0 {
			ma, ok := in.TrendMA.Get()
			if !ok {
				continue
			}
			allowLong = px > ma
			allowShort = px < ma
		}

		var dir core.Direction
		switch {
		case allowLong && sig.LongScore > sc.EntryThreshold:
			dir = core.Long
		case sc.EnableShorts && allowShort && sig.ShortScore > sc.ShortEntryThreshold:
			dir = core.Short
		default:
			continue
		}

		pf.OpenPosition(portfolio.OpenRequest{
			Token:         f.token.ID,
			Symbol:        f.token.Symbol,
			Direction:     dir,
			Price:         px,
			EquityPct:     b.cfg.Risk.MaxPositionPct,
			CurrentEquity: pf.Equity(prices),
			ATR:           sig.ATR,
			BarIndex:      bar,
			Timestamp:     ts,
		})
	}
}

// validBars drops non-positive prices and anything not strictly after the
// previous bar, without touching the input.
func validBars(bars []core.PriceBar) []core.PriceBar {
	out := make([]core.PriceBar, 0, len(bars))
	for _, bar := range bars {
		if !bar.IsValid() {
			continue
		}
		if n := len(out); n > 0 && bar.Timestamp <= out[n-1].Timestamp {
			continue
		}
		out = append(out, bar)
	}
	return out
}

// mergeTimeline returns every distinct timestamp across feeds, ascending.
func mergeTimeline(feeds []*tokenFeed) []int64 {
	seen := make(map[int64]struct{})
	for _, f := range feeds {
		for _, bar := range f.bars {
			seen[bar.Timestamp] = struct{}{}
		}
	}
	timeline := make([]int64, 0, len(seen))
	for ts := range seen {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i] < timeline[j] })
	return timeline
}

// advance moves every feed with a bar at ts forward and returns that bar's
// prices. Tokens without a bar at ts are absent from the map.
func advance(feeds []*tokenFeed, ts int64) map[string]float64 {
	prices := make(map[string]float64, len(feeds))
	for _, f := range feeds {
		if f.next < len(f.bars) && f.bars[f.next].Timestamp == ts {
			px := f.bars[f.next].Price
			f.history = append(f.history, px)
			prices[f.token.ID] = px
			f.next++
		}
	}
	return prices
}
