// Package coingecko fetches historical prices from the CoinGecko API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newthinker/backtester/internal/core"
	"go.uber.org/zap"
)

const (
	baseURL = "https://api.coingecko.com/api/v3"
)

// Symbol to CoinGecko ID mapping, for configs that list tickers
var symbolToIDMap = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"BNB":  "binancecoin",
	"AVAX": "avalanche-2",
	"LINK": "chainlink",
	"UNI":  "uniswap",
	"AAVE": "aave",
	"ARB":  "arbitrum",
	"OP":   "optimism",
	"LDO":  "lido-dao",
	"CRV":  "curve-dao-token",
}

// Source implements collector.HistorySource against /market_chart/range
type Source struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	vsCurrency string
	logger     *zap.Logger
}

// Option configures a Source
type Option func(*Source)

// WithBaseURL overrides the API base URL (for testing)
func WithBaseURL(u string) Option {
	return func(s *Source) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// WithQuote sets the quote token prices are denominated in
func WithQuote(quote string) Option {
	return func(s *Source) { s.vsCurrency = vsCurrency(quote) }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a new CoinGecko source. apiKey may be empty.
func New(apiKey string, opts ...Option) *Source {
	s := &Source{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:    baseURL,
		apiKey:     apiKey,
		vsCurrency: "usd",
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Name() string {
	return "coingecko"
}

// coinID accepts either a CoinGecko id or a known ticker
func coinID(token string) string {
	if id, ok := symbolToIDMap[strings.ToUpper(token)]; ok {
		return id
	}
	return strings.ToLower(token)
}

// vsCurrency maps a quote token to a CoinGecko vs_currency
func vsCurrency(quote string) string {
	switch strings.ToUpper(quote) {
	case "USDT", "USDC", "BUSD", "DAI", "USD", "":
		return "usd"
	case "BTC", "WBTC":
		return "btc"
	case "ETH", "WETH":
		return "eth"
	default:
		return strings.ToLower(quote)
	}
}

type marketChart struct {
	Prices [][]float64 `json:"prices"` // [[ms, price], ...]
}

// FetchHistory fetches prices in [start, end]. An unknown coin (404) yields
// no points.
func (s *Source) FetchHistory(ctx context.Context, tokenID string, start, end time.Time) ([]core.PricePoint, error) {
	id := coinID(tokenID)

	q := url.Values{}
	q.Set("vs_currency", s.vsCurrency)
	q.Set("from", fmt.Sprintf("%d", start.Unix()))
	q.Set("to", fmt.Sprintf("%d", end.Unix()))
	reqURL := fmt.Sprintf("%s/coins/%s/market_chart/range?%s", s.baseURL, url.PathEscape(id), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		s.logger.Warn("coin not found", zap.String("token", tokenID), zap.String("coin_id", id))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var chart marketChart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	points := make([]core.PricePoint, 0, len(chart.Prices))
	for _, p := range chart.Prices {
		if len(p) < 2 {
			continue
		}
		points = append(points, core.PricePoint{
			Timestamp: int64(p[0]) / 1000,
			Price:     p[1],
		})
	}

	s.logger.Debug("fetched history",
		zap.String("token", tokenID),
		zap.Int("points", len(points)),
	)
	return points, nil
}
