package synthetic

import (
	"context"
	"testing"
	"time"

	"github.com/newthinker/backtester/internal/collector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_ImplementsHistorySource(t *testing.T) {
	var _ collector.HistorySource = (*Source)(nil)
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(200, 1700000000, 14400, 100, 0.02, 0.001, seedBase)
	b := Generate(200, 1700000000, 14400, 100, 0.02, 0.001, seedBase)
	assert.Equal(t, a, b)

	assert.Len(t, a, 200)
	assert.Equal(t, int64(1700000000), a[0].Timestamp)
	assert.Equal(t, int64(1700000000+14400), a[1].Timestamp)
}

func TestGenerate_StepBounded(t *testing.T) {
	const vol = 0.05
	points := Generate(500, 0, 3600, 100, vol, 0, seedBase)

	prev := 100.0
	for _, p := range points {
		change := p.Price/prev - 1
		assert.LessOrEqual(t, change, vol+1e-12)
		assert.GreaterOrEqual(t, change, -vol-1e-12)
		prev = p.Price
	}
}

func TestGenerate_PriceFloor(t *testing.T) {
	points := Generate(100, 0, 3600, 1, 0, -0.5, seedBase)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Price, minPrice)
	}
	assert.Equal(t, minPrice, points[len(points)-1].Price)
}

func TestFetchHistory(t *testing.T) {
	s := New(Config{StartPrice: 100, Volatility: 0.02, Step: time.Hour})
	start := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	eth, err := s.FetchHistory(context.Background(), "ethereum", start, end)
	require.NoError(t, err)
	// 01:00 through 00:00 the next day
	require.Len(t, eth, 24)
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC).Unix(), eth[0].Timestamp)

	again, err := s.FetchHistory(context.Background(), "ethereum", start, end)
	require.NoError(t, err)
	assert.Equal(t, eth, again)

	btc, err := s.FetchHistory(context.Background(), "bitcoin", start, end)
	require.NoError(t, err)
	assert.NotEqual(t, eth, btc)
}

func TestFetchHistory_EmptyRange(t *testing.T) {
	s := New(Config{StartPrice: 100})
	now := time.Unix(1700000000, 0)
	points, err := s.FetchHistory(context.Background(), "eth", now, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestFetchHistory_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{StartPrice: 1}).FetchHistory(ctx, "eth", time.Unix(0, 0), time.Unix(3600, 0))
	assert.Error(t, err)
}
