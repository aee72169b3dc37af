package archive

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/backtester/internal/backtest"
	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore implements Storage and fails every call
type failingStore struct{}

func (failingStore) Write(context.Context, string, []byte) error    { return errors.New("disk full") }
func (failingStore) Read(context.Context, string) ([]byte, error)   { return nil, errors.New("gone") }
func (failingStore) List(context.Context, string) ([]string, error) { return nil, errors.New("gone") }
func (failingStore) Exists(context.Context, string) (bool, error)   { return false, errors.New("gone") }

func sampleResult() *backtest.Result {
	cfg := config.DefaultBacktest()
	cfg.Tokens = []config.TokenConfig{{ID: "ethereum", Symbol: "ETH"}}
	return &backtest.Result{
		Label:         "archived",
		Strategy:      "momentum",
		Config:        cfg,
		BarsProcessed: 10,
		HaltBar:       -1,
		Stats: backtest.Stats{
			InitialCapital: 10000,
			FinalEquity:    10250,
			ProfitFactor:   math.Inf(1),
		},
	}
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)
}

func TestArchive_SaveLoadList(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)

	a := New(fs, WithClock(fixedClock))
	ctx := context.Background()

	key, err := a.Save(ctx, sampleResult())
	require.NoError(t, err)
	assert.Regexp(t, `^runs/2024-03-15/[0-9a-f-]{36}\.json$`, key)

	doc, err := a.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "archived", doc.Label)
	assert.NotEmpty(t, doc.RunID)
	assert.Contains(t, key, doc.RunID)
	assert.Equal(t, 10250.0, doc.Stats.FinalEquity.Float64())
	assert.True(t, doc.Stats.ProfitFactor.IsInf(1))

	second, err := a.Save(ctx, sampleResult())
	require.NoError(t, err)
	assert.NotEqual(t, key, second)

	keys, err := a.List(ctx, fixedClock())
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, key)
	assert.Contains(t, keys, second)

	keys, err = a.List(ctx, fixedClock().AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestArchive_Failures(t *testing.T) {
	a := New(failingStore{})
	ctx := context.Background()

	_, err := a.Save(ctx, sampleResult())
	assert.ErrorIs(t, err, core.ErrArchiveFailed)

	_, err = a.Load(ctx, "runs/x.json")
	assert.ErrorIs(t, err, core.ErrArchiveFailed)

	_, err = a.List(ctx, fixedClock())
	assert.ErrorIs(t, err, core.ErrArchiveFailed)
}

func TestArchive_LoadCorrupt(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()
	require.NoError(t, fs.Write(ctx, "runs/2024-03-15/bad.json", []byte("not json")))

	_, err := New(fs).Load(ctx, "runs/2024-03-15/bad.json")
	assert.ErrorIs(t, err, core.ErrArchiveFailed)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ArchiveConfig
		wantErr *core.Error
	}{
		{name: "localfs", cfg: config.ArchiveConfig{Type: "localfs", Path: t.TempDir()}},
		{name: "default type", cfg: config.ArchiveConfig{Path: t.TempDir()}},
		{name: "s3", cfg: config.ArchiveConfig{Type: "s3", S3: config.S3Config{Bucket: "results"}}},
		{name: "s3 without bucket", cfg: config.ArchiveConfig{Type: "s3"}, wantErr: core.ErrConfigMissing},
		{name: "unknown", cfg: config.ArchiveConfig{Type: "gcs"}, wantErr: core.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, store)
		})
	}
}
