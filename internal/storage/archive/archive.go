package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/backtester/internal/backtest"
	"github.com/newthinker/backtester/internal/config"
	"github.com/newthinker/backtester/internal/core"
	"github.com/newthinker/backtester/internal/report"
	"go.uber.org/zap"
)

const (
	runsDir    = "runs"
	dateLayout = "2006-01-02"
)

// Archive stores finished results as JSON documents keyed
// runs/<date>/<run id>.json.
type Archive struct {
	store  Storage
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Archive) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the clock used to date run keys.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) { a.now = now }
}

// New wraps store.
func New(store Storage, opts ...Option) *Archive {
	a := &Archive{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open builds the storage backend named by cfg.
func Open(cfg config.ArchiveConfig) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		fs, err := NewLocalFS(cfg.Path)
		if err != nil {
			return nil, core.WrapError(core.ErrArchiveFailed, err)
		}
		return fs, nil
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive.s3.bucket is required"))
		}
		return NewS3(cfg.S3), nil
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", cfg.Type))
	}
}

// Save writes res under a fresh run id and returns its key.
func (a *Archive) Save(ctx context.Context, res *backtest.Result) (string, error) {
	runID := a.newID()
	key := path.Join(runsDir, a.now().UTC().Format(dateLayout), runID+".json")

	doc := report.NewDocument(res)
	doc.RunID = runID

	var buf bytes.Buffer
	if err := report.WriteDocument(&buf, doc); err != nil {
		return "", core.WrapError(core.ErrArchiveFailed, err)
	}
	if err := a.store.Write(ctx, key, buf.Bytes()); err != nil {
		return "", core.WrapError(core.ErrArchiveFailed, fmt.Errorf("writing %s: %w", key, err))
	}

	a.logger.Info("result archived",
		zap.String("run_id", runID),
		zap.String("key", key),
		zap.String("label", res.Label),
	)
	return key, nil
}

// Load reads a document previously written by Save.
func (a *Archive) Load(ctx context.Context, key string) (*report.Document, error) {
	data, err := a.store.Read(ctx, key)
	if err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, fmt.Errorf("reading %s: %w", key, err))
	}
	var doc report.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, fmt.Errorf("decoding %s: %w", key, err))
	}
	return &doc, nil
}

// List returns the keys of every run archived on the given day.
func (a *Archive) List(ctx context.Context, day time.Time) ([]string, error) {
	keys, err := a.store.List(ctx, path.Join(runsDir, day.UTC().Format(dateLayout)))
	if err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, err)
	}
	return keys, nil
}
