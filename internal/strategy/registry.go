package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/backtester/internal/core"
	"go.uber.org/zap"
)

// Registry maps generator names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    l,
	}
}

// Register adds a factory under name, replacing any previous one
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		r.logger.Warn("replacing registered strategy", zap.String("name", name))
	}
	r.factories[name] = f
}

// New builds the generator registered under name
func (r *Registry) New(name string, params Params) (Generator, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown strategy %q (registered: %v)", name, r.Names()))
	}
	g, err := f(params)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("strategy %s: %w", name, err))
	}
	return g, nil
}

// Names returns registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
