package collector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/backtester/internal/core"
)

// Registry manages price sources by name
type Registry struct {
	mu      sync.RWMutex
	sources map[string]HistorySource
}

// NewRegistry creates a new source registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]HistorySource),
	}
}

// Register adds a source to the registry
func (r *Registry) Register(s HistorySource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get retrieves a source by name
func (r *Registry) Get(name string) (HistorySource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown data source %q", name))
	}
	return s, nil
}

// Names returns registered source names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.sources))
	for name := range r.sources {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
