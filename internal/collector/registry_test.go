package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/backtester/internal/core"
)

// mockSource for testing
type mockSource struct {
	name string
}

func (m *mockSource) Name() string { return m.name }
func (m *mockSource) FetchHistory(ctx context.Context, tokenID string, start, end time.Time) ([]core.PricePoint, error) {
	return nil, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockSource{name: "mock"})

	s, err := r.Get("mock")
	if err != nil {
		t.Fatalf("expected to find registered source: %v", err)
	}
	if s.Name() != "mock" {
		t.Errorf("expected name 'mock', got '%s'", s.Name())
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockSource{name: "synthetic"})
	r.Register(&mockSource{name: "coingecko"})

	names := r.Names()
	if len(names) != 2 || names[0] != "coingecko" {
		t.Errorf("expected sorted names, got %v", names)
	}
}
