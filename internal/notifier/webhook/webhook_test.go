package webhook

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/backtester/internal/backtest"
	"github.com/newthinker/backtester/internal/notifier"
)

func TestWebhook_ImplementsNotifier(t *testing.T) {
	var _ notifier.Notifier = (*Webhook)(nil)
}

func TestWebhook_Name(t *testing.T) {
	w := New("http://example.com/hook", nil)
	if w.Name() != "webhook" {
		t.Errorf("expected 'webhook', got %s", w.Name())
	}
}

func sampleSummary() notifier.Summary {
	res := &backtest.Result{
		Label:         "nightly",
		Strategy:      "momentum",
		BarsProcessed: 500,
		Halted:        true,
		HaltBar:       480,
		EndTime:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Stats: backtest.Stats{
			FinalEquity:    7400.123,
			TotalReturnPct: -26,
			MaxDrawdownPct: 26.5,
			SharpeRatio:    math.Inf(1),
			TotalTrades:    14,
		},
	}
	return notifier.NewSummary(res, "runs/2024-02-01/abc.json")
}

func TestWebhook_Notify(t *testing.T) {
	var received map[string]any
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := New(server.URL, map[string]string{"Authorization": "Bearer token"})

	if err := w.Notify(context.Background(), sampleSummary()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth != "Bearer token" {
		t.Errorf("expected custom header, got %q", auth)
	}
	if received["type"] != "backtest_finished" {
		t.Errorf("expected type backtest_finished, got %v", received["type"])
	}
	run, ok := received["run"].(map[string]any)
	if !ok {
		t.Fatalf("expected run object, got %v", received["run"])
	}
	if run["status"] != "halted" {
		t.Errorf("expected status halted, got %v", run["status"])
	}
	if run["final_equity"] != 7400.12 {
		t.Errorf("expected rounded equity, got %v", run["final_equity"])
	}
	if run["sharpe_ratio"] != "Infinity" {
		t.Errorf("expected Infinity sharpe, got %v", run["sharpe_ratio"])
	}
	if run["archive_key"] != "runs/2024-02-01/abc.json" {
		t.Errorf("expected archive key, got %v", run["archive_key"])
	}
}

func TestWebhook_Notify_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	w := New(server.URL, nil)
	if err := w.Notify(context.Background(), sampleSummary()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestWebhook_Notify_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := New(server.URL, nil, WithTimeout(20*time.Millisecond))
	if err := w.Notify(context.Background(), sampleSummary()); err == nil {
		t.Error("expected timeout error")
	}
}

func TestWebhook_Notify_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New("http://127.0.0.1:1/hook", nil)
	if err := w.Notify(ctx, sampleSummary()); err == nil {
		t.Error("expected error for cancelled context")
	}
}
