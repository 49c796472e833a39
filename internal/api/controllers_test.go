package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"trading-sentinel/internal/events"
	"trading-sentinel/internal/monitor"
	"trading-sentinel/internal/position"
	"trading-sentinel/internal/risk"
	"trading-sentinel/internal/state"
	"trading-sentinel/internal/strategy"
	"trading-sentinel/pkg/db"
)

func newTestServer(t *testing.T) (*Server, *db.Database, *state.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := db.ApplyMigrations(store); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	ctx := context.Background()
	stateMgr := state.NewManager(store, risk.ProfileModerate, false)
	if err := stateMgr.Load(ctx); err != nil {
		t.Fatalf("state load: %v", err)
	}

	book := position.NewBook(store)
	if err := book.Init(ctx, []string{"BTCUSDT", "ETHUSDT"}, 100); err != nil {
		t.Fatalf("book init: %v", err)
	}

	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	eval := strategy.NewEvaluator(nil, strategy.NewRuleScorer(), nil, stateMgr, store, events.NewBus(), metrics, time.Second)

	srv := NewServer(store, book, stateMgr, eval, prometheus.NewRegistry(), SystemMeta{
		Candidates: []string{"BTCUSDT", "ETHUSDT"},
		Version:    "test",
	})
	return srv, store, stateMgr
}

func doRequest(srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("unexpected health payload: %v", resp)
	}
}

func TestPositionsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/api/positions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Positions []db.Position `json:"positions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Positions) != 2 {
		t.Errorf("expected 2 positions, got %d", len(resp.Positions))
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	trade := db.Trade{ID: "t1", Symbol: "BTCUSDT", Side: "SELL", Price: 100, Qty: 1, Profit: 2, Reason: "Trailing Stop", CreatedAt: time.Now()}
	if err := store.AppendTrade(ctx, trade); err != nil {
		t.Fatalf("AppendTrade: %v", err)
	}

	w := doRequest(srv, http.MethodGet, "/api/history?limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Trades []db.Trade `json:"trades"`
		Count  int        `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Count != 1 || resp.Trades[0].ID != "t1" {
		t.Errorf("unexpected history payload: %+v", resp)
	}
}

func TestRunStateRoundTrip(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	w := doRequest(srv, http.MethodGet, "/api/run-state", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body, _ := json.Marshal(map[string]any{
		"running":    false,
		"profile":    "aggressive",
		"panic_sell": true,
	})
	w = doRequest(srv, http.MethodPost, "/api/run-state", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	// Changes land in the store for the synchronizer, not in memory.
	for key, want := range map[string]string{
		"bot_running":  "false",
		"risk_profile": "aggressive",
		"panic_sell":   "true",
	} {
		got, err := store.GetConfigValue(ctx, key, "")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestRunStateRejectsUnknownProfile(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"profile": "reckless"})
	w := doRequest(srv, http.MethodPost, "/api/run-state", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	trades := []db.Trade{
		{ID: "a", Symbol: "BTCUSDT", Side: "SELL", Price: 1, Qty: 1, Profit: 5, CreatedAt: time.Now()},
		{ID: "b", Symbol: "BTCUSDT", Side: "SELL", Price: 1, Qty: 1, Profit: -2, CreatedAt: time.Now()},
	}
	for _, tr := range trades {
		if err := store.AppendTrade(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	w := doRequest(srv, http.MethodGet, "/api/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		TotalProfit  float64 `json:"total_profit"`
		ClosedTrades int     `json:"closed_trades"`
		Wins         int     `json:"wins"`
		WinRate      float64 `json:"win_rate"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.TotalProfit != 3 || resp.ClosedTrades != 2 || resp.Wins != 1 || resp.WinRate != 50 {
		t.Errorf("unexpected stats: %+v", resp)
	}
}
