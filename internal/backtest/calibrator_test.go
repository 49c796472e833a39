package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"trading-sentinel/internal/gateway"
	"trading-sentinel/internal/monitor"
	"trading-sentinel/internal/strategy"
	"trading-sentinel/pkg/db"
	market "trading-sentinel/pkg/market/binance"
)

// alwaysBuy opens a position at every opportunity, so the simulated outcome
// is determined entirely by the price path.
type alwaysBuy struct{}

func (alwaysBuy) Analyze(closes1m, closes15m []float64, rsiThreshold, minScore float64) strategy.Analysis {
	return strategy.Analysis{Decision: strategy.DecisionBuy}
}

func klinesFromCloses(symbol string, closes []float64) []market.Kline {
	out := make([]market.Kline, len(closes))
	for i, c := range closes {
		out[i] = market.Kline{Symbol: symbol, Close: c}
	}
	return out
}

// geometric returns n prices starting at 100 multiplied by factor each step.
func geometric(n int, factor float64) []float64 {
	out := make([]float64, n)
	v := 100.0
	for i := range out {
		out[i] = v
		v *= factor
	}
	return out
}

func newCalibratorFixture(t *testing.T, candidates []string, eliteLimit int) (*Calibrator, *gateway.Paper, *db.Database) {
	t.Helper()
	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := db.ApplyMigrations(store); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	paper := gateway.NewPaper(0)
	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	cal := NewCalibrator(paper, alwaysBuy{}, store, metrics, candidates, eliteLimit, 0.2, time.Hour, time.Hour)
	return cal, paper, store
}

func seedPath(paper *gateway.Paper, symbol string, factor float64) {
	paper.SetKlines(symbol, "1m", klinesFromCloses(symbol, geometric(simCandles1m, factor)))
	paper.SetKlines(symbol, "15m", klinesFromCloses(symbol, geometric(simCandles15m, factor)))
}

func TestRunOnceEmptyWhenNothingProfitable(t *testing.T) {
	cal, paper, store := newCalibratorFixture(t, []string{"BTCUSDT", "ETHUSDT"}, 3)
	ctx := context.Background()

	// Steady decline: every simulated round trip stops out at a loss.
	seedPath(paper, "BTCUSDT", 0.999)
	seedPath(paper, "ETHUSDT", 0.998)

	results, err := cal.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty elite set, got %d", len(results))
	}

	// Outcomes are still persisted so the dashboard can show them.
	rows, err := store.ListCalibrations(ctx)
	if err != nil {
		t.Fatalf("ListCalibrations: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Elite {
			t.Errorf("%s: losing symbol must not be elite", r.Symbol)
		}
		if r.Profit >= 0 {
			t.Errorf("%s: expected negative simulated profit, got %.2f", r.Symbol, r.Profit)
		}
	}
}

func TestRunOnceRanksAndLimitsElite(t *testing.T) {
	cal, paper, store := newCalibratorFixture(t, []string{"AUSDT", "BUSDT", "CUSDT", "DUSDT"}, 2)
	ctx := context.Background()

	// Three climbers at different speeds and one decliner. The faster climb
	// completes more profitable round trips.
	seedPath(paper, "AUSDT", 1.0005)
	seedPath(paper, "BUSDT", 1.001)
	seedPath(paper, "CUSDT", 1.002)
	seedPath(paper, "DUSDT", 0.999)

	results, err := cal.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("elite limit 2, got %d", len(results))
	}
	for _, r := range results {
		if !r.Elite {
			t.Errorf("%s: returned result should be elite", r.Symbol)
		}
		if r.Profit <= 0 {
			t.Errorf("%s: elite must be profitable, got %.2f", r.Symbol, r.Profit)
		}
	}
	if results[0].Profit < results[1].Profit {
		t.Error("results should be ranked by profit, best first")
	}
	if results[0].Symbol == "DUSDT" || results[1].Symbol == "DUSDT" {
		t.Error("the losing symbol must never be promoted")
	}

	rows, err := store.ListCalibrations(ctx)
	if err != nil {
		t.Fatalf("ListCalibrations: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected all 4 candidates persisted, got %d", len(rows))
	}
	eliteCount := 0
	for _, r := range rows {
		if r.Elite {
			eliteCount++
		}
	}
	if eliteCount != 2 {
		t.Errorf("expected 2 elite rows persisted, got %d", eliteCount)
	}
}

func TestRunOnceSkipsFailingSymbol(t *testing.T) {
	cal, paper, _ := newCalibratorFixture(t, []string{"AUSDT", "MISSINGUSDT"}, 3)
	ctx := context.Background()

	// Only one symbol has data; the other errors and is skipped.
	seedPath(paper, "AUSDT", 1.002)

	results, err := cal.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(results) != 1 || results[0].Symbol != "AUSDT" {
		t.Fatalf("expected only AUSDT, got %+v", results)
	}
}
