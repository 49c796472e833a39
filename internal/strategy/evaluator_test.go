package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-sentinel/internal/events"
	"trading-sentinel/internal/gateway"
	"trading-sentinel/internal/monitor"
	"trading-sentinel/internal/risk"
	"trading-sentinel/internal/state"
	"trading-sentinel/pkg/db"
	market "trading-sentinel/pkg/market/binance"
)

type entryCall struct {
	symbol string
	price  float64
	score  float64
}

type fakeTrader struct {
	flat    map[string]bool
	entries []entryCall
}

func (f *fakeTrader) Enter(ctx context.Context, symbol string, price, score float64) error {
	f.entries = append(f.entries, entryCall{symbol: symbol, price: price, score: score})
	return nil
}

func (f *fakeTrader) IsFlat(symbol string) bool { return f.flat[symbol] }
func (f *fakeTrader) LastPrice(string) float64  { return 0 }

func toKlines(symbol string, closes []float64) []market.Kline {
	out := make([]market.Kline, len(closes))
	for i, c := range closes {
		out[i] = market.Kline{Symbol: symbol, Close: c}
	}
	return out
}

func seriesDrifting(n int, start float64) []float64 {
	out := make([]float64, n)
	v := start
	for i := range out {
		out[i] = v
		if i%2 == 0 {
			v += 1
		} else {
			v -= 0.5
		}
	}
	return out
}

func seriesFalling(n int, start float64) []float64 {
	out := make([]float64, n)
	v := start
	for i := range out {
		out[i] = v
		v -= 1
	}
	return out
}

func newEvaluatorFixture(t *testing.T) (*Evaluator, *fakeTrader, *gateway.Paper, *db.Database) {
	t.Helper()

	store, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, db.ApplyMigrations(store))

	stateMgr := state.NewManager(store, risk.ProfileModerate, false)
	require.NoError(t, stateMgr.Load(context.Background()))

	paper := gateway.NewPaper(0)
	trader := &fakeTrader{flat: map[string]bool{"BTCUSDT": true}}
	eval := NewEvaluator(paper, NewRuleScorer(), trader, stateMgr, store, events.NewBus(), monitor.NewMetrics(prometheus.NewRegistry()), time.Second)
	return eval, trader, paper, store
}

// seedBullish sets up candles that score 7 with the default thresholds:
// oversold 15 minute series plus a drifting-up 1 minute confirmation.
func seedBullish(paper *gateway.Paper, symbol string) {
	paper.SetKlines(symbol, shortInterval, toKlines(symbol, seriesDrifting(klineLimit, 100)))
	paper.SetKlines(symbol, primaryInterval, toKlines(symbol, seriesFalling(klineLimit, 300)))
}

func TestEvaluateOpensOnBuySignal(t *testing.T) {
	eval, trader, paper, store := newEvaluatorFixture(t)
	ctx := context.Background()

	seedBullish(paper, "BTCUSDT")
	eval.SetUniverse([]string{"BTCUSDT"}, nil)

	eval.evaluateOnce(ctx)

	require.Len(t, trader.entries, 1)
	call := trader.entries[0]
	assert.Equal(t, "BTCUSDT", call.symbol)
	assert.Equal(t, 7.0, call.score)
	// No live tick yet, so the newest short candle is the reference price.
	assert.Greater(t, call.price, 100.0)

	signals, err := store.ListSignalStatus(ctx)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, DecisionBuy, signals[0].Decision)
	assert.Equal(t, 7.0, signals[0].Score)
}

func TestEvaluatePersistsWaitSnapshots(t *testing.T) {
	eval, trader, paper, store := newEvaluatorFixture(t)
	ctx := context.Background()

	seedBullish(paper, "BTCUSDT")
	// Tuned thresholds from calibration outrank the profile defaults; a
	// min score of 8 turns the same setup into a WAIT.
	eval.SetUniverse([]string{"BTCUSDT"}, map[string]TunedConfig{
		"BTCUSDT": {RSIThreshold: 35, MinScore: 8},
	})

	eval.evaluateOnce(ctx)

	assert.Empty(t, trader.entries)

	signals, err := store.ListSignalStatus(ctx)
	require.NoError(t, err)
	require.Len(t, signals, 1, "snapshot persists even without a trade")
	assert.Equal(t, DecisionWait, signals[0].Decision)
}

func TestEvaluateSkipsOpenPositions(t *testing.T) {
	eval, trader, paper, _ := newEvaluatorFixture(t)
	ctx := context.Background()

	seedBullish(paper, "BTCUSDT")
	trader.flat["BTCUSDT"] = false
	eval.SetUniverse([]string{"BTCUSDT"}, nil)

	eval.evaluateOnce(ctx)

	assert.Empty(t, trader.entries, "held symbols are not re-evaluated")
}

func TestEvaluateIsolatesSymbolFailures(t *testing.T) {
	eval, trader, paper, _ := newEvaluatorFixture(t)
	ctx := context.Background()

	// First symbol has no candle data and errors; the second still trades.
	trader.flat["AAAUSDT"] = true
	seedBullish(paper, "BTCUSDT")
	eval.SetUniverse([]string{"AAAUSDT", "BTCUSDT"}, nil)

	eval.evaluateOnce(ctx)

	require.Len(t, trader.entries, 1)
	assert.Equal(t, "BTCUSDT", trader.entries[0].symbol)
}

func TestEvaluateProfileGateOutranksTunedThreshold(t *testing.T) {
	store, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, db.ApplyMigrations(store))

	ctx := context.Background()
	stateMgr := state.NewManager(store, risk.ProfileConservative, false)
	require.NoError(t, stateMgr.Load(ctx))

	paper := gateway.NewPaper(0)
	trader := &fakeTrader{flat: map[string]bool{"BTCUSDT": true}}
	eval := NewEvaluator(paper, NewRuleScorer(), trader, stateMgr, store, events.NewBus(), monitor.NewMetrics(prometheus.NewRegistry()), time.Second)

	seedBullish(paper, "BTCUSDT")
	// Calibration handed back a looser bar than the conservative profile.
	// The scorer says BUY at score 7, but the profile still demands 8.
	eval.SetUniverse([]string{"BTCUSDT"}, map[string]TunedConfig{
		"BTCUSDT": {RSIThreshold: 35, MinScore: 6},
	})

	eval.evaluateOnce(ctx)

	assert.Empty(t, trader.entries, "profile minimum applies on top of tuned thresholds")

	signals, err := store.ListSignalStatus(ctx)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, DecisionBuy, signals[0].Decision, "snapshot keeps the scorer's verdict")
}
