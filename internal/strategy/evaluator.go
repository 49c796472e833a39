package strategy

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"trading-sentinel/internal/events"
	"trading-sentinel/internal/gateway"
	"trading-sentinel/internal/monitor"
	"trading-sentinel/internal/state"
	"trading-sentinel/pkg/db"
	binance "trading-sentinel/pkg/market/binance"
)

const (
	klineLimit      = 100
	shortInterval   = "1m"
	primaryInterval = "15m"
)

// Trader is the execution surface the evaluator drives.
type Trader interface {
	Enter(ctx context.Context, symbol string, price, score float64) error
	IsFlat(symbol string) bool
	LastPrice(symbol string) float64
}

// Evaluator periodically scores the elite universe and opens positions on
// BUY decisions. Every evaluation is persisted as a signal snapshot whether
// or not it leads to a trade.
type Evaluator struct {
	gw       gateway.Gateway
	scorer   Scorer
	trader   Trader
	state    *state.Manager
	store    *db.Database
	bus      *events.Bus
	metrics  *monitor.Metrics
	interval time.Duration

	mu       sync.RWMutex
	universe []string
	tuned    map[string]TunedConfig
}

// NewEvaluator wires the entry loop. The universe starts empty and is set
// once the first calibration pass completes.
func NewEvaluator(gw gateway.Gateway, scorer Scorer, trader Trader, st *state.Manager, store *db.Database, bus *events.Bus, metrics *monitor.Metrics, interval time.Duration) *Evaluator {
	return &Evaluator{
		gw:       gw,
		scorer:   scorer,
		trader:   trader,
		state:    st,
		store:    store,
		bus:      bus,
		metrics:  metrics,
		interval: interval,
		tuned:    make(map[string]TunedConfig),
	}
}

// SetUniverse replaces the evaluated symbols and their tuned thresholds.
func (e *Evaluator) SetUniverse(symbols []string, tuned map[string]TunedConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.universe = append([]string(nil), symbols...)
	e.tuned = make(map[string]TunedConfig, len(tuned))
	for k, v := range tuned {
		e.tuned[k] = v
	}
	log.Printf("🎯 Evaluation universe set: %v", e.universe)
}

// Universe returns the current elite symbols.
func (e *Evaluator) Universe() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.universe...)
}

// Run blocks evaluating on a fixed cadence until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	log.Println("🧠 Entry evaluator started")
	for {
		select {
		case <-ctx.Done():
			log.Println("🧠 Entry evaluator stopped")
			return
		case <-ticker.C:
			e.evaluateOnce(ctx)
		}
	}
}

func (e *Evaluator) evaluateOnce(ctx context.Context) {
	if !e.state.Running() {
		return
	}
	profile := e.state.ActiveProfile()

	for _, symbol := range e.Universe() {
		if !e.trader.IsFlat(symbol) {
			continue
		}
		if err := e.evaluateSymbol(ctx, symbol, profile.RSIBuy, profile.MinScore); err != nil {
			// One symbol failing must not starve the rest of the cycle.
			log.Printf("⚠️ Evaluate %s: %v", symbol, err)
		}
	}
}

func (e *Evaluator) evaluateSymbol(ctx context.Context, symbol string, rsiThreshold, profileMinScore float64) error {
	minScore := profileMinScore
	e.mu.RLock()
	if tuned, ok := e.tuned[symbol]; ok {
		rsiThreshold = tuned.RSIThreshold
		minScore = tuned.MinScore
	}
	e.mu.RUnlock()

	short, err := e.gw.GetKlines(ctx, symbol, shortInterval, klineLimit)
	if err != nil {
		return err
	}
	primary, err := e.gw.GetKlines(ctx, symbol, primaryInterval, klineLimit)
	if err != nil {
		return err
	}

	analysis := e.scorer.Analyze(closePrices(short), closePrices(primary), rsiThreshold, minScore)
	e.metrics.SignalsEvaluated.Inc()

	snapshot := db.SignalStatus{
		Symbol:    symbol,
		RSI:       analysis.RSI,
		Score:     analysis.Score,
		Decision:  analysis.Decision,
		UpdatedAt: time.Now(),
	}
	if err := e.store.UpsertSignalStatus(ctx, snapshot); err != nil {
		log.Printf("⚠️ Signal snapshot %s: %v", symbol, err)
	}
	e.bus.Publish(events.EventSignal, events.SignalUpdate{
		Symbol:   symbol,
		Decision: analysis.Decision,
		Score:    analysis.Score,
		RSI:      analysis.RSI,
	})

	if analysis.Decision != DecisionBuy {
		return nil
	}
	// Tuned thresholds can sit below the active profile's bar. The profile
	// gate always applies on top, so a stricter profile tightens entries
	// even for calibrated symbols.
	if analysis.Score < profileMinScore {
		return nil
	}

	price := e.trader.LastPrice(symbol)
	if price <= 0 && len(short) > 0 {
		price = short[len(short)-1].Close
	}
	if price <= 0 {
		return errors.New("no reference price available")
	}

	err = e.trader.Enter(ctx, symbol, price, analysis.Score)
	if err != nil {
		// Another trigger may have opened the position between the flat
		// check and now; that race is benign.
		if errors.Is(err, context.Canceled) {
			return err
		}
		log.Printf("⚠️ Entry %s skipped: %v", symbol, err)
	}
	return nil
}

func closePrices(klines []binance.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}
