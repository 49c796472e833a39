package backtest

import (
	"context"
	"log"
	"sort"
	"time"

	"trading-sentinel/internal/gateway"
	"trading-sentinel/internal/monitor"
	"trading-sentinel/internal/strategy"
	"trading-sentinel/pkg/db"
)

const (
	simCandles1m  = 1000
	simCandles15m = 200
	simWindow     = 50
	simTakeProfit = 0.5  // percent
	simStopLoss   = -1.0 // percent
)

// Parameter grid swept per symbol.
var (
	rsiGrid   = []float64{25, 30, 35}
	scoreGrid = []float64{6, 7}
)

// Result is one symbol's best simulated configuration.
type Result struct {
	Symbol       string
	RSIThreshold float64
	MinScore     float64
	Profit       float64
	Elite        bool
}

// Calibrator replays recent candles through the scorer for every candidate
// symbol and parameter combination, then promotes the most profitable
// symbols to the elite universe.
type Calibrator struct {
	gw         gateway.Gateway
	scorer     strategy.Scorer
	store      *db.Database
	metrics    *monitor.Metrics
	candidates []string
	eliteLimit int
	feePct     float64
	interval   time.Duration
	backoff    time.Duration
}

// NewCalibrator builds a calibrator over the candidate symbols.
func NewCalibrator(gw gateway.Gateway, scorer strategy.Scorer, store *db.Database, metrics *monitor.Metrics, candidates []string, eliteLimit int, feePct float64, interval, backoff time.Duration) *Calibrator {
	return &Calibrator{
		gw:         gw,
		scorer:     scorer,
		store:      store,
		metrics:    metrics,
		candidates: candidates,
		eliteLimit: eliteLimit,
		feePct:     feePct,
		interval:   interval,
		backoff:    backoff,
	}
}

// Run calibrates on a fixed cadence and hands each non-empty elite set to
// apply. An empty set means no candidate simulated profitably; the next
// attempt waits the longer backoff instead of the regular interval.
func (c *Calibrator) Run(ctx context.Context, apply func([]Result)) {
	for {
		results, err := c.RunOnce(ctx)
		wait := c.interval
		switch {
		case err != nil:
			log.Printf("❌ Calibration failed: %v", err)
			wait = c.backoff
		case len(results) == 0:
			log.Printf("🔬 Calibration found no profitable symbols, backing off %s", c.backoff)
			wait = c.backoff
		default:
			apply(results)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// RunOnce sweeps the grid for every candidate and returns the elite set,
// ranked by simulated profit. All outcomes, elite or not, are persisted so
// the dashboard can show why a symbol was passed over.
func (c *Calibrator) RunOnce(ctx context.Context) ([]Result, error) {
	log.Printf("🔬 Calibrating %d candidates", len(c.candidates))
	start := time.Now()

	var all []Result
	for _, symbol := range c.candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res, err := c.calibrateSymbol(ctx, symbol)
		if err != nil {
			log.Printf("⚠️ Calibrate %s: %v", symbol, err)
			continue
		}
		all = append(all, res)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Profit > all[j].Profit })

	elite := 0
	for i := range all {
		if all[i].Profit > 0 && elite < c.eliteLimit {
			all[i].Elite = true
			elite++
		}
	}

	now := time.Now()
	for _, r := range all {
		err := c.store.UpsertCalibration(ctx, db.Calibration{
			Symbol:       r.Symbol,
			RSIThreshold: r.RSIThreshold,
			MinScore:     r.MinScore,
			Profit:       r.Profit,
			Elite:        r.Elite,
			UpdatedAt:    now,
		})
		if err != nil {
			log.Printf("⚠️ Persist calibration %s: %v", r.Symbol, err)
		}
	}

	var out []Result
	for _, r := range all {
		if r.Elite {
			out = append(out, r)
		}
	}

	c.metrics.CalibrationRuns.Inc()
	log.Printf("🔬 Calibration done in %s, %d elite of %d candidates", time.Since(start).Round(time.Millisecond), len(out), len(c.candidates))
	return out, nil
}

// calibrateSymbol returns the best grid combination for one symbol.
func (c *Calibrator) calibrateSymbol(ctx context.Context, symbol string) (Result, error) {
	short, err := c.gw.GetKlines(ctx, symbol, "1m", simCandles1m)
	if err != nil {
		return Result{}, err
	}
	primary, err := c.gw.GetKlines(ctx, symbol, "15m", simCandles15m)
	if err != nil {
		return Result{}, err
	}

	closes1 := make([]float64, len(short))
	for i, k := range short {
		closes1[i] = k.Close
	}
	closes15 := make([]float64, len(primary))
	for i, k := range primary {
		closes15[i] = k.Close
	}

	best := Result{Symbol: symbol, RSIThreshold: rsiGrid[0], MinScore: scoreGrid[0], Profit: c.simulate(closes1, closes15, rsiGrid[0], scoreGrid[0])}
	for _, rsi := range rsiGrid {
		for _, score := range scoreGrid {
			if rsi == rsiGrid[0] && score == scoreGrid[0] {
				continue
			}
			profit := c.simulate(closes1, closes15, rsi, score)
			if profit > best.Profit {
				best = Result{Symbol: symbol, RSIThreshold: rsi, MinScore: score, Profit: profit}
			}
		}
	}
	return best, nil
}

// simulate replays the 1-minute series through the scorer with a rolling
// window and fixed take-profit and stop-loss brackets. Fees are charged per
// completed round trip. A position still open at the end is discarded.
func (c *Calibrator) simulate(closes1, closes15 []float64, rsiThreshold, minScore float64) float64 {
	profit := 0.0
	open := false
	entry := 0.0

	for i := simWindow; i < len(closes1); i++ {
		price := closes1[i]
		if open {
			pct := (price - entry) / entry * 100
			if pct >= simTakeProfit || pct <= simStopLoss {
				profit += pct - c.feePct
				open = false
			}
			continue
		}

		window1 := closes1[i-simWindow : i]
		window15 := alignedPrimary(closes15, len(closes1), i)
		analysis := c.scorer.Analyze(window1, window15, rsiThreshold, minScore)
		if analysis.Decision == strategy.DecisionBuy {
			open = true
			entry = price
		}
	}
	return profit
}

// alignedPrimary trims the 15-minute series to what was known at 1-minute
// index i, so the simulation never looks ahead.
func alignedPrimary(closes15 []float64, total1m, i int) []float64 {
	behind := (total1m - i + 14) / 15
	end := len(closes15) - behind
	if end < 0 {
		end = 0
	}
	start := end - simWindow
	if start < 0 {
		start = 0
	}
	return closes15[start:end]
}
