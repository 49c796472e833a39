package position

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-sentinel/internal/balance"
	"trading-sentinel/internal/events"
	"trading-sentinel/internal/gateway"
	"trading-sentinel/internal/monitor"
	"trading-sentinel/internal/state"
	"trading-sentinel/pkg/db"
)

// Exit trigger labels written to the trade ledger.
const (
	ReasonTrailingStop = "Trailing Stop"
	ReasonStopLoss     = "Stop Loss"
	ReasonPanicSell    = "Manual Sell (panic)"
)

// minNotional is the smallest quote amount worth sending to the venue.
const minNotional = 10.0

var (
	// ErrInsufficientFunds signals the symbol's allocation is too small to
	// open a position.
	ErrInsufficientFunds = errors.New("insufficient funds for entry")
	// ErrPositionOpen signals an entry was requested while already holding.
	ErrPositionOpen = errors.New("position already open")
	// ErrNotRunning signals the engine is paused.
	ErrNotRunning = errors.New("engine not running")
	// ErrUnknownSymbol signals the symbol is outside the managed set.
	ErrUnknownSymbol = errors.New("symbol not managed")
)

// Coordinator executes entries and exits against the book. All mutation of
// a symbol's position happens under that symbol's entry lock, including the
// tick-driven exit decision, so concurrent triggers resolve to exactly one
// order.
type Coordinator struct {
	book    *Book
	store   *db.Database
	state   *state.Manager
	gw      gateway.Gateway
	balance *balance.Manager // nil in simulated mode
	bus     *events.Bus
	metrics *monitor.Metrics
	feePct  decimal.Decimal

	priceMu   sync.RWMutex
	lastPrice map[string]float64
}

// NewCoordinator wires the execution path. balMgr may be nil when orders are
// simulated.
func NewCoordinator(book *Book, store *db.Database, st *state.Manager, gw gateway.Gateway, balMgr *balance.Manager, bus *events.Bus, metrics *monitor.Metrics, feePct float64) *Coordinator {
	return &Coordinator{
		book:      book,
		store:     store,
		state:     st,
		gw:        gw,
		balance:   balMgr,
		bus:       bus,
		metrics:   metrics,
		feePct:    decimal.NewFromFloat(feePct),
		lastPrice: make(map[string]float64),
	}
}

// Enter opens a position for the symbol at the given reference price. The
// full per-symbol allocation is committed. In live mode the order goes to
// the venue and the actual fill price and quantity are recorded.
func (c *Coordinator) Enter(ctx context.Context, symbol string, price, score float64) error {
	e := c.book.entry(symbol)
	if e == nil {
		return ErrUnknownSymbol
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !c.state.Running() {
		return ErrNotRunning
	}
	if e.pos.IsOpen {
		return ErrPositionOpen
	}
	if price <= 0 {
		return fmt.Errorf("enter %s: invalid price %.4f", symbol, price)
	}

	spend := e.pos.Balance
	if spend < minNotional {
		return fmt.Errorf("%w: %s has %.2f, need %.2f", ErrInsufficientFunds, symbol, spend, minNotional)
	}

	live := c.state.LiveTrading()
	fillPrice := price
	var qty float64

	if live {
		if c.balance != nil && c.balance.Free() < spend {
			return fmt.Errorf("%w: exchange free %.2f below allocation %.2f",
				ErrInsufficientFunds, c.balance.Free(), spend)
		}
		fill, err := c.gw.MarketBuy(ctx, symbol, spend)
		if err != nil {
			return fmt.Errorf("market buy %s: %w", symbol, err)
		}
		// Some venues ack a market order without fill details. Fall back to
		// the tick price so the position never opens at zero.
		if fill.AvgPrice > 0 {
			fillPrice = fill.AvgPrice
		}
		qty = fill.Qty
		if qty <= 0 {
			qty, _ = decimal.NewFromFloat(spend).
				Div(decimal.NewFromFloat(fillPrice)).Float64()
		}
	} else {
		qty, _ = decimal.NewFromFloat(spend).
			Div(decimal.NewFromFloat(price)).Float64()
	}

	trade := db.Trade{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      "BUY",
		Price:     fillPrice,
		Qty:       qty,
		CreatedAt: time.Now(),
	}
	if err := c.store.AppendTrade(ctx, trade); err != nil {
		return fmt.Errorf("record buy %s: %w", symbol, err)
	}

	e.pos.IsOpen = true
	e.pos.EntryPrice = fillPrice
	e.pos.Qty = qty
	e.pos.PeakPrice = fillPrice
	e.pos.UpdatedAt = time.Now()
	if err := c.store.SavePosition(ctx, e.pos); err != nil {
		// Ledger already holds the BUY; startup reconciliation replays it.
		log.Printf("⚠️ %s: position snapshot write failed after buy: %v", symbol, err)
	}

	log.Printf("🟢 BUY %s qty=%.6f @ %.4f (score %.1f, live=%v)", symbol, qty, fillPrice, score, live)
	c.metrics.TradesTotal.WithLabelValues("BUY").Inc()
	c.metrics.OpenPositions.Inc()
	c.bus.Publish(events.EventTradeExecuted, events.TradeExecuted{
		Symbol: symbol,
		Side:   "BUY",
		Price:  fillPrice,
		Qty:    qty,
		Score:  score,
	})
	return nil
}

// OnTick feeds a fresh price into the exit logic. The peak update, the
// profile read and the stop decision all happen under the symbol lock so an
// entry committing concurrently is either fully visible or not at all.
func (c *Coordinator) OnTick(ctx context.Context, symbol string, price float64) {
	e := c.book.entry(symbol)
	if e == nil || price <= 0 {
		return
	}

	c.priceMu.Lock()
	c.lastPrice[symbol] = price
	c.priceMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.pos.IsOpen {
		return
	}

	if price > e.pos.PeakPrice {
		e.pos.PeakPrice = price
		e.pos.UpdatedAt = time.Now()
		if err := c.store.SavePosition(ctx, e.pos); err != nil {
			log.Printf("⚠️ %s: peak persist failed: %v", symbol, err)
		}
	}

	profile := c.state.ActiveProfile()
	profitPct := pctChange(e.pos.EntryPrice, price)
	pullbackPct := pctChange(e.pos.PeakPrice, price)
	netPct, _ := decimal.NewFromFloat(profitPct).Sub(c.feePct).Float64()

	switch {
	case netPct > profile.MinProfitPct && pullbackPct <= -profile.TrailingDropPct:
		c.exitLocked(ctx, e, price, ReasonTrailingStop)
	case profitPct <= -profile.StopLossPct:
		c.exitLocked(ctx, e, price, ReasonStopLoss)
	}
}

// Exit closes the symbol's position at the given price if one is open.
func (c *Coordinator) Exit(ctx context.Context, symbol string, price float64, reason string) error {
	e := c.book.entry(symbol)
	if e == nil {
		return ErrUnknownSymbol
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.pos.IsOpen {
		return nil
	}
	return c.exitLocked(ctx, e, price, reason)
}

// ExitAll liquidates every open position at its last seen price and returns
// the number closed. Symbols without a price yet are skipped and stay open,
// so a retry can pick them up.
func (c *Coordinator) ExitAll(ctx context.Context, reason string) int {
	closed := 0
	for _, symbol := range c.book.Symbols() {
		price := c.LastPrice(symbol)
		if price <= 0 {
			continue
		}
		e := c.book.entry(symbol)
		e.mu.Lock()
		if e.pos.IsOpen {
			if err := c.exitLocked(ctx, e, price, reason); err == nil {
				closed++
			}
		}
		e.mu.Unlock()
	}
	return closed
}

// exitLocked closes the position. Caller holds e.mu. In live mode the venue
// order goes out first; if it fails nothing is mutated and the position
// stays open for the next trigger.
func (c *Coordinator) exitLocked(ctx context.Context, e *Entry, price float64, reason string) error {
	symbol := e.pos.Symbol
	qty := e.pos.Qty
	exitPrice := price

	if c.state.LiveTrading() {
		fill, err := c.gw.MarketSell(ctx, symbol, qty)
		if err != nil {
			log.Printf("❌ %s: market sell failed, position stays open: %v", symbol, err)
			c.bus.Publish(events.EventRiskAlert, events.RiskAlert{
				Symbol:  symbol,
				Message: fmt.Sprintf("exit order failed (%s): %v", reason, err),
			})
			return fmt.Errorf("market sell %s: %w", symbol, err)
		}
		if fill.AvgPrice > 0 {
			exitPrice = fill.AvgPrice
		}
	}

	entry := decimal.NewFromFloat(e.pos.EntryPrice)
	cost := entry.Mul(decimal.NewFromFloat(qty))
	grossPct := decimal.NewFromFloat(exitPrice).Sub(entry).
		Div(entry).Mul(decimal.NewFromInt(100))
	netPct := grossPct.Sub(c.feePct)
	profit, _ := cost.Mul(netPct).Div(decimal.NewFromInt(100)).Float64()
	newBalance, _ := cost.Add(cost.Mul(netPct).Div(decimal.NewFromInt(100))).Float64()

	trade := db.Trade{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      "SELL",
		Price:     exitPrice,
		Qty:       qty,
		Profit:    profit,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := c.store.AppendTrade(ctx, trade); err != nil {
		return fmt.Errorf("record sell %s: %w", symbol, err)
	}

	e.pos.Balance = newBalance
	e.pos.IsOpen = false
	e.pos.EntryPrice = 0
	e.pos.Qty = 0
	e.pos.PeakPrice = 0
	e.pos.UpdatedAt = time.Now()
	if err := c.store.SavePosition(ctx, e.pos); err != nil {
		log.Printf("⚠️ %s: position snapshot write failed after sell: %v", symbol, err)
	}

	log.Printf("🔴 SELL %s qty=%.6f @ %.4f profit=%.4f (%s)", symbol, qty, exitPrice, profit, reason)
	c.metrics.TradesTotal.WithLabelValues("SELL").Inc()
	c.metrics.ExitsByReason.WithLabelValues(reason).Inc()
	c.metrics.OpenPositions.Dec()
	c.metrics.SymbolBalance.WithLabelValues(symbol).Set(newBalance)
	c.bus.Publish(events.EventTradeExecuted, events.TradeExecuted{
		Symbol: symbol,
		Side:   "SELL",
		Price:  exitPrice,
		Qty:    qty,
		Profit: profit,
		Reason: reason,
	})
	return nil
}

// IsFlat reports whether the symbol currently holds no position.
func (c *Coordinator) IsFlat(symbol string) bool {
	e := c.book.entry(symbol)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.pos.IsOpen
}

// LastPrice returns the most recent tick price, or zero if none seen.
func (c *Coordinator) LastPrice(symbol string) float64 {
	c.priceMu.RLock()
	defer c.priceMu.RUnlock()
	return c.lastPrice[symbol]
}

// pctChange returns the percentage move from base to price.
func pctChange(base, price float64) float64 {
	if base == 0 {
		return 0
	}
	b := decimal.NewFromFloat(base)
	out, _ := decimal.NewFromFloat(price).Sub(b).
		Div(b).Mul(decimal.NewFromInt(100)).Float64()
	return out
}
