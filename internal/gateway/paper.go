package gateway

import (
	"context"
	"fmt"
	"sync"

	market "trading-sentinel/pkg/market/binance"
)

// Paper is an in-memory venue used by tests and mock-feed runs. Orders fill
// instantly at the last price set via SetPrice, with no fees or slippage.
type Paper struct {
	mu      sync.RWMutex
	prices  map[string]float64
	klines  map[string][]market.Kline // keyed by symbol+interval
	balance float64

	// FailOrders forces every order to error, for exercising the abort path.
	FailOrders bool
	// BlankFills makes orders succeed without fill details, the way some
	// venues ack a market order before the fill report lands.
	BlankFills bool
}

// NewPaper builds a paper venue with the given free quote balance.
func NewPaper(balance float64) *Paper {
	return &Paper{
		prices:  make(map[string]float64),
		klines:  make(map[string][]market.Kline),
		balance: balance,
	}
}

// SetPrice sets the current fill price for a symbol.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SetKlines seeds candle history returned by GetKlines.
func (p *Paper) SetKlines(symbol, interval string, klines []market.Kline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.klines[symbol+interval] = klines
}

func (p *Paper) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ks, ok := p.klines[symbol+interval]
	if !ok {
		return nil, fmt.Errorf("paper: no klines seeded for %s %s", symbol, interval)
	}
	if limit > 0 && len(ks) > limit {
		ks = ks[len(ks)-limit:]
	}
	return ks, nil
}

func (p *Paper) MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailOrders {
		return Fill{}, fmt.Errorf("paper: order rejected")
	}
	price := p.prices[symbol]
	if price <= 0 {
		return Fill{}, fmt.Errorf("paper: no price for %s", symbol)
	}
	if quoteAmount > p.balance {
		return Fill{}, fmt.Errorf("paper: insufficient balance: need %.2f, have %.2f", quoteAmount, p.balance)
	}
	p.balance -= quoteAmount
	if p.BlankFills {
		return Fill{}, nil
	}
	return Fill{Qty: quoteAmount / price, AvgPrice: price}, nil
}

func (p *Paper) MarketSell(ctx context.Context, symbol string, qty float64) (Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailOrders {
		return Fill{}, fmt.Errorf("paper: order rejected")
	}
	price := p.prices[symbol]
	if price <= 0 {
		return Fill{}, fmt.Errorf("paper: no price for %s", symbol)
	}
	p.balance += qty * price
	if p.BlankFills {
		return Fill{Qty: qty}, nil
	}
	return Fill{Qty: qty, AvgPrice: price}, nil
}

func (p *Paper) FreeBalance(ctx context.Context, asset string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance, nil
}
