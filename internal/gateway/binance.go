package gateway

import (
	"context"

	market "trading-sentinel/pkg/market/binance"
)

// Binance adapts the REST client to the Gateway contract.
type Binance struct {
	client *market.Client
}

// NewBinance wraps an existing REST client.
func NewBinance(client *market.Client) *Binance {
	return &Binance{client: client}
}

func (b *Binance) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error) {
	return b.client.GetKlines(ctx, symbol, interval, limit)
}

func (b *Binance) MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (Fill, error) {
	fill, err := b.client.MarketBuy(ctx, symbol, quoteAmount)
	if err != nil {
		return Fill{}, err
	}
	return Fill{Qty: fill.FilledQty, AvgPrice: fill.AvgPrice}, nil
}

func (b *Binance) MarketSell(ctx context.Context, symbol string, qty float64) (Fill, error) {
	fill, err := b.client.MarketSell(ctx, symbol, qty)
	if err != nil {
		return Fill{}, err
	}
	return Fill{Qty: fill.FilledQty, AvgPrice: fill.AvgPrice}, nil
}

func (b *Binance) FreeBalance(ctx context.Context, asset string) (float64, error) {
	return b.client.GetFreeBalance(ctx, asset)
}
