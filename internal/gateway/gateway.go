package gateway

import (
	"context"
	"strings"

	market "trading-sentinel/pkg/market/binance"
)

// Fill is the reported outcome of an executed market order.
type Fill struct {
	Qty      float64
	AvgPrice float64 // zero when the venue did not report fills
}

// Gateway abstracts the trading venue: candle history, market orders and
// account balance.
type Gateway interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error)
	MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (Fill, error)
	MarketSell(ctx context.Context, symbol string, qty float64) (Fill, error)
	FreeBalance(ctx context.Context, asset string) (float64, error)
}

// knownQuotes are checked as suffixes when splitting a pair symbol.
var knownQuotes = []string{"USDT", "USDC", "BUSD", "BRL", "BTC", "ETH"}

// QuoteAsset extracts the quote currency from a pair symbol like BTCUSDT.
func QuoteAsset(symbol string) string {
	s := strings.ToUpper(symbol)
	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return q
		}
	}
	return "USDT"
}
