package market

// Kline represents a single candlestick from the Binance REST API.
type Kline struct {
	Symbol    string
	OpenTime  int64 // ms
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64 // ms
}

// MiniTicker is a lightweight per-symbol price update from the
// <symbol>@miniTicker stream.
type MiniTicker struct {
	Symbol string
	Close  float64
	Time   int64 // ms
}

// OrderFill is the outcome of an executed market order. AvgPrice is zero when
// the exchange reported no fills.
type OrderFill struct {
	OrderID   int64
	FilledQty float64
	AvgPrice  float64
}

// AssetBalance holds free and locked funds for one asset.
type AssetBalance struct {
	Asset  string
	Free   float64
	Locked float64
}
