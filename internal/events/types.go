package events

// Event enumerates high-level topics inside the trading engine.
type Event string

const (
	EventPriceTick     Event = "price_tick"
	EventTradeExecuted Event = "trade_executed"
	EventSignal        Event = "signal"
	EventRiskAlert     Event = "risk_alert"
)

// Tick is the payload published on EventPriceTick.
type Tick struct {
	Symbol string
	Price  float64
}

// TradeExecuted is the payload published on EventTradeExecuted after the
// coordinator has persisted an entry or exit.
type TradeExecuted struct {
	Symbol string
	Side   string // BUY or SELL
	Price  float64
	Qty    float64
	Profit float64 // realized, zero on BUY
	Reason string  // exit trigger or entry note
	Score  float64 // signal score at entry time, zero on SELL
}

// SignalUpdate is the payload published on EventSignal after an evaluation.
type SignalUpdate struct {
	Symbol   string
	Decision string
	Score    float64
	RSI      float64
}

// RiskAlert is published when something needs operator attention, e.g. a
// live order failure mid-exit.
type RiskAlert struct {
	Symbol  string
	Message string
}
