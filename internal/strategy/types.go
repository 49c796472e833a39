package strategy

// Decisions emitted by the scorer.
const (
	DecisionBuy  = "BUY"
	DecisionWait = "WAIT"
)

// Analysis is the outcome of scoring one symbol across both timeframes.
type Analysis struct {
	Decision string
	Score    float64
	RSI      float64
	Reasons  []string
}

// TunedConfig overrides the profile thresholds for a symbol after a
// calibration pass ranked it.
type TunedConfig struct {
	RSIThreshold float64
	MinScore     float64
}

// Scorer turns candle history into an entry decision. closes1m carries the
// short confirmation timeframe, closes15m the primary one.
type Scorer interface {
	Analyze(closes1m, closes15m []float64, rsiThreshold, minScore float64) Analysis
}
