package strategy

import (
	"trading-sentinel/internal/indicators"
)

// RuleScorer is the default multi-timeframe scorer. The 15-minute series
// drives trend and oversold detection, the 1-minute series confirms that
// the short-term move has not already run away. Scores range 0 to 10.
type RuleScorer struct{}

// NewRuleScorer returns the default scorer.
func NewRuleScorer() *RuleScorer {
	return &RuleScorer{}
}

func (s *RuleScorer) Analyze(closes1m, closes15m []float64, rsiThreshold, minScore float64) Analysis {
	if len(closes15m) < 22 || len(closes1m) < 15 {
		return Analysis{Decision: DecisionWait, Reasons: []string{"insufficient history"}}
	}

	rsi15 := indicators.RSI(closes15m, 14)
	rsi1 := indicators.RSI(closes1m, 14)
	score := 0.0
	var reasons []string

	if rsi15 < rsiThreshold {
		score += 3
		reasons = append(reasons, "15m RSI oversold")
	}
	if indicators.SMA(closes15m, 9) > indicators.SMA(closes15m, 21) {
		score += 2
		reasons = append(reasons, "15m uptrend")
	}
	if indicators.Momentum(closes15m, 4) > 0 {
		score += 1
		reasons = append(reasons, "15m momentum positive")
	}
	if closes1m[len(closes1m)-1] > indicators.SMA(closes1m, 9) {
		score += 2
		reasons = append(reasons, "1m above short average")
	}
	if indicators.Momentum(closes1m, 10) > 0 {
		score += 2
		reasons = append(reasons, "1m momentum positive")
	}

	// A strong score with an overheated short timeframe usually means the
	// move already happened.
	if rsi1 > 75 && score > 6 {
		score -= 2
		reasons = append(reasons, "1m overheated, penalized")
	}

	decision := DecisionWait
	if score >= minScore {
		decision = DecisionBuy
	}
	return Analysis{Decision: decision, Score: score, RSI: rsi15, Reasons: reasons}
}
