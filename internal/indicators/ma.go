package indicators

// SMA calculates the simple moving average of the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// Momentum returns the percentage change between the last value and the value
// lookback candles earlier.
func Momentum(values []float64, lookback int) float64 {
	if lookback <= 0 || len(values) < lookback+1 {
		return 0
	}
	prev := values[len(values)-1-lookback]
	if prev == 0 {
		return 0
	}
	return (values[len(values)-1] - prev) / prev * 100
}
