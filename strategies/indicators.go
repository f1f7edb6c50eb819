package strategies

// SMA returns the simple moving average of the last period values, or
// ok=false when there is not enough history
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average over the whole series with
// alpha = 2/(span+1), seeded with the first value
func EMA(values []float64, span int) (float64, bool) {
	if span <= 0 || len(values) == 0 {
		return 0, false
	}
	alpha := 2.0 / (float64(span) + 1.0)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema, true
}

// RSI returns the relative strength index over the last period deltas,
// using simple averages of gains and losses
func RSI(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := len(values) - period; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		avgLoss = 1e-8
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
