package ta

import "math"

// EMASeries returns the recursive exponential moving average with
// alpha = 2/(span+1), seeded with the first observation. Leading missing
// values stay missing; a missing value after the seed carries the previous
// average forward and decays its weight, so the next observation pulls harder.
func EMASeries(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	if span <= 1 {
		copy(out, values)
		return out
	}
	alpha := 2.0 / float64(span+1)
	weighted := values[0]
	oldWeight := 1.0
	out[0] = weighted
	for i := 1; i < len(values); i++ {
		cur := values[i]
		observed := !math.IsNaN(cur)
		switch {
		case !math.IsNaN(weighted):
			oldWeight *= 1 - alpha
			if observed {
				if weighted != cur {
					weighted = (oldWeight*weighted + alpha*cur) / (oldWeight + alpha)
				}
				oldWeight = 1
			}
		case observed:
			weighted = cur
		}
		out[i] = weighted
	}
	return out
}

// RSISeries computes RSI from simple rolling means of gains and losses over
// period with a minimum of one observation per window. A missing delta counts
// as zero gain and zero loss. Row 0 is always missing. A window with losses
// of zero and positive gains saturates at 100; a window with neither is missing.
func RSISeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if period < 1 {
		period = 1
	}
	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gains[i] = delta
		} else if delta < 0 {
			losses[i] = -delta
		}
	}

	out := make([]float64, len(values))
	out[0] = math.NaN()
	for i := 1; i < len(values); i++ {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		var gainSum, lossSum float64
		for j := start; j <= i; j++ {
			gainSum += gains[j]
			lossSum += losses[j]
		}
		n := float64(i - start + 1)
		out[i] = rsiFromAvg(gainSum/n, lossSum/n)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	rs := avgGain / avgLoss
	if math.IsNaN(rs) {
		return math.NaN()
	}
	return 100 - 100/(1+rs)
}

// MACDSeries returns the MACD line (fast EMA - slow EMA), its signal EMA and
// the histogram (line - signal).
func MACDSeries(values []float64, fast, slow, signal int) ([]float64, []float64, []float64) {
	if len(values) == 0 {
		return nil, nil, nil
	}
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)
	line := make([]float64, len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMASeries(line, signal)
	hist := make([]float64, len(values))
	for i := range line {
		hist[i] = line[i] - signalLine[i]
	}
	return line, signalLine, hist
}

// Shift moves values n rows later, filling the head with NaN.
func Shift(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		j := i - n
		if j < 0 || j >= len(values) {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[j]
	}
	return out
}

// PctDiff is 100*(a-b)/b element-wise. Division by zero follows IEEE rules.
func PctDiff(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = 100 * (a[i] - b[i]) / b[i]
	}
	return out
}
