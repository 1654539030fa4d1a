package features

import "math"

// PctChange computes simple returns r_t = C_t / C_{t-1} - 1.
// It returns a slice of length len(closes)-1, or nil if insufficient data.
// Pairs with a non-positive previous close are skipped.
func PctChange(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev <= 0 {
			continue
		}
		out = append(out, closes[i]/prev-1)
	}
	return out
}

// Mean returns the arithmetic mean, or false for an empty slice.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// SampleStd returns the n-1 standard deviation, or false with fewer than
// two values.
func SampleStd(values []float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	mean, _ := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1)), true
}

// RollingStd returns the sample standard deviation of every complete window.
// The first value covers values[0:window]; incomplete windows are dropped.
func RollingStd(values []float64, window int) []float64 {
	if window < 2 || len(values) < window {
		return nil
	}
	out := make([]float64, 0, len(values)-window+1)
	for end := window; end <= len(values); end++ {
		sd, _ := SampleStd(values[end-window : end])
		out = append(out, sd)
	}
	return out
}

// Tail returns at most the last n values.
func Tail(values []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

// LagReturn computes C_t / C_{t-lag} - 1 on the last observation. It needs
// lag+1 observations and a non-zero base.
func LagReturn(closes []float64, lag int) (float64, bool) {
	if lag < 1 || len(closes) < lag+1 {
		return 0, false
	}
	base := closes[len(closes)-1-lag]
	if base == 0 {
		return 0, false
	}
	return closes[len(closes)-1]/base - 1, true
}

// SMA is the simple moving average of the last window closes. It is only
// defined once the series holds at least window observations.
func SMA(closes []float64, window int) (float64, bool) {
	if window < 1 || len(closes) < window {
		return 0, false
	}
	return Mean(closes[len(closes)-window:])
}

// ZScore returns (x - mean) / std over the reference window, or false when
// the window has fewer than two values or zero dispersion.
func ZScore(x float64, window []float64) (z, mean, std float64, ok bool) {
	mean, ok = Mean(window)
	if !ok {
		return 0, 0, 0, false
	}
	std, ok = SampleStd(window)
	if !ok || std == 0 || math.IsNaN(std) {
		return 0, mean, std, false
	}
	return (x - mean) / std, mean, std, true
}
