package features

import "math"

// SimpleReturns computes (x_t - x_{t-1}) / x_{t-1}.
func SimpleReturns(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, 0, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		if xs[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (xs[i]-xs[i-1])/xs[i-1])
	}
	return out
}

// RealizedVolatility is the sample standard deviation of the last window
// returns. Returns 0 when fewer than window returns exist.
func RealizedVolatility(returns []float64, window int) float64 {
	if window <= 1 || len(returns) < window {
		return 0
	}
	return StdDev(returns[len(returns)-window:])
}

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev is the sample (n-1) standard deviation.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// SMA is the mean of the last n values (or all of them when fewer).
func SMA(xs []float64, n int) float64 {
	if n <= 0 || len(xs) == 0 {
		return 0
	}
	if len(xs) > n {
		xs = xs[len(xs)-n:]
	}
	return Mean(xs)
}
