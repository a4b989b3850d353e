package health

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"ethpulse/internal/domain"
)

// mean returns the arithmetic mean, 0 for empty input.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// popStdDev returns the population standard deviation (n denominator).
// Baselines and z-scores are computed over the entire window, not a sample
// drawn from it, so the population form is the right one.
func popStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.PopStdDev(values, nil)
}

// popVariance returns the population variance, 0 for fewer than two values.
func popVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.PopVariance(values, nil)
}

// percentile computes the p-th quantile (p in [0,1]) with linear
// interpolation between closest ranks. sorted must be pre-sorted ASC.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// sortedCopy returns an ascending copy of values, leaving the input intact.
func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// median returns the 50th percentile. sorted must be pre-sorted ASC.
func median(sorted []float64) float64 {
	return percentile(sorted, 0.50)
}

// zScores returns the population z-score of every value against the window
// mean. A zero standard deviation yields all-zero scores rather than a
// division fault.
func zScores(values []float64) []float64 {
	scores := make([]float64, len(values))
	m := mean(values)
	sd := popStdDev(values)
	if sd == 0 {
		return scores
	}
	for i, v := range values {
		scores[i] = (v - m) / sd
	}
	return scores
}

// slopeTrend classifies the direction of a series via a least-squares fit.
// The total fitted change over the series is compared to the series mean;
// changes within ±5% are reported as stable.
func slopeTrend(values []float64) domain.TrendDirection {
	n := len(values)
	if n < 2 {
		return domain.TrendStable
	}
	m := mean(values)
	if m == 0 {
		return domain.TrendStable
	}

	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, values, nil, false)

	relative := beta * float64(n-1) / m
	switch {
	case relative > 0.05:
		return domain.TrendRising
	case relative < -0.05:
		return domain.TrendFalling
	default:
		return domain.TrendStable
	}
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
