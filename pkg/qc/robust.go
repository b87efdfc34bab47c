package qc

import (
	"math"
	"sort"
)

// MADScale is the standard consistency constant for the median absolute
// deviation, 1/Phi^-1(3/4), which makes the MAD a consistent estimator of
// the standard deviation under normality.
const MADScale = 0.6744897501960817

// Median returns the median of x. NaN on empty input.
func Median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return math.NaN()
	}
	sorted := make([]float64, n)
	copy(sorted, x)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}

// MAD returns the median absolute deviation of x normalized by the
// standard consistency constant, a robust substitute for the standard
// deviation in MRI noise distributions.
func MAD(x []float64) float64 {
	return MADC(x, MADScale)
}

// MADC returns the median absolute deviation of x divided by an explicit
// consistency constant c.
func MADC(x []float64, c float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	center := Median(x)
	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - center)
	}
	return Median(dev) / c
}

// percentile returns the p-th percentile (0-100) of x using linear
// interpolation between order statistics, matching the convention of the
// upstream toolchain so trimming thresholds agree exactly.
func percentile(x []float64, p float64) float64 {
	n := len(x)
	if n == 0 {
		return math.NaN()
	}
	sorted := make([]float64, n)
	copy(sorted, x)
	sort.Float64s(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo, hi = 0, 0
	}
	if hi > n-1 {
		lo, hi = n-1, n-1
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
