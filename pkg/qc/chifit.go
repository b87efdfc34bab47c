package qc

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// fitChi builds the density histogram of the positive background samples,
// fits a mode-anchored scaled chi distribution with 2*ncoils degrees of
// freedom, and measures the mean absolute density mismatch beyond the
// right-side half-maximum crossing.
func fitChi(data []float64, ncoils int) *ChiFitReport {
	// Empirical pdf over [0, p99.9], Doane bin rule
	dmax := percentile(data, 99.9)
	centers, hist := densityHistogram(data, dmax)

	maxPos := 0
	for i, v := range hist {
		if v > hist[maxPos] {
			maxPos = i
		}
	}

	report := &ChiFitReport{X: centers, Y: hist}

	// Fit a chi distribution anchored at the histogram mode. With the
	// location fixed, the maximum-likelihood scale has the closed form
	// sigma^2 = sum((x-loc)^2) / (n*k).
	k := 2 * float64(ncoils)
	loc := centers[maxPos]
	var ss float64
	var n int
	for _, v := range data {
		if v > loc {
			d := v - loc
			ss += d * d
			n++
		}
	}
	chi := distuv.Chi{K: k}
	scale := math.Sqrt(ss / (float64(n) * k))

	fitted := make([]float64, len(centers))
	for i, x := range centers {
		z := (x - loc) / scale
		if z > 0 {
			fitted[i] = chi.Prob(z) / scale
		}
	}
	report.YHat = fitted

	// Right-side half-maximum crossing: the first bin past the mode where
	// the empirical density falls below half the modal density.
	ihw := 0.5 * hist[maxPos]
	t2idx := 0
	for i := maxPos + 1; i < len(centers); i++ {
		if hist[i] < ihw {
			t2idx = i
			break
		}
	}
	report.XCutoff = centers[t2idx]

	// Goodness of fit: mean absolute difference between the empirical and
	// fitted densities beyond the cutoff, clamped to [0, 1].
	var diff float64
	for i := t2idx; i < len(centers); i++ {
		diff += math.Abs(hist[i] - fitted[i])
	}
	gof := diff / float64(len(centers)-t2idx)
	if gof > 1.0 {
		gof = 1.0
	}
	if gof < 0.0 {
		gof = 0.0
	}
	report.GOF = gof
	return report
}

// densityHistogram bins the samples over [0, dmax] with the Doane
// bin-count rule and normalizes counts to a probability density. Returns
// the bin centers and densities.
func densityHistogram(data []float64, dmax float64) (centers, density []float64) {
	clipped := make([]float64, 0, len(data))
	for _, v := range data {
		if v >= 0 && v <= dmax {
			clipped = append(clipped, v)
		}
	}
	sort.Float64s(clipped)

	bins := doaneBins(clipped)
	dividers := make([]float64, bins+1)
	floats.Span(dividers, 0, dmax)
	// Histogram needs the data maximum strictly below the top divider;
	// samples sitting exactly on dmax still belong to the last bin.
	dividers[bins] = math.Nextafter(dmax, math.Inf(1))
	counts := stat.Histogram(nil, dividers, clipped, nil)

	width := dmax / float64(bins)
	total := float64(len(clipped))
	centers = make([]float64, bins)
	density = make([]float64, bins)
	for i := range counts {
		centers[i] = 0.5 * (dividers[i] + dividers[i+1])
		density[i] = counts[i] / (total * width)
	}
	return centers, density
}

// doaneBins implements Doane's bin-count rule, which extends Sturges'
// formula with a skewness term so heavily asymmetric noise distributions
// still get enough resolution.
func doaneBins(x []float64) int {
	n := float64(len(x))
	if n < 3 {
		return 1
	}
	g1 := stat.Skew(x, nil)
	sg1 := math.Sqrt(6.0 * (n - 2.0) / ((n + 1.0) * (n + 3.0)))
	bins := int(math.Ceil(1.0 + math.Log2(n) + math.Log2(1.0+math.Abs(g1)/sg1)))
	if bins < 1 {
		bins = 1
	}
	return bins
}
