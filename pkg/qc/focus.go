package qc

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"anatqc/internal/models"
)

// FBER calculates the foreground-background energy ratio: the mean squared
// intensity inside the head mask over the mean squared intensity outside
// it. Higher is better.
//
// Returns the sentinel -1.0 when the background energy is below 1e-3,
// signaling that the metric is undefined (e.g. a zero-filled background).
func FBER(img *models.Volume, headmask *models.Mask) float64 {
	fg := maskedValues(img, headmask)
	bg := unmaskedValues(img, headmask)

	fgMu := stat.Mean(squared(fg), nil)
	bgMu := stat.Mean(squared(bg), nil)
	if bgMu < 1.0e-3 {
		return -1.0
	}
	return fgMu / bgMu
}

// EFC calculates the entropy focus criterion (Atkinson et al., 1997): the
// Shannon entropy of the voxel intensities as an indication of ghosting
// and blurring induced by head motion. Lower is better.
//
// The entropy is normalized by its theoretical maximum for the grid size
// (reached when all voxels share the same value) so volumes of different
// dimensions are comparable. A 1e-16 epsilon keeps the logarithm defined
// on zero-valued background voxels.
func EFC(img *models.Volume) float64 {
	n := float64(img.Len())

	efcMax := n * (1.0 / math.Sqrt(n)) * math.Log(1.0/math.Sqrt(n))

	// Total image energy
	var energy float64
	for _, v := range img.Data {
		energy += v * v
	}
	bMax := math.Sqrt(energy)

	var sum float64
	for _, v := range img.Data {
		sum += (v / bMax) * math.Log((v+1e-16)/bMax)
	}
	return sum / efcMax
}

func squared(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Abs(v) * math.Abs(v)
	}
	return out
}
