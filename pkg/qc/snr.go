package qc

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"anatqc/internal/models"
)

// SNR calculates the single-region signal-to-noise ratio: the median
// intensity of the selected tissue over the Bessel-corrected standard
// deviation of the same selection, with deviations taken around the
// median. This reproduces the upstream estimator, where the background
// statistics are derived from the identical foreground region.
//
// Undefined (NaN/Inf propagation) when the mask selects no voxels.
func SNR(img, smask *models.Volume, label Label, labels LabelTable, erode bool) (float64, error) {
	fgmask, err := PrepareMask(smask, label, labels, erode)
	if err != nil {
		return 0, err
	}
	fg := maskedValues(img, fgmask)
	fgMedian := Median(fg)

	// Manual sigma with Bessel's correction (n-1 normalizer), centered on
	// the median because the single-region estimator aliases the
	// background mean to the foreground median.
	var ss float64
	for _, v := range fg {
		d := v - fgMedian
		ss += d * d
	}
	sigma := math.Sqrt(ss / float64(len(fg)-1))
	return fgMedian / sigma, nil
}

// SNRTwoRegion calculates the documented two-region signal-to-noise ratio:
// the median intensity of the selected tissue over the Bessel-corrected
// standard deviation of an independent background region.
func SNRTwoRegion(img, smask *models.Volume, bgmask *models.Volume, label Label, labels LabelTable, erode bool) (float64, error) {
	fgmask, err := PrepareMask(smask, label, labels, erode)
	if err != nil {
		return 0, err
	}
	air, err := PrepareMask(bgmask, Code(1), labels, erode)
	if err != nil {
		return 0, err
	}
	fg := maskedValues(img, fgmask)
	bg := maskedValues(img, air)
	return Median(fg) / stat.StdDev(bg, nil), nil
}

// SNRDietrich calculates the signal-to-noise ratio following Dietrich et
// al. (2007), eq. A.12: the air-mask noise scale is a MAD corrected for
// the Rayleigh distribution of magnitude background noise.
//
// Returns the sentinel -1.0 when the corrected noise scale is smaller
// than 1e-3, signaling that the metric is undefined for this input.
func SNRDietrich(img, smask *models.Volume, airmask *models.Volume, label Label, labels LabelTable, erode bool) (float64, error) {
	fgmask, err := PrepareMask(smask, label, labels, erode)
	if err != nil {
		return 0, err
	}
	air, err := PrepareMask(airmask, Code(1), labels, erode)
	if err != nil {
		return 0, err
	}

	fgMedian := Median(maskedValues(img, fgmask))
	noise := MAD(maskedValues(img, air)) * math.Sqrt(2.0/(4.0-math.Pi))
	if noise < 1.0e-3 {
		return -1.0, nil
	}
	return fgMedian / noise, nil
}
