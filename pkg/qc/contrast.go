package qc

import (
	"errors"
	"math"

	"anatqc/internal/models"
)

// CNR calculates the contrast-to-noise ratio (Magnotta et al., 2006):
// the absolute difference of the gray and white matter medians over the
// noise scale, estimated as the MAD of the background voxels. Higher is
// better.
//
// When the background MAD falls below 1.0 (e.g. a zero-filled background),
// the noise scale falls back to the mean of the GM, WM and CSF MADs.
func CNR(img *models.Volume, seg *models.Labels, labels LabelTable) float64 {
	noise := MAD(labelValues(img, seg, labels[Background]))
	if !(noise >= 1.0) {
		noise = (MAD(labelValues(img, seg, labels[GrayMatter])) +
			MAD(labelValues(img, seg, labels[WhiteMatter])) +
			MAD(labelValues(img, seg, labels[CSF]))) / 3.0
	}

	gm := Median(labelValues(img, seg, labels[GrayMatter]))
	wm := Median(labelValues(img, seg, labels[WhiteMatter]))
	return math.Abs(gm-wm) / noise
}

// ErrMissingMasks is returned by CJV when neither a segmentation nor both
// explicit tissue masks are supplied. This is a configuration error, not a
// data-quality condition.
var ErrMissingMasks = errors.New("masks or segmentation should be provided")

// CJV calculates the coefficient of joint variation (Ganzetti et al.,
// 2016), a proxy for the intensity non-uniformity artifact. Lower is
// better.
//
// The white and gray matter regions come either from the segmentation
// (using the wm/gm entries of the label table) or from explicit
// probability masks thresholded at 0.5; one of the two forms is required.
func CJV(img *models.Volume, seg *models.Labels, wmmask, gmmask *models.Volume, labels LabelTable) (float64, error) {
	if seg == nil && (wmmask == nil || gmmask == nil) {
		return 0, ErrMissingMasks
	}

	var wm, gm []float64
	if seg != nil {
		wm = labelValues(img, seg, labels[WhiteMatter])
		gm = labelValues(img, seg, labels[GrayMatter])
	} else {
		wm = thresholdedValues(img, wmmask, 0.5)
		gm = thresholdedValues(img, gmmask, 0.5)
	}

	muWM := Median(wm)
	muGM := Median(gm)
	sigmaWM := MAD(wm)
	sigmaGM := MAD(gm)
	return (sigmaWM + sigmaGM) / (muWM - muGM), nil
}

// WM2Max calculates the white-matter-to-max ratio: the white matter median
// over the 99.95th percentile of all intensities. Values near 1.0 are
// better; low values indicate hyperintense artifacts dominating the scale.
func WM2Max(img *models.Volume, seg *models.Labels, labels LabelTable) float64 {
	wmMedian := Median(labelValues(img, seg, labels[WhiteMatter]))
	return wmMedian / percentile(img.Data, 99.95)
}

// thresholdedValues gathers the intensities where a probability mask
// exceeds the threshold
func thresholdedValues(img, prob *models.Volume, th float64) []float64 {
	out := make([]float64, 0, len(prob.Data)/8)
	for i, v := range prob.Data {
		if v > th {
			out = append(out, img.Data[i])
		}
	}
	return out
}
