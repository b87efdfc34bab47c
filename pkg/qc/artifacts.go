package qc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"anatqc/internal/models"
)

// ArtifactsQI1 calculates QI1 (Mortamet et al., 2009): the proportion of
// background voxels whose intensity is corrupted by artifacts, normalized
// by the total background size. Lower is better.
func ArtifactsQI1(airmask, artmask *models.Mask) float64 {
	air := float64(airmask.Count())
	art := float64(artmask.Count())
	return art / (air + art)
}

// QI2Options controls the QI2 noise-fit computation.
type QI2Options struct {
	// NCoils is the number of acquisition coils; the chi distribution is
	// fitted with 2*NCoils degrees of freedom.
	NCoils int

	// Erode applies a binary erosion to the air mask before sampling, so
	// partial-volume voxels at the mask border do not pollute the noise
	// distribution.
	Erode bool

	// MinVoxels is the minimum number of positive air-region samples
	// required to attempt the fit.
	MinVoxels int

	// OutFile is the path of the diagnostic record. The file exists after
	// the call even when the computation short-circuits.
	OutFile string
}

// DefaultQI2Options mirrors the upstream defaults.
func DefaultQI2Options() QI2Options {
	return QI2Options{
		NCoils:    12,
		Erode:     true,
		MinVoxels: 1000,
		OutFile:   "qi2_fitting.txt",
	}
}

// ChiFitReport is the diagnostic side-artifact of ArtifactsQI2: the
// empirical background histogram, the fitted chi density and the
// goodness-of-fit summary.
type ChiFitReport struct {
	X       []float64 `json:"x"`
	Y       []float64 `json:"y"`
	YHat    []float64 `json:"y_hat,omitempty"`
	XCutoff float64   `json:"x_cutoff,omitempty"`
	GOF     float64   `json:"gof,omitempty"`
}

// ArtifactsQI2 calculates QI2: the distance between the intensity
// distribution of artifact-free background voxels and a chi distribution
// with 2*NCoils degrees of freedom, the expected model for coil-combined
// magnitude noise. Lower is better.
//
// The diagnostic record is written to opts.OutFile on every path; when
// fewer than opts.MinVoxels positive air samples exist the function
// short-circuits with the sentinel 0.0 and leaves the (possibly empty)
// file in place. Returns the goodness of fit and the absolute record path.
func ArtifactsQI2(img *models.Volume, airmask *models.Mask, opts QI2Options) (float64, string, error) {
	outFile, err := filepath.Abs(opts.OutFile)
	if err != nil {
		return 0, "", fmt.Errorf("resolving diagnostic path: %w", err)
	}
	// Guarantee the diagnostic file exists even on the short-circuit path.
	touch, err := os.OpenFile(outFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return 0, "", fmt.Errorf("creating diagnostic file: %w", err)
	}
	touch.Close()

	mask := airmask
	if opts.Erode {
		mask = Erode(mask)
	}

	// Artifact-free air region, positive intensities only
	var data []float64
	for _, v := range maskedValues(img, mask) {
		if v > 0 {
			data = append(data, v)
		}
	}

	// The background can only be fitted with a minimum number of samples
	if len(data) < opts.MinVoxels {
		return 0.0, outFile, nil
	}

	report := fitChi(data, opts.NCoils)

	if err := writeChiFitReport(outFile, report); err != nil {
		return 0, "", err
	}
	return report.GOF, outFile, nil
}

func writeChiFitReport(path string, report *ChiFitReport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing diagnostic file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing diagnostic file: %w", cerr)
		}
	}()
	return json.NewEncoder(f).Encode(report)
}
