package qc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"anatqc/internal/models"
)

// TissueStats summarizes the intensity distribution of one tissue class.
type TissueStats struct {
	Mean     float64 `json:"mean"`
	Stdv     float64 `json:"stdv"`
	P95      float64 `json:"p95"`
	P05      float64 `json:"p05"`
	Kurtosis float64 `json:"k"`
}

// VolumeFraction computes the intracranial volume fraction of each tissue
// from its partial volume map: the per-tissue PVM mass normalized by the
// total mass, so the fractions sum to one. PVM values are clamped to
// [0,1] before aggregation.
//
// Accepts the tissue-ordered list (csf, gm, wm) or the 4-element form with
// an explicit background map first, which is skipped.
func VolumeFraction(pvms []*models.Volume, labels LabelTable) (map[string]float64, error) {
	tissues := labels.Tissues()
	maps, err := tissueMaps(pvms, len(tissues))
	if err != nil {
		return nil, err
	}

	fractions := make(map[string]float64, len(tissues))
	var total float64
	for i, k := range tissues {
		var sum float64
		for _, v := range maps[i].Data {
			sum += clamp01(v)
		}
		fractions[k] = sum
		total += sum
	}
	for k := range fractions {
		fractions[k] /= total
	}
	return fractions, nil
}

// RPVE computes the residual partial voluming error of each tissue class:
// the PVM mass within the tissue's own segmentation region, after clipping
// to [0,1) and trimming values outside the 2nd-98th percentile band of the
// positive mass. Trimming only ever removes mass.
func RPVE(pvms []*models.Volume, seg *models.Labels, labels LabelTable) (map[string]float64, error) {
	tissues := labels.Tissues()
	maps, err := tissueMaps(pvms, len(tissues))
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(tissues))
	for i, k := range tissues {
		code := labels[k]
		pvm := maps[i]

		// Clip to [0,1): whole voxels carry no partial-voluming ambiguity
		var values []float64
		for j, l := range seg.Data {
			if l != code {
				continue
			}
			v := pvm.Data[j]
			if v < 0 || v >= 1 {
				v = 0
			}
			values = append(values, v)
		}

		var positive []float64
		for _, v := range values {
			if v > 0 {
				positive = append(positive, v)
			}
		}
		if len(positive) == 0 {
			out[k] = 0.0
			continue
		}

		upth := percentile(positive, 98)
		loth := percentile(positive, 2)
		var sum float64
		for _, v := range positive {
			if v >= loth && v <= upth {
				sum += v
			}
		}
		out[k] = sum
	}
	return out, nil
}

// SummaryStats estimates the mean, standard deviation, 95th and 5th
// percentiles and kurtosis of each tissue's intensity distribution, taken
// over the voxels where the tissue's partial volume exceeds 0.5.
//
// The stack may hold one map per tissue (background inferred as the
// complement of their sum) or an explicit background map first. Any other
// stack size is a dimensionality error. An optional bgdata volume
// overrides the background map.
func SummaryStats(img *models.Volume, pvms []*models.Volume, bgdata *models.Volume, labels LabelTable) (map[string]TissueStats, error) {
	tissues := labels.Tissues()

	var stack []*models.Volume
	switch len(pvms) {
	case len(tissues) + 1:
		stack = append([]*models.Volume{}, pvms...)
	case len(tissues):
		bg := models.NewVolume(pvms[0].Nx, pvms[0].Ny, pvms[0].Nz)
		for i := range bg.Data {
			bg.Data[i] = 1.0
			for _, p := range pvms {
				bg.Data[i] -= p.Data[i]
			}
		}
		stack = append([]*models.Volume{bg}, pvms...)
	default:
		return nil, fmt.Errorf("incorrect partial volume stack size (%d)", len(pvms))
	}

	if bgdata != nil {
		stack[0] = bgdata
	}

	keys := append([]string{Background}, tissues...)
	out := make(map[string]TissueStats, len(keys))
	for i, k := range keys {
		var values []float64
		for j, p := range stack[i].Data {
			if p > 0.5 {
				values = append(values, img.Data[j])
			}
		}
		out[k] = summarize(values)
	}
	return out, nil
}

func summarize(values []float64) TissueStats {
	m2 := stat.Moment(2, values, nil)
	m4 := stat.Moment(4, values, nil)
	return TissueStats{
		Mean:     stat.Mean(values, nil),
		Stdv:     math.Sqrt(m2),
		P95:      percentile(values, 95),
		P05:      percentile(values, 5),
		Kurtosis: m4/(m2*m2) - 3.0,
	}
}

// tissueMaps normalizes a PVM list to the tissue-ordered form, dropping an
// explicit leading background map when present.
func tissueMaps(pvms []*models.Volume, nTissues int) ([]*models.Volume, error) {
	switch len(pvms) {
	case nTissues:
		return pvms, nil
	case nTissues + 1:
		return pvms[1:], nil
	}
	return nil, fmt.Errorf("expected %d or %d partial volume maps, got %d",
		nTissues, nTissues+1, len(pvms))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
