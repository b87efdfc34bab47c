package qc

import (
	"math"
	"testing"

	"anatqc/internal/models"
)

// TestVolumeFraction verifies the fractions are normalized and in range
func TestVolumeFraction(t *testing.T) {
	csf := vol1d(0.5, 0.5, 0, 0)
	gm := vol1d(0.5, 0.5, 1, 0)
	wm := vol1d(0, 0, 0, 1)

	fractions, err := VolumeFraction([]*models.Volume{csf, gm, wm}, DefaultLabels())
	if err != nil {
		t.Fatalf("VolumeFraction failed: %v", err)
	}

	var total float64
	for k, v := range fractions {
		if v < 0 || v > 1 {
			t.Errorf("Fraction %s=%f outside [0,1]", k, v)
		}
		total += v
	}
	if math.Abs(total-1.0) > 1e-12 {
		t.Errorf("Fractions should sum to 1, got %f", total)
	}

	// masses: csf=1, gm=2, wm=1
	if math.Abs(fractions[GrayMatter]-0.5) > 1e-12 {
		t.Errorf("Expected gm fraction 0.5, got %f", fractions[GrayMatter])
	}
}

// TestVolumeFractionClamps verifies out-of-range PVM values are clamped
// before aggregation
func TestVolumeFractionClamps(t *testing.T) {
	csf := vol1d(1.5, -0.5) // clamps to 1, 0
	gm := vol1d(1, 0)
	wm := vol1d(1, 1)

	fractions, err := VolumeFraction([]*models.Volume{csf, gm, wm}, DefaultLabels())
	if err != nil {
		t.Fatalf("VolumeFraction failed: %v", err)
	}
	if math.Abs(fractions[CSF]-0.25) > 1e-12 {
		t.Errorf("Expected csf fraction 0.25 after clamping, got %f", fractions[CSF])
	}
}

// TestVolumeFractionBackgroundForm verifies the 4-element stack with an
// explicit background map gives the same result
func TestVolumeFractionBackgroundForm(t *testing.T) {
	bg := vol1d(0, 0, 0, 0)
	csf := vol1d(0.5, 0.5, 0, 0)
	gm := vol1d(0.5, 0.5, 1, 0)
	wm := vol1d(0, 0, 0, 1)

	three, err := VolumeFraction([]*models.Volume{csf, gm, wm}, DefaultLabels())
	if err != nil {
		t.Fatalf("VolumeFraction failed: %v", err)
	}
	four, err := VolumeFraction([]*models.Volume{bg, csf, gm, wm}, DefaultLabels())
	if err != nil {
		t.Fatalf("VolumeFraction failed: %v", err)
	}
	for k := range three {
		if math.Abs(three[k]-four[k]) > 1e-12 {
			t.Errorf("Fraction %s differs between stack forms: %f vs %f", k, three[k], four[k])
		}
	}
}

// TestRPVE verifies the percentile trim only removes mass
func TestRPVE(t *testing.T) {
	// One tissue region per label, partial-volume values inside
	pv := []float64{0.2, 0.4, 0.6}
	csf := vol1d(pv[0], pv[1], pv[2], 0, 0, 0, 0, 0, 0)
	gm := vol1d(0, 0, 0, pv[0], pv[1], pv[2], 0, 0, 0)
	wm := vol1d(0, 0, 0, 0, 0, 0, pv[0], pv[1], pv[2])
	seg := labels1d(1, 1, 1, 2, 2, 2, 3, 3, 3)

	out, err := RPVE([]*models.Volume{csf, gm, wm}, seg, DefaultLabels())
	if err != nil {
		t.Fatalf("RPVE failed: %v", err)
	}

	unfiltered := pv[0] + pv[1] + pv[2]
	for k, v := range out {
		if v > unfiltered+1e-12 {
			t.Errorf("rpve_%s=%f exceeds the unfiltered mass %f", k, v, unfiltered)
		}
	}

	// With three values the 2nd/98th percentile band keeps only the middle
	if math.Abs(out[GrayMatter]-0.4) > 1e-12 {
		t.Errorf("Expected rpve_gm 0.4, got %f", out[GrayMatter])
	}
}

// TestRPVEWholeVoxels verifies values at or above 1 carry no residual
// partial-voluming mass
func TestRPVEWholeVoxels(t *testing.T) {
	many := make([]float64, 100)
	for i := range many {
		many[i] = 0.5
	}
	many[0] = 1.0  // whole voxel, clipped out
	many[1] = -0.2 // negative mass, clipped out

	csf := vol1d(many...)
	gm := vol1d(make([]float64, 100)...)
	wm := vol1d(make([]float64, 100)...)
	codes := make([]int32, 100)
	for i := range codes {
		codes[i] = 1
	}
	seg := labels1d(codes...)

	out, err := RPVE([]*models.Volume{csf, gm, wm}, seg, DefaultLabels())
	if err != nil {
		t.Fatalf("RPVE failed: %v", err)
	}
	// 98 surviving voxels at 0.5
	if math.Abs(out[CSF]-49.0) > 1e-9 {
		t.Errorf("Expected rpve_csf 49, got %f", out[CSF])
	}
}

// TestSummaryStats verifies the per-tissue statistics on known data
func TestSummaryStats(t *testing.T) {
	img := vol1d(1, 2, 3, 4, 5, 9, 9, 9, 9, 9)
	// First five voxels are white matter, the rest background
	wmData := []float64{1, 1, 1, 1, 1, 0, 0, 0, 0, 0}
	wm := vol1d(wmData...)
	csf := vol1d(make([]float64, 10)...)
	gm := vol1d(make([]float64, 10)...)

	out, err := SummaryStats(img, []*models.Volume{csf, gm, wm}, nil, DefaultLabels())
	if err != nil {
		t.Fatalf("SummaryStats failed: %v", err)
	}

	s := out[WhiteMatter]
	if math.Abs(s.Mean-3.0) > 1e-12 {
		t.Errorf("Expected mean 3, got %f", s.Mean)
	}
	if math.Abs(s.Stdv-math.Sqrt(2.0)) > 1e-12 {
		t.Errorf("Expected population std sqrt(2), got %f", s.Stdv)
	}
	if math.Abs(s.P95-4.8) > 1e-12 {
		t.Errorf("Expected p95 4.8, got %f", s.P95)
	}
	if math.Abs(s.P05-1.2) > 1e-12 {
		t.Errorf("Expected p05 1.2, got %f", s.P05)
	}
	// m4 = 6.8, m2 = 2: biased excess kurtosis 6.8/4 - 3
	if math.Abs(s.Kurtosis-(-1.3)) > 1e-9 {
		t.Errorf("Expected kurtosis -1.3, got %f", s.Kurtosis)
	}
}

// TestSummaryStatsStackForms verifies the 3-element stack (background
// inferred) and the 4-element stack (background explicit) agree
func TestSummaryStatsStackForms(t *testing.T) {
	img := vol1d(1, 2, 3, 4, 10, 20, 30, 40)
	csf := vol1d(1, 1, 0, 0, 0, 0, 0, 0)
	gm := vol1d(0, 0, 1, 1, 0, 0, 0, 0)
	wm := vol1d(0, 0, 0, 0, 1, 1, 0, 0)

	bg := vol1d(0, 0, 0, 0, 0, 0, 1, 1)

	three, err := SummaryStats(img, []*models.Volume{csf, gm, wm}, nil, DefaultLabels())
	if err != nil {
		t.Fatalf("SummaryStats failed: %v", err)
	}
	four, err := SummaryStats(img, []*models.Volume{bg, csf, gm, wm}, nil, DefaultLabels())
	if err != nil {
		t.Fatalf("SummaryStats failed: %v", err)
	}

	for _, k := range []string{Background, CSF, GrayMatter, WhiteMatter} {
		a, b := three[k], four[k]
		if math.Abs(a.Mean-b.Mean) > 1e-12 || math.Abs(a.Stdv-b.Stdv) > 1e-12 ||
			math.Abs(a.P95-b.P95) > 1e-12 || math.Abs(a.P05-b.P05) > 1e-12 {
			t.Errorf("Tissue %s statistics differ between stack forms: %+v vs %+v", k, a, b)
		}
	}
}

// TestSummaryStatsBackgroundOverride verifies explicit background data
// replaces the background map
func TestSummaryStatsBackgroundOverride(t *testing.T) {
	img := vol1d(1, 2, 3, 4)
	csf := vol1d(1, 0, 0, 0)
	gm := vol1d(0, 1, 0, 0)
	wm := vol1d(0, 0, 1, 0)
	bgdata := vol1d(1, 0, 0, 0) // point the background at voxel 0 instead

	out, err := SummaryStats(img, []*models.Volume{csf, gm, wm}, bgdata, DefaultLabels())
	if err != nil {
		t.Fatalf("SummaryStats failed: %v", err)
	}
	if math.Abs(out[Background].Mean-1.0) > 1e-12 {
		t.Errorf("Expected overridden background mean 1, got %f", out[Background].Mean)
	}
}

// TestSummaryStatsBadStack verifies the dimensionality contract
func TestSummaryStatsBadStack(t *testing.T) {
	img := vol1d(1, 2)
	if _, err := SummaryStats(img, []*models.Volume{vol1d(1, 0)}, nil, DefaultLabels()); err == nil {
		t.Error("Expected a dimensionality error for a 1-element stack")
	}
}
