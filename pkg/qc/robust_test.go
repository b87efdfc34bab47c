package qc

import (
	"math"
	"testing"
)

// TestMedian verifies the median for odd and even sample counts
func TestMedian(t *testing.T) {
	cases := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"odd", []float64{3, 1, 2}, 2},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
		{"repeated", []float64{5, 5, 5, 5}, 5},
	}

	for _, tc := range cases {
		if got := Median(tc.values); math.Abs(got-tc.expected) > 1e-12 {
			t.Errorf("%s: expected median %f, got %f", tc.name, tc.expected, got)
		}
	}

	if !math.IsNaN(Median(nil)) {
		t.Error("Median of empty input should be NaN")
	}
}

// TestMedianDoesNotMutate verifies the input slice is left untouched
func TestMedianDoesNotMutate(t *testing.T) {
	values := []float64{3, 1, 2}
	Median(values)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Errorf("Median reordered its input: %v", values)
	}
}

// TestMAD verifies the normalized median absolute deviation
func TestMAD(t *testing.T) {
	// Deviations from the median 3 are {2,1,0,1,2}, their median is 1
	values := []float64{1, 2, 3, 4, 5}

	expected := 1.0 / MADScale
	if got := MAD(values); math.Abs(got-expected) > 1e-12 {
		t.Errorf("Expected MAD %f, got %f", expected, got)
	}

	// An explicit consistency constant of 1 gives the raw deviation
	if got := MADC(values, 1.0); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("Expected raw MAD 1.0, got %f", got)
	}
}

// TestPercentile verifies the linear-interpolation percentile rule
func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	cases := []struct {
		p        float64
		expected float64
	}{
		{0, 1},
		{50, 3},
		{100, 5},
		{95, 4.8},
		{5, 1.2},
	}
	for _, tc := range cases {
		if got := percentile(values, tc.p); math.Abs(got-tc.expected) > 1e-12 {
			t.Errorf("p%.0f: expected %f, got %f", tc.p, tc.expected, got)
		}
	}
}
