package qc

import "testing"

// TestLabelResolve verifies symbolic and raw label resolution
func TestLabelResolve(t *testing.T) {
	table := DefaultLabels()

	code, err := Named(WhiteMatter).Resolve(table)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if code != 3 {
		t.Errorf("Expected wm code 3, got %d", code)
	}

	code, err = Code(7).Resolve(table)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if code != 7 {
		t.Errorf("Raw codes should pass through, got %d", code)
	}

	if _, err := Named("lesion").Resolve(table); err == nil {
		t.Error("Expected an error for a name missing from the table")
	}
}

// TestLabelTableTissues verifies tissues are returned in label-code order,
// matching the ordering of partial volume map lists
func TestLabelTableTissues(t *testing.T) {
	tissues := DefaultLabels().Tissues()
	expected := []string{CSF, GrayMatter, WhiteMatter}

	if len(tissues) != len(expected) {
		t.Fatalf("Expected %d tissues, got %d", len(expected), len(tissues))
	}
	for i := range expected {
		if tissues[i] != expected[i] {
			t.Errorf("Position %d: expected %s, got %s", i, expected[i], tissues[i])
		}
	}
}

// TestLabelTableAlternateScheme verifies nothing depends on the FSL codes
func TestLabelTableAlternateScheme(t *testing.T) {
	table := LabelTable{Background: 0, WhiteMatter: 1, GrayMatter: 2, CSF: 3}

	img := vol1d(100, 100, 100, 50, 50, 50)
	seg := vol1d(1, 1, 1, 2, 2, 2)

	mask, err := PrepareMask(seg, Named(WhiteMatter), table, false)
	if err != nil {
		t.Fatalf("PrepareMask failed: %v", err)
	}
	values := maskedValues(img, mask)
	if len(values) != 3 || values[0] != 100 {
		t.Errorf("Alternate label scheme selected the wrong region: %v", values)
	}
}
