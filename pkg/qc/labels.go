// Package qc computes quantitative image quality metrics (IQMs) from a
// preprocessed structural brain scan: an intensity volume, a discrete
// tissue segmentation, partial volume maps and binary air/artifact masks.
// Every metric function is pure and side-effect free (except for the QI2
// diagnostic file), so callers may run them fully in parallel.
package qc

import "fmt"

// LabelTable maps tissue names to segmentation codes. The default table
// follows the FSL FAST convention but callers may supply an alternate
// scheme; nothing in this package hardcodes the codes.
type LabelTable map[string]int32

// Canonical tissue keys used throughout the metric catalog.
const (
	Background  = "bg"
	CSF         = "csf"
	GrayMatter  = "gm"
	WhiteMatter = "wm"
)

// DefaultLabels returns the FSL FAST label convention:
// background=0, CSF=1, GM=2, WM=3.
func DefaultLabels() LabelTable {
	return LabelTable{
		Background:  0,
		CSF:         1,
		GrayMatter:  2,
		WhiteMatter: 3,
	}
}

// Tissues returns the non-background tissue keys ordered by label code,
// matching the ordering of partial volume map lists.
func (t LabelTable) Tissues() []string {
	out := make([]string, 0, len(t))
	for code := int32(1); ; code++ {
		found := false
		for k, v := range t {
			if v == code {
				out = append(out, k)
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return out
}

// Label identifies a tissue either symbolically (by name, resolved through
// a LabelTable) or by its raw segmentation code. The zero value is invalid;
// construct with Named or Code.
type Label struct {
	name  string
	code  int32
	named bool
}

// Named returns a label referring to a tissue by name
func Named(tissue string) Label {
	return Label{name: tissue, named: true}
}

// Code returns a label referring to a raw segmentation code
func Code(code int32) Label {
	return Label{code: code}
}

// Resolve returns the segmentation code for this label under the given
// table. Raw codes pass through untouched; names must exist in the table.
func (l Label) Resolve(table LabelTable) (int32, error) {
	if !l.named {
		return l.code, nil
	}
	code, ok := table[l.name]
	if !ok {
		return 0, fmt.Errorf("unknown tissue label %q", l.name)
	}
	return code, nil
}
