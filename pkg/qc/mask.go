package qc

import (
	"math"

	"anatqc/internal/models"
)

// structuring element offsets for 18-connectivity (faces + edges):
// all displacements in the 3x3x3 cube with |dx|+|dy|+|dz| <= 2.
type offset struct{ dx, dy, dz int }

func structElement18() []offset {
	var offs []offset
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if abs(dx)+abs(dy)+abs(dz) <= 2 {
					offs = append(offs, offset{dx, dy, dz})
				}
			}
		}
	}
	return offs
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// PrepareMask binarizes and optionally cleans a mask or label volume so it
// can select a tissue region.
//
// If the input holds discrete labels (every voxel is integer valued), the
// voxels equal to the resolved label become foreground. If it holds
// continuous probabilities, the two-step clamp is applied: values above
// 0.95 are raised to 1, then anything below 1 is zeroed.
//
// With erode set, a morphological opening (erosion then dilation) with the
// 18-connectivity structuring element removes isolated high-probability
// noise voxels. The input volume is never modified; a fresh mask is
// returned.
func PrepareMask(mask *models.Volume, label Label, labels LabelTable, erode bool) (*models.Mask, error) {
	out := models.NewMask(mask.Nx, mask.Ny, mask.Nz)

	if isIntegral(mask.Data) {
		code, err := label.Resolve(labels)
		if err != nil {
			return nil, err
		}
		target := float64(code)
		for i, v := range mask.Data {
			if v == target {
				out.Data[i] = 1
			}
		}
	} else {
		for i, v := range mask.Data {
			if v > 0.95 {
				v = 1
			}
			if v < 1 {
				v = 0
			}
			out.Data[i] = uint8(v)
		}
	}

	if erode {
		out = Opening(out)
	}
	return out, nil
}

// Erode performs a binary erosion with the 18-connectivity structuring
// element. Voxels outside the grid count as background, so foreground
// touching the border is eroded away.
func Erode(m *models.Mask) *models.Mask {
	return erodeWith(m, structElement18())
}

// Dilate performs a binary dilation with the 18-connectivity structuring
// element.
func Dilate(m *models.Mask) *models.Mask {
	offs := structElement18()
	out := models.NewMask(m.Nx, m.Ny, m.Nz)
	for z := 0; z < m.Nz; z++ {
		for y := 0; y < m.Ny; y++ {
			for x := 0; x < m.Nx; x++ {
				for _, o := range offs {
					nx, ny, nz := x+o.dx, y+o.dy, z+o.dz
					if nx < 0 || ny < 0 || nz < 0 || nx >= m.Nx || ny >= m.Ny || nz >= m.Nz {
						continue
					}
					if m.Data[m.Index(nx, ny, nz)] != 0 {
						out.Data[out.Index(x, y, z)] = 1
						break
					}
				}
			}
		}
	}
	return out
}

// Opening performs an erosion followed by a dilation, removing small or
// thin foreground regions.
func Opening(m *models.Mask) *models.Mask {
	return Dilate(Erode(m))
}

func erodeWith(m *models.Mask, offs []offset) *models.Mask {
	out := models.NewMask(m.Nx, m.Ny, m.Nz)
	for z := 0; z < m.Nz; z++ {
		for y := 0; y < m.Ny; y++ {
			for x := 0; x < m.Nx; x++ {
				if m.Data[m.Index(x, y, z)] == 0 {
					continue
				}
				keep := true
				for _, o := range offs {
					nx, ny, nz := x+o.dx, y+o.dy, z+o.dz
					if nx < 0 || ny < 0 || nz < 0 || nx >= m.Nx || ny >= m.Ny || nz >= m.Nz {
						keep = false
						break
					}
					if m.Data[m.Index(nx, ny, nz)] == 0 {
						keep = false
						break
					}
				}
				if keep {
					out.Data[out.Index(x, y, z)] = 1
				}
			}
		}
	}
	return out
}

func isIntegral(data []float64) bool {
	for _, v := range data {
		if v != math.Trunc(v) {
			return false
		}
	}
	return true
}

// maskedValues gathers the intensities selected by a binary mask
func maskedValues(img *models.Volume, m *models.Mask) []float64 {
	out := make([]float64, 0, len(m.Data)/4)
	for i, v := range m.Data {
		if v != 0 {
			out = append(out, img.Data[i])
		}
	}
	return out
}

// unmaskedValues gathers the intensities outside a binary mask
func unmaskedValues(img *models.Volume, m *models.Mask) []float64 {
	out := make([]float64, 0, len(m.Data)/4)
	for i, v := range m.Data {
		if v == 0 {
			out = append(out, img.Data[i])
		}
	}
	return out
}

// labelValues gathers the intensities of voxels carrying a segmentation code
func labelValues(img *models.Volume, seg *models.Labels, code int32) []float64 {
	out := make([]float64, 0, len(seg.Data)/8)
	for i, v := range seg.Data {
		if v == code {
			out = append(out, img.Data[i])
		}
	}
	return out
}
