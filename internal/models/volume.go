// Package models defines the shared grid types consumed by the quality
// metric functions: intensity volumes, discrete segmentations and binary
// masks, all flat arrays over the same 3D grid.
package models

import "fmt"

// Volume represents a 3D intensity volume as a 1D array in x-fastest order
type Volume struct {
	// Data is the voxel intensities as a 1D array
	Data []float64

	// Nx, Ny, Nz are the grid dimensions in voxels
	Nx, Ny, Nz int
}

// NewVolume allocates a zero-filled volume with the given dimensions
func NewVolume(nx, ny, nz int) *Volume {
	return &Volume{
		Data: make([]float64, nx*ny*nz),
		Nx:   nx,
		Ny:   ny,
		Nz:   nz,
	}
}

// Len returns the total number of voxels
func (v *Volume) Len() int { return v.Nx * v.Ny * v.Nz }

// Index converts (x, y, z) coordinates to a flat array index
func (v *Volume) Index(x, y, z int) int {
	return z*v.Nx*v.Ny + y*v.Nx + x
}

// At returns the intensity at (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores an intensity at (x, y, z)
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	out := NewVolume(v.Nx, v.Ny, v.Nz)
	copy(out.Data, v.Data)
	return out
}

// SameShape reports whether another volume shares this grid
func (v *Volume) SameShape(o *Volume) bool {
	return v.Nx == o.Nx && v.Ny == o.Ny && v.Nz == o.Nz
}

// Labels represents a discrete tissue segmentation over the same grid
// as its source volume. Label codes are resolved through a configurable
// label table rather than hardcoded.
type Labels struct {
	// Data is the label codes as a 1D array
	Data []int32

	// Nx, Ny, Nz are the grid dimensions in voxels
	Nx, Ny, Nz int
}

// NewLabels allocates a zero-filled (all background) segmentation
func NewLabels(nx, ny, nz int) *Labels {
	return &Labels{
		Data: make([]int32, nx*ny*nz),
		Nx:   nx,
		Ny:   ny,
		Nz:   nz,
	}
}

// Len returns the total number of voxels
func (l *Labels) Len() int { return l.Nx * l.Ny * l.Nz }

// Index converts (x, y, z) coordinates to a flat array index
func (l *Labels) Index(x, y, z int) int {
	return z*l.Nx*l.Ny + y*l.Nx + x
}

// Mask represents a binary {0,1} selector over the same grid as its
// source volume (air mask, artifact mask, or a thresholded probability map)
type Mask struct {
	// Data holds 0 or 1 per voxel
	Data []uint8

	// Nx, Ny, Nz are the grid dimensions in voxels
	Nx, Ny, Nz int
}

// NewMask allocates an all-background mask
func NewMask(nx, ny, nz int) *Mask {
	return &Mask{
		Data: make([]uint8, nx*ny*nz),
		Nx:   nx,
		Ny:   ny,
		Nz:   nz,
	}
}

// Len returns the total number of voxels
func (m *Mask) Len() int { return m.Nx * m.Ny * m.Nz }

// Index converts (x, y, z) coordinates to a flat array index
func (m *Mask) Index(x, y, z int) int {
	return z*m.Nx*m.Ny + y*m.Nx + x
}

// Count returns the number of foreground voxels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask
func (m *Mask) Clone() *Mask {
	out := NewMask(m.Nx, m.Ny, m.Nz)
	copy(out.Data, m.Data)
	return out
}

// CheckShapes verifies that every non-nil grid shares the volume's shape.
// The segmentation, masks and partial volume maps must all be aligned to
// the intensity volume before any metric is computed.
func CheckShapes(v *Volume, seg *Labels, masks []*Mask, pvms []*Volume) error {
	if seg != nil && (seg.Nx != v.Nx || seg.Ny != v.Ny || seg.Nz != v.Nz) {
		return fmt.Errorf("segmentation shape %dx%dx%d does not match volume %dx%dx%d",
			seg.Nx, seg.Ny, seg.Nz, v.Nx, v.Ny, v.Nz)
	}
	for i, m := range masks {
		if m == nil {
			continue
		}
		if m.Nx != v.Nx || m.Ny != v.Ny || m.Nz != v.Nz {
			return fmt.Errorf("mask %d shape %dx%dx%d does not match volume %dx%dx%d",
				i, m.Nx, m.Ny, m.Nz, v.Nx, v.Ny, v.Nz)
		}
	}
	for i, p := range pvms {
		if p == nil {
			continue
		}
		if !v.SameShape(p) {
			return fmt.Errorf("partial volume map %d shape %dx%dx%d does not match volume %dx%dx%d",
				i, p.Nx, p.Ny, p.Nz, v.Nx, v.Ny, v.Nz)
		}
	}
	return nil
}
