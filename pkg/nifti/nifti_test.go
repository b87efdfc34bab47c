package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeNifti writes a minimal single-file NIfTI-1 image with float32 data
func writeNifti(t *testing.T, path string, nx, ny, nz int, values []float32, slope, inter float32, compress bool) {
	t.Helper()

	h := Header{
		SizeOfHdr: headerSize,
		DataType:  DTFloat32,
		BitPix:    32,
		VoxOffset: 352,
		SclSlope:  slope,
		SclInter:  inter,
		Magic:     [4]int8{110, 43, 49, 0}, // "n+1\0"
	}
	h.Dim[0] = 3
	h.Dim[1] = int16(nx)
	h.Dim[2] = int16(ny)
	h.Dim[3] = int16(nz)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		t.Fatal(err)
	}
	// Extension flag padding up to the voxel offset
	buf.Write([]byte{0, 0, 0, 0})
	if err := binary.Write(&buf, binary.LittleEndian, values); err != nil {
		t.Fatal(err)
	}

	raw := buf.Bytes()
	if compress {
		var gz bytes.Buffer
		w := gzip.NewWriter(&gz)
		if _, err := w.Write(raw); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		raw = gz.Bytes()
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}
}

// TestLoad verifies header parsing, dimensions and voxel values
func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.nii")
	values := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	writeNifti(t, path, 2, 2, 2, values, 1, 0, false)

	vol, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if vol.Nx != 2 || vol.Ny != 2 || vol.Nz != 2 {
		t.Fatalf("Expected 2x2x2 volume, got %dx%dx%d", vol.Nx, vol.Ny, vol.Nz)
	}
	for i, v := range values {
		if math.Abs(vol.Data[i]-float64(v)) > 1e-6 {
			t.Errorf("Voxel %d: expected %f, got %f", i, v, vol.Data[i])
		}
	}
}

// TestLoadGzip verifies transparent decompression of .nii.gz files
func TestLoadGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.nii.gz")
	writeNifti(t, path, 2, 2, 1, []float32{10, 20, 30, 40}, 1, 0, true)

	vol, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if vol.Data[3] != 40 {
		t.Errorf("Expected voxel value 40, got %f", vol.Data[3])
	}
}

// TestLoadScaling verifies scl_slope/scl_inter intensity scaling
func TestLoadScaling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.nii")
	writeNifti(t, path, 2, 1, 1, []float32{1, 2}, 2, 1, false)

	vol, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if vol.Data[0] != 3 || vol.Data[1] != 5 {
		t.Errorf("Expected scaled values [3 5], got %v", vol.Data)
	}
}

// TestLoadLabels verifies intensities round to integer codes
func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.nii")
	writeNifti(t, path, 2, 2, 1, []float32{0, 1.1, 1.9, 3}, 1, 0, false)

	seg, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels failed: %v", err)
	}
	expected := []int32{0, 1, 2, 3}
	for i, v := range expected {
		if seg.Data[i] != v {
			t.Errorf("Label %d: expected %d, got %d", i, v, seg.Data[i])
		}
	}
}

// TestLoadMask verifies nonzero voxels become foreground
func TestLoadMask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mask.nii")
	writeNifti(t, path, 2, 2, 1, []float32{0, 0.5, 1, 200}, 1, 0, false)

	mask, err := LoadMask(path)
	if err != nil {
		t.Fatalf("LoadMask failed: %v", err)
	}
	expected := []uint8{0, 1, 1, 1}
	for i, v := range expected {
		if mask.Data[i] != v {
			t.Errorf("Voxel %d: expected %d, got %d", i, v, mask.Data[i])
		}
	}
}

// TestLoadTruncated verifies a clean error on short files
func TestLoadTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.nii")
	if err := os.WriteFile(path, []byte("not a nifti"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected an error for a truncated file")
	}
}
