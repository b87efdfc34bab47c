// Package nifti reads NIfTI-1 volumes into the anatqc data model.
//
// Based on the official definition of the nifti1 header,
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
//
// Only the subset needed by the metric engine is supported: single-file
// (.nii, .nii.gz) images with scalar datatypes. The metric core imposes no
// format; this package is the input boundary of the command line tool.
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"

	"anatqc/internal/models"
)

// NIfTI-1 datatype codes for the supported scalar types
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
)

const headerSize = 348

// Header defines the structure of the NIfTI-1 header.
//
// Type translation from the nifti1 C header to Go:
//
// C     Go
// -------------
// int   int32
// float float32
// short int16
// char  int8
type Header struct {
	SizeOfHdr          int32    // Must be 348
	UnusedDataType     [10]int8 // Unused
	UnusedDbName       [18]int8 // Unused
	UnusedExtents      int32    // Unused
	UnusedSessionError int16    // Unused
	UnusedRegular      int8     // Unused
	DimInfo            int8     // MRI slice ordering

	Dim           [8]int16   // Data array dimensions
	IntentP1      float32    // 1st intent parameter
	IntentP2      float32    // 2nd intent parameter
	IntentP3      float32    // 3rd intent parameter
	IntentCode    int16      // NIFTI_INTENT_* code
	DataType      int16      // Defines data type
	BitPix        int16      // Number bits/voxel
	SliceStart    int16      // First slice index
	PixDim        [8]float32 // Grid spacing
	VoxOffset     float32    // Offset into .nii file
	SclSlope      float32    // Data scaling: slope
	SclInter      float32    // Data scaling: offset
	SliceEnd      int16      // Last slice index
	SliceCode     int8       // Slice timing order
	XYZTUnits     int8       // Units of pixdim[1..4]
	CalMax        float32    // Max display intensity
	CalMin        float32    // Min display intensity
	SliceDuration float32    // Time for 1 slice
	TOffset       float32    // Time axis shift
	UnusedGlmax   int32      // Unused
	UnusedGlmin   int32      // Unused

	Descrip [80]int8 // Any text you like
	AuxFile [24]int8 // Auxiliary filename

	QFormCode int16 // NIFTI_XFORM_* code
	SFormCode int16 // NIFTI_XFORM_* code

	QuaternB float32 // Quaternion b param
	QuaternC float32 // Quaternion c param
	QuaternD float32 // Quaternion d param
	QOffsetX float32 // Quaternion x shift
	QOffsetY float32 // Quaternion y shift
	QOffsetZ float32 // Quaternion z shift

	SRowX [4]float32 // 1st row affine transform
	SRowY [4]float32 // 2nd row affine transform
	SRowZ [4]float32 // 3rd row affine transform

	IntentName [16]int8 // 'name' or meaning of data

	Magic [4]int8 // Must be "ni1\0" or "n+1\0"
}

// Load reads a (optionally gzipped) single-file NIfTI-1 image and returns
// its first 3D frame as an intensity volume, with scl_slope/scl_inter
// scaling applied.
func Load(path string) (*models.Volume, error) {
	raw, err := readBytes(path)
	if err != nil {
		return nil, err
	}

	header, order, err := readHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	vol, err := readData(raw, header, order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.WithFields(log.Fields{
		"path":  path,
		"shape": fmt.Sprintf("%dx%dx%d", vol.Nx, vol.Ny, vol.Nz),
	}).Debug("loaded volume")
	return vol, nil
}

// LoadLabels reads a segmentation image, rounding intensities to their
// nearest integer label code.
func LoadLabels(path string) (*models.Labels, error) {
	vol, err := Load(path)
	if err != nil {
		return nil, err
	}
	out := models.NewLabels(vol.Nx, vol.Ny, vol.Nz)
	for i, v := range vol.Data {
		out.Data[i] = int32(math.Round(v))
	}
	return out, nil
}

// LoadMask reads a binary mask image; any nonzero voxel becomes foreground.
func LoadMask(path string) (*models.Mask, error) {
	vol, err := Load(path)
	if err != nil {
		return nil, err
	}
	out := models.NewMask(vol.Nx, vol.Ny, vol.Nz)
	for i, v := range vol.Data {
		if v != 0 {
			out.Data[i] = 1
		}
	}
	return out, nil
}

// readBytes returns the contents of a file, inflating gzip transparently.
func readBytes(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// DetectContentType uses at most the first 512 bytes
	head := content
	if len(head) > 512 {
		head = head[:512]
	}
	if http.DetectContentType(head) == "application/x-gzip" {
		g, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer g.Close()
		content, err = io.ReadAll(g)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return content, nil
}

// readHeader parses the 348-byte header, inferring the byte order from the
// Dim[0] field as the reference implementation does.
func readHeader(b []byte) (Header, binary.ByteOrder, error) {
	var h Header
	var order binary.ByteOrder = binary.LittleEndian

	if len(b) < headerSize {
		return h, order, fmt.Errorf("file too short for a nifti1 header (%d bytes)", len(b))
	}

	if err := binary.Read(bytes.NewReader(b), order, &h); err != nil {
		return h, order, err
	}
	if h.Dim[0] <= 0 || h.Dim[0] > 7 {
		h = Header{}
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(b), order, &h); err != nil {
			return h, order, err
		}
	}
	if h.Dim[0] <= 0 || h.Dim[0] > 7 {
		return h, order, fmt.Errorf("cannot infer byte order: dim[0] not in [1, 7]")
	}

	if h.SizeOfHdr != headerSize {
		return h, order, fmt.Errorf("invalid header size %d", h.SizeOfHdr)
	}
	// Header and data must live in the same file ("n+1\0")
	if h.Magic != [4]int8{110, 43, 49, 0} {
		return h, order, fmt.Errorf("invalid file magic: single-file nifti1 required")
	}
	return h, order, nil
}

// readData decodes the first 3D frame into a float64 volume.
func readData(b []byte, h Header, order binary.ByteOrder) (*models.Volume, error) {
	nx, ny, nz := int(h.Dim[1]), int(h.Dim[2]), int(h.Dim[3])
	if nx <= 0 {
		nx = 1
	}
	if ny <= 0 {
		ny = 1
	}
	if nz <= 0 {
		nz = 1
	}
	nvox := nx * ny * nz

	offset := int(h.VoxOffset)
	if offset < headerSize {
		offset = headerSize + 4 // default offset including the extension flag
	}
	byPer := int(h.BitPix) / 8
	if len(b) < offset+nvox*byPer {
		return nil, fmt.Errorf("truncated image data: need %d bytes, have %d",
			offset+nvox*byPer, len(b))
	}
	data := b[offset:]

	vol := models.NewVolume(nx, ny, nz)
	for i := 0; i < nvox; i++ {
		chunk := data[i*byPer:]
		var v float64
		switch h.DataType {
		case DTUint8:
			v = float64(chunk[0])
		case DTInt16:
			v = float64(int16(order.Uint16(chunk)))
		case DTInt32:
			v = float64(int32(order.Uint32(chunk)))
		case DTFloat32:
			v = float64(math.Float32frombits(order.Uint32(chunk)))
		case DTFloat64:
			v = math.Float64frombits(order.Uint64(chunk))
		default:
			return nil, fmt.Errorf("unsupported nifti1 datatype %d", h.DataType)
		}
		vol.Data[i] = v
	}

	// Apply the affine intensity scaling when present
	if h.SclSlope != 0 && !(h.SclSlope == 1 && h.SclInter == 0) {
		slope, inter := float64(h.SclSlope), float64(h.SclInter)
		for i := range vol.Data {
			vol.Data[i] = slope*vol.Data[i] + inter
		}
	}
	return vol, nil
}
