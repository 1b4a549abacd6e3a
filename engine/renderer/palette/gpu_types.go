package palette

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUPaletteEntry is the GPU-aligned representation of one palette slot: a 3×4
// affine transform packed as 3 texels of 4 floats, row by row, with the bottom
// row (0,0,0,1) implicit. Slot 0 always decodes to the identity transform.
// Size: 48 bytes (std430 aligned).
type GPUPaletteEntry struct {
	Texels [12]float32 // offset 0: rows 0..2 of the affine transform, 4 floats each
}

// NewGPUPaletteEntry packs a column-major 4x4 matrix into the compacted 3×4
// slot encoding. The matrix's bottom row is dropped; well-formed affine input
// always has (0,0,0,1) there.
//
// Parameters:
//   - m: the column-major source matrix
//
// Returns:
//   - GPUPaletteEntry: the packed slot value
func NewGPUPaletteEntry(m [16]float32) GPUPaletteEntry {
	var e GPUPaletteEntry
	for r := 0; r < 3; r++ {
		e.Texels[r*4+0] = m[r]
		e.Texels[r*4+1] = m[4+r]
		e.Texels[r*4+2] = m[8+r]
		e.Texels[r*4+3] = m[12+r]
	}
	return e
}

// Matrix expands the slot back to a column-major 4x4 matrix with the implicit
// (0,0,0,1) bottom row restored.
//
// Returns:
//   - [16]float32: the column-major transform
func (g *GPUPaletteEntry) Matrix() [16]float32 {
	var m [16]float32
	for r := 0; r < 3; r++ {
		m[r] = g.Texels[r*4+0]
		m[4+r] = g.Texels[r*4+1]
		m[8+r] = g.Texels[r*4+2]
		m[12+r] = g.Texels[r*4+3]
	}
	m[15] = 1
	return m
}

// Size returns the size of the GPUPaletteEntry struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUPaletteEntry) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPaletteEntry struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload.
func (g *GPUPaletteEntry) Marshal() []byte {
	buf := make([]byte, 48)
	for i := range 12 {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.Texels[i]))
	}
	return buf
}

// identityEntry returns the packed identity transform used for slot 0 and for
// freshly freed slots.
func identityEntry() GPUPaletteEntry {
	return GPUPaletteEntry{Texels: [12]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}}
}
