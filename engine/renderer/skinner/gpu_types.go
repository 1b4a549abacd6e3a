package skinner

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/splat-go/engine/model"
)

// GPUPointSkin is the GPU-aligned representation of one point's skinning data:
// 4 float-encoded palette slot indices followed by 4 blend weights, matching
// the per-point buffers the external renderer blends with
// Σ weight_i · palette[slot_i] · restPosition.
// Size: 32 bytes (std430 aligned).
type GPUPointSkin struct {
	Slots   [4]float32 // offset 0: float-encoded palette slot indices
	Weights [4]float32 // offset 16: blend weights, expected to sum to ≈1
}

// Size returns the size of the GPUPointSkin struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUPointSkin) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPointSkin struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUPointSkin) Marshal() []byte {
	buf := make([]byte, 32)
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.Slots[i]))
		binary.LittleEndian.PutUint32(buf[16+i*4:16+(i+1)*4], math.Float32bits(g.Weights[i]))
	}
	return buf
}

// PackPointSkins converts a skin binding's flat buffers into per-point
// GPU structs, in the same order as the source point cloud.
//
// Parameters:
//   - b: the skin binding to pack
//
// Returns:
//   - []GPUPointSkin: one entry per point
func PackPointSkins(b *model.SkinBinding) []GPUPointSkin {
	if b == nil {
		return nil
	}
	count := len(b.PaletteSlots) / 4
	out := make([]GPUPointSkin, count)
	for i := 0; i < count; i++ {
		copy(out[i].Slots[:], b.PaletteSlots[i*4:i*4+4])
		copy(out[i].Weights[:], b.Weights[i*4:i*4+4])
	}
	return out
}
