package skinner

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/splat-go/engine/model"
	"github.com/Carmen-Shannon/splat-go/engine/renderer/palette"
)

// ErrNoWeightData is returned when an asset carries no per-point influence
// data; skinning cannot be enabled for that asset.
var ErrNoWeightData = errors.New("skinner: point cloud has no weight data")

// Bind translates an asset's raw per-point influences through a skeleton's
// slot map into GPU-facing buffers: for each of a point's 4 channels the
// skeleton-local bone index becomes a float-encoded palette slot, falling back
// to the identity slot for indices with no mapping, and the weight is copied
// through unchanged; weights are never renormalized here.
//
// Parameters:
//   - pc: the point-cloud asset supplying raw bone indices and weights
//   - slotMap: the skeleton's bone-index-to-palette-slot mapping
//
// Returns:
//   - *model.SkinBinding: the per-point slot and weight buffers
//   - error: ErrNoWeightData when the asset has no influence data
func Bind(pc *model.PointCloud, slotMap []uint32) (*model.SkinBinding, error) {
	if pc == nil || !pc.HasWeightData() {
		return nil, fmt.Errorf("%w: %q", ErrNoWeightData, assetName(pc))
	}

	b := &model.SkinBinding{
		PaletteSlots: make([]float32, pc.Count*4),
		Weights:      make([]float32, pc.Count*4),
	}

	for i := 0; i < pc.Count; i++ {
		for c := 0; c < 4; c++ {
			b.PaletteSlots[i*4+c] = float32(resolveSlot(slotMap, pc.BoneIndices[i][c]))
			b.Weights[i*4+c] = pc.BoneWeights[i][c]
		}
	}

	return b, nil
}

// BindSingleBone is the degraded fallback for hosts without GPU blending:
// each point is mapped to its single highest-weight bone with full weight, and
// the remaining channels point at the identity slot with zero weight.
//
// Parameters:
//   - pc: the point-cloud asset supplying raw bone indices and weights
//   - slotMap: the skeleton's bone-index-to-palette-slot mapping
//
// Returns:
//   - *model.SkinBinding: the per-point slot and weight buffers
//   - error: ErrNoWeightData when the asset has no influence data
func BindSingleBone(pc *model.PointCloud, slotMap []uint32) (*model.SkinBinding, error) {
	if pc == nil || !pc.HasWeightData() {
		return nil, fmt.Errorf("%w: %q", ErrNoWeightData, assetName(pc))
	}

	b := &model.SkinBinding{
		PaletteSlots: make([]float32, pc.Count*4),
		Weights:      make([]float32, pc.Count*4),
	}

	for i := 0; i < pc.Count; i++ {
		best := 0
		for c := 1; c < 4; c++ {
			if pc.BoneWeights[i][c] > pc.BoneWeights[i][best] {
				best = c
			}
		}

		b.PaletteSlots[i*4] = float32(resolveSlot(slotMap, pc.BoneIndices[i][best]))
		b.Weights[i*4] = 1
		for c := 1; c < 4; c++ {
			b.PaletteSlots[i*4+c] = palette.IdentitySlot
			b.Weights[i*4+c] = 0
		}
	}

	return b, nil
}

// resolveSlot maps a raw skeleton-local bone index to its palette slot,
// substituting the identity slot for unmapped references.
func resolveSlot(slotMap []uint32, raw uint16) uint32 {
	if int(raw) >= len(slotMap) {
		return palette.IdentitySlot
	}
	return slotMap[raw]
}

func assetName(pc *model.PointCloud) string {
	if pc == nil {
		return ""
	}
	return pc.Name
}
