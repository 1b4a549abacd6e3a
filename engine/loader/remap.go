package loader

import (
	"log/slog"

	"github.com/Carmen-Shannon/splat-go/engine/model"
)

// RemapBoneIndices builds a best-effort name-based mapping from one skeleton's
// bone indices to another's. Bones without a same-named counterpart are simply
// absent from the result; callers fall back to the identity slot for those.
// This is a boundary convenience for retargeting imported weight data between
// similarly-named armatures, not a correctness guarantee for differing
// topologies.
//
// Parameters:
//   - src: the skeleton whose indices appear in the source data
//   - dst: the skeleton the indices should be remapped to
//
// Returns:
//   - map[int32]int32: source bone index to destination bone index, matched by name
func RemapBoneIndices(src, dst *model.Skeleton) map[int32]int32 {
	remap := make(map[int32]int32)
	if src == nil || dst == nil || len(src.BoneNames) == 0 || dst.BoneNameToIndex == nil {
		return remap
	}

	missing := 0
	for i, name := range src.BoneNames {
		if name == "" {
			continue
		}
		if dstIdx, ok := dst.BoneNameToIndex[name]; ok {
			remap[int32(i)] = dstIdx
		} else {
			missing++
		}
	}

	if missing > 0 {
		slog.Warn("bone remap left source bones unmatched",
			"src", src.Name, "dst", dst.Name, "unmatched", missing)
	}

	return remap
}
