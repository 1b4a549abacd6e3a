package model

// --- Skeleton Types ---

// Skeleton represents a bone hierarchy for skeletal point-cloud skinning.
// Bones are addressed by index; the hierarchy is defined entirely by the
// Parents array. The rest-pose buffers are optional; a skeleton without them
// can still play clip frames but cannot derive a bind pose.
// A Skeleton is constructed once per loaded asset and immutable thereafter.
type Skeleton struct {
	// Name is the skeleton's identifier (for debugging and boundary remapping).
	Name string

	// Parents holds the parent bone index for each bone, -1 for root bones.
	// Its length defines the bone count.
	Parents []int32

	// RestTranslations are the per-bone rest translations, or nil when the
	// source asset carried no rest pose.
	RestTranslations [][3]float32

	// RestRotations are the per-bone rest rotations as quaternions (x, y, z, w),
	// or nil when the source asset carried no rest pose.
	RestRotations [][4]float32

	// BoneNames are optional per-bone identifiers used for boundary remapping.
	BoneNames []string

	// BoneNameToIndex maps bone names to their indices for quick lookup.
	// Populated by NewSkeleton when bone names are present.
	BoneNameToIndex map[string]int32
}

// NewSkeleton creates a skeleton from its component buffers and builds the
// name-to-index map when names are provided. The rest-pose slices may be nil.
//
// Parameters:
//   - name: the skeleton identifier
//   - parents: parent index per bone, -1 for roots
//   - restTranslations: per-bone rest translations, or nil
//   - restRotations: per-bone rest rotations (x, y, z, w), or nil
//   - boneNames: per-bone names, or nil
//
// Returns:
//   - *Skeleton: the constructed skeleton
func NewSkeleton(name string, parents []int32, restTranslations [][3]float32, restRotations [][4]float32, boneNames []string) *Skeleton {
	s := &Skeleton{
		Name:             name,
		Parents:          parents,
		RestTranslations: restTranslations,
		RestRotations:    restRotations,
		BoneNames:        boneNames,
	}
	if len(boneNames) > 0 {
		s.BoneNameToIndex = make(map[string]int32, len(boneNames))
		for i, n := range boneNames {
			if n != "" {
				s.BoneNameToIndex[n] = int32(i)
			}
		}
	}
	return s
}

// NumBones returns the number of bones in the skeleton.
//
// Returns:
//   - int: the bone count
func (s *Skeleton) NumBones() int {
	return len(s.Parents)
}

// HasRestPose reports whether the skeleton carries complete rest-pose data
// (parents plus per-bone translations and rotations of matching length).
//
// Returns:
//   - bool: true if a bind pose can be derived
func (s *Skeleton) HasRestPose() bool {
	n := len(s.Parents)
	return n > 0 && len(s.RestTranslations) == n && len(s.RestRotations) == n
}

// --- Animation Types ---

// AnimationClip holds sampled per-bone local transforms for a sequence of
// discrete frames. Locals is frame-major then bone-major: the matrix for
// (frame f, bone b) sits at index f*BoneCount+b. Matrices are column-major
// and parent-relative, copied verbatim from the source clip buffer.
type AnimationClip struct {
	// Name is the clip identifier.
	Name string

	// FrameCount is the number of sampled frames.
	FrameCount int

	// BoneCount is the number of bones per frame.
	BoneCount int

	// FrameRate is the clip's sample rate in frames per second.
	FrameRate float32

	// Locals are the per-frame per-bone local transforms.
	Locals [][16]float32
}

// Local returns the local transform for a bone at a frame.
// The caller is responsible for keeping frame and bone in range.
//
// Parameters:
//   - frame: the frame index in [0, FrameCount)
//   - bone: the bone index in [0, BoneCount)
//
// Returns:
//   - [16]float32: the column-major local transform
func (c *AnimationClip) Local(frame, bone int) [16]float32 {
	return c.Locals[frame*c.BoneCount+bone]
}

// --- Point-Cloud Types ---

// PointCloud represents a Gaussian-splat point-cloud asset with per-point
// skinning influences. Each point references up to four skeleton-local bone
// indices with blend weights (expected, not enforced, to sum to ≈1).
type PointCloud struct {
	// Name is the asset identifier.
	Name string

	// Count is the number of points.
	Count int

	// BoneIndices holds 4 skeleton-local bone indices per point.
	BoneIndices [][4]uint16

	// BoneWeights holds 4 blend weights per point, parallel to BoneIndices.
	BoneWeights [][4]float32

	// Binding is the asset's owned skinning binding, nil until the asset is
	// bound to a skeleton. Dropped on unlink; never shared between assets,
	// and an asset is linked to at most one skeleton at a time.
	Binding *SkinBinding
}

// HasWeightData reports whether the asset carries per-point influence data
// sized to its point count. Binding fails explicitly without it.
//
// Returns:
//   - bool: true if skinning can be enabled for this asset
func (p *PointCloud) HasWeightData() bool {
	return p.Count > 0 && len(p.BoneIndices) == p.Count && len(p.BoneWeights) == p.Count
}

// SkinBinding is the per-point GPU-facing output of the skinning binder:
// float-encoded palette slot indices and pass-through weights, 4 per point,
// in the same order as the source point cloud.
type SkinBinding struct {
	// PaletteSlots holds 4 float-encoded palette indices per point.
	PaletteSlots []float32

	// Weights holds 4 blend weights per point, copied through unchanged.
	Weights []float32
}
