package skinner

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Carmen-Shannon/splat-go/common"
	"github.com/Carmen-Shannon/splat-go/engine/model"
)

var (
	// ErrPoseDataUnavailable is returned when the buffers required to solve a
	// pose (parents plus rest pose, or parents plus clip) are absent. Callers
	// treat it as "skip this update", never as fatal.
	ErrPoseDataUnavailable = errors.New("skinner: pose data unavailable")

	// ErrFrameOutOfRange is returned when a requested frame index falls
	// outside the clip. Callers ignore the request and retain prior state.
	ErrFrameOutOfRange = errors.New("skinner: frame index out of range")
)

// SolveRestPose computes world-space bone transforms for the skeleton's rest
// pose: each bone's local transform is T(translation)·R(rotation) at scale 1,
// with the rotation consumed as-is (rest rotations are normalized once at the
// loader boundary). The result is freshly allocated on every call.
//
// Parameters:
//   - skel: the skeleton to solve
//
// Returns:
//   - [][16]float32: one column-major world transform per bone
//   - error: ErrPoseDataUnavailable when rest-pose buffers are absent
func SolveRestPose(skel *model.Skeleton) ([][16]float32, error) {
	if skel == nil || !skel.HasRestPose() {
		return nil, fmt.Errorf("%w: rest pose for %q", ErrPoseDataUnavailable, skeletonName(skel))
	}

	n := skel.NumBones()
	locals := make([][16]float32, n)
	for i := 0; i < n; i++ {
		common.ComposeTR(locals[i][:], skel.RestTranslations[i], skel.RestRotations[i])
	}

	return solveHierarchy(skel, locals), nil
}

// SolveFrame computes world-space bone transforms for one clip frame. The
// clip's local matrices are used directly, copied element-for-element with no
// decomposition. The result is freshly allocated on every call.
//
// Parameters:
//   - skel: the skeleton to solve
//   - clip: the animation clip supplying per-bone local transforms
//   - frame: the frame index into the clip
//
// Returns:
//   - [][16]float32: one column-major world transform per bone
//   - error: ErrPoseDataUnavailable when skeleton or clip data is absent,
//     ErrFrameOutOfRange when frame is outside [0, FrameCount)
func SolveFrame(skel *model.Skeleton, clip *model.AnimationClip, frame int) ([][16]float32, error) {
	if skel == nil || skel.NumBones() == 0 {
		return nil, fmt.Errorf("%w: skeleton parents", ErrPoseDataUnavailable)
	}
	if clip == nil || len(clip.Locals) == 0 {
		return nil, fmt.Errorf("%w: clip for %q", ErrPoseDataUnavailable, skeletonName(skel))
	}
	if frame < 0 || frame >= clip.FrameCount {
		return nil, fmt.Errorf("%w: frame %d of clip %q with %d frames", ErrFrameOutOfRange, frame, clip.Name, clip.FrameCount)
	}

	n := skel.NumBones()
	if clip.BoneCount != n {
		slog.Warn("clip bone count disagrees with skeleton, proceeding best-effort",
			"clip", clip.Name, "clipBones", clip.BoneCount, "skeletonBones", n)
	}

	locals := make([][16]float32, n)
	for i := 0; i < n; i++ {
		if i < clip.BoneCount {
			locals[i] = clip.Local(frame, i)
		} else {
			common.Identity(locals[i][:])
		}
	}

	return solveHierarchy(skel, locals), nil
}

// solveHierarchy walks the bone hierarchy and composes world transforms:
// world[root] = local[root], world[i] = world[parent[i]] · local[i].
// The traversal builds a child adjacency list and descends it iteratively with
// an explicit stack, so correctness does not depend on parents having lower
// indices than their children.
func solveHierarchy(skel *model.Skeleton, locals [][16]float32) [][16]float32 {
	n := len(locals)
	parents := skel.Parents
	world := make([][16]float32, n)

	children := make([][]int32, n)
	var roots []int32
	for i, parent := range parents {
		switch {
		case parent < 0:
			roots = append(roots, int32(i))
		case int(parent) >= n || int(parent) == i:
			slog.Warn("bone has invalid parent, treating as root",
				"skeleton", skeletonName(skel), "bone", i, "parent", parent)
			roots = append(roots, int32(i))
		default:
			children[parent] = append(children[parent], int32(i))
		}
	}

	if len(roots) == 0 {
		slog.Warn("skeleton has no root bone, falling back to bone 0",
			"skeleton", skeletonName(skel))
		roots = append(roots, 0)
	}

	visited := make([]bool, n)
	stack := make([]int32, 0, n)
	for _, r := range roots {
		world[r] = locals[r]
		visited[r] = true
		stack = append(stack, r)
	}

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range children[idx] {
			if visited[child] {
				continue
			}
			common.Mul4(world[child][:], world[idx][:], locals[child][:])
			visited[child] = true
			stack = append(stack, child)
		}
	}

	// Bones unreachable from any root (cyclic parent data) keep their local
	// transform as world.
	for i := 0; i < n; i++ {
		if !visited[i] {
			slog.Warn("bone unreachable from any root, using local transform",
				"skeleton", skeletonName(skel), "bone", i)
			world[i] = locals[i]
		}
	}

	return world
}

func skeletonName(skel *model.Skeleton) string {
	if skel == nil {
		return ""
	}
	return skel.Name
}
