package skinner

import (
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/splat-go/common"
	"github.com/Carmen-Shannon/splat-go/engine/model"
)

const epsilon = 1e-5

func identityQuats(n int) [][4]float32 {
	qs := make([][4]float32, n)
	for i := range qs {
		qs[i] = [4]float32{0, 0, 0, 1}
	}
	return qs
}

func boneNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	return names
}

func worldPosition(m [16]float32) [3]float32 {
	return [3]float32{m[12], m[13], m[14]}
}

func positionsEqual(t *testing.T, got, want [3]float32) {
	t.Helper()
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > epsilon {
			t.Fatalf("position = %v, want %v", got, want)
		}
	}
}

func TestSolveRestPoseChain(t *testing.T) {
	// Three-bone chain along +Y: each world position accumulates the parent's
	// offset, so the leaf ends up two units up.
	skel := model.NewSkeleton("chain",
		[]int32{-1, 0, 1},
		[][3]float32{{0, 0, 0}, {0, 1, 0}, {0, 1, 0}},
		identityQuats(3),
		boneNames(3),
	)

	world, err := SolveRestPose(skel)
	if err != nil {
		t.Fatalf("SolveRestPose: %v", err)
	}

	positionsEqual(t, worldPosition(world[0]), [3]float32{0, 0, 0})
	positionsEqual(t, worldPosition(world[1]), [3]float32{0, 1, 0})
	positionsEqual(t, worldPosition(world[2]), [3]float32{0, 2, 0})
}

func TestSolveRestPoseRotationPropagates(t *testing.T) {
	// Root rotates 90° about Z; the child's +Y offset must land on -X.
	half := float32(math.Sqrt2 / 2)
	skel := model.NewSkeleton("bent",
		[]int32{-1, 0},
		[][3]float32{{0, 0, 0}, {0, 1, 0}},
		[][4]float32{{0, 0, half, half}, {0, 0, 0, 1}},
		boneNames(2),
	)

	world, err := SolveRestPose(skel)
	if err != nil {
		t.Fatalf("SolveRestPose: %v", err)
	}
	positionsEqual(t, worldPosition(world[1]), [3]float32{-1, 0, 0})
}

func TestSolveRestPoseOutOfOrderParents(t *testing.T) {
	// Same chain with the child stored before its parent. Traversal order must
	// come from the hierarchy, not from index order.
	skel := model.NewSkeleton("shuffled",
		[]int32{1, 2, -1},
		[][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 0, 0}},
		identityQuats(3),
		boneNames(3),
	)

	world, err := SolveRestPose(skel)
	if err != nil {
		t.Fatalf("SolveRestPose: %v", err)
	}

	positionsEqual(t, worldPosition(world[2]), [3]float32{0, 0, 0})
	positionsEqual(t, worldPosition(world[1]), [3]float32{0, 1, 0})
	positionsEqual(t, worldPosition(world[0]), [3]float32{0, 2, 0})
}

func TestSolveRestPoseInvalidParent(t *testing.T) {
	// A parent index past the bone count degrades to root, never panics.
	skel := model.NewSkeleton("broken",
		[]int32{-1, 99},
		[][3]float32{{0, 0, 0}, {3, 0, 0}},
		identityQuats(2),
		boneNames(2),
	)

	world, err := SolveRestPose(skel)
	if err != nil {
		t.Fatalf("SolveRestPose: %v", err)
	}
	positionsEqual(t, worldPosition(world[1]), [3]float32{3, 0, 0})
}

func TestSolveRestPoseSelfParent(t *testing.T) {
	skel := model.NewSkeleton("selfie",
		[]int32{0},
		[][3]float32{{1, 2, 3}},
		identityQuats(1),
		boneNames(1),
	)

	world, err := SolveRestPose(skel)
	if err != nil {
		t.Fatalf("SolveRestPose: %v", err)
	}
	positionsEqual(t, worldPosition(world[0]), [3]float32{1, 2, 3})
}

func TestSolveRestPoseMissingData(t *testing.T) {
	skel := model.NewSkeleton("bare", []int32{-1, 0}, nil, nil, boneNames(2))

	if _, err := SolveRestPose(skel); !errors.Is(err, ErrPoseDataUnavailable) {
		t.Fatalf("err = %v, want ErrPoseDataUnavailable", err)
	}
}

func TestSolveFrame(t *testing.T) {
	skel := model.NewSkeleton("chain",
		[]int32{-1, 0},
		[][3]float32{{0, 0, 0}, {0, 1, 0}},
		identityQuats(2),
		boneNames(2),
	)
	clip := makeTranslationClip(skel.NumBones(), 3, 30)

	world, err := SolveFrame(skel, clip, 2)
	if err != nil {
		t.Fatalf("SolveFrame: %v", err)
	}

	// Frame f places the root at x=f; the child adds one unit of y.
	positionsEqual(t, worldPosition(world[0]), [3]float32{2, 0, 0})
	positionsEqual(t, worldPosition(world[1]), [3]float32{2, 1, 0})
}

func TestSolveFrameOutOfRange(t *testing.T) {
	skel := model.NewSkeleton("chain", []int32{-1}, [][3]float32{{0, 0, 0}}, identityQuats(1), boneNames(1))
	clip := makeTranslationClip(1, 2, 30)

	for _, frame := range []int{-1, 2, 99} {
		if _, err := SolveFrame(skel, clip, frame); !errors.Is(err, ErrFrameOutOfRange) {
			t.Errorf("frame %d: err = %v, want ErrFrameOutOfRange", frame, err)
		}
	}
}

func TestSolveFrameBoneCountMismatch(t *testing.T) {
	// Clip has fewer bones than the skeleton; extra bones fall back to
	// identity locals rather than failing the solve.
	skel := model.NewSkeleton("grown",
		[]int32{-1, 0, 1},
		[][3]float32{{0, 0, 0}, {0, 1, 0}, {0, 1, 0}},
		identityQuats(3),
		boneNames(3),
	)
	clip := makeTranslationClip(2, 1, 30)

	world, err := SolveFrame(skel, clip, 0)
	if err != nil {
		t.Fatalf("SolveFrame: %v", err)
	}
	if len(world) != 3 {
		t.Fatalf("len = %d, want 3", len(world))
	}
	positionsEqual(t, worldPosition(world[2]), worldPosition(world[1]))
}

func TestSolveFrameMissingClip(t *testing.T) {
	skel := model.NewSkeleton("chain", []int32{-1}, [][3]float32{{0, 0, 0}}, identityQuats(1), boneNames(1))

	if _, err := SolveFrame(skel, nil, 0); !errors.Is(err, ErrPoseDataUnavailable) {
		t.Fatalf("err = %v, want ErrPoseDataUnavailable", err)
	}
}

// makeTranslationClip bakes a clip whose frame f places every bone at a local
// x offset of f, except non-root bones which keep their +Y chain offset.
func makeTranslationClip(bones, frames int, rate float32) *model.AnimationClip {
	locals := make([][16]float32, frames*bones)
	for f := 0; f < frames; f++ {
		for b := 0; b < bones; b++ {
			m := &locals[f*bones+b]
			common.Identity(m[:])
			if b == 0 {
				m[12] = float32(f)
			} else {
				m[13] = 1
			}
		}
	}
	return &model.AnimationClip{
		Name:       "slide",
		FrameCount: frames,
		BoneCount:  bones,
		FrameRate:  rate,
		Locals:     locals,
	}
}
