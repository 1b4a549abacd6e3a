package loader

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/splat-go/engine/model"
)

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func weightRecord(indices [4]uint16, weights [4]float32) []byte {
	rec := make([]byte, 24)
	for c := 0; c < 4; c++ {
		binary.LittleEndian.PutUint16(rec[c*2:], indices[c])
		putF32(rec[8+c*4:], weights[c])
	}
	return rec
}

func TestParseWeights(t *testing.T) {
	t.Run("round trips a record", func(t *testing.T) {
		data := weightRecord([4]uint16{2, 5, 9, 0}, [4]float32{0.5, 0.3, 0.2, 0})

		idx, wts, err := ParseWeights(data, 1)
		if err != nil {
			t.Fatalf("ParseWeights: %v", err)
		}
		if idx[0] != [4]uint16{2, 5, 9, 0} {
			t.Errorf("indices = %v", idx[0])
		}
		if wts[0] != [4]float32{0.5, 0.3, 0.2, 0} {
			t.Errorf("weights = %v", wts[0])
		}
	})

	t.Run("truncates short buffer", func(t *testing.T) {
		data := append(
			weightRecord([4]uint16{1, 0, 0, 0}, [4]float32{1, 0, 0, 0}),
			weightRecord([4]uint16{2, 0, 0, 0}, [4]float32{1, 0, 0, 0})[:12]...,
		)

		idx, _, err := ParseWeights(data, 2)
		if err != nil {
			t.Fatalf("ParseWeights: %v", err)
		}
		if len(idx) != 1 {
			t.Fatalf("len = %d, want 1 complete record", len(idx))
		}
	})

	t.Run("missing buffer is an error", func(t *testing.T) {
		if _, _, err := ParseWeights(nil, 4); err == nil {
			t.Fatal("expected error for missing buffer")
		}
	})
}

func TestParseParents(t *testing.T) {
	want := []int32{-1, 0, 1, 1}
	data := make([]byte, len(want)*4)
	for i, p := range want {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(p))
	}

	parents, err := ParseParents(data, len(want))
	if err != nil {
		t.Fatalf("ParseParents: %v", err)
	}
	for i := range want {
		if parents[i] != want[i] {
			t.Errorf("parents[%d] = %d, want %d", i, parents[i], want[i])
		}
	}
}

func TestParseRestPose(t *testing.T) {
	t.Run("normalizes rotations once at the boundary", func(t *testing.T) {
		trans := make([]byte, 12)
		putF32(trans[0:], 1)
		putF32(trans[4:], 2)
		putF32(trans[8:], 3)

		// Unit-length times two; parsing must rescale.
		rots := make([]byte, 16)
		putF32(rots[12:], 2)

		outT, outR, err := ParseRestPose(trans, rots, 1)
		if err != nil {
			t.Fatalf("ParseRestPose: %v", err)
		}
		if outT[0] != [3]float32{1, 2, 3} {
			t.Errorf("translation = %v", outT[0])
		}
		if math.Abs(float64(outR[0][3]-1)) > 1e-6 {
			t.Errorf("rotation w = %v, want 1 after normalization", outR[0][3])
		}
	})

	t.Run("zero quaternion becomes identity", func(t *testing.T) {
		trans := make([]byte, 12)
		rots := make([]byte, 16)

		_, outR, err := ParseRestPose(trans, rots, 1)
		if err != nil {
			t.Fatalf("ParseRestPose: %v", err)
		}
		if outR[0] != [4]float32{0, 0, 0, 1} {
			t.Errorf("rotation = %v, want identity", outR[0])
		}
	})

	t.Run("missing either buffer is an error", func(t *testing.T) {
		if _, _, err := ParseRestPose(nil, make([]byte, 16), 1); err == nil {
			t.Fatal("expected error for missing translations")
		}
		if _, _, err := ParseRestPose(make([]byte, 12), nil, 1); err == nil {
			t.Fatal("expected error for missing rotations")
		}
	})
}

func TestParseClip(t *testing.T) {
	const frames, bones = 2, 3

	data := make([]byte, frames*bones*64)
	for i := 0; i < frames*bones; i++ {
		// Tag element 12 (x translation) with a unique value per matrix.
		putF32(data[i*64+12*4:], float32(i))
	}

	clip, err := ParseClip("walk", data, frames, bones, 30)
	if err != nil {
		t.Fatalf("ParseClip: %v", err)
	}
	if clip.FrameCount != frames || clip.BoneCount != bones {
		t.Fatalf("dims = %dx%d", clip.FrameCount, clip.BoneCount)
	}

	// Frame-major then bone-major: frame 1, bone 2 is matrix index 5.
	m := clip.Local(1, 2)
	if m[12] != 5 {
		t.Errorf("Local(1,2)[12] = %v, want 5", m[12])
	}
}

func TestParseClipTruncation(t *testing.T) {
	const bones = 2

	t.Run("partial trailing frame is dropped", func(t *testing.T) {
		data := make([]byte, bones*64+32)
		clip, err := ParseClip("walk", data, 2, bones, 30)
		if err != nil {
			t.Fatalf("ParseClip: %v", err)
		}
		if clip.FrameCount != 1 {
			t.Errorf("FrameCount = %d, want 1", clip.FrameCount)
		}
	})

	t.Run("no complete frame is an error", func(t *testing.T) {
		if _, err := ParseClip("walk", make([]byte, 32), 1, bones, 30); err == nil {
			t.Fatal("expected error when no complete frame fits")
		}
	})
}

func TestRemapBoneIndices(t *testing.T) {
	src := model.NewSkeleton("src",
		[]int32{-1, 0, 0},
		make([][3]float32, 3),
		make([][4]float32, 3),
		[]string{"hip", "spine", "tail"},
	)
	dst := model.NewSkeleton("dst",
		[]int32{-1, 0},
		make([][3]float32, 2),
		make([][4]float32, 2),
		[]string{"spine", "hip"},
	)

	remap := RemapBoneIndices(src, dst)
	if remap[0] != 1 {
		t.Errorf("hip: got %d, want 1", remap[0])
	}
	if remap[1] != 0 {
		t.Errorf("spine: got %d, want 0", remap[1])
	}
	if _, ok := remap[2]; ok {
		t.Error("tail has no match and should be absent from the map")
	}
}
