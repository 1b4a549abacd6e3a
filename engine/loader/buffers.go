package loader

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/Carmen-Shannon/splat-go/common"
	"github.com/Carmen-Shannon/splat-go/engine/model"
)

// Byte-exact buffer layouts consumed at the boundary of the skinning engine.
// All values are little-endian:
//   - weight records: per point 4×uint16 bone indices then 4×float32 weights (24 bytes)
//   - clip buffers: numFrames × numBones × 16 float32, frame-major then
//     bone-major, column-major matrix elements, parent-relative
//   - rest pose: numBones × 3 float32 translations, numBones × 4 float32
//     quaternions (x, y, z, w)
//   - parents: numBones × int32, -1 meaning root
//
// Length disagreements with the declared counts are logged and processed
// best-effort over the longest complete prefix; absent buffers are errors.

const (
	weightRecordSize = 24
	parentRecordSize = 4
	translationSize  = 12
	rotationSize     = 16
	matrixSize       = 64
)

// ParseWeights decodes per-point bone weight records.
//
// Parameters:
//   - data: the raw weight record buffer
//   - count: the declared point count
//
// Returns:
//   - [][4]uint16: 4 skeleton-local bone indices per point
//   - [][4]float32: 4 blend weights per point
//   - error: error if the buffer is absent
func ParseWeights(data []byte, count int) ([][4]uint16, [][4]float32, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("loader: weight record buffer is missing")
	}

	if len(data) < count*weightRecordSize {
		available := len(data) / weightRecordSize
		slog.Warn("weight buffer shorter than declared point count, truncating",
			"declared", count, "available", available)
		count = available
	}

	indices := make([][4]uint16, count)
	weights := make([][4]float32, count)
	for i := 0; i < count; i++ {
		rec := data[i*weightRecordSize:]
		for c := 0; c < 4; c++ {
			indices[i][c] = binary.LittleEndian.Uint16(rec[c*2:])
			weights[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(rec[8+c*4:]))
		}
	}

	return indices, weights, nil
}

// ParseParents decodes the parents buffer: one int32 per bone, -1 for roots.
//
// Parameters:
//   - data: the raw parents buffer
//   - numBones: the declared bone count
//
// Returns:
//   - []int32: parent index per bone
//   - error: error if the buffer is absent
func ParseParents(data []byte, numBones int) ([]int32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("loader: parents buffer is missing")
	}

	if len(data) < numBones*parentRecordSize {
		available := len(data) / parentRecordSize
		slog.Warn("parents buffer shorter than declared bone count, truncating",
			"declared", numBones, "available", available)
		numBones = available
	}

	parents := make([]int32, numBones)
	for i := range parents {
		parents[i] = int32(binary.LittleEndian.Uint32(data[i*parentRecordSize:]))
	}

	return parents, nil
}

// ParseRestPose decodes the rest translation and rotation buffers.
// Rotations are normalized here, once, at the boundary; the runtime pose
// composition consumes them as-is afterwards.
//
// Parameters:
//   - translations: numBones × 3 float32 buffer
//   - rotations: numBones × 4 float32 quaternion buffer
//   - numBones: the declared bone count
//
// Returns:
//   - [][3]float32: rest translations
//   - [][4]float32: normalized rest rotations (x, y, z, w)
//   - error: error if either buffer is absent
func ParseRestPose(translations, rotations []byte, numBones int) ([][3]float32, [][4]float32, error) {
	if len(translations) == 0 {
		return nil, nil, fmt.Errorf("loader: rest translation buffer is missing")
	}
	if len(rotations) == 0 {
		return nil, nil, fmt.Errorf("loader: rest rotation buffer is missing")
	}

	if len(translations) < numBones*translationSize || len(rotations) < numBones*rotationSize {
		available := min(len(translations)/translationSize, len(rotations)/rotationSize)
		slog.Warn("rest pose buffers shorter than declared bone count, truncating",
			"declared", numBones, "available", available)
		numBones = available
	}

	outT := make([][3]float32, numBones)
	outR := make([][4]float32, numBones)
	for i := 0; i < numBones; i++ {
		t := translations[i*translationSize:]
		for c := 0; c < 3; c++ {
			outT[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(t[c*4:]))
		}

		r := rotations[i*rotationSize:]
		var q [4]float32
		for c := 0; c < 4; c++ {
			q[c] = math.Float32frombits(binary.LittleEndian.Uint32(r[c*4:]))
		}
		outR[i] = common.NormalizeQuat(q)
	}

	return outT, outR, nil
}

// ParseClip decodes an animation clip buffer into frame-major per-bone local
// transforms, copied element-for-element with no decomposition.
//
// Parameters:
//   - name: the clip identifier
//   - data: the raw clip buffer
//   - numFrames: the declared frame count
//   - numBones: the declared bone count
//   - frameRate: the clip's sample rate in frames per second
//
// Returns:
//   - *model.AnimationClip: the decoded clip
//   - error: error if the buffer is absent or holds no complete frame
func ParseClip(name string, data []byte, numFrames, numBones int, frameRate float32) (*model.AnimationClip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("loader: clip buffer for %q is missing", name)
	}
	if numBones <= 0 {
		return nil, fmt.Errorf("loader: clip %q declares no bones", name)
	}

	frameSize := numBones * matrixSize
	if len(data) < numFrames*frameSize {
		available := len(data) / frameSize
		slog.Warn("clip buffer shorter than declared frame count, truncating",
			"clip", name, "declared", numFrames, "available", available)
		numFrames = available
	}
	if numFrames <= 0 {
		return nil, fmt.Errorf("loader: clip %q holds no complete frame", name)
	}

	locals := make([][16]float32, numFrames*numBones)
	for i := range locals {
		src := data[i*matrixSize:]
		for e := 0; e < 16; e++ {
			locals[i][e] = math.Float32frombits(binary.LittleEndian.Uint32(src[e*4:]))
		}
	}

	return &model.AnimationClip{
		Name:       name,
		FrameCount: numFrames,
		BoneCount:  numBones,
		FrameRate:  frameRate,
		Locals:     locals,
	}, nil
}
